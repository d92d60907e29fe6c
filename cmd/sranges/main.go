// Package main provides the entry point for the sranges CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/Sumatoshi-tech/sranges/cmd/sranges/commands"
	"github.com/Sumatoshi-tech/sranges/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	err := commands.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
