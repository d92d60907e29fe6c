package config

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

const exampleHeader = "# sranges configuration. Every key may be overridden by SRANGES_<SECTION>_<KEY>.\n"

// WriteExample writes the default configuration as YAML.
func WriteExample(w io.Writer) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal example config: %w", err)
	}

	_, err = io.WriteString(w, exampleHeader+string(data))
	if err != nil {
		return fmt.Errorf("write example config: %w", err)
	}

	return nil
}
