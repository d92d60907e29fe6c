package commands

import (
	"fmt"
	"math"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/sranges/pkg/birthdeath"
	"github.com/Sumatoshi-tech/sranges/pkg/report"
	"github.com/Sumatoshi-tech/sranges/pkg/treeio"
)

// NewOrientateCommand creates the orientate command.
func NewOrientateCommand() *cobra.Command {
	var (
		rangesPath string
		plain      bool
	)

	cmd := &cobra.Command{
		Use:   "orientate [tree]",
		Short: "Repair the child orientation of a tree and print it",
		Long: `Read a Newick tree, put every ancestral lineage on the left and print the tree
with orientation and range annotations.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			tree, err := inputTree(cfg, args, rangesPath)
			if err != nil {
				return err
			}

			var opts []treeio.WriteOption
			if plain {
				opts = append(opts, treeio.WithoutMetadata())
			}

			text, err := treeio.Write(tree, opts...)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)

			return err
		},
	}

	cmd.Flags().StringVar(&rangesPath, "ranges", "", "JSON range definition file")
	cmd.Flags().BoolVar(&plain, "plain", false, "Omit annotations")

	return cmd
}

// NewRangesCommand creates the ranges command.
func NewRangesCommand() *cobra.Command {
	var (
		rangesPath string
		maxItems   int
	)

	cmd := &cobra.Command{
		Use:   "ranges [tree]",
		Short: "List the stratigraphic ranges of a tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			tree, err := inputTree(cfg, args, rangesPath)
			if err != nil {
				return err
			}

			f := report.NewFormatter(report.FormatConfig{MaxItems: maxItems})

			return report.Write(cmd.OutOrStdout(), f.Ranges(tree))
		},
	}

	cmd.Flags().StringVar(&rangesPath, "ranges", "", "JSON range definition file")
	cmd.Flags().IntVar(&maxItems, "max", 0, "Maximum rows (0 = all)")

	return cmd
}

// NewDensityCommand creates the density command.
func NewDensityCommand() *cobra.Command {
	var rangesPath string

	cmd := &cobra.Command{
		Use:   "density [tree]",
		Short: "Evaluate the birth-death log density of a tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			tree, err := inputTree(cfg, args, rangesPath)
			if err != nil {
				return err
			}

			params, err := cfg.ModelParams()
			if err != nil {
				return err
			}

			model, err := birthdeath.New(params)
			if err != nil {
				return err
			}

			logDensity, err := model.LogDensity(tree)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if isQuiet(cmd) {
				_, err = fmt.Fprintln(out, logDensity)

				return err
			}

			c := color.New(color.FgGreen)
			if math.IsInf(logDensity, -1) {
				c = color.New(color.FgRed)
			}

			_, err = c.Fprintf(out, "log density: %v\n", logDensity)

			return err
		},
	}

	cmd.Flags().StringVar(&rangesPath, "ranges", "", "JSON range definition file")

	return cmd
}
