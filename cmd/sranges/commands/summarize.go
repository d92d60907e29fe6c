package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/sranges/pkg/config"
	"github.com/Sumatoshi-tech/sranges/pkg/mcmc"
	"github.com/Sumatoshi-tech/sranges/pkg/report"
	"github.com/Sumatoshi-tech/sranges/pkg/srtree"
	"github.com/Sumatoshi-tech/sranges/pkg/treeio"
)

// ErrEmptyLog is returned when a tree log holds no trees past the burn-in.
var ErrEmptyLog = errors.New("tree log has no trees after burn-in")

// NewSummarizeCommand creates the summarize command.
func NewSummarizeCommand() *cobra.Command {
	var (
		burnIn   float64
		top      int
		plotPath string
	)

	cmd := &cobra.Command{
		Use:   "summarize <tree-log>",
		Short: "Tally the oriented topologies of a tree log",
		Long: `Read a NEXUS tree log, plain or lz4-compressed, discard the burn-in and print the
most frequent oriented topologies.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tally, err := tallyLog(args[0], burnIn)
			if err != nil {
				return err
			}

			if plotPath != "" {
				err = writePlot(plotPath, nil, tally.Top(top), tally.Total())
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if !isQuiet(cmd) {
				color.New(color.FgCyan).Fprintf(out, "Summarized %s trees from %s\n", humanize.Comma(tally.Total()), args[0])
			}

			f := report.NewFormatter(report.FormatConfig{MaxItems: top})

			return report.Write(out, f.Topologies(tally.Top(0), tally.Total()))
		},
	}

	cmd.Flags().Float64Var(&burnIn, "burn-in", defaultBurnIn, "Fraction of trees discarded from the start")
	cmd.Flags().IntVar(&top, "top", defaultTopN, "Number of topologies shown")
	cmd.Flags().StringVar(&plotPath, "plot", "", "Write an HTML topology chart")

	return cmd
}

// tallyLog counts the topologies of the trees in a log past the burn-in fraction.
func tallyLog(path string, burnIn float64) (*mcmc.TopologyTally, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tree log: %w", err)
	}
	defer f.Close()

	lr, err := treeio.NewLogReader(f)
	if err != nil {
		return nil, err
	}

	var trees []*srtree.Tree

	for {
		_, tree, nextErr := lr.NextTree()
		if errors.Is(nextErr, io.EOF) {
			break
		}

		if nextErr != nil {
			return nil, nextErr
		}

		trees = append(trees, tree)
	}

	skip := int(burnIn * float64(len(trees)))
	if skip >= len(trees) {
		return nil, ErrEmptyLog
	}

	tally := mcmc.NewTopologyTally()
	for _, tree := range trees[skip:] {
		_ = tally.Sample(0, 0, tree, 0)
	}

	return tally, nil
}

// NewConfigCommand creates the config command.
func NewConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the default configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return config.WriteExample(cmd.OutOrStdout())
		},
	}
}
