// Package commands implements the sranges CLI commands.
package commands

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/sranges/pkg/config"
	"github.com/Sumatoshi-tech/sranges/pkg/observability"
	"github.com/Sumatoshi-tech/sranges/pkg/rangefile"
	"github.com/Sumatoshi-tech/sranges/pkg/srtree"
	"github.com/Sumatoshi-tech/sranges/pkg/treeio"
	"github.com/Sumatoshi-tech/sranges/pkg/version"
)

// Persistent flag names.
const (
	flagConfig  = "config"
	flagVerbose = "verbose"
	flagQuiet   = "quiet"
)

// ErrNoTree is returned when neither an argument nor input.tree names a tree.
var ErrNoTree = errors.New("no input tree: pass a file or set input.tree")

// NewRootCommand builds the sranges command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sranges",
		Short: "Stratigraphic-range tree sampler",
		Long: `sranges samples sampled-ancestor trees with stratigraphic ranges under the
fossilized birth-death model.

Commands:
  sample     Run MCMC chains and write the tree log
  orientate  Repair the child orientation of a tree
  ranges     List the stratigraphic ranges of a tree
  density    Evaluate the birth-death log density of a tree
  summarize  Tally the topologies of a tree log`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String(flagConfig, "", "Config file (default: ./sranges.yaml)")
	rootCmd.PersistentFlags().BoolP(flagVerbose, "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP(flagQuiet, "q", false, "suppress output")

	rootCmd.AddCommand(
		NewSampleCommand(),
		NewOrientateCommand(),
		NewRangesCommand(),
		NewDensityCommand(),
		NewSummarizeCommand(),
		NewConfigCommand(),
		newVersionCommand(),
	)

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString(flagConfig)
	if err != nil {
		return nil, err
	}

	return config.LoadConfig(path)
}

func isQuiet(cmd *cobra.Command) bool {
	quiet, err := cmd.Flags().GetBool(flagQuiet)

	return err == nil && quiet
}

func isVerbose(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool(flagVerbose)

	return err == nil && verbose
}

// observabilityConfig maps the run configuration and verbosity flags onto telemetry settings.
func observabilityConfig(cmd *cobra.Command, cfg *config.Config, mode observability.AppMode) observability.Config {
	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.Mode = mode
	obsCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	obsCfg.OTLPHeaders = observability.ParseOTLPHeaders(cfg.Telemetry.OTLPHeaders)
	obsCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	obsCfg.SampleRatio = cfg.Telemetry.TraceSampleRatio
	obsCfg.Prometheus = cfg.Telemetry.MetricsAddr != ""
	obsCfg.LogLevel = observability.ParseLevel(cfg.Logging.Level)
	obsCfg.LogJSON = cfg.Logging.Format == "json"

	switch {
	case isQuiet(cmd):
		obsCfg.LogLevel = slog.LevelError
	case isVerbose(cmd):
		obsCfg.LogLevel = slog.LevelDebug
	}

	return obsCfg
}

// readTree loads a tree from a Newick file, or the first tree of a NEXUS tree log.
func readTree(path string, opts ...srtree.Option) (*srtree.Tree, error) {
	if path == "" {
		return nil, ErrNoTree
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tree: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read tree: %w", err)
	}

	text := strings.TrimSpace(string(data))

	if !isTreeLog(data, text) {
		tree, readErr := treeio.Read(text, opts...)
		if readErr != nil {
			return nil, fmt.Errorf("%s: %w", path, readErr)
		}

		return tree, nil
	}

	lr, err := treeio.NewLogReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	_, tree, err := lr.NextTree(opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return tree, nil
}

// lz4Magic opens a compressed tree log.
var lz4Magic = []byte{0x04, 0x22, 0x4d, 0x18}

func isTreeLog(data []byte, text string) bool {
	return bytes.HasPrefix(data, lz4Magic) || strings.HasPrefix(strings.ToUpper(text), "#NEXUS")
}

// rangeOptions returns the explicit range definitions of a range file, if one is named.
func rangeOptions(path string) ([]srtree.Option, error) {
	if path == "" {
		return nil, nil
	}

	defs, err := rangefile.Load(path)
	if err != nil {
		return nil, err
	}

	return []srtree.Option{srtree.WithRanges(defs...)}, nil
}

// inputTree resolves the tree path from the first argument or the config and reads it with
// the configured range file.
func inputTree(cfg *config.Config, args []string, rangesPath string) (*srtree.Tree, error) {
	path := cfg.Input.Tree
	if len(args) > 0 {
		path = args[0]
	}

	if rangesPath == "" {
		rangesPath = cfg.Input.Ranges
	}

	opts, err := rangeOptions(rangesPath)
	if err != nil {
		return nil, err
	}

	return readTree(path, opts...)
}
