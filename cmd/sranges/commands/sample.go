package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/sranges/pkg/birthdeath"
	"github.com/Sumatoshi-tech/sranges/pkg/checkpoint"
	"github.com/Sumatoshi-tech/sranges/pkg/config"
	"github.com/Sumatoshi-tech/sranges/pkg/mcmc"
	"github.com/Sumatoshi-tech/sranges/pkg/observability"
	"github.com/Sumatoshi-tech/sranges/pkg/persist"
	"github.com/Sumatoshi-tech/sranges/pkg/plot"
	"github.com/Sumatoshi-tech/sranges/pkg/report"
	"github.com/Sumatoshi-tech/sranges/pkg/rng"
	"github.com/Sumatoshi-tech/sranges/pkg/srtree"
	"github.com/Sumatoshi-tech/sranges/pkg/treeio"
)

const (
	defaultBurnIn     = 0.1
	defaultTopN       = 10
	readHeaderTimeout = 5 * time.Second
	logFilePerm       = 0o644
	dirPerm           = 0o755
)

// observabilityInit builds the telemetry providers of a run.
type observabilityInit func(observability.Config) (observability.Providers, error)

// SampleCommand holds the flag overrides of the sample command.
type SampleCommand struct {
	initObservability observabilityInit

	length          int64
	chains          int
	seed            int64
	rangesPath      string
	treeLog         string
	checkpointDir   string
	checkpointEvery int64
	resume          bool
	clearCheckpoint bool
	metricsAddr     string
	plotPath        string
	burnIn          float64
	top             int
}

// NewSampleCommand creates the sample command.
func NewSampleCommand() *cobra.Command {
	return newSampleCommand(observability.Init)
}

func newSampleCommand(initObs observabilityInit) *cobra.Command {
	sc := &SampleCommand{initObservability: initObs}

	cmd := &cobra.Command{
		Use:   "sample [tree]",
		Short: "Run MCMC chains over the tree and write the tree log",
		Long: `Run Metropolis-Hastings chains over stratigraphic-range trees under the fossilized
birth-death model, starting from the given tree. Flags override the config file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: sc.run,
	}

	cmd.Flags().Int64Var(&sc.length, "length", 0, "Iterations per chain (0 = config)")
	cmd.Flags().IntVar(&sc.chains, "chains", 0, "Number of chains (0 = config)")
	cmd.Flags().Int64Var(&sc.seed, "seed", 0, "Random seed (0 = config)")
	cmd.Flags().StringVar(&sc.rangesPath, "ranges", "", "JSON range definition file")
	cmd.Flags().StringVarP(&sc.treeLog, "out", "o", "", "Tree log path (empty = config)")
	cmd.Flags().StringVar(&sc.checkpointDir, "checkpoint-dir", "", "Checkpoint directory (default: ~/.sranges/checkpoints)")
	cmd.Flags().Int64Var(&sc.checkpointEvery, "checkpoint-every", -1, "Checkpoint interval (0 = disabled, -1 = config)")
	cmd.Flags().BoolVar(&sc.resume, "resume", true, "Resume from checkpoint if available")
	cmd.Flags().BoolVar(&sc.clearCheckpoint, "clear-checkpoint", false, "Clear existing checkpoint before run")
	cmd.Flags().StringVar(&sc.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&sc.plotPath, "plot", "", "Write an HTML trace plot (empty = config)")
	cmd.Flags().Float64Var(&sc.burnIn, "burn-in", defaultBurnIn, "Fraction of samples discarded from summaries")
	cmd.Flags().IntVar(&sc.top, "top", defaultTopN, "Number of topologies in the summary")

	return cmd
}

func (sc *SampleCommand) applyOverrides(cfg *config.Config) {
	if sc.length > 0 {
		cfg.Chain.Length = sc.length
	}

	if sc.chains > 0 {
		cfg.Chain.Chains = sc.chains
	}

	if sc.seed != 0 {
		cfg.Chain.Seed = sc.seed
	}

	if sc.rangesPath != "" {
		cfg.Input.Ranges = sc.rangesPath
	}

	if sc.treeLog != "" {
		cfg.Output.TreeLog = sc.treeLog
	}

	if sc.checkpointDir != "" {
		cfg.Output.CheckpointDir = sc.checkpointDir
	}

	if sc.checkpointEvery >= 0 {
		cfg.Output.CheckpointEvery = sc.checkpointEvery
	}

	if sc.metricsAddr != "" {
		cfg.Telemetry.MetricsAddr = sc.metricsAddr
	}

	if sc.plotPath != "" {
		cfg.Output.TracePlot = sc.plotPath
	}
}

// sampleRun carries the per-run state shared by the setup steps.
type sampleRun struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *observability.ChainMetrics
	tracer   trace.Tracer
	model    *birthdeath.Model
	manager  *checkpoint.Manager
	resuming bool

	trace  *mcmc.Trace
	tally  *mcmc.TopologyTally
	chains []*mcmc.Chain
	logs   []*treeLogFile
}

func (sc *SampleCommand) run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	sc.applyOverrides(cfg)

	providers, err := sc.initObservability(observabilityConfig(cmd, cfg, observability.ModeSample))
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	defer func() {
		_ = providers.Shutdown(context.Background())
	}()

	stopServer := serveMetrics(cfg.Telemetry.MetricsAddr, providers.MetricsHandler, providers.Logger)
	defer stopServer()

	metrics, err := observability.NewChainMetrics(providers.Meter)
	if err != nil {
		return err
	}

	tree, err := inputTree(cfg, args, "")
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

	sr := &sampleRun{
		cfg:     cfg,
		logger:  providers.Logger,
		metrics: metrics,
		tracer:  providers.Tracer,
		model:   model,
		trace:   mcmc.NewTrace(),
		tally:   mcmc.NewTopologyTally(),
	}

	err = sr.prepareCheckpoints(tree, sc.resume, sc.clearCheckpoint)
	if err != nil {
		return err
	}

	defer sr.closeLogs()

	err = sr.buildChains(tree)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, span := providers.Tracer.Start(ctx, "sranges.sample",
		trace.WithAttributes(
			attribute.Int("sample.chains", cfg.Chain.Chains),
			attribute.Int64("sample.length", cfg.Chain.Length),
			attribute.Int("sample.taxa", tree.LeafCount()),
			attribute.Bool("sample.resumed", sr.resuming),
		))
	defer span.End()

	start := time.Now()

	sr.logger.InfoContext(ctx, "sampling started",
		slog.Int("chains", cfg.Chain.Chains),
		slog.Int64("length", cfg.Chain.Length),
		slog.Int("taxa", tree.LeafCount()),
		slog.Bool("resumed", sr.resuming),
	)

	runErr := mcmc.RunChains(ctx, sr.chains)

	closeErr := sr.closeLogs()
	if runErr != nil {
		runErr = errors.Join(runErr, closeErr)
		observability.RecordSpanError(span, runErr)

		return runErr
	}

	if closeErr != nil {
		observability.RecordSpanError(span, closeErr)

		return closeErr
	}

	return sc.finish(cmd, sr, time.Since(start))
}

// prepareCheckpoints sets up the checkpoint manager and decides whether to resume.
func (sr *sampleRun) prepareCheckpoints(tree *srtree.Tree, resume, clearFirst bool) error {
	out := sr.cfg.Output
	if out.CheckpointEvery <= 0 {
		return nil
	}

	codec, err := persist.CodecFor(out.CheckpointFormat, out.Compress)
	if err != nil {
		return err
	}

	dir := out.CheckpointDir
	if dir == "" {
		dir = checkpoint.DefaultDir()
	}

	hash := checkpoint.LabelHash(tree.Labels())
	sr.manager = checkpoint.NewManager(dir, hash, codec)

	if clearFirst {
		err = sr.manager.Clear()
		if err != nil {
			return err
		}
	}

	if resume && sr.manager.Exists() {
		err = sr.manager.Validate(hash, sr.cfg.Chain.Chains)
		if err != nil {
			return fmt.Errorf("checkpoint in %s: %w", sr.manager.CheckpointDir(), err)
		}

		sr.resuming = true

		return nil
	}

	return sr.manager.Init(sr.cfg.Chain.Chains, sr.cfg.Chain.Seed)
}

func (sr *sampleRun) buildChains(start *srtree.Tree) error {
	cfg := sr.cfg
	weights := mcmc.Weights{
		Swap:          cfg.Operators.Swap,
		Jump:          cfg.Operators.Jump,
		WilsonBalding: cfg.Operators.WilsonBalding,
	}

	for i := range cfg.Chain.Chains {
		tree := start.Clone()
		seed := mcmc.ChainSeed(cfg.Chain.Seed, i)
		src := rng.New(seed)

		var state *checkpoint.ChainState

		if sr.resuming {
			var err error

			state, err = sr.manager.LoadChain(i)
			if errors.Is(err, fs.ErrNotExist) {
				state, err = nil, nil
			}

			if err != nil {
				return err
			}
		}

		logPath := chainLogPath(cfg.Output.TreeLog, i, cfg.Chain.Chains, state)

		log, err := openTreeLog(logPath, tree.Labels(), cfg.Output.Compress)
		if err != nil {
			return err
		}

		sr.logs = append(sr.logs, log)

		options := []mcmc.Option{
			mcmc.WithLogger(sr.logger),
			mcmc.WithMetrics(sr.metrics),
			mcmc.WithTracer(sr.tracer),
			mcmc.WithSink(mcmc.MultiSink{mcmc.NewTreeLogSink(log.writer), sr.trace, sr.tally}),
		}

		if sr.manager != nil {
			options = append(options, mcmc.WithCheckpoints(sr.manager))
		}

		chain, err := mcmc.NewChain(i, tree, sr.model, src,
			mcmc.StandardOperators(src, weights, sr.model.Params().Removal),
			mcmc.Options{
				Length:          cfg.Chain.Length,
				LogEvery:        cfg.Chain.LogEvery,
				SampleEvery:     cfg.Chain.SampleEvery,
				CheckpointEvery: cfg.Output.CheckpointEvery,
				Seed:            seed,
			},
			options...,
		)
		if err != nil {
			return fmt.Errorf("chain %d: %w", i, err)
		}

		if state != nil {
			err = chain.Resume(state)
			if err != nil {
				return err
			}

			sr.logger.Info("chain resumed", slog.Int("chain", i), slog.Int64("iteration", state.Iteration))
		}

		sr.chains = append(sr.chains, chain)
	}

	return nil
}

func (sr *sampleRun) closeLogs() error {
	var errs []error

	for _, log := range sr.logs {
		errs = append(errs, log.Close())
	}

	sr.logs = nil

	return errors.Join(errs...)
}

func (sc *SampleCommand) finish(cmd *cobra.Command, sr *sampleRun, elapsed time.Duration) error {
	out := cmd.OutOrStdout()

	if sr.cfg.Output.TracePlot != "" {
		err := writePlot(sr.cfg.Output.TracePlot, sr.trace, sr.tally.Top(sc.top), sr.tally.Total())
		if err != nil {
			return err
		}
	}

	if isQuiet(cmd) {
		return nil
	}

	var iterations int64
	for _, chain := range sr.chains {
		iterations += chain.Iteration()
	}

	color.New(color.FgGreen).Fprintf(out, "Sampled %s iterations on %d chain(s) in %s\n",
		humanize.Comma(iterations), len(sr.chains), elapsed.Round(time.Millisecond))

	summaries := report.Summarize(sr.chains, sr.trace, sc.burnIn)
	f := report.NewFormatter(report.FormatConfig{MaxItems: sc.top})

	return report.Write(out,
		f.Chains(summaries),
		f.Operators(summaries),
		f.Topologies(sr.tally.Top(0), sr.tally.Total()),
	)
}

// treeLogFile is a tree log writer and the file under it.
type treeLogFile struct {
	file   *os.File
	writer *treeio.LogWriter
}

func openTreeLog(path string, labels []string, compress bool) (*treeLogFile, error) {
	err := os.MkdirAll(filepath.Dir(path), dirPerm)
	if err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, logFilePerm)
	if err != nil {
		return nil, fmt.Errorf("create tree log: %w", err)
	}

	writer, err := treeio.NewLogWriter(file, labels, compress)
	if err != nil {
		_ = file.Close()

		return nil, err
	}

	return &treeLogFile{file: file, writer: writer}, nil
}

// Close finishes the log and closes the file.
func (l *treeLogFile) Close() error {
	return errors.Join(l.writer.Close(), l.file.Close())
}

// chainLogPath names the tree log of one chain. Several chains get a ".chainN" infix; a
// resumed chain writes a continuation log named after its resume iteration.
func chainLogPath(base string, chain, chains int, state *checkpoint.ChainState) string {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	if chains > 1 {
		stem = fmt.Sprintf("%s.chain%d", stem, chain)
	}

	if state != nil {
		stem = fmt.Sprintf("%s.from%d", stem, state.Iteration)
	}

	return stem + ext
}

func writePlot(path string, samples *mcmc.Trace, counts []mcmc.TopologyCount, total int64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create plot: %w", err)
	}

	err = plot.Page(f, samples, counts, total)

	return errors.Join(err, f.Close())
}

// serveMetrics serves the Prometheus handler on addr until the returned stop function runs.
func serveMetrics(addr string, handler http.Handler, logger *slog.Logger) func() {
	if addr == "" || handler == nil {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: readHeaderTimeout}

	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.String("addr", addr), slog.Any("error", err))
		}
	}()

	logger.Info("serving metrics", slog.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), readHeaderTimeout)
		defer cancel()

		_ = srv.Shutdown(ctx)
	}
}
