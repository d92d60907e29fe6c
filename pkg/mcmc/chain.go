// Package mcmc runs Metropolis-Hastings chains over stratigraphic-range trees.
package mcmc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/sranges/pkg/checkpoint"
	"github.com/Sumatoshi-tech/sranges/pkg/observability"
	"github.com/Sumatoshi-tech/sranges/pkg/operators"
	"github.com/Sumatoshi-tech/sranges/pkg/rng"
	"github.com/Sumatoshi-tech/sranges/pkg/srtree"
	"github.com/Sumatoshi-tech/sranges/pkg/stats"
)

// Sentinel errors.
var (
	ErrNoOperators     = errors.New("no operator with positive weight")
	ErrImpossibleStart = errors.New("starting tree has zero target density")
	ErrInvalidOptions  = errors.New("invalid chain options")
)

// acceptanceSmoothing is the EMA factor applied to per-batch acceptance rates.
const acceptanceSmoothing = 0.3

// Target is the unnormalized log density sampled by a chain.
type Target interface {
	LogDensity(tree *srtree.Tree) (float64, error)
}

// WeightedOperator pairs an operator with its relative proposal weight.
type WeightedOperator struct {
	Operator operators.Operator
	Weight   float64
}

// Options sizes a chain run.
type Options struct {
	// Length is the number of iterations to run.
	Length int64
	// LogEvery is the progress-logging and metrics interval.
	LogEvery int64
	// SampleEvery is the interval at which sinks receive the state.
	SampleEvery int64
	// CheckpointEvery is the checkpoint interval; 0 disables checkpoints.
	CheckpointEvery int64
	// Seed seeds the chain's random source and its checkpoint reseeds.
	Seed int64
}

func (o Options) validate() error {
	if o.Length <= 0 || o.LogEvery <= 0 || o.SampleEvery <= 0 || o.CheckpointEvery < 0 {
		return fmt.Errorf("%w: %+v", ErrInvalidOptions, o)
	}

	return nil
}

// Option configures a Chain.
type Option func(*Chain)

// WithLogger sets the progress logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chain) { c.logger = logger }
}

// WithMetrics records proposal counts and batch timings.
func WithMetrics(metrics *observability.ChainMetrics) Option {
	return func(c *Chain) { c.metrics = metrics }
}

// WithTracer sets the tracer for chain and batch spans. The default is the global sranges
// tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Chain) { c.tracer = tracer }
}

// WithSink adds a sink receiving sampled states.
func WithSink(sink Sink) Option {
	return func(c *Chain) { c.sinks = append(c.sinks, sink) }
}

// WithCheckpoints saves chain state through manager every Options.CheckpointEvery iterations.
func WithCheckpoints(manager *checkpoint.Manager) Option {
	return func(c *Chain) { c.checkpoints = manager }
}

// Chain is one Metropolis-Hastings chain. The tree is modified in place. A Chain is not
// safe for concurrent use; run several chains on separate trees and sources.
type Chain struct {
	id     int
	tree   *srtree.Tree
	target Target
	src    *rng.Source
	opts   Options

	ops        []WeightedOperator
	cumulative []float64

	logger      *slog.Logger
	metrics     *observability.ChainMetrics
	tracer      trace.Tracer
	sinks       []Sink
	checkpoints *checkpoint.Manager

	iteration  int64
	logDensity float64
	proposed   map[string]int64
	accepted   map[string]int64
	acceptance *stats.EMA

	batchProposed int64
	batchAccepted int64
}

// NewChain creates chain id sampling target from tree. The operators must draw from src.
func NewChain(
	id int, tree *srtree.Tree, target Target, src *rng.Source, ops []WeightedOperator, opts Options, options ...Option,
) (*Chain, error) {
	err := opts.validate()
	if err != nil {
		return nil, err
	}

	c := &Chain{
		id:         id,
		tree:       tree,
		target:     target,
		src:        src,
		opts:       opts,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		proposed:   make(map[string]int64),
		accepted:   make(map[string]int64),
		acceptance: stats.NewEMA(acceptanceSmoothing),
		tracer:     observability.Tracer(),
	}

	total := 0.0

	for _, op := range ops {
		if op.Weight <= 0 {
			continue
		}

		total += op.Weight
		c.ops = append(c.ops, op)
		c.cumulative = append(c.cumulative, total)
	}

	if len(c.ops) == 0 {
		return nil, ErrNoOperators
	}

	for _, option := range options {
		option(c)
	}

	c.logger = c.logger.With(slog.Int("chain", id))

	c.logDensity, err = target.LogDensity(tree)
	if err != nil {
		return nil, fmt.Errorf("initial density: %w", err)
	}

	if math.IsInf(c.logDensity, -1) || math.IsNaN(c.logDensity) {
		return nil, ErrImpossibleStart
	}

	return c, nil
}

// ID returns the chain index.
func (c *Chain) ID() int { return c.id }

// Tree returns the current state.
func (c *Chain) Tree() *srtree.Tree { return c.tree }

// Iteration returns the number of completed iterations.
func (c *Chain) Iteration() int64 { return c.iteration }

// LogDensity returns the target log density of the current state.
func (c *Chain) LogDensity() float64 { return c.logDensity }

// Proposed returns proposal counts by operator name.
func (c *Chain) Proposed() map[string]int64 { return maps.Clone(c.proposed) }

// Accepted returns acceptance counts by operator name.
func (c *Chain) Accepted() map[string]int64 { return maps.Clone(c.accepted) }

// OperatorNames returns the names of the operators in use, sorted.
func (c *Chain) OperatorNames() []string {
	names := make([]string, 0, len(c.ops))
	for _, op := range c.ops {
		names = append(names, op.Operator.Name())
	}

	sort.Strings(names)

	return names
}

func (c *Chain) pick() operators.Operator {
	u := c.src.Float64() * c.cumulative[len(c.cumulative)-1]
	idx := sort.SearchFloat64s(c.cumulative, u)

	if idx < len(c.ops) && c.cumulative[idx] == u {
		idx++
	}

	return c.ops[min(idx, len(c.ops)-1)].Operator
}

// Step performs one Metropolis-Hastings iteration and reports whether the proposal was
// accepted.
func (c *Chain) Step(ctx context.Context) (bool, error) {
	op := c.pick()
	name := op.Name()

	c.tree.Store()

	logHR, err := op.Propose(c.tree)
	if err != nil {
		return false, fmt.Errorf("%s at iteration %d: %w", name, c.iteration, err)
	}

	c.proposed[name]++
	c.batchProposed++

	if operators.IsReject(logHR) {
		c.tree.Restore()
		c.record(ctx, name, observability.OutcomeInfeasible)

		return false, nil
	}

	proposed, err := c.target.LogDensity(c.tree)
	if err != nil {
		return false, fmt.Errorf("density after %s at iteration %d: %w", name, c.iteration, err)
	}

	logAlpha := proposed - c.logDensity + logHR

	rejected := math.IsNaN(logAlpha)
	if !rejected && logAlpha < 0 {
		rejected = !(math.Log(c.src.Float64()) < logAlpha)
	}

	if rejected {
		c.tree.Restore()
		c.record(ctx, name, observability.OutcomeRejected)

		return false, nil
	}

	c.logDensity = proposed
	c.accepted[name]++
	c.batchAccepted++
	c.record(ctx, name, observability.OutcomeAccepted)

	return true, nil
}

func (c *Chain) record(ctx context.Context, operator, outcome string) {
	if c.metrics != nil {
		c.metrics.RecordProposal(ctx, c.id, operator, outcome)
	}
}

// Run advances the chain to Options.Length iterations, stopping early with the context's
// error when it is cancelled.
func (c *Chain) Run(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "sranges.chain",
		trace.WithAttributes(
			attribute.Int("chain.id", c.id),
			attribute.Int64("chain.start", c.iteration),
			attribute.Int64("chain.length", c.opts.Length),
		))
	defer span.End()

	err := c.run(ctx)
	observability.RecordSpanError(span, err)
	span.SetAttributes(attribute.Int64("chain.iteration", c.iteration))

	return err
}

func (c *Chain) run(ctx context.Context) error {
	if c.iteration == 0 {
		err := c.sample()
		if err != nil {
			return err
		}
	}

	batchCtx, batch := c.startBatch(ctx)
	defer func() {
		if batch != nil {
			batch.End()
		}
	}()

	batchStart := time.Now()

	for c.iteration < c.opts.Length {
		err := ctx.Err()
		if err != nil {
			return err
		}

		_, err = c.Step(batchCtx)
		if err != nil {
			observability.RecordSpanError(batch, err)

			return err
		}

		c.iteration++

		if c.iteration%c.opts.SampleEvery == 0 {
			err = c.sample()
			if err != nil {
				return err
			}
		}

		if c.iteration%c.opts.LogEvery == 0 {
			err = c.endBatch(batchCtx, time.Since(batchStart))
			if err != nil {
				observability.RecordSpanError(batch, err)

				return err
			}

			batch.End()
			batch = nil

			if c.iteration < c.opts.Length {
				batchCtx, batch = c.startBatch(ctx)
			}

			batchStart = time.Now()
		}

		if c.checkpoints != nil && c.opts.CheckpointEvery > 0 && c.iteration%c.opts.CheckpointEvery == 0 {
			err = c.SaveCheckpoint()
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func (c *Chain) sample() error {
	for _, sink := range c.sinks {
		err := sink.Sample(c.id, c.iteration, c.tree, c.logDensity)
		if err != nil {
			return fmt.Errorf("sample at iteration %d: %w", c.iteration, err)
		}
	}

	return nil
}

func (c *Chain) startBatch(ctx context.Context) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "sranges.batch",
		trace.WithAttributes(attribute.Int64("batch.start", c.iteration)))
}

// endBatch validates the tree and reports progress on the batch span in ctx.
func (c *Chain) endBatch(ctx context.Context, elapsed time.Duration) error {
	err := c.tree.Validate()
	if err != nil {
		return fmt.Errorf("iteration %d: %w", c.iteration, err)
	}

	rate := 0.0
	if c.batchProposed > 0 {
		rate = float64(c.batchAccepted) / float64(c.batchProposed)
	}

	smoothed := c.acceptance.Update(rate)

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int64("batch.proposed", c.batchProposed),
		attribute.Int64("batch.accepted", c.batchAccepted),
		attribute.Float64("chain.log_density", c.logDensity),
	)

	c.logger.InfoContext(ctx, "chain progress",
		slog.Int64("iteration", c.iteration),
		slog.Float64("log_density", c.logDensity),
		slog.Float64("acceptance", smoothed),
	)

	if c.metrics != nil {
		c.metrics.RecordBatch(ctx, c.id, c.batchProposed, elapsed, c.logDensity)
	}

	c.batchProposed, c.batchAccepted = 0, 0

	return nil
}

// reseed restarts the random stream at a point determined by the iteration alone, so a
// chain resumed from a checkpoint continues exactly as an uninterrupted one.
func (c *Chain) reseed() {
	c.src.Reseed(c.opts.Seed + c.iteration)
}

// State returns the resumable chain state.
func (c *Chain) State() *checkpoint.ChainState {
	return &checkpoint.ChainState{
		Iteration:  c.iteration,
		LogDensity: c.logDensity,
		Proposed:   maps.Clone(c.proposed),
		Accepted:   maps.Clone(c.accepted),
		Tree:       c.tree.Snapshot(),
	}
}

// SaveCheckpoint writes the chain state and reseeds the random source.
func (c *Chain) SaveCheckpoint() error {
	if c.checkpoints == nil {
		return nil
	}

	err := c.checkpoints.SaveChain(c.id, c.State())
	if err != nil {
		return err
	}

	c.reseed()

	return nil
}

// Resume installs a checkpointed state and reseeds the random source to match.
func (c *Chain) Resume(state *checkpoint.ChainState) error {
	err := c.tree.Load(state.Tree)
	if err != nil {
		return fmt.Errorf("resume chain %d: %w", c.id, err)
	}

	logDensity, err := c.target.LogDensity(c.tree)
	if err != nil {
		return fmt.Errorf("resume chain %d: %w", c.id, err)
	}

	c.iteration = state.Iteration
	c.logDensity = logDensity
	c.proposed = maps.Clone(state.Proposed)
	c.accepted = maps.Clone(state.Accepted)

	if c.proposed == nil {
		c.proposed = make(map[string]int64)
	}

	if c.accepted == nil {
		c.accepted = make(map[string]int64)
	}

	c.reseed()

	return nil
}
