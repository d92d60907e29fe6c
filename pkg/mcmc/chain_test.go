package mcmc_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/sranges/pkg/birthdeath"
	"github.com/Sumatoshi-tech/sranges/pkg/checkpoint"
	"github.com/Sumatoshi-tech/sranges/pkg/mcmc"
	"github.com/Sumatoshi-tech/sranges/pkg/observability"
	"github.com/Sumatoshi-tech/sranges/pkg/persist"
	"github.com/Sumatoshi-tech/sranges/pkg/rng"
	"github.com/Sumatoshi-tech/sranges/pkg/srtree"
)

const (
	samplerIterations = 300_000
	samplerTolerance  = 0.015
)

type targetFunc func(*srtree.Tree) float64

func (f targetFunc) LogDensity(tree *srtree.Tree) (float64, error) { return f(tree), nil }

// rootCounter counts samples whose root is a fake node.
type rootCounter struct {
	fake, total int
}

func (r *rootCounter) Sample(_ int, _ int64, tree *srtree.Tree, _ float64) error {
	r.total++

	if tree.IsFake(tree.Root()) {
		r.fake++
	}

	return nil
}

func (r *rootCounter) fraction() float64 {
	return float64(r.fake) / float64(r.total)
}

func twoTaxonTree(t *testing.T) *srtree.Tree {
	t.Helper()

	tree, err := srtree.Build([]srtree.NodeSpec{
		{Label: "A", Height: 1},
		{Label: "B", Height: 0},
		{Height: 2, Children: []int{0, 1}},
	})
	require.NoError(t, err)

	return tree
}

// threeTaxonTree holds the single fossil A at height 2 and the range B_first (1) -> B_last (0).
// With ancestor set A is a sampled ancestor at the root.
func threeTaxonTree(t *testing.T, ancestor, aLeft bool, rootHeight float64) *srtree.Tree {
	t.Helper()

	root := srtree.NodeSpec{Height: rootHeight, Children: []int{0, 3}}

	switch {
	case ancestor:
		root = srtree.NodeSpec{Height: 2, Children: []int{3, 0}}
	case !aLeft:
		root.Children = []int{3, 0}
	}

	tree, err := srtree.Build([]srtree.NodeSpec{
		{Label: "A", Height: 2},
		{Label: "B_first", Height: 1},
		{Label: "B_last", Height: 0},
		{Height: 1, Children: []int{2, 1}},
		root,
	})
	require.NoError(t, err)

	return tree
}

// sixTaxonTree is ((((X_last,(A,C)),B),X_first),D) with range X.
func sixTaxonTree(t *testing.T) *srtree.Tree {
	t.Helper()

	tree, err := srtree.Build([]srtree.NodeSpec{
		{Label: "X_first", Height: 4},
		{Label: "X_last", Height: 1},
		{Label: "A", Height: 0},
		{Label: "B", Height: 2.5},
		{Label: "C", Height: 0},
		{Label: "D", Height: 0.5},
		{Height: 1.5, Children: []int{2, 4}},
		{Height: 2, Children: []int{1, 6}},
		{Height: 3, Children: []int{7, 3}},
		{Height: 4, Children: []int{8, 0}},
		{Height: 6, Children: []int{9, 5}},
	})
	require.NoError(t, err)

	return tree
}

func allWeights() mcmc.Weights {
	return mcmc.Weights{Swap: 1, Jump: 1, WilsonBalding: 3}
}

func TestChain_TwoTaxonStationaryDistribution(t *testing.T) {
	t.Parallel()

	const weight = 2.0

	// A bifurcating root at h > 1 has density exp(-(h - 1)) per orientation.
	target := targetFunc(func(tree *srtree.Tree) float64 {
		if tree.IsFake(tree.Root()) {
			return math.Log(weight)
		}

		return -(tree.Height(tree.Root()) - 1)
	})

	src := rng.New(7)
	counter := &rootCounter{}

	chain, err := mcmc.NewChain(0, twoTaxonTree(t), target, src,
		mcmc.StandardOperators(src, allWeights(), 0),
		mcmc.Options{Length: samplerIterations, LogEvery: 10_000, SampleEvery: 1, Seed: 7},
		mcmc.WithSink(counter),
	)
	require.NoError(t, err)
	require.NoError(t, chain.Run(context.Background()))

	assert.InDelta(t, weight/(weight+2), counter.fraction(), samplerTolerance)
	assert.Equal(t, int64(samplerIterations), chain.Iteration())
	assert.Equal(t, []string{"leaf-sampled-ancestor-jump", "left-right-swap", "wilson-balding"}, chain.OperatorNames())

	var proposed int64
	for _, n := range chain.Proposed() {
		proposed += n
	}

	assert.Equal(t, int64(samplerIterations), proposed)
}

// simpson integrates f over [a, b] with n (even) intervals.
func simpson(f func(float64) float64, a, b float64, n int) float64 {
	h := (b - a) / float64(n)
	sum := f(a) + f(b)

	for i := 1; i < n; i++ {
		w := 2.0
		if i%2 == 1 {
			w = 4
		}

		sum += w * f(a+float64(i)*h)
	}

	return sum * h / 3
}

func TestChain_BirthDeathThreeTaxa(t *testing.T) {
	t.Parallel()

	params := birthdeath.Params{Birth: 1, Death: 0.5, Sampling: 0.5, Origin: 4}

	model, err := birthdeath.New(params)
	require.NoError(t, err)

	density := func(tree *srtree.Tree) float64 {
		ld, derr := model.LogDensity(tree)
		require.NoError(t, derr)

		return math.Exp(ld)
	}

	ancestor := density(threeTaxonTree(t, true, false, 2))
	bifurcating := 0.0

	for _, aLeft := range []bool{true, false} {
		bifurcating += simpson(func(h float64) float64 {
			return density(threeTaxonTree(t, false, aLeft, h))
		}, 2, params.Origin, 200)
	}

	want := ancestor / (ancestor + bifurcating)

	src := rng.New(11)
	counter := &rootCounter{}

	chain, err := mcmc.NewChain(0, threeTaxonTree(t, false, true, 3), model, src,
		mcmc.StandardOperators(src, allWeights(), params.Removal),
		mcmc.Options{Length: samplerIterations, LogEvery: 50_000, SampleEvery: 1, Seed: 11},
		mcmc.WithSink(counter),
	)
	require.NoError(t, err)
	require.NoError(t, chain.Run(context.Background()))

	assert.InDelta(t, want, counter.fraction(), samplerTolerance)
}

func TestNewChain_Errors(t *testing.T) {
	t.Parallel()

	src := rng.New(1)
	ops := mcmc.StandardOperators(src, allWeights(), 0)
	opts := mcmc.Options{Length: 10, LogEvery: 5, SampleEvery: 5}
	flat := targetFunc(func(*srtree.Tree) float64 { return 0 })

	_, err := mcmc.NewChain(0, twoTaxonTree(t), flat, src, ops, mcmc.Options{Length: 10})
	require.ErrorIs(t, err, mcmc.ErrInvalidOptions)

	_, err = mcmc.NewChain(0, twoTaxonTree(t), flat, src, mcmc.StandardOperators(src, mcmc.Weights{}, 0), opts)
	require.ErrorIs(t, err, mcmc.ErrNoOperators)

	impossible := targetFunc(func(*srtree.Tree) float64 { return math.Inf(-1) })
	_, err = mcmc.NewChain(0, twoTaxonTree(t), impossible, src, ops, opts)
	require.ErrorIs(t, err, mcmc.ErrImpossibleStart)
}

func TestChain_RunCancelled(t *testing.T) {
	t.Parallel()

	src := rng.New(3)
	flat := targetFunc(func(*srtree.Tree) float64 { return 0 })

	chain, err := mcmc.NewChain(0, sixTaxonTree(t), flat, src,
		mcmc.StandardOperators(src, allWeights(), 0),
		mcmc.Options{Length: 1000, LogEvery: 100, SampleEvery: 100},
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = chain.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), chain.Iteration())
}

func TestChain_NaNDensityIsRejected(t *testing.T) {
	t.Parallel()

	calls := 0
	// Only the starting state has a usable density.
	target := targetFunc(func(*srtree.Tree) float64 {
		calls++
		if calls == 1 {
			return 0
		}

		return math.NaN()
	})

	src := rng.New(11)
	tree := sixTaxonTree(t)
	want := tree.Snapshot()

	chain, err := mcmc.NewChain(0, tree, target, src,
		mcmc.StandardOperators(src, allWeights(), 0),
		mcmc.Options{Length: 200, LogEvery: 100, SampleEvery: 100},
	)
	require.NoError(t, err)

	for range 200 {
		accepted, stepErr := chain.Step(context.Background())
		require.NoError(t, stepErr)
		assert.False(t, accepted)
	}

	assert.Greater(t, calls, 1)
	assert.Empty(t, chain.Accepted())
	assert.Zero(t, chain.LogDensity())

	if diff := cmp.Diff(want, chain.Tree().Snapshot()); diff != "" {
		t.Errorf("tree changed after rejected moves (-want +got):\n%s", diff)
	}
}

func TestChain_RunRecordsSpans(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	t.Cleanup(func() { require.NoError(t, tp.Shutdown(context.Background())) })

	var logs bytes.Buffer

	logger := slog.New(observability.NewTracingHandler(
		slog.NewJSONHandler(&logs, nil), "sranges", "test", observability.ModeSample))

	src := rng.New(13)
	flat := targetFunc(func(*srtree.Tree) float64 { return 0 })

	chain, err := mcmc.NewChain(2, sixTaxonTree(t), flat, src,
		mcmc.StandardOperators(src, allWeights(), 0),
		mcmc.Options{Length: 300, LogEvery: 100, SampleEvery: 100},
		mcmc.WithTracer(tp.Tracer("test")),
		mcmc.WithLogger(logger),
	)
	require.NoError(t, err)
	require.NoError(t, chain.Run(context.Background()))

	var (
		root    *tracetest.SpanStub
		batches []tracetest.SpanStub
	)

	for _, span := range exporter.GetSpans() {
		switch span.Name {
		case "sranges.chain":
			root = &span
		case "sranges.batch":
			batches = append(batches, span)
		}
	}

	require.NotNil(t, root)
	require.Len(t, batches, 3)

	for _, batch := range batches {
		assert.Equal(t, root.SpanContext.SpanID(), batch.Parent.SpanID())
	}

	assert.Contains(t, logs.String(), `"trace_id":"`+root.SpanContext.TraceID().String()+`"`)
	assert.Equal(t, 3, bytes.Count(logs.Bytes(), []byte(`"msg":"chain progress"`)))
}

func TestChain_RunRecordsSpanError(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	t.Cleanup(func() { require.NoError(t, tp.Shutdown(context.Background())) })

	src := rng.New(9)
	flat := targetFunc(func(*srtree.Tree) float64 { return 0 })

	chain, err := mcmc.NewChain(0, sixTaxonTree(t), flat, src,
		mcmc.StandardOperators(src, allWeights(), 0),
		mcmc.Options{Length: 100, LogEvery: 10, SampleEvery: 10},
		mcmc.WithSink(failingSink{err: errors.New("disk full")}),
		mcmc.WithTracer(tp.Tracer("test")),
	)
	require.NoError(t, err)
	require.Error(t, chain.Run(context.Background()))

	var chainSpans int

	for _, span := range exporter.GetSpans() {
		if span.Name == "sranges.chain" {
			chainSpans++

			assert.Equal(t, codes.Error, span.Status.Code)
		}
	}

	assert.Equal(t, 1, chainSpans)
}

// sixTaxonChain runs the birth-death sampler on the six-taxon tree with checkpoints in dir.
func sixTaxonChain(t *testing.T, dir string, length int64) (*mcmc.Chain, *checkpoint.Manager) {
	t.Helper()

	model, err := birthdeath.New(birthdeath.Params{Birth: 1, Death: 0.5, Sampling: 0.2, Rho: 0.5, Origin: 8})
	require.NoError(t, err)

	tree := sixTaxonTree(t)
	manager := checkpoint.NewManager(dir, "six", persist.NewGobCodec())
	require.NoError(t, manager.Init(1, 5))

	src := rng.New(5)

	chain, err := mcmc.NewChain(0, tree, model, src,
		mcmc.StandardOperators(src, allWeights(), 0),
		mcmc.Options{Length: length, LogEvery: 250, SampleEvery: 250, CheckpointEvery: 500, Seed: 5},
		mcmc.WithCheckpoints(manager),
	)
	require.NoError(t, err)

	return chain, manager
}

func TestChain_ResumeMatchesUninterruptedRun(t *testing.T) {
	t.Parallel()

	const total = 4000

	straight, _ := sixTaxonChain(t, t.TempDir(), total)
	require.NoError(t, straight.Run(context.Background()))

	dir := t.TempDir()

	interrupted, manager := sixTaxonChain(t, dir, total/2)
	require.NoError(t, interrupted.Run(context.Background()))

	state, err := manager.LoadChain(0)
	require.NoError(t, err)
	assert.Equal(t, int64(total/2), state.Iteration)

	resumed, _ := sixTaxonChain(t, dir, total)
	require.NoError(t, resumed.Resume(state))
	require.NoError(t, resumed.Run(context.Background()))

	if diff := cmp.Diff(straight.Tree().Snapshot(), resumed.Tree().Snapshot()); diff != "" {
		t.Errorf("resumed tree differs (-straight +resumed):\n%s", diff)
	}

	assert.InDelta(t, straight.LogDensity(), resumed.LogDensity(), 0)
	assert.Equal(t, straight.Proposed(), resumed.Proposed())
	assert.Equal(t, straight.Accepted(), resumed.Accepted())
}

func TestChain_SinkErrorStopsRun(t *testing.T) {
	t.Parallel()

	errSink := errors.New("disk full")
	src := rng.New(9)
	flat := targetFunc(func(*srtree.Tree) float64 { return 0 })

	chain, err := mcmc.NewChain(0, sixTaxonTree(t), flat, src,
		mcmc.StandardOperators(src, allWeights(), 0),
		mcmc.Options{Length: 100, LogEvery: 10, SampleEvery: 10},
		mcmc.WithSink(mcmc.MultiSink{mcmc.NewTrace(), failingSink{err: errSink}}),
	)
	require.NoError(t, err)

	err = chain.Run(context.Background())
	require.ErrorIs(t, err, errSink)
}

type failingSink struct{ err error }

func (f failingSink) Sample(int, int64, *srtree.Tree, float64) error { return f.err }
