package mcmc

import (
	"errors"
	"slices"
	"sync"

	"github.com/Sumatoshi-tech/sranges/pkg/srtree"
	"github.com/Sumatoshi-tech/sranges/pkg/treeio"
)

// Sink receives sampled chain states. The tree must not be retained past the call.
type Sink interface {
	Sample(chain int, iteration int64, tree *srtree.Tree, logDensity float64) error
}

// MultiSink fans samples out to several sinks.
type MultiSink []Sink

// Sample implements Sink.
func (m MultiSink) Sample(chain int, iteration int64, tree *srtree.Tree, logDensity float64) error {
	var errs []error

	for _, sink := range m {
		err := sink.Sample(chain, iteration, tree, logDensity)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// TreeLogSink appends sampled trees to a NEXUS tree log. Use one per chain.
type TreeLogSink struct {
	log *treeio.LogWriter
}

// NewTreeLogSink wraps a log writer.
func NewTreeLogSink(log *treeio.LogWriter) *TreeLogSink {
	return &TreeLogSink{log: log}
}

// Sample implements Sink.
func (s *TreeLogSink) Sample(_ int, iteration int64, tree *srtree.Tree, _ float64) error {
	return s.log.WriteTree(iteration, tree)
}

// TracePoint is one sampled scalar state of a chain.
type TracePoint struct {
	Iteration        int64
	LogDensity       float64
	RootHeight       float64
	SampledAncestors int
}

// Trace collects scalar traces of every chain. It is safe for concurrent use.
type Trace struct {
	mu     sync.Mutex
	points map[int][]TracePoint
}

// NewTrace creates an empty trace.
func NewTrace() *Trace {
	return &Trace{points: make(map[int][]TracePoint)}
}

// Sample implements Sink.
func (t *Trace) Sample(chain int, iteration int64, tree *srtree.Tree, logDensity float64) error {
	point := TracePoint{
		Iteration:        iteration,
		LogDensity:       logDensity,
		RootHeight:       tree.Height(tree.Root()),
		SampledAncestors: tree.DirectAncestorCount(),
	}

	t.mu.Lock()
	t.points[chain] = append(t.points[chain], point)
	t.mu.Unlock()

	return nil
}

// Chains returns the indices of chains with samples, sorted.
func (t *Trace) Chains() []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	chains := make([]int, 0, len(t.points))
	for chain := range t.points {
		chains = append(chains, chain)
	}

	slices.Sort(chains)

	return chains
}

// Points returns a copy of the samples of one chain.
func (t *Trace) Points(chain int) []TracePoint {
	t.mu.Lock()
	defer t.mu.Unlock()

	return slices.Clone(t.points[chain])
}

// Column extracts one scalar series from a chain's samples, skipping the first burnIn
// fraction of them.
func (t *Trace) Column(chain int, burnIn float64, value func(TracePoint) float64) []float64 {
	points := t.Points(chain)
	skip := min(int(burnIn*float64(len(points))), len(points))

	out := make([]float64, 0, len(points)-skip)
	for _, p := range points[skip:] {
		out = append(out, value(p))
	}

	return out
}
