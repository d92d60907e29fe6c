package mcmc

import (
	"cmp"
	"slices"
	"strings"
	"sync"

	"github.com/Sumatoshi-tech/sranges/pkg/srtree"
)

// Topology renders the labelled, ordered topology of a tree without heights. A sampled
// ancestor is written after the parenthesized subtree it sits on, as in "((A,B))C".
func Topology(tree *srtree.Tree) string {
	var b strings.Builder

	writeTopology(&b, tree, tree.Root())

	return b.String()
}

func writeTopology(b *strings.Builder, tree *srtree.Tree, id int) {
	if tree.IsLeaf(id) {
		b.WriteString(tree.Label(id))

		return
	}

	if tree.IsFake(id) {
		b.WriteByte('(')
		writeTopology(b, tree, tree.NonDirectAncestorChild(id))
		b.WriteByte(')')
		b.WriteString(tree.Label(tree.DirectAncestorChild(id)))

		return
	}

	b.WriteByte('(')
	writeTopology(b, tree, tree.Left(id))
	b.WriteByte(',')
	writeTopology(b, tree, tree.Right(id))
	b.WriteByte(')')
}

// TopologyCount is one entry of a topology tally.
type TopologyCount struct {
	Topology string
	Count    int64
}

// TopologyTally counts sampled topologies across chains. It is safe for concurrent use.
type TopologyTally struct {
	mu     sync.Mutex
	counts map[string]int64
	total  int64
}

// NewTopologyTally creates an empty tally.
func NewTopologyTally() *TopologyTally {
	return &TopologyTally{counts: make(map[string]int64)}
}

// Sample implements Sink.
func (t *TopologyTally) Sample(_ int, _ int64, tree *srtree.Tree, _ float64) error {
	key := Topology(tree)

	t.mu.Lock()
	t.counts[key]++
	t.total++
	t.mu.Unlock()

	return nil
}

// Total returns the number of samples tallied.
func (t *TopologyTally) Total() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.total
}

// Frequency returns the sampled fraction of the given topology.
func (t *TopologyTally) Frequency(topology string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.total == 0 {
		return 0
	}

	return float64(t.counts[topology]) / float64(t.total)
}

// Top returns the n most frequent topologies, most frequent first. n <= 0 returns all.
func (t *TopologyTally) Top(n int) []TopologyCount {
	t.mu.Lock()

	out := make([]TopologyCount, 0, len(t.counts))
	for topology, count := range t.counts {
		out = append(out, TopologyCount{Topology: topology, Count: count})
	}

	t.mu.Unlock()

	slices.SortFunc(out, func(a, b TopologyCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}

		return strings.Compare(a.Topology, b.Topology)
	})

	if n > 0 && n < len(out) {
		out = out[:n]
	}

	return out
}
