package operators_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/sranges/pkg/srtree"
)

// scriptedRandom replays fixed draws and panics when a stream runs dry.
type scriptedRandom struct {
	ints   []int
	floats []float64
	expos  []float64
	coins  []bool
}

func (s *scriptedRandom) Intn(n int) int {
	v := s.ints[0]
	s.ints = s.ints[1:]

	if v >= n {
		panic("scripted draw out of range")
	}

	return v
}

func (s *scriptedRandom) Float64() float64 {
	v := s.floats[0]
	s.floats = s.floats[1:]

	return v
}

func (s *scriptedRandom) Exponential(rate float64) float64 {
	v := s.expos[0]
	s.expos = s.expos[1:]

	return v / rate
}

func (s *scriptedRandom) Coin() bool {
	v := s.coins[0]
	s.coins = s.coins[1:]

	return v
}

// constRandom always returns the same draws.
type constRandom struct {
	intn  int
	float float64
	expo  float64
	coin  bool
}

func (c constRandom) Intn(n int) int {
	return c.intn % n
}

func (c constRandom) Float64() float64 { return c.float }

func (c constRandom) Exponential(_ float64) float64 { return c.expo }

func (c constRandom) Coin() bool { return c.coin }

// Node ids of the three-taxon trees: a single fossil A at height 2 and the range
// B_first (height 1) -> B_last (height 0).
const (
	threeA      = 0
	threeBFirst = 1
	threeBLast  = 2
	threeFake   = 3
	threeRoot   = 4
)

// threeTaxonSpecs builds the two tree shapes of the three-taxon fixture. With ancestor set
// A is a sampled ancestor at the root; otherwise the root sits at rootHeight with A on the
// side given by aLeft.
func threeTaxonSpecs(ancestor, aLeft bool, rootHeight float64) []srtree.NodeSpec {
	specs := []srtree.NodeSpec{
		{Label: "A", Height: 2},
		{Label: "B_first", Height: 1},
		{Label: "B_last", Height: 0},
		{Height: 1, Children: []int{threeBLast, threeBFirst}},
		{Height: rootHeight, Children: []int{threeA, threeFake}},
	}

	switch {
	case ancestor:
		specs[threeRoot] = srtree.NodeSpec{Height: 2, Children: []int{threeFake, threeA}}
	case !aLeft:
		specs[threeRoot].Children = []int{threeFake, threeA}
	}

	return specs
}

func threeTaxonTree(t *testing.T, ancestor, aLeft bool, rootHeight float64) *srtree.Tree {
	t.Helper()

	tree, err := srtree.Build(threeTaxonSpecs(ancestor, aLeft, rootHeight))
	require.NoError(t, err)

	return tree
}

// twoTaxonTree builds A (height 1) and B (height 0) joined at rootHeight, or with A as a
// sampled ancestor of B when ancestor is set.
func twoTaxonTree(t *testing.T, ancestor bool, rootHeight float64) *srtree.Tree {
	t.Helper()

	root := srtree.NodeSpec{Height: rootHeight, Children: []int{0, 1}}
	if ancestor {
		root = srtree.NodeSpec{Height: 1, Children: []int{1, 0}}
	}

	tree, err := srtree.Build([]srtree.NodeSpec{
		{Label: "A", Height: 1},
		{Label: "B", Height: 0},
		root,
	})
	require.NoError(t, err)

	return tree
}

// Node ids of the six-taxon tree.
const (
	sixSplitAC = 6
	sixSplitB  = 8
	sixRoot    = 10
)

// sixTaxonTree is ((((X_last,(A,C)),B),X_first),D) with range X running
// X_first -> node 8 -> node 7 -> X_last.
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
