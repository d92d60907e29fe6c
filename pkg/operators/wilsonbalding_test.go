package operators_test

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/sranges/pkg/operators"
	"github.com/Sumatoshi-tech/sranges/pkg/rng"
	"github.com/Sumatoshi-tech/sranges/pkg/srtree"
)

const (
	sweepSeed      = 99
	sweepProposals = 5000
)

func TestPruneCandidates(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []int{threeA, threeFake}, operators.PruneCandidates(threeTaxonTree(t, false, true, 3)))
	assert.Equal(t, []int{threeFake}, operators.PruneCandidates(threeTaxonTree(t, true, false, 2)))

	// X_first is a sampled ancestor, X_last and nodes 7, 8 are pinned by range X.
	assert.Equal(t, []int{2, 3, 4, 5, 6, 9}, operators.PruneCandidates(sixTaxonTree(t)))
}

func TestWilsonBalding_LeafToAncestor(t *testing.T) {
	t.Parallel()

	tree := threeTaxonTree(t, false, true, 3)
	op := operators.NewWilsonBalding(&scriptedRandom{ints: []int{1, 0}}, operators.WilsonBaldingConfig{})

	hr, err := op.Propose(tree)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, hr, hrTolerance)
	assert.Equal(t, operators.Move{PruneBefore: 2, PruneAfter: 1}, op.LastMove())

	want := threeTaxonTree(t, true, false, 2).Snapshot()
	assert.Empty(t, cmp.Diff(want, tree.Snapshot()))
	require.NoError(t, tree.Validate())
}

func TestWilsonBalding_AncestorToLeaf(t *testing.T) {
	t.Parallel()

	tree := threeTaxonTree(t, true, false, 2)
	op := operators.NewWilsonBalding(&scriptedRandom{
		ints:  []int{0, 0},
		expos: []float64{0.7},
		coins: []bool{true},
	}, operators.WilsonBaldingConfig{})

	hr, err := op.Propose(tree)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, hr, hrTolerance)
	assert.Equal(t, operators.Move{PruneBefore: 1, PruneAfter: 2}, op.LastMove())

	want := threeTaxonTree(t, false, true, 2.7).Snapshot()
	assert.Empty(t, cmp.Diff(want, tree.Snapshot(), cmp.Comparer(func(a, b float64) bool {
		return math.Abs(a-b) < hrTolerance
	})))
}

func TestWilsonBalding_RejectsWithoutTargets(t *testing.T) {
	t.Parallel()

	tree := threeTaxonTree(t, false, true, 3)
	want := tree.Snapshot()

	// Pruning A leaves nothing older than A to attach to.
	op := operators.NewWilsonBalding(&scriptedRandom{ints: []int{0}}, operators.WilsonBaldingConfig{})

	hr, err := op.Propose(tree)
	require.NoError(t, err)
	assert.True(t, operators.IsReject(hr))
	assert.Equal(t, operators.Move{}, op.LastMove())
	assert.Empty(t, cmp.Diff(want, tree.Snapshot()))
}

func TestWilsonBalding_RemovalProbabilityOneSkipsLeaves(t *testing.T) {
	t.Parallel()

	tree := threeTaxonTree(t, false, true, 3)

	// Pruning the fake node could only land on leaf A.
	op := operators.NewWilsonBalding(&scriptedRandom{ints: []int{1}}, operators.WilsonBaldingConfig{RemovalProbability: 1})

	hr, err := op.Propose(tree)
	require.NoError(t, err)
	assert.True(t, operators.IsReject(hr))
}

func TestWilsonBalding_AttachIntoRange(t *testing.T) {
	t.Parallel()

	tree := sixTaxonTree(t)

	// Prune D (candidate 3): its parent is the root, so the fake node 9 becomes the root.
	// Targets are enumerated by node id; the edge above X_last (node 1) is the first.
	op := operators.NewWilsonBalding(&scriptedRandom{
		ints:   []int{3, 0},
		floats: []float64{0.5},
	}, operators.WilsonBaldingConfig{})

	hr, err := op.Propose(tree)
	require.NoError(t, err)
	require.False(t, operators.IsReject(hr))

	assert.Equal(t, 9, tree.Root())
	assert.Equal(t, sixRoot, tree.Parent(1))
	assert.Equal(t, 1, tree.Left(sixRoot))
	assert.Equal(t, 5, tree.Right(sixRoot))
	assert.InDelta(t, 1.5, tree.Height(sixRoot), hrTolerance)
	assert.Equal(t, []int{0, 8, 7, sixRoot, 1}, tree.RangeOf(1).IDs())
	require.NoError(t, tree.Validate())

	// The old root is now pinned by range X and node 9 is the root.
	// Attach is forced into the range, prune was random: 0.5 * (6/5) * 1 / e^(6-4).
	assert.Equal(t, operators.Move{PruneBefore: 6, PruneAfter: 5}, op.LastMove())
	assert.InDelta(t, math.Log(0.5*6/5)-2, hr, hrTolerance)
}

// TestProposals_PreserveInvariants accepts every proposal of every operator and checks
// the structural invariants, the range bookkeeping and the prune counts after each one.
func TestProposals_PreserveInvariants(t *testing.T) {
	t.Parallel()

	tree := sixTaxonTree(t)
	src := rng.New(sweepSeed)

	wb := operators.NewWilsonBalding(src, operators.WilsonBaldingConfig{})
	ops := []operators.Operator{
		operators.NewLeftRightSwap(src),
		operators.NewLeafSampledAncestorJump(src, operators.JumpConfig{}),
		wb,
	}

	edits := 0

	for range sweepProposals {
		op := ops[src.Intn(len(ops))]
		before := len(operators.PruneCandidates(tree))

		hr, err := op.Propose(tree)
		require.NoError(t, err)

		if operators.IsReject(hr) {
			continue
		}

		edits++

		require.NoError(t, tree.Validate(), "after %s", op.Name())
		requireRangesConsistent(t, tree)

		if op == operators.Operator(wb) {
			move := wb.LastMove()
			require.Equal(t, before, move.PruneBefore)
			require.Equal(t, len(operators.PruneCandidates(tree)), move.PruneAfter)
		}
	}

	assert.Greater(t, edits, sweepProposals/4)
}

// requireRangesConsistent recomputes ranges from scratch on a copy and compares entries.
func requireRangesConsistent(t *testing.T, tree *srtree.Tree) {
	t.Helper()

	fresh := tree.Clone()
	require.NoError(t, fresh.InitializeRanges())

	for i, got := range tree.Ranges() {
		require.Equal(t, fresh.Ranges()[i].IDs(), got.IDs(), "range %s", got.Name())
	}
}
