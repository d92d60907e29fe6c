package srtree_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	fuzz "github.com/google/gofuzz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/sranges/pkg/srtree"
)

const fuzzSeed = 20260101

// scramble applies random height and topology edits without keeping the tree valid.
func scramble(tree *srtree.Tree, f *fuzz.Fuzzer) {
	for id := range tree.NodeCount() {
		var h float64

		f.Fuzz(&h)
		tree.SetHeight(id, h*10)
	}

	tree.SwapChildren(idRoot)
	tree.SetChildren(idYSplit, idY, idW)
	tree.SetChildren(idRoot, idFake, idXLast)
	tree.SetRootOnly(idZSplit)

	x := tree.RangeOf(idXFirst)
	x.Remove(idZSplit)
	x.Add(idRoot)
	tree.RangeOf(idW).Clear()
}

func TestStoreRestore_RoundTrip(t *testing.T) {
	t.Parallel()

	f := fuzz.NewWithSeed(fuzzSeed).NilChance(0)

	for range 20 {
		tree := sampleTree(t)
		before := tree.Snapshot()

		tree.Store()
		scramble(tree, f)
		require.NotEmpty(t, cmp.Diff(before, tree.Snapshot()))

		tree.Restore()

		if diff := cmp.Diff(before, tree.Snapshot()); diff != "" {
			t.Fatalf("restore mismatch (-want +got):\n%s", diff)
		}

		require.NoError(t, tree.Validate())
		assert.Equal(t, srtree.KindFake, tree.Kind(idFake))
	}
}

func TestStoreRestore_RestoreAfterRestoreAlsoRoundTrips(t *testing.T) {
	t.Parallel()

	tree := sampleTree(t)
	f := fuzz.NewWithSeed(fuzzSeed)

	tree.Store()
	scramble(tree, f)
	tree.Restore()
	first := tree.Snapshot()

	tree.Store()
	scramble(tree, f)
	tree.Restore()

	assert.Empty(t, cmp.Diff(first, tree.Snapshot()))
}

func TestRestore_WithoutStorePanics(t *testing.T) {
	t.Parallel()

	tree := sampleTree(t)

	assert.PanicsWithValue(t, srtree.ErrNoSnapshot, tree.Restore)

	tree.Store()
	tree.Restore()

	assert.PanicsWithValue(t, srtree.ErrNoSnapshot, tree.Restore)
}

func TestSnapshot_LoadRoundTrip(t *testing.T) {
	t.Parallel()

	src := sampleTree(t)
	src.SwapChildren(idYSplit)
	src.SetHeight(idZSplit, 2.5)
	want := src.Snapshot()

	dst := sampleTree(t)
	require.NoError(t, dst.Load(want))
	assert.Empty(t, cmp.Diff(want, dst.Snapshot()))
}

func TestSnapshot_LoadRejectsOtherShapes(t *testing.T) {
	t.Parallel()

	tree := sampleTree(t)

	st := tree.Snapshot()
	st.Heights = st.Heights[:3]
	require.ErrorIs(t, tree.Load(st), srtree.ErrShapeMismatch)

	st = tree.Snapshot()
	st.Ranges = st.Ranges[:1]
	require.ErrorIs(t, tree.Load(st), srtree.ErrShapeMismatch)

	st = tree.Snapshot()
	st.Heights[idZ] = 4
	require.ErrorIs(t, tree.Load(st), srtree.ErrInvariantViolation)
}

func TestClone_IsIndependent(t *testing.T) {
	t.Parallel()

	tree := sampleTree(t)
	dup := tree.Clone()

	assert.Empty(t, cmp.Diff(tree.Snapshot(), dup.Snapshot()))

	dup.SetHeight(idRoot, 9)
	dup.RangeOf(idXFirst).Remove(idYSplit)

	assert.InDelta(t, 5.0, tree.Height(idRoot), 0)
	assert.Equal(t, 4, tree.RangeOf(idXFirst).Len())
	assert.Same(t, dup.RangeOf(idXLast), dup.Ranges()[0])
}

func TestAssignStructureFrom(t *testing.T) {
	t.Parallel()

	src := sampleTree(t)
	src.SetHeight(idRoot, 7)
	src.RangeOf(idXFirst).Remove(idZSplit)

	dst := sampleTree(t)
	require.NoError(t, dst.AssignStructureFrom(src))
	assert.Empty(t, cmp.Diff(src.Snapshot(), dst.Snapshot()))

	small, err := srtree.Build([]srtree.NodeSpec{
		{Label: "A"}, {Label: "B"}, {Height: 1, Children: []int{0, 1}},
	})
	require.NoError(t, err)
	require.ErrorIs(t, dst.AssignStructureFrom(small), srtree.ErrShapeMismatch)
}
