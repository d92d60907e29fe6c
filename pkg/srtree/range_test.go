package srtree_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/sranges/pkg/srtree"
)

func TestInitializeRanges_Inferred(t *testing.T) {
	t.Parallel()

	tree, err := srtree.Build([]srtree.NodeSpec{
		{Label: "X_first", Height: 2},
		{Label: "X_last", Height: 0},
		{Label: "Y", Height: 0},
		{Height: 2, Children: []int{4, 0}},
		{Height: 1, Children: []int{1, 2}},
	})
	require.NoError(t, err)

	ranges := tree.Ranges()
	require.Len(t, ranges, 2)

	x, y := ranges[0], ranges[1]

	assert.Equal(t, "X", x.Name())
	assert.Equal(t, "X_first", x.FirstOccurrence())
	assert.Equal(t, "X_last", x.LastOccurrence())
	assert.False(t, x.IsSingleFossil())
	assert.Equal(t, []int{0, 4, 1}, x.IDs())

	assert.Equal(t, "Y", y.Name())
	assert.True(t, y.IsSingleFossil())
	assert.Equal(t, []int{2}, y.IDs())
}

func TestInitializeRanges_Sample(t *testing.T) {
	t.Parallel()

	tree := sampleTree(t)

	require.Len(t, tree.Ranges(), 4)

	x := tree.RangeOf(idXLast)
	require.NotNil(t, x)
	assert.Equal(t, []int{idXFirst, idZSplit, idYSplit, idXLast}, x.IDs())
	assert.Equal(t, idXFirst, x.First())
	assert.Equal(t, idXLast, x.Last())
	assert.Equal(t, 4, x.Len())

	assert.Same(t, x, tree.RangeOf(idFake))
	assert.Nil(t, tree.RangeOf(idRoot))
	assert.Same(t, x, tree.SharedRange(idFake, idYSplit))
	assert.False(t, tree.SameRange(idY, idYSplit))
	assert.True(t, tree.SameRange(idZSplit, idXLast))
}

func TestInitializeRanges_Explicit(t *testing.T) {
	t.Parallel()

	tree, err := srtree.Build(sampleSpecs(), srtree.WithRanges(
		srtree.RangeDef{Name: "lineage", First: "X_first", Last: "X_last"},
		srtree.RangeDef{First: "Y"},
	))
	require.NoError(t, err)

	ranges := tree.Ranges()
	require.Len(t, ranges, 4)
	assert.Equal(t, "lineage", ranges[0].Name())
	assert.Equal(t, []int{idXFirst, idZSplit, idYSplit, idXLast}, ranges[0].IDs())
	assert.Equal(t, "Y", ranges[1].Name())
	assert.True(t, ranges[1].IsSingleFossil())
	assert.Equal(t, "Z", ranges[2].Name())
	assert.Equal(t, "W", ranges[3].Name())
}

func TestInitializeRanges_Errors(t *testing.T) {
	t.Parallel()

	pair := func(first, last string, firstHeight float64) []srtree.NodeSpec {
		return []srtree.NodeSpec{
			{Label: first, Height: firstHeight},
			{Label: last, Height: 0},
			{Label: "C", Height: 0},
			{Height: 2, Children: []int{4, 0}},
			{Height: 1, Children: []int{1, 2}},
		}
	}

	tests := []struct {
		name   string
		specs  []srtree.NodeSpec
		opts   []srtree.Option
		target error
	}{
		{
			name:   "first not a sampled ancestor",
			specs:  pair("X_first", "X_last", 1.5),
			target: srtree.ErrNotDirectAncestor,
		},
		{
			name:   "first without last",
			specs:  pair("X_first", "B", 2),
			target: srtree.ErrUnmatchedOccurrence,
		},
		{
			name:   "last without first",
			specs:  pair("A", "X_last", 1.5),
			target: srtree.ErrUnmatchedOccurrence,
		},
		{
			name:   "unknown taxon",
			specs:  pair("A", "B", 2),
			opts:   []srtree.Option{srtree.WithRanges(srtree.RangeDef{Name: "X", First: "A", Last: "Q"})},
			target: srtree.ErrRangeDefinition,
		},
		{
			name:  "taxon in two ranges",
			specs: pair("A", "B", 2),
			opts: []srtree.Option{srtree.WithRanges(
				srtree.RangeDef{Name: "X", First: "A", Last: "B"},
				srtree.RangeDef{Name: "Y", First: "B"},
			)},
			target: srtree.ErrRangeDefinition,
		},
		{
			name:   "path leaves the ancestral lineage",
			specs:  pair("A", "B", 2),
			opts:   []srtree.Option{srtree.WithRanges(srtree.RangeDef{Name: "X", First: "A", Last: "C"})},
			target: srtree.ErrRangeDefinition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := srtree.Build(tt.specs, tt.opts...)
			require.ErrorIs(t, err, tt.target)
		})
	}
}

func TestSplitOccurrence(t *testing.T) {
	t.Parallel()

	base, suffix := srtree.SplitOccurrence("Homo_erectus_first")
	assert.Equal(t, "Homo_erectus", base)
	assert.Equal(t, "first", suffix)

	base, suffix = srtree.SplitOccurrence("plain")
	assert.Equal(t, "plain", base)
	assert.Empty(t, suffix)
}

func TestRange_Canonicalization(t *testing.T) {
	t.Parallel()

	tree := sampleTree(t)
	x := tree.RangeOf(idXFirst)

	assert.Equal(t, x.Contains(idFake), x.Contains(idXFirst))

	x.Remove(idFake)
	assert.False(t, x.Contains(idXFirst))
	assert.False(t, x.Contains(idFake))

	x.Add(idFake)
	assert.Equal(t, idXFirst, x.Last())
	assert.True(t, x.Contains(idFake))
}

func TestRange_Edits(t *testing.T) {
	t.Parallel()

	tree := sampleTree(t)
	x := tree.RangeOf(idXFirst)

	x.Remove(idZSplit)
	assert.Equal(t, []int{idXFirst, idYSplit, idXLast}, x.IDs())

	require.NoError(t, x.AddAfter(idFake, idZSplit))
	assert.Equal(t, []int{idXFirst, idZSplit, idYSplit, idXLast}, x.IDs())

	err := x.AddAfter(idRoot, idW)
	require.ErrorIs(t, err, srtree.ErrAnchorNotInRange)

	x.SetLast(idY)
	assert.Equal(t, idY, x.Last())

	x.SetFirst(idFake)
	assert.Equal(t, idXFirst, x.First())

	x.Clear()
	assert.Zero(t, x.Len())
	assert.Equal(t, srtree.NoNode, x.First())
	assert.Equal(t, srtree.NoNode, x.Last())

	x.SetFirst(idXFirst)
	x.SetLast(idXLast)
	assert.Equal(t, []int{idXFirst, idXLast}, x.IDs())
}

func TestRange_SingleFossilSetLast(t *testing.T) {
	t.Parallel()

	tree := sampleTree(t)
	w := tree.RangeOf(idW)

	w.SetLast(idZ)
	assert.Equal(t, []int{idZ}, w.IDs())
}

func TestRange_InternalNodeIDs(t *testing.T) {
	t.Parallel()

	tree := sampleTree(t)

	assert.Equal(t, []int{idZSplit, idYSplit, idXLast}, tree.RangeOf(idXFirst).InternalNodeIDs())
	assert.Empty(t, tree.RangeOf(idW).InternalNodeIDs())
}

func TestRange_InternalNodeIDsIncludesFakeParent(t *testing.T) {
	t.Parallel()

	// A_first -> A_last where A_last is itself a sampled ancestor of B.
	tree, err := srtree.Build([]srtree.NodeSpec{
		{Label: "A_first", Height: 3},
		{Label: "A_last", Height: 1},
		{Label: "B", Height: 0},
		{Height: 3, Children: []int{4, 0}},
		{Height: 1, Children: []int{2, 1}},
	})
	require.NoError(t, err)

	a := tree.RangeOf(0)
	assert.Equal(t, []int{0, 1}, a.IDs())
	assert.Equal(t, []int{1, 4}, a.InternalNodeIDs())
}

func TestRange_MakeSingleFossil(t *testing.T) {
	t.Parallel()

	tree := sampleTree(t)

	err := tree.RangeOf(idXFirst).MakeSingleFossil()
	require.ErrorIs(t, err, srtree.ErrSingleFossilConflict)

	w := tree.RangeOf(idW)
	require.NoError(t, w.MakeSingleFossil())
	assert.True(t, w.IsSingleFossil())
	assert.Equal(t, "W", w.LastOccurrence())
}
