package srtree

import (
	"fmt"
	"maps"
	"slices"
)

// Store records the current state as the single restore point, replacing any previous one.
func (t *Tree) Store() {
	t.stored.copyFrom(t.cur)

	for _, rng := range t.ranges {
		rng.stored = append(rng.stored[:0], rng.ids...)
	}

	t.canRestore = true
}

// Restore returns the tree to the state recorded by the last Store. It panics with
// ErrNoSnapshot when there is no unused restore point.
func (t *Tree) Restore() {
	if !t.canRestore {
		panic(ErrNoSnapshot)
	}

	t.cur, t.stored = t.stored, t.cur

	for _, rng := range t.ranges {
		rng.ids, rng.stored = rng.stored, rng.ids
	}

	t.canRestore = false
	t.kindsStale = true
}

// State is a detached copy of the node links and range entries of a tree.
type State struct {
	Heights []float64 `json:"heights"`
	Parents []int     `json:"parents"`
	Left    []int     `json:"left"`
	Right   []int     `json:"right"`
	Root    int       `json:"root"`
	Ranges  [][]int   `json:"ranges"`
}

// Snapshot exports the current state.
func (t *Tree) Snapshot() State {
	st := State{
		Heights: slices.Clone(t.cur.height),
		Parents: slices.Clone(t.cur.parent),
		Left:    slices.Clone(t.cur.left),
		Right:   slices.Clone(t.cur.right),
		Root:    t.cur.root,
		Ranges:  make([][]int, len(t.ranges)),
	}

	for i, rng := range t.ranges {
		st.Ranges[i] = slices.Clone(rng.ids)
	}

	return st
}

// Load installs a snapshot taken from a tree of the same shape as the current state.
func (t *Tree) Load(st State) error {
	size := t.cur.size()

	if len(st.Heights) != size || len(st.Parents) != size || len(st.Left) != size || len(st.Right) != size {
		return fmt.Errorf("%w: snapshot has %d nodes, tree has %d", ErrShapeMismatch, len(st.Heights), size)
	}

	if len(st.Ranges) != len(t.ranges) {
		return fmt.Errorf("%w: snapshot has %d ranges, tree has %d", ErrShapeMismatch, len(st.Ranges), len(t.ranges))
	}

	if st.Root < 0 || st.Root >= size {
		return fmt.Errorf("%w: snapshot root %d", ErrShapeMismatch, st.Root)
	}

	copy(t.cur.height, st.Heights)
	copy(t.cur.parent, st.Parents)
	copy(t.cur.left, st.Left)
	copy(t.cur.right, st.Right)
	t.cur.root = st.Root

	for i, rng := range t.ranges {
		rng.ids = append(rng.ids[:0], st.Ranges[i]...)
	}

	t.kindsStale = true
	t.canRestore = false

	return t.Validate()
}

// AssignFrom makes t a deep copy of other, allocating fresh storage.
func (t *Tree) AssignFrom(other *Tree) {
	t.labels = slices.Clone(other.labels)
	t.labelIndex = maps.Clone(other.labelIndex)
	t.leafCount = other.leafCount
	t.cur = other.cur.clone()
	t.stored = other.stored.clone()
	t.canRestore = other.canRestore
	t.kinds = slices.Clone(other.kinds)
	t.kindsStale = other.kindsStale
	t.orientation = slices.Clone(other.orientation)

	t.defs = nil
	if other.defs != nil {
		t.defs = slices.Clone(other.defs)
	}

	t.ranges = make([]*Range, len(other.ranges))

	for i, rng := range other.ranges {
		t.ranges[i] = &Range{
			tree:   t,
			name:   rng.name,
			first:  rng.first,
			last:   rng.last,
			single: rng.single,
			ids:    slices.Clone(rng.ids),
			stored: slices.Clone(rng.stored),
		}
	}
}

// AssignStructureFrom copies node links and range entries from other into the existing
// storage of t. Both trees must have the same node and range counts.
func (t *Tree) AssignStructureFrom(other *Tree) error {
	if t.cur.size() != other.cur.size() {
		return fmt.Errorf("%w: %d nodes versus %d", ErrShapeMismatch, t.cur.size(), other.cur.size())
	}

	if len(t.ranges) != len(other.ranges) {
		return fmt.Errorf("%w: %d ranges versus %d", ErrShapeMismatch, len(t.ranges), len(other.ranges))
	}

	t.cur.copyFrom(other.cur)

	for i, rng := range t.ranges {
		rng.ids = append(rng.ids[:0], other.ranges[i].ids...)
	}

	t.kindsStale = true

	return nil
}

// Clone returns a deep copy of the tree.
func (t *Tree) Clone() *Tree {
	dup := &Tree{}
	dup.AssignFrom(t)

	return dup
}
