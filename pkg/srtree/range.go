package srtree

import (
	"fmt"
	"slices"
)

// Range is the ordered set of nodes through which one lineage was observed, oldest first.
// Entries are canonical: a fake node is always recorded as its sampled-ancestor child.
type Range struct {
	tree   *Tree
	name   string
	first  string
	last   string
	single bool
	ids    []int
	stored []int
}

// Name returns the lineage name.
func (r *Range) Name() string { return r.name }

// FirstOccurrence returns the label of the oldest sample.
func (r *Range) FirstOccurrence() string { return r.first }

// LastOccurrence returns the label of the youngest sample.
func (r *Range) LastOccurrence() string { return r.last }

// IsSingleFossil reports whether the range consists of one sample.
func (r *Range) IsSingleFossil() bool { return r.single }

// Len returns the number of entries.
func (r *Range) Len() int { return len(r.ids) }

// IDs returns a copy of the entries, oldest first.
func (r *Range) IDs() []int {
	return slices.Clone(r.ids)
}

// First returns entry 0, or NoNode for an empty range.
func (r *Range) First() int {
	if len(r.ids) == 0 {
		return NoNode
	}

	return r.ids[0]
}

// Last returns the final entry, or NoNode for an empty range.
func (r *Range) Last() int {
	if len(r.ids) == 0 {
		return NoNode
	}

	return r.ids[len(r.ids)-1]
}

// Contains reports whether the node, after canonicalization, is an entry.
func (r *Range) Contains(id int) bool {
	return r.has(r.tree.Canonical(id))
}

func (r *Range) has(canon int) bool {
	return slices.Contains(r.ids, canon)
}

// Add appends a node.
func (r *Range) Add(id int) {
	r.ids = append(r.ids, r.tree.Canonical(id))
}

// AddAfter inserts a node immediately after the anchor.
func (r *Range) AddAfter(anchor, id int) error {
	pos := slices.Index(r.ids, r.tree.Canonical(anchor))
	if pos < 0 {
		return fmt.Errorf("%w: range %q, anchor %d", ErrAnchorNotInRange, r.name, anchor)
	}

	r.ids = slices.Insert(r.ids, pos+1, r.tree.Canonical(id))

	return nil
}

// Remove deletes a node if present.
func (r *Range) Remove(id int) {
	pos := slices.Index(r.ids, r.tree.Canonical(id))
	if pos >= 0 {
		r.ids = slices.Delete(r.ids, pos, pos+1)
	}
}

// Clear drops every entry.
func (r *Range) Clear() {
	r.ids = r.ids[:0]
}

// SetFirst records the first occurrence in slot 0.
func (r *Range) SetFirst(id int) {
	canon := r.tree.Canonical(id)
	if len(r.ids) == 0 {
		r.ids = append(r.ids, canon)

		return
	}

	r.ids[0] = canon
}

// SetLast records the last occurrence in the final slot. A single-fossil range has only slot 0.
func (r *Range) SetLast(id int) {
	if r.single {
		r.SetFirst(id)

		return
	}

	canon := r.tree.Canonical(id)
	if len(r.ids) < 2 {
		r.ids = append(r.ids, canon)

		return
	}

	r.ids[len(r.ids)-1] = canon
}

// InternalNodeIDs returns the entries pinned by range membership: everything after the first
// occurrence, plus the fake parent of each such entry that is a sampled ancestor.
func (r *Range) InternalNodeIDs() []int {
	if len(r.ids) < 2 {
		return nil
	}

	out := make([]int, 0, 2*(len(r.ids)-1))

	for _, id := range r.ids[1:] {
		out = append(out, id)

		if r.tree.IsDirectAncestor(id) {
			out = append(out, r.tree.Parent(id))
		}
	}

	return out
}

// MakeSingleFossil collapses the range to one sample. It fails when both occurrence labels
// are set and differ.
func (r *Range) MakeSingleFossil() error {
	if r.first != "" && r.last != "" && r.first != r.last {
		return fmt.Errorf("%w: range %q has %q and %q", ErrSingleFossilConflict, r.name, r.first, r.last)
	}

	if r.first == "" {
		r.first = r.last
	}

	r.last = r.first
	r.single = true

	if len(r.ids) > 1 {
		r.ids = r.ids[:1]
	}

	return nil
}
