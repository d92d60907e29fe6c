package srtree

import (
	"fmt"
	"slices"
	"strings"
)

// Occurrence suffixes of the taxon-naming convention.
const (
	suffixFirst = "first"
	suffixLast  = "last"
)

// InitializeRanges recomputes every range from the explicit definitions given to Build, or,
// without them, from the _first/_last naming convention. Intermediate entries are filled from
// the current topology.
func (t *Tree) InitializeRanges() error {
	var (
		ranges []*Range
		err    error
	)

	if t.defs != nil {
		ranges, err = t.rangesFromDefs()
	} else {
		ranges, err = t.inferRanges()
	}

	if err != nil {
		return err
	}

	for _, rng := range ranges {
		pathErr := t.fillRangePath(rng)
		if pathErr != nil {
			return pathErr
		}
	}

	owner := make(map[int]string)

	for _, rng := range ranges {
		for _, id := range rng.ids {
			if other, dup := owner[id]; dup {
				return fmt.Errorf("%w: node %d belongs to ranges %q and %q", ErrRangeDefinition, id, other, rng.name)
			}

			owner[id] = rng.name
		}

		rng.stored = slices.Clone(rng.ids)
	}

	t.ranges = ranges

	return nil
}

// SplitOccurrence splits a taxon label at its last underscore into base name and suffix.
// A label without an underscore has an empty suffix.
func SplitOccurrence(label string) (base, suffix string) {
	idx := strings.LastIndex(label, "_")
	if idx < 0 {
		return label, ""
	}

	return label[:idx], label[idx+1:]
}

func (t *Tree) rangesFromDefs() ([]*Range, error) {
	used := make(map[string]string, t.leafCount)
	ranges := make([]*Range, 0, t.leafCount)

	claim := func(label, name string) (int, error) {
		id, ok := t.labelIndex[label]
		if !ok {
			return NoNode, fmt.Errorf("%w: range %q names unknown taxon %q", ErrRangeDefinition, name, label)
		}

		if other, dup := used[label]; dup && other != name {
			return NoNode, fmt.Errorf("%w: taxon %q is in ranges %q and %q", ErrRangeDefinition, label, other, name)
		}

		used[label] = name

		return id, nil
	}

	for _, def := range t.defs {
		if def.First == "" {
			return nil, fmt.Errorf("%w: range %q has no first occurrence", ErrRangeDefinition, def.Name)
		}

		name := def.Name
		if name == "" {
			name, _ = SplitOccurrence(def.First)
		}

		last := def.Last
		if last == "" {
			last = def.First
		}

		firstID, firstErr := claim(def.First, name)
		if firstErr != nil {
			return nil, firstErr
		}

		lastID, lastErr := claim(last, name)
		if lastErr != nil {
			return nil, lastErr
		}

		rng, rngErr := t.newRange(name, def.First, last, firstID, lastID)
		if rngErr != nil {
			return nil, rngErr
		}

		ranges = append(ranges, rng)
	}

	for id := range t.leafCount {
		label := t.labels[id]
		if _, ok := used[label]; ok {
			continue
		}

		ranges = append(ranges, t.singleRange(label, id))
	}

	return ranges, nil
}

type pendingRange struct {
	firstID, lastID int
	first, last     string
}

func (t *Tree) inferRanges() ([]*Range, error) {
	pending := make(map[string]*pendingRange)

	// order interleaves single-fossil labels and multi-sample base names by first appearance.
	type slot struct {
		base   string
		single int
	}

	order := make([]slot, 0, t.leafCount)

	for id := range t.leafCount {
		label := t.labels[id]
		base, suffix := SplitOccurrence(label)

		if suffix != suffixFirst && suffix != suffixLast {
			order = append(order, slot{single: id})

			continue
		}

		entry, seen := pending[base]
		if !seen {
			entry = &pendingRange{firstID: NoNode, lastID: NoNode}
			pending[base] = entry
			order = append(order, slot{base: base, single: NoNode})
		}

		if suffix == suffixFirst {
			if entry.firstID != NoNode {
				return nil, fmt.Errorf("%w: %q has two first occurrences", ErrUnmatchedOccurrence, base)
			}

			entry.firstID, entry.first = id, label

			continue
		}

		if entry.lastID != NoNode {
			return nil, fmt.Errorf("%w: %q has two last occurrences", ErrUnmatchedOccurrence, base)
		}

		entry.lastID, entry.last = id, label
	}

	ranges := make([]*Range, 0, len(order))

	for _, s := range order {
		if s.single != NoNode {
			ranges = append(ranges, t.singleRange(t.labels[s.single], s.single))

			continue
		}

		entry := pending[s.base]

		switch {
		case entry.firstID == NoNode:
			return nil, fmt.Errorf("%w: %q has a last occurrence but no first", ErrUnmatchedOccurrence, entry.last)
		case entry.lastID == NoNode:
			return nil, fmt.Errorf("%w: %q has a first occurrence but no last", ErrUnmatchedOccurrence, entry.first)
		}

		rng, err := t.newRange(s.base, entry.first, entry.last, entry.firstID, entry.lastID)
		if err != nil {
			return nil, err
		}

		ranges = append(ranges, rng)
	}

	return ranges, nil
}

func (t *Tree) singleRange(label string, id int) *Range {
	return &Range{tree: t, name: label, first: label, last: label, single: true, ids: []int{id}}
}

func (t *Tree) newRange(name, first, last string, firstID, lastID int) (*Range, error) {
	if firstID == lastID {
		return t.singleRange(first, firstID), nil
	}

	if !t.IsDirectAncestor(firstID) {
		return nil, fmt.Errorf("%w: %q in range %q", ErrNotDirectAncestor, first, name)
	}

	if t.Height(lastID) >= t.Height(firstID) {
		return nil, fmt.Errorf("%w: range %q ends at %q (height %g) which is not younger than %q (height %g)",
			ErrRangeDefinition, name, last, t.Height(lastID), first, t.Height(firstID))
	}

	return &Range{tree: t, name: name, first: first, last: last, ids: []int{firstID, lastID}}, nil
}

// fillRangePath walks from the last occurrence up the ancestral lineage to the first one and
// records every branching point on the way.
func (t *Tree) fillRangePath(rng *Range) error {
	if rng.single {
		return nil
	}

	first, last := rng.ids[0], rng.ids[len(rng.ids)-1]

	node := last
	if t.IsDirectAncestor(node) {
		node = t.Parent(node)
	}

	var path []int

	for {
		parent := t.Parent(node)
		if parent == NoNode {
			return fmt.Errorf("%w: %q does not descend from %q", ErrRangeDefinition, rng.last, rng.first)
		}

		if !t.IsFake(parent) && t.Left(parent) != node {
			return fmt.Errorf("%w: range %q leaves the ancestral lineage at node %d", ErrRangeDefinition, rng.name, parent)
		}

		canon := t.Canonical(parent)
		if canon == first {
			break
		}

		path = append(path, canon)
		node = parent
	}

	slices.Reverse(path)

	ids := make([]int, 0, len(path)+2)
	ids = append(ids, first)
	ids = append(ids, path...)
	ids = append(ids, last)
	rng.ids = ids

	return nil
}
