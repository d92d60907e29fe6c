package srtree

import (
	"fmt"
	"math"
)

// NodeSpec describes one node for Build. Its position in the slice is its id.
// Leaves have no children and a taxon label; internal nodes have exactly two children.
type NodeSpec struct {
	Label    string
	Height   float64
	Children []int
}

// RangeDef names the first and last occurrence taxa of one range.
// An empty Last, or Last equal to First, defines a single-fossil range.
type RangeDef struct {
	Name  string
	First string
	Last  string
}

// Option configures Build.
type Option func(*buildOptions)

type buildOptions struct {
	ranges      []RangeDef
	explicit    bool
	orientation []Orientation
}

// WithRanges supplies explicit range definitions instead of inferring them from labels.
func WithRanges(defs ...RangeDef) Option {
	return func(o *buildOptions) {
		o.ranges = append([]RangeDef{}, defs...)
		o.explicit = true
	}
}

// WithOrientation supplies per-node orientation tags, indexed like the specs. The tree is
// repaired with Orientate before ranges are initialized.
func WithOrientation(tags []Orientation) Option {
	return func(o *buildOptions) {
		o.orientation = tags
	}
}

// Build constructs a tree from node specs, repairs fake-node orientation and initializes ranges.
// Leaves must occupy ids [0, N) and internal nodes [N, 2N-1).
func Build(specs []NodeSpec, opts ...Option) (*Tree, error) {
	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}

	t, err := buildArena(specs)
	if err != nil {
		return nil, err
	}

	if bo.explicit {
		t.defs = bo.ranges
		if t.defs == nil {
			t.defs = []RangeDef{}
		}
	}

	if bo.orientation != nil {
		if len(bo.orientation) != len(specs) {
			return nil, fmt.Errorf("%w: %d orientation tags for %d nodes", ErrMalformedTree, len(bo.orientation), len(specs))
		}

		copy(t.orientation, bo.orientation)
	}

	t.Orientate()

	initErr := t.InitializeRanges()
	if initErr != nil {
		return nil, initErr
	}

	validateErr := t.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedTree, validateErr)
	}

	return t, nil
}

func buildArena(specs []NodeSpec) (*Tree, error) {
	size := len(specs)
	if size == 0 || size%2 == 0 {
		return nil, fmt.Errorf("%w: %d nodes cannot form a full binary tree", ErrMalformedTree, size)
	}

	leafCount := (size + 1) / 2

	t := &Tree{
		labels:      make([]string, leafCount),
		labelIndex:  make(map[string]int, leafCount),
		leafCount:   leafCount,
		cur:         newArena(size),
		stored:      newArena(size),
		kinds:       make([]Kind, size),
		kindsStale:  true,
		orientation: make([]Orientation, size),
	}

	for id, spec := range specs {
		specErr := t.placeSpec(id, spec)
		if specErr != nil {
			return nil, specErr
		}
	}

	for id := range size {
		if t.cur.parent[id] != NoNode {
			continue
		}

		if t.cur.root != NoNode {
			return nil, fmt.Errorf("%w: nodes %d and %d both lack a parent", ErrMalformedTree, t.cur.root, id)
		}

		t.cur.root = id
	}

	if t.cur.root == NoNode {
		return nil, fmt.Errorf("%w: no root", ErrMalformedTree)
	}

	if visited := t.countReachable(); visited != size {
		return nil, fmt.Errorf("%w: %d of %d nodes reachable from the root", ErrMalformedTree, visited, size)
	}

	t.stored.copyFrom(t.cur)

	return t, nil
}

func (t *Tree) placeSpec(id int, spec NodeSpec) error {
	if spec.Height < 0 || math.IsNaN(spec.Height) || math.IsInf(spec.Height, 0) {
		return fmt.Errorf("%w: node %d has height %v", ErrMalformedTree, id, spec.Height)
	}

	t.cur.height[id] = spec.Height

	if id < t.leafCount {
		if len(spec.Children) != 0 {
			return fmt.Errorf("%w: node %d is in the leaf id range but has children", ErrMalformedTree, id)
		}

		if spec.Label == "" {
			return fmt.Errorf("%w: leaf %d has no label", ErrMalformedTree, id)
		}

		if prev, dup := t.labelIndex[spec.Label]; dup {
			return fmt.Errorf("%w: leaves %d and %d share label %q", ErrMalformedTree, prev, id, spec.Label)
		}

		t.labels[id] = spec.Label
		t.labelIndex[spec.Label] = id

		return nil
	}

	if len(spec.Children) != 2 {
		return fmt.Errorf("%w: internal node %d has %d children", ErrMalformedTree, id, len(spec.Children))
	}

	for _, child := range spec.Children {
		if child < 0 || child >= len(t.cur.height) || child == id {
			return fmt.Errorf("%w: node %d has invalid child %d", ErrMalformedTree, id, child)
		}

		if t.cur.parent[child] != NoNode {
			return fmt.Errorf("%w: node %d has two parents", ErrMalformedTree, child)
		}

		t.cur.parent[child] = id
	}

	t.cur.left[id] = spec.Children[0]
	t.cur.right[id] = spec.Children[1]

	return nil
}

func (t *Tree) countReachable() int {
	visited := 0
	stack := []int{t.cur.root}
	seen := make([]bool, t.cur.size())

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if seen[id] {
			continue
		}

		seen[id] = true
		visited++

		if left := t.cur.left[id]; left != NoNode {
			stack = append(stack, left)
		}

		if right := t.cur.right[id]; right != NoNode {
			stack = append(stack, right)
		}
	}

	return visited
}
