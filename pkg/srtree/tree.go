// Package srtree implements the stratigraphic-range tree: an arena of binary-tree nodes
// with sampled ancestors, the ranges that pin lineages through time, and a single-slot
// store/restore transaction used by MCMC proposals.
package srtree

import (
	"fmt"
	"slices"
)

// NoNode marks an absent parent or child.
const NoNode = -1

// arena holds the node links of one tree state. All references are indices into the slices.
type arena struct {
	height []float64
	parent []int
	left   []int
	right  []int
	root   int
}

func newArena(size int) *arena {
	ar := &arena{
		height: make([]float64, size),
		parent: make([]int, size),
		left:   make([]int, size),
		right:  make([]int, size),
		root:   NoNode,
	}

	for id := range size {
		ar.parent[id] = NoNode
		ar.left[id] = NoNode
		ar.right[id] = NoNode
	}

	return ar
}

func (ar *arena) copyFrom(src *arena) {
	copy(ar.height, src.height)
	copy(ar.parent, src.parent)
	copy(ar.left, src.left)
	copy(ar.right, src.right)
	ar.root = src.root
}

func (ar *arena) clone() *arena {
	dup := newArena(len(ar.height))
	dup.copyFrom(ar)

	return dup
}

func (ar *arena) size() int {
	return len(ar.height)
}

// Tree is a rooted binary tree whose leaves are fossil or extant samples, some of which sit
// on zero-length branches as sampled ancestors. Leaves occupy ids [0, LeafCount) and internal
// nodes [LeafCount, NodeCount). A Tree is not safe for concurrent use.
type Tree struct {
	labels     []string
	labelIndex map[string]int
	leafCount  int

	cur        *arena
	stored     *arena
	canRestore bool

	ranges []*Range
	defs   []RangeDef

	kinds      []Kind
	kindsStale bool

	orientation []Orientation
}

// NodeCount returns the number of nodes.
func (t *Tree) NodeCount() int {
	return t.cur.size()
}

// LeafCount returns the number of leaves, sampled ancestors included.
func (t *Tree) LeafCount() int {
	return t.leafCount
}

// Root returns the root id.
func (t *Tree) Root() int {
	return t.cur.root
}

// Height returns the height (age before present) of a node.
func (t *Tree) Height(id int) float64 {
	return t.cur.height[id]
}

// Parent returns the parent of a node, or NoNode for the root.
func (t *Tree) Parent(id int) int {
	return t.cur.parent[id]
}

// Left returns the first child, which continues the ancestral lineage.
func (t *Tree) Left(id int) int {
	return t.cur.left[id]
}

// Right returns the second child, which starts the descendant lineage.
func (t *Tree) Right(id int) int {
	return t.cur.right[id]
}

// Sibling returns the other child of the node's parent, or NoNode for the root.
func (t *Tree) Sibling(id int) int {
	parent := t.cur.parent[id]
	if parent == NoNode {
		return NoNode
	}

	if t.cur.left[parent] == id {
		return t.cur.right[parent]
	}

	return t.cur.left[parent]
}

// Label returns the taxon label of a leaf and "" for internal nodes.
func (t *Tree) Label(id int) string {
	if id < 0 || id >= t.leafCount {
		return ""
	}

	return t.labels[id]
}

// Labels returns the leaf labels in id order.
func (t *Tree) Labels() []string {
	return slices.Clone(t.labels[:t.leafCount])
}

// LeafByLabel looks up a leaf id by taxon label.
func (t *Tree) LeafByLabel(label string) (int, bool) {
	id, ok := t.labelIndex[label]

	return id, ok
}

// IsRoot reports whether id is the root.
func (t *Tree) IsRoot(id int) bool {
	return t.cur.root == id
}

// IsLeaf reports whether the node has no children. Sampled ancestors are leaves too.
func (t *Tree) IsLeaf(id int) bool {
	return t.cur.left[id] == NoNode && t.cur.right[id] == NoNode
}

// Kind returns the structural role of a node.
func (t *Tree) Kind(id int) Kind {
	t.refreshKinds()

	return t.kinds[id]
}

// IsDirectAncestor reports whether the node is a sampled ancestor on a zero-length branch.
func (t *Tree) IsDirectAncestor(id int) bool {
	return t.Kind(id) == KindDirectAncestor
}

// IsFake reports whether the node is the degenerate parent of a sampled ancestor.
func (t *Tree) IsFake(id int) bool {
	return t.Kind(id) == KindFake
}

// DirectAncestorChild returns the sampled-ancestor child of a fake node, or NoNode.
func (t *Tree) DirectAncestorChild(id int) int {
	if t.IsLeaf(id) {
		return NoNode
	}

	switch {
	case t.IsDirectAncestor(t.cur.right[id]):
		return t.cur.right[id]
	case t.IsDirectAncestor(t.cur.left[id]):
		return t.cur.left[id]
	default:
		return NoNode
	}
}

// NonDirectAncestorChild returns the child of a fake node that continues the lineage, or NoNode.
func (t *Tree) NonDirectAncestorChild(id int) int {
	da := t.DirectAncestorChild(id)
	if da == NoNode {
		return NoNode
	}

	if t.cur.left[id] == da {
		return t.cur.right[id]
	}

	return t.cur.left[id]
}

// Canonical maps a fake node to its sampled-ancestor child. Every other id maps to itself.
func (t *Tree) Canonical(id int) int {
	if id == NoNode || !t.IsFake(id) {
		return id
	}

	return t.DirectAncestorChild(id)
}

// DirectAncestorCount returns the number of sampled ancestors in the tree.
func (t *Tree) DirectAncestorCount() int {
	t.refreshKinds()

	count := 0

	for id := range t.leafCount {
		if t.kinds[id] == KindDirectAncestor {
			count++
		}
	}

	return count
}

// SetHeight moves a node to a new height.
func (t *Tree) SetHeight(id int, height float64) {
	t.cur.height[id] = height
	t.kindsStale = true
}

// SetChildren replaces both children of a node and points them back at it.
func (t *Tree) SetChildren(id, left, right int) {
	t.cur.left[id] = left
	t.cur.right[id] = right

	if left != NoNode {
		t.cur.parent[left] = id
	}

	if right != NoNode {
		t.cur.parent[right] = id
	}

	t.kindsStale = true
}

// SwapChildren exchanges the left and right child of a node.
func (t *Tree) SwapChildren(id int) {
	t.cur.left[id], t.cur.right[id] = t.cur.right[id], t.cur.left[id]
}

// ReplaceChild puts repl into the child slot of parent currently held by old, keeping the side.
func (t *Tree) ReplaceChild(parent, old, repl int) {
	switch old {
	case t.cur.left[parent]:
		t.cur.left[parent] = repl
	case t.cur.right[parent]:
		t.cur.right[parent] = repl
	default:
		panic(fmt.Sprintf("srtree: node %d is not a child of %d", old, parent))
	}

	t.cur.parent[repl] = parent
	t.kindsStale = true
}

// SetRootOnly makes id the root without touching any other link.
func (t *Tree) SetRootOnly(id int) {
	t.cur.root = id
	t.cur.parent[id] = NoNode
	t.kindsStale = true
}

// Ranges returns the ranges in their construction order. The slice is shared; do not modify it.
func (t *Tree) Ranges() []*Range {
	return t.ranges
}

// RangeOf returns the range containing the node (canonicalized), or nil.
func (t *Tree) RangeOf(id int) *Range {
	canon := t.Canonical(id)

	for _, rng := range t.ranges {
		if rng.has(canon) {
			return rng
		}
	}

	return nil
}

// SharedRange returns the range containing both nodes (canonicalized), or nil.
func (t *Tree) SharedRange(a, b int) *Range {
	ca, cb := t.Canonical(a), t.Canonical(b)

	for _, rng := range t.ranges {
		if rng.has(ca) && rng.has(cb) {
			return rng
		}
	}

	return nil
}

// SameRange reports whether both nodes belong to one range.
func (t *Tree) SameRange(a, b int) bool {
	return t.SharedRange(a, b) != nil
}

// refreshKinds recomputes every node's kind when a mutation has invalidated them.
// Tips first, since a node's fakeness depends on its children being sampled ancestors.
func (t *Tree) refreshKinds() {
	if !t.kindsStale {
		return
	}

	ar := t.cur

	for id := range ar.size() {
		if ar.left[id] != NoNode || ar.right[id] != NoNode {
			continue
		}

		parent := ar.parent[id]
		if parent != NoNode && ar.height[parent] == ar.height[id] {
			t.kinds[id] = KindDirectAncestor
		} else {
			t.kinds[id] = KindLeaf
		}
	}

	for id := range ar.size() {
		left, right := ar.left[id], ar.right[id]
		if left == NoNode && right == NoNode {
			continue
		}

		leftDA := left != NoNode && t.kinds[left] == KindDirectAncestor
		rightDA := right != NoNode && t.kinds[right] == KindDirectAncestor

		if leftDA != rightDA {
			t.kinds[id] = KindFake
		} else {
			t.kinds[id] = KindBifurcation
		}
	}

	t.kindsStale = false
}
