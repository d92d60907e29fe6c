package operators

import "github.com/Sumatoshi-tech/sranges/pkg/srtree"

// SwapEligible reports whether the children of a node may trade places: the node is an
// ordinary bifurcation, no range passes through it or joins its children, and neither
// child sits at its height.
func SwapEligible(tree *srtree.Tree, id int) bool {
	if tree.IsLeaf(id) || tree.IsFake(id) {
		return false
	}

	left, right := tree.Left(id), tree.Right(id)

	if tree.SameRange(id, left) || tree.SameRange(id, right) || tree.SameRange(left, right) {
		return false
	}

	height := tree.Height(id)

	return tree.Height(left) != height && tree.Height(right) != height
}

// JumpCandidates returns the nodes the leaf/sampled-ancestor jump may move: the sample of
// every single-fossil range.
func JumpCandidates(tree *srtree.Tree) []int {
	var out []int

	for _, rng := range tree.Ranges() {
		if rng.IsSingleFossil() && rng.Len() > 0 {
			out = append(out, rng.First())
		}
	}

	return out
}

// PruneCandidates returns the nodes Wilson-Balding may detach: anything but the root, a
// sampled ancestor, or a node pinned inside a range.
func PruneCandidates(tree *srtree.Tree) []int {
	pinned := make([]bool, tree.NodeCount())

	for _, rng := range tree.Ranges() {
		for _, id := range rng.InternalNodeIDs() {
			pinned[id] = true
		}
	}

	out := make([]int, 0, tree.NodeCount())

	for id := range tree.NodeCount() {
		if tree.IsRoot(id) || tree.IsDirectAncestor(id) || pinned[id] {
			continue
		}

		out = append(out, id)
	}

	return out
}
