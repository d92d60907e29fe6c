package operators

import "github.com/Sumatoshi-tech/sranges/pkg/srtree"

// swapProbes is the number of uniform draws tried before scanning every internal node.
const swapProbes = 5

// LeftRightSwap exchanges the children of a random eligible bifurcation, flipping which
// lineage is ancestral. Heights and ranges are untouched, so the move is symmetric.
type LeftRightSwap struct {
	rand Random
}

// NewLeftRightSwap creates the operator.
func NewLeftRightSwap(rnd Random) *LeftRightSwap {
	return &LeftRightSwap{rand: rnd}
}

// Name implements Operator.
func (op *LeftRightSwap) Name() string { return "left-right-swap" }

// Propose implements Operator.
func (op *LeftRightSwap) Propose(tree *srtree.Tree) (float64, error) {
	node := op.pick(tree)
	if node == srtree.NoNode {
		return Reject, nil
	}

	tree.SwapChildren(node)

	return 0, nil
}

func (op *LeftRightSwap) pick(tree *srtree.Tree) int {
	first := tree.LeafCount()
	internal := tree.NodeCount() - first

	if internal <= 0 {
		return srtree.NoNode
	}

	for range swapProbes {
		id := first + op.rand.Intn(internal)
		if SwapEligible(tree, id) {
			return id
		}
	}

	var eligible []int

	for id := first; id < tree.NodeCount(); id++ {
		if SwapEligible(tree, id) {
			eligible = append(eligible, id)
		}
	}

	if len(eligible) == 0 {
		return srtree.NoNode
	}

	return eligible[op.rand.Intn(len(eligible))]
}
