package operators

import (
	"fmt"
	"math"

	"github.com/Sumatoshi-tech/sranges/pkg/srtree"
)

// JumpConfig configures LeafSampledAncestorJump.
type JumpConfig struct {
	// RemovalProbability is the probability that sampling removes the lineage. At 1 no
	// sampled ancestors can exist and leaf-to-ancestor jumps are rejected.
	RemovalProbability float64
}

// LeafSampledAncestorJump turns a single-fossil sample into a sampled ancestor of its
// sibling lineage, or lifts a sampled ancestor off its lineage into an ordinary leaf.
type LeafSampledAncestorJump struct {
	rand Random
	cfg  JumpConfig
}

// NewLeafSampledAncestorJump creates the operator.
func NewLeafSampledAncestorJump(rnd Random, cfg JumpConfig) *LeafSampledAncestorJump {
	return &LeafSampledAncestorJump{rand: rnd, cfg: cfg}
}

// Name implements Operator.
func (op *LeafSampledAncestorJump) Name() string { return "leaf-sampled-ancestor-jump" }

// Propose implements Operator.
func (op *LeafSampledAncestorJump) Propose(tree *srtree.Tree) (float64, error) {
	candidates := JumpCandidates(tree)
	if len(candidates) == 0 {
		return Reject, nil
	}

	node := candidates[op.rand.Intn(len(candidates))]

	parent := tree.Parent(node)
	if parent == srtree.NoNode {
		return Reject, nil
	}

	other := tree.Sibling(node)
	if rng := tree.SharedRange(node, other); rng != nil {
		return Reject, fmt.Errorf("%w: single-fossil node %d shares range %q with sibling %d",
			srtree.ErrInvariantViolation, node, rng.Name(), other)
	}

	if tree.IsDirectAncestor(node) {
		return op.toLeaf(tree, node, parent, other), nil
	}

	return op.toAncestor(tree, node, parent, other), nil
}

// toLeaf raises the fake parent of a sampled ancestor and gives the children a random order.
func (op *LeafSampledAncestorJump) toLeaf(tree *srtree.Tree, node, parent, other int) float64 {
	grand := tree.Parent(parent)
	if grand != srtree.NoNode && tree.SameRange(other, grand) {
		return Reject
	}

	var newHeight, newRange float64

	if grand == srtree.NoNode {
		draw := op.rand.Exponential(1)
		newHeight = tree.Height(parent) + draw
		newRange = math.Exp(draw)
	} else {
		newRange = tree.Height(grand) - tree.Height(parent)
		newHeight = tree.Height(parent) + op.rand.Float64()*newRange
	}

	tree.SetHeight(parent, newHeight)

	if op.rand.Coin() {
		tree.SetChildren(parent, node, other)
	} else {
		tree.SetChildren(parent, other, node)
	}

	return math.Log(2 * newRange)
}

// toAncestor drops the parent of a leaf to the leaf's height, making it a sampled ancestor.
func (op *LeafSampledAncestorJump) toAncestor(tree *srtree.Tree, node, parent, other int) float64 {
	if op.cfg.RemovalProbability == 1 {
		return Reject
	}

	height := tree.Height(node)
	if tree.Height(other) >= height {
		return Reject
	}

	var oldRange float64

	grand := tree.Parent(parent)
	if grand == srtree.NoNode {
		oldRange = math.Exp(tree.Height(parent) - height)
	} else {
		if tree.SameRange(other, grand) {
			return Reject
		}

		oldRange = tree.Height(grand) - height
	}

	tree.SetChildren(parent, other, node)
	tree.SetHeight(parent, height)

	return math.Log(0.5 / oldRange)
}
