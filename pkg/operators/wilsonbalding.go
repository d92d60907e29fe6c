package operators

import (
	"fmt"
	"math"

	"github.com/Sumatoshi-tech/sranges/pkg/srtree"
)

// WilsonBaldingConfig configures WilsonBalding.
type WilsonBaldingConfig struct {
	// RemovalProbability is the probability that sampling removes the lineage. At 1 the
	// operator never attaches onto a leaf, so no sampled ancestors are created.
	RemovalProbability float64
}

// Move records the prune-candidate counts of the last accepted-for-evaluation proposal.
type Move struct {
	PruneBefore int
	PruneAfter  int
}

// WilsonBalding detaches a subtree together with its parent node and reattaches it on a
// random edge, or onto a leaf as a sampled ancestor, respecting range membership.
type WilsonBalding struct {
	rand Random
	cfg  WilsonBaldingConfig
	last Move
}

// NewWilsonBalding creates the operator.
func NewWilsonBalding(rnd Random, cfg WilsonBaldingConfig) *WilsonBalding {
	return &WilsonBalding{rand: rnd, cfg: cfg}
}

// Name implements Operator.
func (op *WilsonBalding) Name() string { return "wilson-balding" }

// LastMove returns the prune-candidate counts of the last proposal that edited the tree.
// It is zero after a rejection.
func (op *WilsonBalding) LastMove() Move { return op.last }

// attachTarget is either the edge above node or, with leaf set, the leaf itself.
type attachTarget struct {
	node int
	leaf bool
}

// pruneSite describes where the pruned subtree currently hangs.
type pruneSite struct {
	node, parent, sibling, grand int

	fromAncestor bool
	rng          *srtree.Range
}

func (s pruneSite) random() bool {
	return !s.fromAncestor && s.rng == nil
}

// Propose implements Operator.
func (op *WilsonBalding) Propose(tree *srtree.Tree) (float64, error) {
	op.last = Move{}

	candidates := PruneCandidates(tree)
	if len(candidates) == 0 {
		return Reject, nil
	}

	site := newPruneSite(tree, candidates[op.rand.Intn(len(candidates))])

	targets := op.attachTargets(tree, site)
	if len(targets) == 0 {
		return Reject, nil
	}

	target := targets[op.rand.Intn(len(targets))]
	j := target.node

	jP := tree.Parent(j)
	if j == site.parent {
		jP = site.grand
	}

	var attachRange *srtree.Range
	if !target.leaf && jP != srtree.NoNode {
		attachRange = tree.SharedRange(jP, j)
	}

	randomAttach := !target.leaf && attachRange == nil

	newAge, newRange := op.drawHeight(tree, site, target, jP)
	oldRange := pruneInterval(tree, site)

	if site.rng != nil {
		site.rng.Remove(site.parent)
	}

	op.regraft(tree, site, target, jP, attachRange != nil)
	tree.SetHeight(site.parent, newAge)

	if attachRange != nil {
		err := attachRange.AddAfter(jP, site.parent)
		if err != nil {
			return Reject, fmt.Errorf("%w: %w", srtree.ErrInvariantViolation, err)
		}
	}

	op.last = Move{PruneBefore: len(candidates), PruneAfter: len(PruneCandidates(tree))}

	coef := 1.0
	if randomAttach {
		coef *= 2
	}

	if site.random() {
		coef *= 0.5
	}

	return math.Log(coef * float64(op.last.PruneBefore) / float64(op.last.PruneAfter) * newRange / oldRange), nil
}

func newPruneSite(tree *srtree.Tree, node int) pruneSite {
	parent := tree.Parent(node)
	sibling := tree.Sibling(node)

	site := pruneSite{
		node:         node,
		parent:       parent,
		sibling:      sibling,
		grand:        tree.Parent(parent),
		fromAncestor: tree.IsDirectAncestor(sibling),
	}

	if !site.fromAncestor {
		site.rng = tree.SharedRange(parent, sibling)
	}

	return site
}

// attachTargets enumerates every location the pruned subtree may move to, excluding the
// one it occupies.
func (op *WilsonBalding) attachTargets(tree *srtree.Tree, site pruneSite) []attachTarget {
	height := tree.Height(site.node)
	leaves := op.cfg.RemovalProbability != 1

	var out []attachTarget

	for k := range tree.NodeCount() {
		if k == site.node || tree.IsDirectAncestor(k) {
			continue
		}

		adjacent := !site.fromAncestor && (k == site.sibling || k == site.parent)
		if !adjacent {
			upper := math.Inf(1)
			if p := tree.Parent(k); p != srtree.NoNode {
				upper = tree.Height(p)
			}

			if upper > height {
				out = append(out, attachTarget{node: k})
			}
		}

		if leaves && tree.IsLeaf(k) && tree.Height(k) > height {
			out = append(out, attachTarget{node: k, leaf: true})
		}
	}

	return out
}

// drawHeight picks the new height of the pruned parent and returns it with the length of
// the interval it was drawn from (or its exponential equivalent above the root).
func (op *WilsonBalding) drawHeight(tree *srtree.Tree, site pruneSite, target attachTarget, jP int) (age, interval float64) {
	hj := tree.Height(target.node)

	switch {
	case target.leaf:
		return hj, 1
	case jP != srtree.NoNode:
		lower := math.Max(tree.Height(site.node), hj)
		interval = tree.Height(jP) - lower

		return lower + op.rand.Float64()*interval, interval
	default:
		draw := op.rand.Exponential(1)

		return hj + draw, math.Exp(draw)
	}
}

// pruneInterval is the interval the reverse move would draw the current height from.
func pruneInterval(tree *srtree.Tree, site pruneSite) float64 {
	if site.fromAncestor {
		return 1
	}

	lower := math.Max(tree.Height(site.node), tree.Height(site.sibling))

	if site.grand == srtree.NoNode {
		return math.Exp(tree.Height(site.parent) - lower)
	}

	return tree.Height(site.grand) - lower
}

// regraft rewires the pruned parent into its new location. inRange forces the target to
// keep the ancestral (left) slot.
func (op *WilsonBalding) regraft(tree *srtree.Tree, site pruneSite, target attachTarget, jP int, inRange bool) {
	i, iP, j := site.node, site.parent, target.node

	switch {
	case j == iP:
		if inRange || op.rand.Coin() {
			tree.SetChildren(iP, site.sibling, i)
		} else {
			tree.SetChildren(iP, i, site.sibling)
		}

		return
	case target.leaf && j == site.sibling:
		tree.SetChildren(iP, i, j)

		return
	}

	if site.grand != srtree.NoNode {
		tree.ReplaceChild(site.grand, iP, site.sibling)
	} else {
		tree.SetRootOnly(site.sibling)
	}

	if jP != srtree.NoNode {
		tree.ReplaceChild(jP, j, iP)
	} else {
		tree.SetRootOnly(iP)
	}

	switch {
	case inRange:
		tree.SetChildren(iP, j, i)
	case target.leaf, op.rand.Coin():
		tree.SetChildren(iP, i, j)
	default:
		tree.SetChildren(iP, j, i)
	}
}
