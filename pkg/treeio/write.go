package treeio

import (
	"fmt"

	"github.com/Sumatoshi-tech/sranges/pkg/newick"
	"github.com/Sumatoshi-tech/sranges/pkg/srtree"
)

// WriteOption configures Write and ToNewick.
type WriteOption func(*writeOptions)

type writeOptions struct {
	translate map[string]string
	metadata  bool
	lengths   bool
}

// WithTranslation replaces tip labels by their tokens, as in a NEXUS translate block.
func WithTranslation(tokens map[string]string) WriteOption {
	return func(o *writeOptions) {
		o.translate = tokens
	}
}

// WithoutMetadata drops the orientation and range annotations.
func WithoutMetadata() WriteOption {
	return func(o *writeOptions) {
		o.metadata = false
	}
}

// WithoutLengths drops branch lengths, leaving only the labelled topology.
func WithoutLengths() WriteOption {
	return func(o *writeOptions) {
		o.lengths = false
	}
}

// Write renders the tree as annotated Newick. The tree itself is not modified: a clone has its
// ranges re-initialized and its orientation recomputed before rendering.
func Write(tree *srtree.Tree, opts ...WriteOption) (string, error) {
	root, err := ToNewick(tree, opts...)
	if err != nil {
		return "", err
	}

	return newick.Format(root), nil
}

// ToNewick converts the tree into a Newick node graph. See Write.
func ToNewick(tree *srtree.Tree, opts ...WriteOption) (*newick.Node, error) {
	wo := writeOptions{metadata: true, lengths: true}
	for _, opt := range opts {
		opt(&wo)
	}

	relogged := tree.Clone()

	err := relogged.InitializeRanges()
	if err != nil {
		return nil, fmt.Errorf("relog ranges: %w", err)
	}

	relogged.AddOrientationAnnotation()

	return toNode(relogged, relogged.Root(), wo), nil
}

// rangeTag names the multi-sample range a node belongs to, unless the node is the range's
// first occurrence. Fake nodes are tagged with the range of their sampled ancestor.
func rangeTag(tree *srtree.Tree, id int) (string, bool) {
	rng := tree.RangeOf(id)
	if rng == nil || rng.IsSingleFossil() || tree.Canonical(id) == rng.First() {
		return "", false
	}

	return rng.Name(), true
}

func toNode(tree *srtree.Tree, id int, wo writeOptions) *newick.Node {
	node := &newick.Node{}

	if tree.IsLeaf(id) {
		node.Label = tree.Label(id)
		if token, ok := wo.translate[node.Label]; ok {
			node.Label = token
		}
	} else {
		node.Children = []*newick.Node{
			toNode(tree, tree.Left(id), wo),
			toNode(tree, tree.Right(id), wo),
		}
	}

	if wo.metadata {
		if o := tree.OrientationOf(id); o != srtree.OrientationUnknown {
			node.SetAnnotation(KeyOrientation, o.String())
		}

		if name, ok := rangeTag(tree, id); ok {
			node.SetAnnotation(KeyRange, name)
		}
	}

	if wo.lengths && !tree.IsRoot(id) {
		node.Length = tree.Height(tree.Parent(id)) - tree.Height(id)
		node.HasLength = true
	}

	return node
}
