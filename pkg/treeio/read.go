// Package treeio converts between stratigraphic-range trees and annotated Newick text, and
// reads and writes NEXUS tree logs.
package treeio

import (
	"fmt"
	"math"

	"github.com/Sumatoshi-tech/sranges/pkg/newick"
	"github.com/Sumatoshi-tech/sranges/pkg/srtree"
)

// Annotation keys written and read on nodes.
const (
	KeyOrientation = "orientation"
	KeyRange       = "range"
)

// zeroHeight is the height below which accumulated branch-length rounding is snapped to 0.
const zeroHeight = 1e-10

// Read parses a Newick tree into a Tree. Heights are measured back from the deepest tip.
// When any node carries an orientation tag the children are reordered before ranges are
// initialized.
func Read(text string, opts ...srtree.Option) (*srtree.Tree, error) {
	return ReadTranslated(text, nil, opts...)
}

// ReadTranslated is Read for text whose tip labels are keys of a NEXUS translate table.
func ReadTranslated(text string, translate map[string]string, opts ...srtree.Option) (*srtree.Tree, error) {
	root, err := newick.Parse(text)
	if err != nil {
		return nil, err
	}

	return FromNewick(root, translate, opts...)
}

// FromNewick converts a parsed tree.
func FromNewick(root *newick.Node, translate map[string]string, opts ...srtree.Option) (*srtree.Tree, error) {
	conv := &converter{translate: translate}
	conv.number(root)

	specs := make([]srtree.NodeSpec, conv.leaves+conv.internals)
	tags := make([]srtree.Orientation, len(specs))
	depths := make([]float64, len(specs))

	maxDepth, tagged, err := conv.fill(root, 0, specs, tags, depths)
	if err != nil {
		return nil, err
	}

	for id := range specs {
		height := maxDepth - depths[id]
		if math.Abs(height) < zeroHeight {
			height = 0
		}

		specs[id].Height = height
	}

	if tagged {
		opts = append([]srtree.Option{srtree.WithOrientation(tags)}, opts...)
	}

	return srtree.Build(specs, opts...)
}

type converter struct {
	translate map[string]string
	ids       map[*newick.Node]int
	leaves    int
	internals int
}

// number assigns leaf ids in preorder and internal ids after all leaves, in postorder.
func (c *converter) number(root *newick.Node) {
	c.ids = make(map[*newick.Node]int)

	root.Walk(func(n *newick.Node) {
		if n.IsLeaf() {
			c.ids[n] = c.leaves
			c.leaves++
		} else {
			c.internals++
		}
	})

	next := c.leaves

	var post func(*newick.Node)

	post = func(n *newick.Node) {
		for _, child := range n.Children {
			post(child)
		}

		if !n.IsLeaf() {
			c.ids[n] = next
			next++
		}
	}

	post(root)
}

func (c *converter) fill(n *newick.Node, depth float64, specs []srtree.NodeSpec, tags []srtree.Orientation, depths []float64) (float64, bool, error) {
	id := c.ids[n]
	depths[id] = depth

	tagged := false

	if v, ok := n.Annotation(KeyOrientation); ok {
		tags[id] = srtree.ParseOrientation(v)
		tagged = true
	}

	if n.IsLeaf() {
		label := n.Label
		if mapped, ok := c.translate[label]; ok {
			label = mapped
		}

		specs[id].Label = label

		return depth, tagged, nil
	}

	if len(n.Children) != 2 {
		return 0, false, fmt.Errorf("%w: node %q has %d children", srtree.ErrMalformedTree, n.Label, len(n.Children))
	}

	maxDepth := depth

	for _, child := range n.Children {
		specs[id].Children = append(specs[id].Children, c.ids[child])

		length := 0.0
		if child.HasLength {
			length = child.Length
		}

		childMax, childTagged, err := c.fill(child, depth+length, specs, tags, depths)
		if err != nil {
			return 0, false, err
		}

		maxDepth = math.Max(maxDepth, childMax)
		tagged = tagged || childTagged
	}

	return maxDepth, tagged, nil
}
