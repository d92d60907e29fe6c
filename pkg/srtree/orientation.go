package srtree

// AddOrientationAnnotation tags every node as ancestor or descendant from the current child
// order. The root is an ancestor, children of a fake node inherit its tag, and at any other
// node the left child is the ancestor and the right child the descendant.
func (t *Tree) AddOrientationAnnotation() {
	clear(t.orientation)

	root := t.cur.root
	t.orientation[root] = OrientationAncestor

	stack := []int{root}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if t.IsLeaf(id) {
			continue
		}

		left, right := t.cur.left[id], t.cur.right[id]

		if t.IsFake(id) {
			t.orientation[left] = t.orientation[id]
			t.orientation[right] = t.orientation[id]
		} else {
			t.orientation[left] = OrientationAncestor
			t.orientation[right] = OrientationDescendant
		}

		stack = append(stack, right, left)
	}
}

// OrientationOf returns the annotation tag of a node.
func (t *Tree) OrientationOf(id int) Orientation {
	return t.orientation[id]
}

// SetOrientation overwrites the annotation tag of a node.
func (t *Tree) SetOrientation(id int, o Orientation) {
	t.orientation[id] = o
}

// Orientate repairs child order from the annotation tags. A fake node gets its sampled
// ancestor on the right; any other node gets its ancestor-tagged child on the left.
// Untagged subtrees keep their order.
func (t *Tree) Orientate() {
	stack := []int{t.cur.root}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if t.IsLeaf(id) {
			continue
		}

		left, right := t.cur.left[id], t.cur.right[id]

		if t.IsFake(id) {
			if t.cur.height[right] != t.cur.height[id] {
				t.SwapChildren(id)
			}
		} else if t.orientation[left] == OrientationDescendant ||
			(t.orientation[left] == OrientationUnknown && t.orientation[right] == OrientationAncestor) {
			t.SwapChildren(id)
		}

		stack = append(stack, t.cur.left[id], t.cur.right[id])
	}
}
