package srtree

import "fmt"

// Validate checks the structural invariants of the current state: consistent links, exactly
// two children per internal node, monotone heights, fake nodes carrying their sampled ancestor
// on the right, and canonical, height-ordered ranges with no shared entries.
func (t *Tree) Validate() error {
	ar := t.cur

	if ar.root == NoNode || ar.parent[ar.root] != NoNode {
		return fmt.Errorf("%w: root %d has a parent", ErrInvariantViolation, ar.root)
	}

	for id := range ar.size() {
		nodeErr := t.validateNode(id)
		if nodeErr != nil {
			return nodeErr
		}
	}

	if visited := t.countReachable(); visited != ar.size() {
		return fmt.Errorf("%w: %d of %d nodes reachable from the root", ErrInvariantViolation, visited, ar.size())
	}

	return t.validateRanges()
}

func (t *Tree) validateNode(id int) error {
	ar := t.cur
	left, right := ar.left[id], ar.right[id]

	if id != ar.root && ar.parent[id] == NoNode {
		return fmt.Errorf("%w: node %d is detached", ErrInvariantViolation, id)
	}

	if (left == NoNode) != (right == NoNode) {
		return fmt.Errorf("%w: node %d has one child", ErrInvariantViolation, id)
	}

	if left == NoNode {
		if id >= t.leafCount {
			return fmt.Errorf("%w: internal node %d has no children", ErrInvariantViolation, id)
		}

		return nil
	}

	if id < t.leafCount {
		return fmt.Errorf("%w: leaf %d has children", ErrInvariantViolation, id)
	}

	for _, child := range [2]int{left, right} {
		if ar.parent[child] != id {
			return fmt.Errorf("%w: child %d of node %d points at parent %d", ErrInvariantViolation, child, id, ar.parent[child])
		}

		if ar.height[child] > ar.height[id] {
			return fmt.Errorf("%w: child %d (height %g) is above parent %d (height %g)",
				ErrInvariantViolation, child, ar.height[child], id, ar.height[id])
		}
	}

	leftDA, rightDA := t.IsDirectAncestor(left), t.IsDirectAncestor(right)

	switch {
	case leftDA && rightDA:
		return fmt.Errorf("%w: node %d has two sampled-ancestor children", ErrInvariantViolation, id)
	case leftDA:
		return fmt.Errorf("%w: fake node %d carries its sampled ancestor on the left", ErrInvariantViolation, id)
	}

	return nil
}

func (t *Tree) validateRanges() error {
	owner := make(map[int]string)

	for _, rng := range t.ranges {
		if rng.single && len(rng.ids) != 1 {
			return fmt.Errorf("%w: single-fossil range %q has %d entries", ErrInvariantViolation, rng.name, len(rng.ids))
		}

		if len(rng.ids) > 1 && !t.IsDirectAncestor(rng.ids[0]) {
			return fmt.Errorf("%w: range %q starts at node %d which is not a sampled ancestor",
				ErrInvariantViolation, rng.name, rng.ids[0])
		}

		for pos, id := range rng.ids {
			if t.IsFake(id) {
				return fmt.Errorf("%w: range %q stores fake node %d", ErrInvariantViolation, rng.name, id)
			}

			if other, dup := owner[id]; dup {
				return fmt.Errorf("%w: node %d is in ranges %q and %q", ErrInvariantViolation, id, other, rng.name)
			}

			owner[id] = rng.name

			if pos > 0 && t.cur.height[id] >= t.cur.height[rng.ids[pos-1]] {
				return fmt.Errorf("%w: range %q is not ordered by height at entry %d", ErrInvariantViolation, rng.name, pos)
			}
		}
	}

	return nil
}
