package srtree

// Kind is the structural role of a node, derived from heights and links.
type Kind uint8

// Node kinds.
const (
	// KindLeaf is a tip that is not a sampled ancestor.
	KindLeaf Kind = iota
	// KindBifurcation is an internal node with no direct-ancestor child.
	KindBifurcation
	// KindDirectAncestor is a tip on a zero-length branch: a sampled ancestor.
	KindDirectAncestor
	// KindFake is an internal node with exactly one direct-ancestor child.
	KindFake
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindBifurcation:
		return "bifurcation"
	case KindDirectAncestor:
		return "direct-ancestor"
	case KindFake:
		return "fake"
	default:
		return "unknown"
	}
}

// Orientation tags a node as continuing the ancestral lineage or starting a descendant one.
type Orientation uint8

// Orientation values.
const (
	OrientationUnknown Orientation = iota
	OrientationAncestor
	OrientationDescendant
)

// Orientation tag values as they appear in annotations.
const (
	orientationAncestorTag   = "ancestor"
	orientationDescendantTag = "descendant"
)

// String returns the annotation value of the orientation, or "" when unknown.
func (o Orientation) String() string {
	switch o {
	case OrientationAncestor:
		return orientationAncestorTag
	case OrientationDescendant:
		return orientationDescendantTag
	default:
		return ""
	}
}

// ParseOrientation maps an annotation value back to an Orientation.
func ParseOrientation(s string) Orientation {
	switch s {
	case orientationAncestorTag:
		return OrientationAncestor
	case orientationDescendantTag:
		return OrientationDescendant
	default:
		return OrientationUnknown
	}
}
