// Package birthdeath evaluates the fossilized birth-death density of a stratigraphic-range
// tree under budding speciation, with a single rate interval ending at the present.
package birthdeath

import (
	"fmt"
	"math"

	"github.com/Sumatoshi-tech/sranges/pkg/srtree"
)

// presentTolerance is the height below which a leaf counts as sampled at the present.
const presentTolerance = 5e-12

// ErrSampledAncestorsForbidden reports sampled ancestors in a tree evaluated with removal
// probability 1.
var ErrSampledAncestorsForbidden = fmt.Errorf("%w: sampled ancestors with removal probability 1",
	srtree.ErrInvariantViolation)

// Model is the density. It is immutable and safe for concurrent use.
type Model struct {
	params Params
	a, b   float64
}

// New validates the parameters and precomputes the solution constants.
func New(params Params) (*Model, error) {
	err := params.Validate()
	if err != nil {
		return nil, err
	}

	lambda, mu, psi := params.Birth, params.Death, params.Sampling
	diff := lambda - mu - psi
	a := math.Sqrt(diff*diff + 4*lambda*psi)
	b := ((1-2*(1-params.Rho))*lambda + mu + psi) / a

	if params.ConditionOnRoot {
		params.Origin = math.Inf(1)
	}

	return &Model{params: params, a: a, b: b}, nil
}

// Params returns the parameters the model was built with.
func (m *Model) Params() Params { return m.params }

// q is the probability density of a lineage at time t producing the observed subtree.
func (m *Model) q(t float64) float64 {
	e := math.Exp(-m.a * t)
	d := (1 + m.b) + (1-m.b)*e

	return 4 * e / (d * d)
}

func (m *Model) logQ(t float64) float64 {
	return math.Log(m.q(t))
}

// logQTilde is log q̃(t), the density for a lineage that is observed throughout a range.
func (m *Model) logQTilde(t float64) float64 {
	return 0.5 * (-(m.params.Birth+m.params.Death+m.params.Sampling)*t + m.logQ(t))
}

// p is the probability that a lineage alive at t leaves no sampled descendants.
func (m *Model) p(t float64) float64 {
	e := math.Exp(-m.a * t)
	sum := m.params.Birth + m.params.Death + m.params.Sampling

	return (sum - m.a*((1+m.b)-(1-m.b)*e)/((1+m.b)+(1-m.b)*e)) / (2 * m.params.Birth)
}

// LogDensity returns the log density of the tree. Impossible configurations, such as a root
// above the origin, yield negative infinity with a nil error.
func (m *Model) LogDensity(tree *srtree.Tree) (float64, error) {
	x0 := m.params.Origin
	x1 := tree.Height(tree.Root())

	if x0 < x1 {
		return math.Inf(-1), nil
	}

	var logP float64

	if m.params.ConditionOnRoot {
		if tree.IsFake(tree.Root()) {
			return math.Inf(-1), nil
		}

		logP = m.logQ(x1)
	} else {
		logP = m.logQ(x0)
	}

	if m.params.ConditionOnSampling {
		survive := m.p(x0)
		if survive == 1 {
			return math.Inf(-1), nil
		}

		logP -= math.Log(1 - survive)
	}

	for id := range tree.NodeCount() {
		term, err := m.nodeTerm(tree, id)
		if err != nil {
			return math.Inf(-1), err
		}

		logP += term
	}

	for _, rng := range tree.Ranges() {
		logP += m.rangeTerm(tree, rng)
	}

	return logP, nil
}

func (m *Model) nodeTerm(tree *srtree.Tree, id int) (float64, error) {
	h := tree.Height(id)
	psi := m.params.Sampling

	switch tree.Kind(id) {
	case srtree.KindDirectAncestor:
		return 0, nil
	case srtree.KindLeaf:
		if h <= presentTolerance && m.params.Rho != 0 {
			return math.Log(m.params.Rho), nil
		}

		parent := tree.Parent(id)
		lineage := m.logQ(h)

		if parent != srtree.NoNode && tree.SameRange(id, parent) {
			lineage = m.logQTilde(h)
		}

		return math.Log(psi) - lineage + math.Log(m.p(h)), nil
	case srtree.KindFake:
		if m.params.Removal == 1 {
			return 0, fmt.Errorf("%w: fake node %d", ErrSampledAncestorsForbidden, id)
		}

		term := math.Log(psi) + math.Log(1-m.params.Removal)

		if parent := tree.Parent(id); parent != srtree.NoNode && tree.SameRange(parent, tree.DirectAncestorChild(id)) {
			term += m.logQ(h) - m.logQTilde(h)
		}

		if tree.SameRange(id, tree.NonDirectAncestorChild(id)) {
			term += m.logQTilde(h) - m.logQ(h)
		}

		return term, nil
	default:
		return math.Log(m.params.Birth) + m.logQ(h), nil
	}
}

func (m *Model) rangeTerm(tree *srtree.Tree, rng *srtree.Range) float64 {
	first := rng.First()
	if first == srtree.NoNode {
		return 0
	}

	var term float64

	if m.params.IntegrateRanges && !rng.IsSingleFossil() {
		term += m.params.Sampling * (1 - m.params.Removal) * (tree.Height(first) - tree.Height(rng.Last()))
	}

	if old := ancestralRangeEnd(tree, first); old != srtree.NoNode {
		tYoung, tOld := tree.Height(first), tree.Height(old)
		ratio := math.Exp(m.logQ(tYoung) - m.logQTilde(tYoung) + m.logQTilde(tOld) - m.logQ(tOld))
		term += math.Log(1 - ratio)
	}

	return term
}

// ancestralRangeEnd follows the ancestral (left) lineage up from a range's first sample and
// returns the first fake node it reaches, which closes an older range, or NoNode.
func ancestralRangeEnd(tree *srtree.Tree, node int) int {
	if tree.IsDirectAncestor(node) {
		node = tree.Parent(node)
	}

	for {
		parent := tree.Parent(node)

		switch {
		case parent == srtree.NoNode:
			return srtree.NoNode
		case tree.IsFake(parent):
			return parent
		case tree.Left(parent) != node:
			return srtree.NoNode
		}

		node = parent
	}
}
