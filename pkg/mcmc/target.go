package mcmc

import (
	"github.com/Sumatoshi-tech/sranges/pkg/operators"
)

// Weights holds the relative proposal weights of the standard operators. A zero weight
// disables the operator.
type Weights struct {
	Swap          float64
	Jump          float64
	WilsonBalding float64
}

// StandardOperators builds the left-right swap, leaf/sampled-ancestor jump and
// Wilson-Balding operators drawing from rnd. removal is the lineage removal probability.
func StandardOperators(rnd operators.Random, w Weights, removal float64) []WeightedOperator {
	return []WeightedOperator{
		{Operator: operators.NewLeftRightSwap(rnd), Weight: w.Swap},
		{
			Operator: operators.NewLeafSampledAncestorJump(rnd, operators.JumpConfig{RemovalProbability: removal}),
			Weight:   w.Jump,
		},
		{
			Operator: operators.NewWilsonBalding(rnd, operators.WilsonBaldingConfig{RemovalProbability: removal}),
			Weight:   w.WilsonBalding,
		},
	}
}
