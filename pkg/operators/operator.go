// Package operators implements the topology-changing MCMC proposals on stratigraphic-range
// trees. Each proposal edits the tree in place and returns the log Hastings ratio, or Reject
// when it abandoned the move without touching the tree.
package operators

import (
	"math"

	"github.com/Sumatoshi-tech/sranges/pkg/srtree"
)

// Reject is the log Hastings ratio of an abandoned proposal.
var Reject = math.Inf(-1)

// Random is the source of randomness shared by the operators of one chain.
type Random interface {
	// Float64 returns a uniform draw from [0, 1).
	Float64() float64
	// Intn returns a uniform draw from [0, n).
	Intn(n int) int
	// Exponential returns a draw from the exponential distribution with the given rate.
	Exponential(rate float64) float64
	// Coin returns true with probability one half.
	Coin() bool
}

// Operator proposes a new state of a tree.
type Operator interface {
	Name() string
	Propose(tree *srtree.Tree) (float64, error)
}

// IsReject reports whether a log Hastings ratio marks an abandoned proposal.
func IsReject(logHR float64) bool {
	return math.IsInf(logHR, -1)
}
