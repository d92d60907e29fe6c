// Package rng provides the seedable random source shared by the operators of one chain.
package rng

import (
	"math/rand"

	"github.com/seehuhn/mt19937"
)

// Source is a Mersenne Twister stream. It is not safe for concurrent use; give each chain
// its own Source.
type Source struct {
	mt   *mt19937.MT19937
	rand *rand.Rand
}

// New returns a Source seeded with seed.
func New(seed int64) *Source {
	mt := mt19937.New()
	mt.Seed(seed)

	return &Source{mt: mt, rand: rand.New(mt)}
}

// Reseed restarts the stream from seed.
func (s *Source) Reseed(seed int64) {
	s.mt.Seed(seed)
}

// Float64 returns a uniform draw from [0, 1).
func (s *Source) Float64() float64 {
	return s.rand.Float64()
}

// Intn returns a uniform draw from [0, n). It panics if n <= 0.
func (s *Source) Intn(n int) int {
	return s.rand.Intn(n)
}

// Exponential returns a draw from the exponential distribution with the given rate.
func (s *Source) Exponential(rate float64) float64 {
	return s.rand.ExpFloat64() / rate
}

// Coin returns true with probability one half.
func (s *Source) Coin() bool {
	return s.rand.Int63()&1 == 1
}
