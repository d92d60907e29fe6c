package mcmc

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// RunChains runs the chains concurrently. The first failure cancels the others and is
// returned.
func RunChains(ctx context.Context, chains []*Chain) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, chain := range chains {
		g.Go(func() error {
			err := chain.Run(gctx)
			if err != nil {
				return fmt.Errorf("chain %d: %w", chain.ID(), err)
			}

			return nil
		})
	}

	return g.Wait()
}

// ChainSeed derives the seed of chain i from the run seed.
func ChainSeed(seed int64, chain int) int64 {
	return seed + int64(chain)<<32
}
