// Package checkpoint saves and restores MCMC chain state so an interrupted run can resume.
package checkpoint

import "github.com/Sumatoshi-tech/sranges/pkg/srtree"

// ChainState is the resumable state of one chain.
type ChainState struct {
	Iteration  int64            `json:"iteration"`
	LogDensity float64          `json:"log_density"`
	Proposed   map[string]int64 `json:"proposed"`
	Accepted   map[string]int64 `json:"accepted"`
	Tree       srtree.State     `json:"tree"`
}

// Metadata holds checkpoint metadata for validation and resume.
type Metadata struct {
	Version   int    `json:"version"`
	LabelHash string `json:"label_hash"`
	CreatedAt string `json:"created_at"`
	Chains    int    `json:"chains"`
	Seed      int64  `json:"seed"`
	Format    string `json:"format"`
}
