package stats_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/sranges/pkg/stats"
)

func TestEMA(t *testing.T) {
	t.Parallel()

	ema := stats.NewEMA(0.3)
	assert.False(t, ema.Initialized())
	assert.Zero(t, ema.Value())

	assert.InDelta(t, 10.0, ema.Update(10), tolerance)
	assert.True(t, ema.Initialized())

	// 0.3*20 + 0.7*10.
	assert.InDelta(t, 13.0, ema.Update(20), tolerance)
	assert.InDelta(t, 13.0, ema.Value(), tolerance)
}

func TestEMA_AlphaOneTracksExactly(t *testing.T) {
	t.Parallel()

	ema := stats.NewEMA(1)
	ema.Update(10)

	assert.InDelta(t, 42.0, ema.Update(42), tolerance)
}
