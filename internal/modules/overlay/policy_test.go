package overlay

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kabuplan/kabuplan/internal/domain"
)

func exposure(cash, invested float64) domain.PortfolioExposure {
	return domain.PortfolioExposure{
		GroupID:       "g1",
		Cash:          cash,
		InvestedValue: invested,
		TotalValue:    cash + invested,
	}
}

func TestThresholdPolicyDecide(t *testing.T) {
	p := NewThresholdPolicy(0.95, 0.80, 0.99, zerolog.Nop())

	t.Run("low exposure unconstrained", func(t *testing.T) {
		d := p.Decide(exposure(500_000, 500_000))
		assert.False(t, d.ForceExit)
		assert.False(t, d.BlockNewEntries)
		assert.Nil(t, d.PositionScale)
	})

	t.Run("scaling starts above ramp threshold", func(t *testing.T) {
		// 87.5% exposure, halfway between 0.80 and 0.95.
		d := p.Decide(exposure(125_000, 875_000))
		assert.False(t, d.BlockNewEntries)
		require.NotNil(t, d.PositionScale)
		assert.InDelta(t, 0.5, *d.PositionScale, 1e-9)
	})

	t.Run("entries blocked above ceiling", func(t *testing.T) {
		d := p.Decide(exposure(40_000, 960_000))
		assert.True(t, d.BlockNewEntries)
		require.NotNil(t, d.PositionScale)
		assert.LessOrEqual(t, *d.PositionScale, 0.1)
	})

	t.Run("force exit above hard cap", func(t *testing.T) {
		d := p.Decide(exposure(5_000, 995_000))
		assert.True(t, d.ForceExit)
		// Force exit short-circuits the rest.
		assert.False(t, d.BlockNewEntries)
		assert.Nil(t, d.PositionScale)
	})

	t.Run("empty group", func(t *testing.T) {
		d := p.Decide(exposure(0, 0))
		assert.Equal(t, domain.OverlayDecision{}, d)
	})
}

func TestThresholdPolicyForceExitDisabledAtZero(t *testing.T) {
	p := NewThresholdPolicy(0.95, 0.80, 0, zerolog.Nop())

	d := p.Decide(exposure(0, 1_000_000))
	assert.False(t, d.ForceExit)
	assert.True(t, d.BlockNewEntries)
}

func TestNoopPolicy(t *testing.T) {
	d := NoopPolicy{}.Decide(exposure(100, 900))
	assert.Equal(t, domain.OverlayDecision{}, d)
}
