// Package overlay provides the portfolio-level policy layer that can
// override, scale, or block planner decisions.
package overlay

import (
	"github.com/rs/zerolog"

	"github.com/kabuplan/kabuplan/internal/domain"
)

// ThresholdPolicy derives an OverlayDecision from exposure thresholds:
// sizing shrinks linearly once exposure passes ScaleStartAt, new entries
// stop above BlockEntriesAbove, and everything is liquidated above
// ForceExitAbove (0 disables the force exit).
type ThresholdPolicy struct {
	blockEntriesAbove float64
	scaleStartAt      float64
	forceExitAbove    float64
	log               zerolog.Logger
}

// NewThresholdPolicy creates a threshold overlay policy.
func NewThresholdPolicy(blockEntriesAbove, scaleStartAt, forceExitAbove float64, log zerolog.Logger) *ThresholdPolicy {
	return &ThresholdPolicy{
		blockEntriesAbove: blockEntriesAbove,
		scaleStartAt:      scaleStartAt,
		forceExitAbove:    forceExitAbove,
		log:               log.With().Str("component", "overlay").Logger(),
	}
}

// Decide implements domain.OverlayPolicy.
func (p *ThresholdPolicy) Decide(exp domain.PortfolioExposure) domain.OverlayDecision {
	decision := domain.OverlayDecision{}

	if exp.TotalValue <= 0 {
		return decision
	}
	exposure := exp.InvestedValue / exp.TotalValue

	if p.forceExitAbove > 0 && exposure > p.forceExitAbove {
		decision.ForceExit = true
		p.log.Warn().
			Str("group", exp.GroupID).
			Float64("exposure", exposure).
			Float64("limit", p.forceExitAbove).
			Msg("Exposure above hard cap, forcing liquidation")
		return decision
	}

	if exposure > p.blockEntriesAbove {
		decision.BlockNewEntries = true
	}

	if exposure > p.scaleStartAt && p.blockEntriesAbove > p.scaleStartAt {
		// Linear ramp from 1.0 at the scale start down to 0 at the block
		// ceiling.
		scale := 1 - (exposure-p.scaleStartAt)/(p.blockEntriesAbove-p.scaleStartAt)
		if scale < 0 {
			scale = 0
		}
		decision.PositionScale = &scale
	}

	return decision
}

// NoopPolicy returns an empty decision; the planner runs unconstrained.
type NoopPolicy struct{}

// Decide implements domain.OverlayPolicy.
func (NoopPolicy) Decide(domain.PortfolioExposure) domain.OverlayDecision {
	return domain.OverlayDecision{}
}
