package strategies

import (
	"fmt"

	"github.com/kabuplan/kabuplan/internal/domain"
)

// TrailingStopConfig holds the drawdown thresholds for the trailing stop.
type TrailingStopConfig struct {
	// PartialDrawdown triggers a half sell when the close has fallen this
	// far from the peak watermark (e.g. 0.08 = 8%).
	PartialDrawdown float64
	// FullDrawdown triggers a full sell.
	FullDrawdown float64
}

// DefaultTrailingStopConfig returns the stock configuration.
func DefaultTrailingStopConfig() TrailingStopConfig {
	return TrailingStopConfig{
		PartialDrawdown: 0.08,
		FullDrawdown:    0.15,
	}
}

// TrailingStop sells into drawdowns from the peak-price watermark.
// It relies on the watermark the planner maintains on the position.
type TrailingStop struct {
	cfg TrailingStopConfig
}

// NewTrailingStop creates a trailing stop strategy.
func NewTrailingStop(cfg TrailingStopConfig) *TrailingStop {
	return &TrailingStop{cfg: cfg}
}

// Name implements domain.ExitStrategy.
func (s *TrailingStop) Name() string { return "trailing_stop" }

// Evaluate implements domain.ExitStrategy.
func (s *TrailingStop) Evaluate(pos domain.Position, snap *domain.Snapshot) (domain.ExitVerdict, error) {
	peak := pos.EntryPrice
	if pos.PeakPrice != nil && *pos.PeakPrice > peak {
		peak = *pos.PeakPrice
	}
	if peak <= 0 {
		return domain.ExitVerdict{}, fmt.Errorf("trailing stop: non-positive peak for %s", pos.Ticker)
	}

	drawdown := (peak - snap.Close) / peak

	details := map[string]float64{
		"peak_price": peak,
		"drawdown":   drawdown,
	}
	if snap.RSI != nil {
		details["rsi"] = *snap.RSI
	}

	switch {
	case drawdown >= s.cfg.FullDrawdown:
		return domain.ExitVerdict{
			Action:     domain.ActionSell,
			Confidence: 0.9,
			Reasons: []string{
				fmt.Sprintf("Drawdown %.1f%% from peak %.2f exceeds full stop %.1f%%",
					drawdown*100, peak, s.cfg.FullDrawdown*100),
			},
			Details: details,
		}, nil

	case drawdown >= s.cfg.PartialDrawdown:
		half := 0.5
		return domain.ExitVerdict{
			Action:     domain.ActionSell50,
			Confidence: 0.7,
			Reasons: []string{
				fmt.Sprintf("Drawdown %.1f%% from peak %.2f exceeds partial stop %.1f%%",
					drawdown*100, peak, s.cfg.PartialDrawdown*100),
			},
			SellPercentage: &half,
			Details:        details,
		}, nil
	}

	return domain.ExitVerdict{
		Action:     domain.ActionHold,
		Confidence: 0.6,
		Reasons: []string{
			fmt.Sprintf("Drawdown %.1f%% within tolerance", drawdown*100),
		},
		Details: details,
	}, nil
}
