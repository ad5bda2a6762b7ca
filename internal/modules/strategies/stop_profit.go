package strategies

import (
	"fmt"

	"github.com/kabuplan/kabuplan/internal/domain"
)

// StopProfitConfig holds the stop-loss / take-profit thresholds.
type StopProfitConfig struct {
	StopLossPct   float64 // loss fraction vs entry that forces a full sell (e.g. 0.10)
	TakeProfitPct float64 // gain fraction vs entry that trims the position (e.g. 0.25)
	TrimFraction  float64 // share of the position to sell on take-profit
}

// DefaultStopProfitConfig returns the stock configuration.
func DefaultStopProfitConfig() StopProfitConfig {
	return StopProfitConfig{
		StopLossPct:   0.10,
		TakeProfitPct: 0.25,
		TrimFraction:  0.5,
	}
}

// StopProfit exits on hard stop-loss and trims on take-profit, both
// measured against the entry price.
type StopProfit struct {
	cfg StopProfitConfig
}

// NewStopProfit creates a stop-loss/take-profit strategy.
func NewStopProfit(cfg StopProfitConfig) *StopProfit {
	return &StopProfit{cfg: cfg}
}

// Name implements domain.ExitStrategy.
func (s *StopProfit) Name() string { return "stop_profit" }

// Evaluate implements domain.ExitStrategy.
func (s *StopProfit) Evaluate(pos domain.Position, snap *domain.Snapshot) (domain.ExitVerdict, error) {
	if pos.EntryPrice <= 0 {
		return domain.ExitVerdict{}, fmt.Errorf("stop profit: non-positive entry price for %s", pos.Ticker)
	}

	plFrac := (snap.Close - pos.EntryPrice) / pos.EntryPrice
	details := map[string]float64{"pl_fraction": plFrac}

	switch {
	case plFrac <= -s.cfg.StopLossPct:
		return domain.ExitVerdict{
			Action:     domain.ActionSell,
			Confidence: 0.95,
			Reasons: []string{
				fmt.Sprintf("Loss %.1f%% breaches stop loss %.1f%%", -plFrac*100, s.cfg.StopLossPct*100),
			},
			Details: details,
		}, nil

	case plFrac >= s.cfg.TakeProfitPct:
		trim := s.cfg.TrimFraction
		return domain.ExitVerdict{
			Action:     domain.ActionSell50,
			Confidence: 0.75,
			Reasons: []string{
				fmt.Sprintf("Gain %.1f%% above take profit %.1f%%, trimming", plFrac*100, s.cfg.TakeProfitPct*100),
			},
			SellPercentage: &trim,
			Details:        details,
		}, nil
	}

	return domain.ExitVerdict{
		Action:     domain.ActionHold,
		Confidence: 0.5,
		Reasons:    []string{fmt.Sprintf("P/L %.1f%% within bands", plFrac*100)},
		Details:    details,
	}, nil
}
