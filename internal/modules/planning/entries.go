package planning

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/kabuplan/kabuplan/internal/domain"
)

// PlanEntries runs the entry phase: a greedy allocator over the verdict
// table's insertion order. Earlier candidates get first claim on the
// shared budget; every accepted buy debits the budget before the next
// candidate is sized. The exit phase's outcome is a required input: the
// projected post-exit cash and exposure are the budget it allocates from.
func (p *Planner) PlanEntries(
	group *domain.StrategyGroup,
	verdicts *domain.VerdictTable,
	outcome ExitOutcome,
	overlay domain.OverlayDecision,
) []domain.Signal {
	if verdicts == nil || verdicts.Len() == 0 {
		return nil
	}

	planningCash := group.Cash + outcome.ProjectedSellProceeds
	planningInvested := math.Max(0, outcome.InvestedValue-outcome.ProjectedSellProceeds)
	totalValue := outcome.TotalValue
	held := group.HeldTickers()

	maxPositionPct := p.cfg.MaxPositionPct
	if overlay.PositionScale != nil {
		maxPositionPct *= *overlay.PositionScale
	}

	var signals []domain.Signal
	opened := 0

	for _, ticker := range verdicts.Tickers() {
		verdict, _ := verdicts.Get(ticker)
		if verdict.Signal != domain.SignalBuy {
			continue
		}
		if held[ticker] {
			continue
		}

		// Position-count caps end the whole phase, they do not skip.
		if outcome.ProjectedPositionCount+opened >= p.cfg.MaxPositionsPerGroup {
			p.log.Debug().
				Str("group", group.ID).
				Int("projected", outcome.ProjectedPositionCount).
				Int("opened", opened).
				Msg("Position cap reached, ending entry phase")
			break
		}
		if overlay.MaxNewPositions != nil && opened >= *overlay.MaxNewPositions {
			p.log.Debug().
				Str("group", group.ID).
				Int("cap", *overlay.MaxNewPositions).
				Msg("Overlay new-position cap reached, ending entry phase")
			break
		}

		snap, err := p.market.Latest(ticker)
		if err != nil {
			if !errors.Is(err, domain.ErrNoData) {
				p.log.Warn().Err(err).Str("ticker", ticker).Msg("Snapshot resolution failed for candidate")
			}
			continue
		}

		signal := domain.Signal{
			GroupID:      group.ID,
			Ticker:       ticker,
			TickerName:   snap.Name,
			Type:         domain.SignalBuy,
			Action:       string(domain.SignalBuy),
			Confidence:   verdict.Confidence,
			Score:        verdict.Score,
			Reason:       verdict.Reason,
			StrategyName: group.EntryStrategy,
		}

		estBuyPrice := snap.Close * (1 + p.cfg.BuySlippage)
		signal.CurrentPrice = estBuyPrice

		if overlay.BlockNewEntries {
			// Emitted for visibility, sized to nothing, budget untouched.
			signal.SuggestedQty = 0
			signal.RequiredCapital = 0
			signal.Reason = annotate(verdict.Reason, "Overlay blocked new entries")
			signals = append(signals, signal)
			continue
		}

		lot := p.cfg.LotSize(ticker)
		if estBuyPrice <= 0 || lot <= 0 {
			signal.SuggestedQty = 0
			signal.RequiredCapital = 0
			signal.Reason = annotate(verdict.Reason,
				fmt.Sprintf("Cannot size order (price %.2f, lot %d)", estBuyPrice, lot))
			signals = append(signals, signal)
			continue
		}

		availableCash := planningCash
		if overlay.TargetExposure != nil {
			headroom := math.Max(0, totalValue*(*overlay.TargetExposure)-planningInvested)
			availableCash = math.Min(availableCash, headroom)
		}

		targetValue := math.Min(totalValue*maxPositionPct, availableCash)
		quantity := floorToLot(int64(targetValue/estBuyPrice), lot)
		requiredCapital := float64(quantity) * estBuyPrice

		if quantity <= 0 {
			signal.SuggestedQty = 0
			signal.RequiredCapital = 0
			signal.Reason = annotate(verdict.Reason,
				fmt.Sprintf("Budget %.0f below one lot of %d at %.2f", targetValue, lot, estBuyPrice))
			signals = append(signals, signal)
			continue
		}

		signal.SuggestedQty = quantity
		signal.RequiredCapital = requiredCapital
		signals = append(signals, signal)
		opened++

		// Sequential debit: this is what keeps candidates sharing one
		// cash pool from over-allocating.
		planningCash = math.Max(0, planningCash-requiredCapital)
		planningInvested += requiredCapital

		p.log.Debug().
			Str("group", group.ID).
			Str("ticker", ticker).
			Int64("qty", quantity).
			Float64("capital", requiredCapital).
			Float64("remaining_cash", planningCash).
			Msg("Entry accepted")
	}

	return signals
}

// annotate appends a planner note to an upstream reason.
func annotate(reason, note string) string {
	if reason == "" {
		return note
	}
	return reason + " | " + note
}

// sortedKeys returns map keys in sorted order for stable output.
func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
