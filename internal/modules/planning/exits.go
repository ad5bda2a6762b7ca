package planning

import (
	"fmt"
	"strings"

	"github.com/kabuplan/kabuplan/internal/domain"
)

// ExitOutcome is the exit phase's hand-off to the entry phase: the
// signals it emitted plus the capital state projected after the planned
// sells. Entry planning must not start before this exists.
type ExitOutcome struct {
	Signals []domain.Signal

	// ProjectedSellProceeds is the estimated cash generated by all
	// planned sells, at the slippage-discounted sell price.
	ProjectedSellProceeds float64

	// ProjectedPositionCount is the number of positions expected to
	// remain open after the planned sells execute.
	ProjectedPositionCount int

	// TotalValue and InvestedValue are the pre-exit group valuations
	// (positions without a resolvable price fall back to entry price).
	TotalValue    float64
	InvestedValue float64

	// PeakUpdates are the watermark changes observed during evaluation,
	// ticker -> new peak. Already applied to the in-memory group; the
	// caller persists them after the signal archive is durable.
	PeakUpdates map[string]float64
}

// PlanExits runs the exit phase for one group. Positions are evaluated
// strictly in list order. A position whose snapshot is missing, or whose
// strategy evaluation fails, is skipped for this run; nothing aborts the
// group.
func (p *Planner) PlanExits(
	group *domain.StrategyGroup,
	exitStrategy domain.ExitStrategy,
	snaps map[string]*domain.Snapshot,
	overlay domain.OverlayDecision,
) ExitOutcome {
	outcome := ExitOutcome{PeakUpdates: make(map[string]float64)}

	outcome.InvestedValue = investedValue(group, snaps)
	outcome.TotalValue = group.Cash + outcome.InvestedValue
	for _, pos := range group.Positions {
		if pos.Active() {
			outcome.ProjectedPositionCount++
		}
	}

	for i := range group.Positions {
		pos := &group.Positions[i]
		if !pos.Active() {
			continue
		}

		snap, ok := snaps[pos.Ticker]
		if !ok {
			p.log.Warn().
				Str("group", group.ID).
				Str("ticker", pos.Ticker).
				Msg("No snapshot for held position, skipping this cycle")
			continue
		}

		signal, sold := p.evaluatePosition(group, pos, snap, exitStrategy, overlay, &outcome)
		if signal == nil {
			continue
		}
		outcome.Signals = append(outcome.Signals, *signal)

		if sold {
			estSellPrice := snap.Close * (1 - p.cfg.SellSlippage)
			outcome.ProjectedSellProceeds += float64(signal.SuggestedQty) * estSellPrice
			if signal.SuggestedQty >= pos.Quantity {
				outcome.ProjectedPositionCount--
			}
		}
	}

	return outcome
}

// evaluatePosition produces the signal for one position, or nil when the
// position is skipped. The bool reports whether the signal plans a sell.
// Overlay directives are checked in fixed precedence: force exit, then a
// per-ticker override, then the exit strategy.
func (p *Planner) evaluatePosition(
	group *domain.StrategyGroup,
	pos *domain.Position,
	snap *domain.Snapshot,
	exitStrategy domain.ExitStrategy,
	overlay domain.OverlayDecision,
	outcome *ExitOutcome,
) (*domain.Signal, bool) {
	base := domain.Signal{
		GroupID:         group.ID,
		Ticker:          pos.Ticker,
		TickerName:      snap.Name,
		CurrentPrice:    snap.Close,
		PositionQty:     pos.Quantity,
		EntryPrice:      pos.EntryPrice,
		EntryDate:       pos.EntryDate.Format("2006-01-02"),
		HoldingDays:     pos.HoldingDays(p.now()),
		UnrealizedPLPct: pos.UnrealizedPLPct(snap.Close),
	}

	if overlay.ForceExit {
		base.Type = domain.SignalSell
		base.Action = domain.ActionSell
		base.Confidence = 1.0
		base.Reason = "Overlay force exit"
		base.StrategyName = "overlay"
		base.SuggestedQty = sellQuantity(pos.Quantity, 1.0, p.cfg.LotSize(pos.Ticker))
		return &base, true
	}

	if reason, ok := overlay.ExitOverrides[pos.Ticker]; ok {
		base.Type = domain.SignalSell
		base.Action = domain.ActionSell
		base.Confidence = 1.0
		base.Reason = reason
		base.StrategyName = "overlay"
		base.SuggestedQty = sellQuantity(pos.Quantity, 1.0, p.cfg.LotSize(pos.Ticker))
		return &base, true
	}

	// Watermark update happens on observation, before the strategy runs,
	// so the strategy sees the refreshed peak. The change is applied to
	// the in-memory position and recorded for later persistence.
	if pos.PeakPrice == nil || snap.Close > *pos.PeakPrice {
		peak := snap.Close
		pos.PeakPrice = &peak
		outcome.PeakUpdates[pos.Ticker] = peak
	}

	verdict, err := safeEvaluate(exitStrategy, *pos, snap)
	if err != nil {
		p.log.Warn().
			Err(err).
			Str("group", group.ID).
			Str("ticker", pos.Ticker).
			Str("strategy", exitStrategy.Name()).
			Msg("Exit strategy failed, skipping position this cycle")
		return nil, false
	}

	base.Action = verdict.Action
	base.Confidence = verdict.Confidence
	base.Reason = strings.Join(verdict.Reasons, "; ")
	base.StrategyName = exitStrategy.Name()
	base.Details = formatDetails(verdict.Details)

	if verdict.Action == domain.ActionHold {
		// Informational record for reporting; not a planned trade.
		base.Type = domain.SignalHold
		return &base, false
	}

	// Anything that is not HOLD plans a sell; the original label is kept
	// as the action.
	base.Type = domain.SignalSell
	fraction := sellFraction(verdict.Action, verdict.SellPercentage)
	base.SuggestedQty = sellQuantity(pos.Quantity, fraction, p.cfg.LotSize(pos.Ticker))
	return &base, true
}

// safeEvaluate shields the planner from panicking strategy plugins.
func safeEvaluate(s domain.ExitStrategy, pos domain.Position, snap *domain.Snapshot) (verdict domain.ExitVerdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("exit strategy %s panicked: %v", s.Name(), r)
		}
	}()
	return s.Evaluate(pos, snap)
}

// investedValue sums position values, falling back to the entry price for
// tickers without a resolvable snapshot.
func investedValue(group *domain.StrategyGroup, snaps map[string]*domain.Snapshot) float64 {
	total := 0.0
	for _, pos := range group.Positions {
		if !pos.Active() {
			continue
		}
		price := pos.EntryPrice
		if snap, ok := snaps[pos.Ticker]; ok {
			price = snap.Close
		}
		total += float64(pos.Quantity) * price
	}
	return total
}

// formatDetails flattens strategy details into a compact "k=v" string.
func formatDetails(details map[string]float64) string {
	if len(details) == 0 {
		return ""
	}
	parts := make([]string, 0, len(details))
	for _, key := range sortedKeys(details) {
		parts = append(parts, fmt.Sprintf("%s=%.4f", key, details[key]))
	}
	return strings.Join(parts, " ")
}
