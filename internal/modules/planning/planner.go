package planning

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/kabuplan/kabuplan/internal/config"
	"github.com/kabuplan/kabuplan/internal/domain"
)

// Planner plans one group at a time: resolve prices, run the exit phase,
// then allocate entries from the projected post-exit budget. It is
// single-threaded within a group because later steps read state mutated
// by earlier ones (the cash budget, the watermark, the position count).
type Planner struct {
	market domain.MarketDataProvider
	cfg    config.PlannerConfig
	now    func() time.Time // injectable for tests
	log    zerolog.Logger
}

// NewPlanner creates a planner.
func NewPlanner(market domain.MarketDataProvider, cfg config.PlannerConfig, log zerolog.Logger) *Planner {
	return &Planner{
		market: market,
		cfg:    cfg,
		now:    time.Now,
		log:    log.With().Str("component", "planner").Logger(),
	}
}

// GroupPlan is the planner's output for one group.
type GroupPlan struct {
	Signals []domain.Signal
	// PeakUpdates are watermark changes to persist once the run's
	// signals are durable, ticker -> new peak.
	PeakUpdates map[string]float64
}

// PlanGroup runs the full two-phase pipeline for one group. The overlay
// decision is derived from the group's pre-exit exposure. The group's
// in-memory positions may have refreshed peak-price watermarks on
// return; cash and quantities are never touched.
func (p *Planner) PlanGroup(
	group *domain.StrategyGroup,
	exitStrategy domain.ExitStrategy,
	verdicts *domain.VerdictTable,
	policy domain.OverlayPolicy,
) GroupPlan {
	snaps := p.resolveSnapshots(group)

	invested := investedValue(group, snaps)
	overlay := domain.OverlayDecision{}
	if policy != nil {
		overlay = policy.Decide(domain.PortfolioExposure{
			GroupID:       group.ID,
			Cash:          group.Cash,
			InvestedValue: invested,
			TotalValue:    group.Cash + invested,
		})
	}

	outcome := p.PlanExits(group, exitStrategy, snaps, overlay)
	entries := p.PlanEntries(group, verdicts, outcome, overlay)

	signals := make([]domain.Signal, 0, len(outcome.Signals)+len(entries))
	signals = append(signals, outcome.Signals...)
	signals = append(signals, entries...)

	p.log.Info().
		Str("group", group.ID).
		Int("exit_signals", len(outcome.Signals)).
		Int("entry_signals", len(entries)).
		Float64("projected_proceeds", outcome.ProjectedSellProceeds).
		Int("projected_positions", outcome.ProjectedPositionCount).
		Msg("Group planned")

	return GroupPlan{Signals: signals, PeakUpdates: outcome.PeakUpdates}
}

// resolveSnapshots fetches the latest snapshot for every held ticker.
// Tickers that fail to resolve are left out of the map; valuation falls
// back to the entry price and the exit phase skips them.
func (p *Planner) resolveSnapshots(group *domain.StrategyGroup) map[string]*domain.Snapshot {
	snaps := make(map[string]*domain.Snapshot)
	for _, pos := range group.Positions {
		if !pos.Active() {
			continue
		}
		if _, done := snaps[pos.Ticker]; done {
			continue
		}
		snap, err := p.market.Latest(pos.Ticker)
		if err != nil {
			level := zerolog.WarnLevel
			if errors.Is(err, domain.ErrNoData) {
				level = zerolog.DebugLevel
			}
			p.log.WithLevel(level).
				Err(err).
				Str("group", group.ID).
				Str("ticker", pos.Ticker).
				Msg("Snapshot resolution failed")
			continue
		}
		snaps[pos.Ticker] = snap
	}
	return snaps
}
