// Package domain provides core domain models and types.
package domain

import "time"

// SignalType classifies a planner signal
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalHold SignalType = "HOLD"
)

// Exit action labels. Strategies may emit partial-sell labels; the
// structured SellPercentage on the verdict is authoritative, the label is
// a fallback for strategies that only speak in labels.
const (
	ActionSell   = "SELL"
	ActionHold   = "HOLD"
	ActionSell25 = "SELL_25%"
	ActionSell50 = "SELL_50%"
	ActionSell75 = "SELL_75%"
)

// Position represents one holding inside a strategy group.
// A quantity of zero means the position is logically closed; it may
// linger in the list and callers must treat it as inactive.
type Position struct {
	Ticker     string    `json:"ticker"`
	Quantity   int64     `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	EntryDate  time.Time `json:"entry_date"`
	EntryScore float64   `json:"entry_score"`
	PeakPrice  *float64  `json:"peak_price,omitempty"` // highest observed close since entry
}

// Active reports whether the position still holds shares.
func (p Position) Active() bool {
	return p.Quantity > 0
}

// HoldingDays returns whole days held as of now.
func (p Position) HoldingDays(now time.Time) int {
	if p.EntryDate.IsZero() || now.Before(p.EntryDate) {
		return 0
	}
	return int(now.Sub(p.EntryDate).Hours() / 24)
}

// UnrealizedPLPct returns the unrealized profit/loss percentage at price.
func (p Position) UnrealizedPLPct(price float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	return (price - p.EntryPrice) / p.EntryPrice * 100
}

// StrategyGroup is an independently capitalized strategy ledger:
// its own cash balance plus its open positions, in acquisition order.
type StrategyGroup struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Cash          float64    `json:"cash"`
	EntryStrategy string     `json:"entry_strategy"`
	ExitStrategy  string     `json:"exit_strategy"`
	Positions     []Position `json:"positions"`
}

// HeldTickers returns the set of tickers with active positions.
func (g *StrategyGroup) HeldTickers() map[string]bool {
	held := make(map[string]bool, len(g.Positions))
	for _, pos := range g.Positions {
		if pos.Active() {
			held[pos.Ticker] = true
		}
	}
	return held
}

// Signal is one immutable planner output record. SELL/HOLD signals carry
// the position fields, BUY signals carry the sizing fields.
type Signal struct {
	RunID           string     `json:"run_id"`
	GroupID         string     `json:"group_id"`
	Ticker          string     `json:"ticker"`
	TickerName      string     `json:"ticker_name"`
	Type            SignalType `json:"signal_type"`
	Action          string     `json:"action"`
	Confidence      float64    `json:"confidence"`
	Score           float64    `json:"score"`
	Reason          string     `json:"reason"`
	StrategyName    string     `json:"strategy_name"`
	CurrentPrice    float64    `json:"current_price"`
	PositionQty     int64      `json:"position_qty,omitempty"`
	EntryPrice      float64    `json:"entry_price,omitempty"`
	EntryDate       string     `json:"entry_date,omitempty"` // ISO-8601
	HoldingDays     int        `json:"holding_days,omitempty"`
	UnrealizedPLPct float64    `json:"unrealized_pl_pct"`
	SuggestedQty    int64      `json:"suggested_qty"`
	RequiredCapital float64    `json:"required_capital"`
	Details         string     `json:"evaluation_details,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// OverlayDecision carries the portfolio-level overrides the overlay
// policy hands the planner. Nil pointer fields mean "not set".
type OverlayDecision struct {
	ForceExit       bool              `json:"force_exit"`
	ExitOverrides   map[string]string `json:"exit_overrides,omitempty"` // ticker -> reason
	PositionScale   *float64          `json:"position_scale,omitempty"`
	MaxNewPositions *int              `json:"max_new_positions,omitempty"`
	TargetExposure  *float64          `json:"target_exposure,omitempty"`
	BlockNewEntries bool              `json:"block_new_entries"`
}
