package domain

import (
	"errors"
	"time"
)

// ErrNoData is returned by market data providers when no usable snapshot
// exists for a ticker (missing, empty, or stale history).
var ErrNoData = errors.New("no market data available")

// Snapshot is the latest available market data row for a ticker, plus
// enough trailing history for trailing-extreme and volatility features.
type Snapshot struct {
	Ticker string
	Name   string
	Date   time.Time
	Close  float64

	// Trailing history, oldest first. May be shorter than requested when
	// a security is newly listed.
	Closes []float64
	Highs  []float64
	Lows   []float64

	// Derived features. Nil when the history is too short to compute.
	RSI        *float64
	ATR        *float64
	Volatility *float64 // annualized stddev of daily log returns
}

// MarketDataProvider resolves the most recent snapshot for a ticker.
// Implementations return ErrNoData (possibly wrapped) when a ticker has
// no usable data; the planner degrades per ticker, it never aborts.
type MarketDataProvider interface {
	Latest(ticker string) (*Snapshot, error)
}

// ExitVerdict is what an exit strategy says about one position.
type ExitVerdict struct {
	Action     string   // ActionSell, ActionHold, or a partial-sell label
	Confidence float64  // [0, 1]
	Reasons    []string // human-readable
	// SellPercentage, when set, is the authoritative sell fraction in
	// (0, 1]; the Action label is only parsed when this is nil.
	SellPercentage *float64
	Details        map[string]float64
}

// ExitStrategy evaluates whether a held position should be closed.
// The position passed in already carries the refreshed peak-price
// watermark for the snapshot being evaluated.
type ExitStrategy interface {
	Name() string
	Evaluate(pos Position, snap *Snapshot) (ExitVerdict, error)
}

// PortfolioExposure summarizes one group's capital state for the overlay.
type PortfolioExposure struct {
	GroupID       string
	Cash          float64
	InvestedValue float64
	TotalValue    float64
}

// OverlayPolicy turns current exposure into portfolio-level directives.
type OverlayPolicy interface {
	Decide(exp PortfolioExposure) OverlayDecision
}

// VerdictProvider supplies the pre-computed per-ticker entry verdicts for
// a named entry strategy, produced by the upstream evaluator.
type VerdictProvider interface {
	Verdicts(strategy string) (*VerdictTable, error)
}
