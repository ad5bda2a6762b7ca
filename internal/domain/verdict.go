package domain

// EntryVerdict is one upstream BUY/HOLD/SELL verdict for a ticker under a
// given entry strategy.
type EntryVerdict struct {
	Ticker     string     `json:"ticker"`
	Signal     SignalType `json:"signal"`
	Score      float64    `json:"score"`
	Confidence float64    `json:"confidence"`
	Reason     string     `json:"reason"`
}

// VerdictTable holds entry verdicts in insertion order. Iteration order is
// a real contract for the entry allocator: earlier entries get first claim
// on the shared cash budget, so a plain map would not do.
type VerdictTable struct {
	order    []string
	byTicker map[string]EntryVerdict
}

// NewVerdictTable creates an empty verdict table.
func NewVerdictTable() *VerdictTable {
	return &VerdictTable{byTicker: make(map[string]EntryVerdict)}
}

// Append adds a verdict, keeping first-insertion order. Re-appending a
// ticker overwrites the verdict but keeps its original slot.
func (t *VerdictTable) Append(v EntryVerdict) {
	if _, exists := t.byTicker[v.Ticker]; !exists {
		t.order = append(t.order, v.Ticker)
	}
	t.byTicker[v.Ticker] = v
}

// Get returns the verdict for a ticker.
func (t *VerdictTable) Get(ticker string) (EntryVerdict, bool) {
	v, ok := t.byTicker[ticker]
	return v, ok
}

// Tickers returns tickers in insertion order.
func (t *VerdictTable) Tickers() []string {
	return t.order
}

// Len returns the number of verdicts.
func (t *VerdictTable) Len() int {
	return len(t.order)
}
