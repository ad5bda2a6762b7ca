package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerdictTableKeepsInsertionOrder(t *testing.T) {
	table := NewVerdictTable()
	table.Append(EntryVerdict{Ticker: "9984", Signal: SignalBuy})
	table.Append(EntryVerdict{Ticker: "7203", Signal: SignalBuy})
	table.Append(EntryVerdict{Ticker: "6758", Signal: SignalHold})

	assert.Equal(t, []string{"9984", "7203", "6758"}, table.Tickers())
	assert.Equal(t, 3, table.Len())
}

func TestVerdictTableReappendKeepsSlot(t *testing.T) {
	table := NewVerdictTable()
	table.Append(EntryVerdict{Ticker: "9984", Signal: SignalBuy, Score: 0.5})
	table.Append(EntryVerdict{Ticker: "7203", Signal: SignalBuy})
	table.Append(EntryVerdict{Ticker: "9984", Signal: SignalHold, Score: 0.9})

	assert.Equal(t, []string{"9984", "7203"}, table.Tickers())

	v, ok := table.Get("9984")
	assert.True(t, ok)
	assert.Equal(t, SignalHold, v.Signal)
	assert.Equal(t, 0.9, v.Score)
}

func TestVerdictTableGetMissing(t *testing.T) {
	table := NewVerdictTable()
	_, ok := table.Get("7203")
	assert.False(t, ok)
}
