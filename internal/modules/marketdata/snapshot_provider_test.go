package marketdata

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kabuplan/kabuplan/internal/domain"
	kabutesting "github.com/kabuplan/kabuplan/internal/testing"
)

var testNow = time.Date(2024, 6, 3, 15, 30, 0, 0, time.UTC)

func newTestProvider(t *testing.T, stalenessDays int) (*SnapshotProvider, *sql.DB) {
	t.Helper()
	db, cleanup := kabutesting.NewTestDB(t, "history")
	t.Cleanup(cleanup)

	p := NewSnapshotProvider(db.Conn(), stalenessDays, zerolog.Nop())
	p.now = func() time.Time { return testNow }
	return p, db.Conn()
}

// seedPrices inserts days consecutive daily rows ending at endDate, with
// closes climbing by one per day from the base price.
func seedPrices(t *testing.T, db *sql.DB, ticker string, base float64, days int, endDate time.Time) {
	t.Helper()
	for i := 0; i < days; i++ {
		date := endDate.AddDate(0, 0, -(days - 1 - i))
		close := base + float64(i)
		_, err := db.Exec(`
			INSERT INTO daily_prices (ticker, date, open, high, low, close, volume)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, ticker, date.Unix(), close-5, close+10, close-10, close, 1000)
		require.NoError(t, err)
	}
}

func TestLatestReturnsNewestRowWithHistory(t *testing.T) {
	p, db := newTestProvider(t, 7)
	seedPrices(t, db, "7203", 2000, 30, testNow)

	_, err := db.Exec(`INSERT INTO securities (ticker, name) VALUES ('7203', 'Toyota')`)
	require.NoError(t, err)

	snap, err := p.Latest("7203")
	require.NoError(t, err)

	assert.Equal(t, "7203", snap.Ticker)
	assert.Equal(t, "Toyota", snap.Name)
	assert.Equal(t, 2029.0, snap.Close)
	require.Len(t, snap.Closes, 30)
	// Oldest first.
	assert.Equal(t, 2000.0, snap.Closes[0])
	assert.Equal(t, 2029.0, snap.Closes[29])
}

func TestLatestComputesFeatures(t *testing.T) {
	p, db := newTestProvider(t, 0)
	seedPrices(t, db, "7203", 2000, 30, testNow)

	snap, err := p.Latest("7203")
	require.NoError(t, err)

	require.NotNil(t, snap.RSI)
	// Monotonically rising closes push RSI to the top of its range.
	assert.Greater(t, *snap.RSI, 90.0)
	require.NotNil(t, snap.ATR)
	assert.Greater(t, *snap.ATR, 0.0)
	require.NotNil(t, snap.Volatility)
	assert.Greater(t, *snap.Volatility, 0.0)
}

func TestLatestShortHistorySkipsFeatures(t *testing.T) {
	p, db := newTestProvider(t, 0)
	seedPrices(t, db, "7203", 2000, 5, testNow)

	snap, err := p.Latest("7203")
	require.NoError(t, err)

	assert.Nil(t, snap.RSI)
	assert.Nil(t, snap.ATR)
	// Volatility only needs a few returns.
	assert.NotNil(t, snap.Volatility)
}

func TestLatestNoRowsIsErrNoData(t *testing.T) {
	p, _ := newTestProvider(t, 7)

	_, err := p.Latest("0000")
	assert.ErrorIs(t, err, domain.ErrNoData)
}

func TestLatestStaleDataIsErrNoData(t *testing.T) {
	p, db := newTestProvider(t, 7)
	seedPrices(t, db, "7203", 2000, 10, testNow.AddDate(0, 0, -30))

	_, err := p.Latest("7203")
	assert.ErrorIs(t, err, domain.ErrNoData)
}

func TestLatestStalenessDisabled(t *testing.T) {
	p, db := newTestProvider(t, 0)
	seedPrices(t, db, "7203", 2000, 10, testNow.AddDate(0, 0, -30))

	snap, err := p.Latest("7203")
	require.NoError(t, err)
	assert.Equal(t, 2009.0, snap.Close)
}

func TestSecurityNameFallsBackToTicker(t *testing.T) {
	p, db := newTestProvider(t, 7)
	seedPrices(t, db, "7203", 2000, 3, testNow)

	snap, err := p.Latest("7203")
	require.NoError(t, err)
	assert.Equal(t, "7203", snap.Name)
}
