// Package marketdata resolves latest-price snapshots from the history database.
package marketdata

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/markcheno/go-talib"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/kabuplan/kabuplan/internal/domain"
)

const (
	// historyWindow is how many trailing rows a snapshot carries.
	historyWindow = 60
	// featurePeriod is the lookback for RSI and ATR.
	featurePeriod = 14
	// tradingDaysPerYear annualizes daily volatility.
	tradingDaysPerYear = 252
)

// SnapshotProvider reads daily prices and security metadata and produces
// domain.Snapshot values with derived features attached.
type SnapshotProvider struct {
	historyDB     *sql.DB
	stalenessDays int
	now           func() time.Time // injectable for tests
	log           zerolog.Logger
}

// NewSnapshotProvider creates a new snapshot provider.
// stalenessDays <= 0 disables the staleness check.
func NewSnapshotProvider(historyDB *sql.DB, stalenessDays int, log zerolog.Logger) *SnapshotProvider {
	return &SnapshotProvider{
		historyDB:     historyDB,
		stalenessDays: stalenessDays,
		now:           time.Now,
		log:           log.With().Str("component", "snapshot_provider").Logger(),
	}
}

// Latest resolves the most recent snapshot for a ticker. It returns
// domain.ErrNoData (wrapped) when the ticker has no rows or the latest
// row is older than the staleness window.
func (p *SnapshotProvider) Latest(ticker string) (*domain.Snapshot, error) {
	rows, err := p.historyDB.Query(`
		SELECT date, close, high, low
		FROM daily_prices
		WHERE ticker = ?
		ORDER BY date DESC
		LIMIT ?
	`, ticker, historyWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices for %s: %w", ticker, err)
	}
	defer rows.Close()

	var dates []int64
	var closes, highs, lows []float64
	for rows.Next() {
		var dateUnix int64
		var c float64
		var h, l sql.NullFloat64
		if err := rows.Scan(&dateUnix, &c, &h, &l); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}
		dates = append(dates, dateUnix)
		closes = append(closes, c)
		highs = append(highs, nullOr(h, c))
		lows = append(lows, nullOr(l, c))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}

	if len(closes) == 0 {
		return nil, fmt.Errorf("%s: %w", ticker, domain.ErrNoData)
	}

	latest := time.Unix(dates[0], 0).UTC()
	if p.stalenessDays > 0 {
		cutoff := p.now().AddDate(0, 0, -p.stalenessDays)
		if latest.Before(cutoff) {
			p.log.Warn().
				Str("ticker", ticker).
				Time("latest", latest).
				Int("staleness_days", p.stalenessDays).
				Msg("Latest price is stale, treating as missing")
			return nil, fmt.Errorf("%s: stale data (latest %s): %w", ticker, latest.Format("2006-01-02"), domain.ErrNoData)
		}
	}

	// Rows came back newest first; features want oldest first.
	reverse(dates)
	reverse(closes)
	reverse(highs)
	reverse(lows)

	snap := &domain.Snapshot{
		Ticker: ticker,
		Name:   p.securityName(ticker),
		Date:   latest,
		Close:  closes[len(closes)-1],
		Closes: closes,
		Highs:  highs,
		Lows:   lows,
	}
	attachFeatures(snap)

	return snap, nil
}

// securityName looks up the display name, falling back to the ticker.
func (p *SnapshotProvider) securityName(ticker string) string {
	var name string
	err := p.historyDB.QueryRow(`SELECT name FROM securities WHERE ticker = ?`, ticker).Scan(&name)
	if err != nil || name == "" {
		return ticker
	}
	return name
}

// attachFeatures computes RSI, ATR and annualized volatility when enough
// history exists. Short histories simply leave the features nil.
func attachFeatures(snap *domain.Snapshot) {
	if len(snap.Closes) > featurePeriod {
		rsi := talib.Rsi(snap.Closes, featurePeriod)
		if v := rsi[len(rsi)-1]; !math.IsNaN(v) {
			snap.RSI = &v
		}

		atr := talib.Atr(snap.Highs, snap.Lows, snap.Closes, featurePeriod)
		if v := atr[len(atr)-1]; !math.IsNaN(v) && v > 0 {
			snap.ATR = &v
		}
	}

	if len(snap.Closes) >= 3 {
		returns := make([]float64, 0, len(snap.Closes)-1)
		for i := 1; i < len(snap.Closes); i++ {
			if snap.Closes[i-1] > 0 && snap.Closes[i] > 0 {
				returns = append(returns, math.Log(snap.Closes[i]/snap.Closes[i-1]))
			}
		}
		if len(returns) >= 2 {
			vol := stat.StdDev(returns, nil) * math.Sqrt(tradingDaysPerYear)
			if !math.IsNaN(vol) {
				snap.Volatility = &vol
			}
		}
	}
}

func nullOr(v sql.NullFloat64, fallback float64) float64 {
	if v.Valid {
		return v.Float64
	}
	return fallback
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
