// Package signals persists planner output: a queryable SQLite store plus
// flat per-run archive files.
package signals

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kabuplan/kabuplan/internal/domain"
)

// signalsColumns is the list of columns for the signals table.
const signalsColumns = `run_id, group_id, ticker, ticker_name, signal_type, action, confidence, score,
	reason, strategy, current_price, position_qty, entry_price, entry_date, holding_days,
	unrealized_pl_pct, suggested_qty, required_capital, details, created_at`

// Repository handles signal database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new signal repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "signal").Logger(),
	}
}

// SaveRun stores all signals of one run in a single transaction.
func (r *Repository) SaveRun(runID string, sigs []domain.Signal) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin signal transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO signals (` + signalsColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare signal insert: %w", err)
	}
	defer stmt.Close()

	for _, sig := range sigs {
		_, err := stmt.Exec(
			runID,
			sig.GroupID,
			sig.Ticker,
			sig.TickerName,
			string(sig.Type),
			sig.Action,
			sig.Confidence,
			sig.Score,
			sig.Reason,
			sig.StrategyName,
			sig.CurrentPrice,
			sig.PositionQty,
			sig.EntryPrice,
			sig.EntryDate,
			sig.HoldingDays,
			sig.UnrealizedPLPct,
			sig.SuggestedQty,
			sig.RequiredCapital,
			sig.Details,
			sig.CreatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert signal %s/%s: %w", sig.GroupID, sig.Ticker, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit signals: %w", err)
	}

	r.log.Info().Str("run_id", runID).Int("count", len(sigs)).Msg("Signals stored")
	return nil
}

// LatestRunID returns the most recent run's ID, or empty when no run exists.
func (r *Repository) LatestRunID() (string, error) {
	var runID sql.NullString
	err := r.db.QueryRow(
		`SELECT run_id FROM signals ORDER BY created_at DESC, id DESC LIMIT 1`,
	).Scan(&runID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find latest run: %w", err)
	}
	return runID.String, nil
}

// GetByRun returns all signals of a run in emission order.
func (r *Repository) GetByRun(runID string) ([]domain.Signal, error) {
	rows, err := r.db.Query(
		`SELECT `+signalsColumns+` FROM signals WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals for run %s: %w", runID, err)
	}
	defer rows.Close()

	var sigs []domain.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signals: %w", err)
	}

	return sigs, nil
}

// GetByGroup returns a group's most recent signals, newest first.
func (r *Repository) GetByGroup(groupID string, limit int) ([]domain.Signal, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(
		`SELECT `+signalsColumns+` FROM signals WHERE group_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals for group %s: %w", groupID, err)
	}
	defer rows.Close()

	var sigs []domain.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signals: %w", err)
	}

	return sigs, nil
}

func scanSignal(rows *sql.Rows) (domain.Signal, error) {
	var sig domain.Signal
	var signalType string
	var createdAt int64
	err := rows.Scan(
		&sig.RunID,
		&sig.GroupID,
		&sig.Ticker,
		&sig.TickerName,
		&signalType,
		&sig.Action,
		&sig.Confidence,
		&sig.Score,
		&sig.Reason,
		&sig.StrategyName,
		&sig.CurrentPrice,
		&sig.PositionQty,
		&sig.EntryPrice,
		&sig.EntryDate,
		&sig.HoldingDays,
		&sig.UnrealizedPLPct,
		&sig.SuggestedQty,
		&sig.RequiredCapital,
		&sig.Details,
		&createdAt,
	)
	if err != nil {
		return domain.Signal{}, fmt.Errorf("failed to scan signal: %w", err)
	}
	sig.Type = domain.SignalType(signalType)
	sig.CreatedAt = time.Unix(createdAt, 0).UTC()
	return sig, nil
}
