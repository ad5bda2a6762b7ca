// Package evaluation reads the entry verdicts produced by the upstream
// comprehensive evaluator. This repository is the planner-side view of
// that contract; verdict computation itself lives outside this service.
package evaluation

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kabuplan/kabuplan/internal/domain"
)

// VerdictRepository reads per-ticker entry verdicts from the history
// database. Rows are returned in rowid order, which is the evaluator's
// write order; the planner treats that order as the allocation order.
type VerdictRepository struct {
	historyDB *sql.DB
	log       zerolog.Logger
}

// NewVerdictRepository creates a new verdict repository.
func NewVerdictRepository(historyDB *sql.DB, log zerolog.Logger) *VerdictRepository {
	return &VerdictRepository{
		historyDB: historyDB,
		log:       log.With().Str("repo", "verdict").Logger(),
	}
}

// Verdicts returns the latest verdict table for an entry strategy.
// Only the most recent as_of batch is returned.
func (r *VerdictRepository) Verdicts(strategy string) (*domain.VerdictTable, error) {
	var asOf sql.NullString
	err := r.historyDB.QueryRow(
		`SELECT MAX(as_of) FROM entry_verdicts WHERE strategy = ?`, strategy,
	).Scan(&asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to find latest verdict batch for %s: %w", strategy, err)
	}

	table := domain.NewVerdictTable()
	if !asOf.Valid || asOf.String == "" {
		return table, nil
	}

	rows, err := r.historyDB.Query(`
		SELECT ticker, signal, score, confidence, reason
		FROM entry_verdicts
		WHERE strategy = ? AND as_of = ?
		ORDER BY id
	`, strategy, asOf.String)
	if err != nil {
		return nil, fmt.Errorf("failed to query verdicts for %s: %w", strategy, err)
	}
	defer rows.Close()

	for rows.Next() {
		var v domain.EntryVerdict
		var signal string
		if err := rows.Scan(&v.Ticker, &signal, &v.Score, &v.Confidence, &v.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan verdict: %w", err)
		}
		v.Signal = domain.SignalType(signal)
		table.Append(v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating verdicts: %w", err)
	}

	r.log.Debug().
		Str("strategy", strategy).
		Str("as_of", asOf.String).
		Int("count", table.Len()).
		Msg("Loaded verdict table")

	return table, nil
}
