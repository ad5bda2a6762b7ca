// Package ledger provides persistence for strategy groups and positions.
package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/kabuplan/kabuplan/internal/domain"
)

// positionsColumns is the list of columns for the positions table.
// Used to avoid SELECT * which can break when schema changes.
const positionsColumns = `ticker, quantity, entry_price, entry_date, entry_score, peak_price`

// GroupRepository handles group and position database operations
type GroupRepository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// NewGroupRepository creates a new group repository
func NewGroupRepository(ledgerDB *sql.DB, log zerolog.Logger) *GroupRepository {
	return &GroupRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "group").Logger(),
	}
}

// GetAll returns all strategy groups with their positions, positions in
// acquisition (insertion) order.
func (r *GroupRepository) GetAll() ([]domain.StrategyGroup, error) {
	rows, err := r.ledgerDB.Query(`SELECT id, name, cash, entry_strategy, exit_strategy FROM groups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var groups []domain.StrategyGroup
	for rows.Next() {
		var g domain.StrategyGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.Cash, &g.EntryStrategy, &g.ExitStrategy); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating groups: %w", err)
	}

	for i := range groups {
		positions, err := r.getPositions(groups[i].ID)
		if err != nil {
			return nil, err
		}
		groups[i].Positions = positions
	}

	return groups, nil
}

// Get returns a single group by ID, or nil when it does not exist.
func (r *GroupRepository) Get(id string) (*domain.StrategyGroup, error) {
	var g domain.StrategyGroup
	err := r.ledgerDB.QueryRow(
		`SELECT id, name, cash, entry_strategy, exit_strategy FROM groups WHERE id = ?`, id,
	).Scan(&g.ID, &g.Name, &g.Cash, &g.EntryStrategy, &g.ExitStrategy)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query group %s: %w", id, err)
	}

	positions, err := r.getPositions(g.ID)
	if err != nil {
		return nil, err
	}
	g.Positions = positions

	return &g, nil
}

// Create inserts a new group.
func (r *GroupRepository) Create(g domain.StrategyGroup) error {
	if g.ID == "" {
		return fmt.Errorf("failed to create group: id is required")
	}
	if g.Cash < 0 {
		return fmt.Errorf("failed to create group %s: cash must be non-negative", g.ID)
	}

	now := time.Now().Unix()
	_, err := r.ledgerDB.Exec(`
		INSERT INTO groups (id, name, cash, entry_strategy, exit_strategy, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, g.ID, g.Name, g.Cash, g.EntryStrategy, g.ExitStrategy, now, now)
	if err != nil {
		return fmt.Errorf("failed to create group %s: %w", g.ID, err)
	}

	for _, pos := range g.Positions {
		if err := r.UpsertPosition(g.ID, pos); err != nil {
			return err
		}
	}

	r.log.Info().Str("group", g.ID).Float64("cash", g.Cash).Msg("Group created")
	return nil
}

// UpsertPosition inserts or replaces a position within a group.
func (r *GroupRepository) UpsertPosition(groupID string, pos domain.Position) error {
	now := time.Now().Unix()
	_, err := r.ledgerDB.Exec(`
		INSERT INTO positions (group_id, ticker, quantity, entry_price, entry_date, entry_score, peak_price, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (group_id, ticker) DO UPDATE SET
			quantity = excluded.quantity,
			entry_price = excluded.entry_price,
			entry_date = excluded.entry_date,
			entry_score = excluded.entry_score,
			peak_price = excluded.peak_price,
			updated_at = excluded.updated_at
	`, groupID, pos.Ticker, pos.Quantity, pos.EntryPrice, pos.EntryDate.Unix(), pos.EntryScore, nullFloat64Ptr(pos.PeakPrice), now)
	if err != nil {
		return fmt.Errorf("failed to upsert position %s/%s: %w", groupID, pos.Ticker, err)
	}
	return nil
}

// UpdatePeakPrice persists the peak-price watermark for one position.
// This is the only ledger mutation the planner owns.
func (r *GroupRepository) UpdatePeakPrice(groupID, ticker string, peak float64) error {
	res, err := r.ledgerDB.Exec(`
		UPDATE positions SET peak_price = ?, updated_at = ? WHERE group_id = ? AND ticker = ?
	`, peak, time.Now().Unix(), groupID, ticker)
	if err != nil {
		return fmt.Errorf("failed to update peak price %s/%s: %w", groupID, ticker, err)
	}

	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		r.log.Warn().
			Str("group", groupID).
			Str("ticker", ticker).
			Msg("Peak price update matched no position")
	}

	return nil
}

// getPositions returns a group's positions in insertion order.
func (r *GroupRepository) getPositions(groupID string) ([]domain.Position, error) {
	rows, err := r.ledgerDB.Query(
		`SELECT `+positionsColumns+` FROM positions WHERE group_id = ? ORDER BY id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions for %s: %w", groupID, err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var pos domain.Position
		var entryDate int64
		var peak sql.NullFloat64
		if err := rows.Scan(&pos.Ticker, &pos.Quantity, &pos.EntryPrice, &entryDate, &pos.EntryScore, &peak); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		pos.EntryDate = time.Unix(entryDate, 0).UTC()
		if peak.Valid {
			pos.PeakPrice = &peak.Float64
		}
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}

func nullFloat64Ptr(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
