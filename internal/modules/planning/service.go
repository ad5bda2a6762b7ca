package planning

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kabuplan/kabuplan/internal/domain"
)

// ErrRunInProgress is returned by Run when another run holds the
// single-flight guard, whether it was started by the scheduler or by a
// manual trigger.
var ErrRunInProgress = errors.New("planning run already in progress")

// GroupStore is the ledger access the run service needs.
type GroupStore interface {
	GetAll() ([]domain.StrategyGroup, error)
	UpdatePeakPrice(groupID, ticker string, peak float64) error
}

// SignalStore persists a run's signals to the signal database.
type SignalStore interface {
	SaveRun(runID string, signals []domain.Signal) error
}

// ArchiveWriter writes the flat per-run signal archive files.
type ArchiveWriter interface {
	WriteRun(runID string, asOf time.Time, signals []domain.Signal) error
}

// ExitStrategyResolver resolves a group's configured exit strategy.
type ExitStrategyResolver interface {
	Get(name string) (domain.ExitStrategy, error)
}

// Service runs the daily planning cycle across all groups and owns the
// durability ordering: all signals are computed in memory, the signal
// archive and store are written, and only then are the watermark
// mutations persisted to the ledger. A run that dies halfway therefore
// never leaves persisted ledger state ahead of persisted signals.
// At most one run executes at a time; scheduled and manual triggers
// both go through the same guard.
type Service struct {
	planner    *Planner
	groups     GroupStore
	signals    SignalStore
	archive    ArchiveWriter
	verdicts   domain.VerdictProvider
	strategies ExitStrategyResolver
	policy     domain.OverlayPolicy
	running    atomic.Bool
	log        zerolog.Logger
}

// NewService creates the run service.
func NewService(
	planner *Planner,
	groups GroupStore,
	signals SignalStore,
	archive ArchiveWriter,
	verdicts domain.VerdictProvider,
	strategies ExitStrategyResolver,
	policy domain.OverlayPolicy,
	log zerolog.Logger,
) *Service {
	return &Service{
		planner:    planner,
		groups:     groups,
		signals:    signals,
		archive:    archive,
		verdicts:   verdicts,
		strategies: strategies,
		policy:     policy,
		log:        log.With().Str("service", "planning").Logger(),
	}
}

// RunResult summarizes one completed planning run.
type RunResult struct {
	RunID       string    `json:"run_id"`
	AsOf        time.Time `json:"as_of"`
	Groups      int       `json:"groups"`
	SignalCount int       `json:"signal_count"`
}

// groupOutcome pairs a planned group with its pending watermark updates.
type groupOutcome struct {
	groupID     string
	peakUpdates map[string]float64
}

// Run executes the full daily cycle. A call that lands while another
// run is still going returns ErrRunInProgress instead of queueing.
func (s *Service) Run() (*RunResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.running.Store(false)

	runID := uuid.New().String()
	asOf := time.Now()
	log := s.log.With().Str("run_id", runID).Logger()

	groups, err := s.groups.GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load groups: %w", err)
	}
	if len(groups) == 0 {
		log.Info().Msg("No groups configured, nothing to plan")
		return &RunResult{RunID: runID, AsOf: asOf}, nil
	}

	var allSignals []domain.Signal
	var outcomes []groupOutcome

	for i := range groups {
		group := &groups[i]

		exitStrategy, err := s.strategies.Get(group.ExitStrategy)
		if err != nil {
			log.Error().Err(err).Str("group", group.ID).Msg("No usable exit strategy, skipping group")
			continue
		}

		verdicts, err := s.verdicts.Verdicts(group.EntryStrategy)
		if err != nil {
			// Exits still run; the group just gets no entry candidates.
			log.Warn().Err(err).Str("group", group.ID).Msg("Failed to load entry verdicts")
			verdicts = nil
		}

		plan := s.planner.PlanGroup(group, exitStrategy, verdicts, s.policy)

		for j := range plan.Signals {
			plan.Signals[j].RunID = runID
			plan.Signals[j].CreatedAt = asOf
		}
		allSignals = append(allSignals, plan.Signals...)
		outcomes = append(outcomes, groupOutcome{groupID: group.ID, peakUpdates: plan.PeakUpdates})
	}

	// Signals first, ledger second. Archive failure aborts the run with
	// the ledger untouched.
	if err := s.archive.WriteRun(runID, asOf, allSignals); err != nil {
		return nil, fmt.Errorf("failed to write signal archive: %w", err)
	}
	if err := s.signals.SaveRun(runID, allSignals); err != nil {
		return nil, fmt.Errorf("failed to store signals: %w", err)
	}

	for _, outcome := range outcomes {
		for ticker, peak := range outcome.peakUpdates {
			if err := s.groups.UpdatePeakPrice(outcome.groupID, ticker, peak); err != nil {
				log.Error().Err(err).
					Str("group", outcome.groupID).
					Str("ticker", ticker).
					Msg("Failed to persist peak price")
			}
		}
	}

	log.Info().
		Int("groups", len(groups)).
		Int("signals", len(allSignals)).
		Msg("Planning run complete")

	return &RunResult{
		RunID:       runID,
		AsOf:        asOf,
		Groups:      len(groups),
		SignalCount: len(allSignals),
	}, nil
}
