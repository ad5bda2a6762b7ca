package signals

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kabuplan/kabuplan/internal/domain"
	kabutesting "github.com/kabuplan/kabuplan/internal/testing"
)

func newTestSignalRepo(t *testing.T) *Repository {
	t.Helper()
	db, cleanup := kabutesting.NewTestDB(t, "signals")
	t.Cleanup(cleanup)
	return NewRepository(db.Conn(), zerolog.Nop())
}

func sampleSignals(runID string, createdAt time.Time) []domain.Signal {
	return []domain.Signal{
		{
			RunID:        runID,
			GroupID:      "g1",
			Ticker:       "7203",
			TickerName:   "Toyota",
			Type:         domain.SignalSell,
			Action:       domain.ActionSell50,
			Confidence:   0.7,
			Reason:       "trim into strength",
			StrategyName: "trailing_stop",
			CurrentPrice: 2000,
			PositionQty:  1000,
			EntryPrice:   1800,
			EntryDate:    "2024-05-01",
			HoldingDays:  33,
			SuggestedQty: 300,
			CreatedAt:    createdAt,
		},
		{
			RunID:           runID,
			GroupID:         "g1",
			Ticker:          "6758",
			TickerName:      "Sony",
			Type:            domain.SignalBuy,
			Action:          string(domain.SignalBuy),
			Confidence:      0.8,
			Score:           0.9,
			Reason:          "momentum",
			StrategyName:    "momentum",
			CurrentPrice:    2040,
			SuggestedQty:    100,
			RequiredCapital: 204_000,
			CreatedAt:       createdAt,
		},
	}
}

func TestSaveRunAndGetByRun(t *testing.T) {
	repo := newTestSignalRepo(t)
	createdAt := time.Date(2024, 6, 3, 15, 30, 0, 0, time.UTC)

	require.NoError(t, repo.SaveRun("run-1", sampleSignals("run-1", createdAt)))

	got, err := repo.GetByRun("run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Emission order is preserved.
	assert.Equal(t, "7203", got[0].Ticker)
	assert.Equal(t, "6758", got[1].Ticker)

	assert.Equal(t, domain.SignalSell, got[0].Type)
	assert.Equal(t, domain.ActionSell50, got[0].Action)
	assert.Equal(t, int64(300), got[0].SuggestedQty)
	assert.Equal(t, "2024-05-01", got[0].EntryDate)
	assert.Equal(t, createdAt, got[0].CreatedAt)

	assert.Equal(t, 204_000.0, got[1].RequiredCapital)
}

func TestLatestRunID(t *testing.T) {
	repo := newTestSignalRepo(t)

	runID, err := repo.LatestRunID()
	require.NoError(t, err)
	assert.Empty(t, runID)

	require.NoError(t, repo.SaveRun("run-1", sampleSignals("run-1", time.Date(2024, 6, 2, 15, 30, 0, 0, time.UTC))))
	require.NoError(t, repo.SaveRun("run-2", sampleSignals("run-2", time.Date(2024, 6, 3, 15, 30, 0, 0, time.UTC))))

	runID, err = repo.LatestRunID()
	require.NoError(t, err)
	assert.Equal(t, "run-2", runID)
}

func TestGetByGroup(t *testing.T) {
	repo := newTestSignalRepo(t)
	createdAt := time.Date(2024, 6, 3, 15, 30, 0, 0, time.UTC)

	sigs := sampleSignals("run-1", createdAt)
	sigs[1].GroupID = "g2"
	require.NoError(t, repo.SaveRun("run-1", sigs))

	got, err := repo.GetByGroup("g1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "7203", got[0].Ticker)

	got, err = repo.GetByGroup("g3", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSaveRunEmptyIsFine(t *testing.T) {
	repo := newTestSignalRepo(t)
	require.NoError(t, repo.SaveRun("run-empty", nil))

	got, err := repo.GetByRun("run-empty")
	require.NoError(t, err)
	assert.Empty(t, got)
}
