package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kabuplan/kabuplan/internal/config"
	"github.com/kabuplan/kabuplan/internal/domain"
	"github.com/kabuplan/kabuplan/internal/modules/ledger"
	"github.com/kabuplan/kabuplan/internal/modules/planning"
	"github.com/kabuplan/kabuplan/internal/modules/signals"
	"github.com/kabuplan/kabuplan/internal/modules/strategies"
	kabutesting "github.com/kabuplan/kabuplan/internal/testing"
)

type fixedMarket struct{}

func (fixedMarket) Latest(ticker string) (*domain.Snapshot, error) {
	return &domain.Snapshot{
		Ticker: ticker,
		Name:   ticker,
		Date:   time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
		Close:  2000,
		Closes: []float64{2000},
	}, nil
}

type fixedVerdicts struct{}

func (fixedVerdicts) Verdicts(strategy string) (*domain.VerdictTable, error) {
	table := domain.NewVerdictTable()
	table.Append(domain.EntryVerdict{Ticker: "6758", Signal: domain.SignalBuy, Confidence: 0.8, Reason: "momentum"})
	return table, nil
}

func newTestServer(t *testing.T) (*Server, *ledger.GroupRepository) {
	t.Helper()

	ledgerDB, cleanupLedger := kabutesting.NewTestDB(t, "ledger")
	t.Cleanup(cleanupLedger)
	signalsDB, cleanupSignals := kabutesting.NewTestDB(t, "signals")
	t.Cleanup(cleanupSignals)
	historyDB, cleanupHistory := kabutesting.NewTestDB(t, "history")
	t.Cleanup(cleanupHistory)

	log := zerolog.Nop()
	groupRepo := ledger.NewGroupRepository(ledgerDB.Conn(), log)
	signalRepo := signals.NewRepository(signalsDB.Conn(), log)
	archive, err := signals.NewArchive(t.TempDir(), log)
	require.NoError(t, err)

	registry := strategies.NewRegistry()
	plannerCfg := config.PlannerConfig{
		DefaultLotSize:       100,
		BuySlippage:          0.02,
		SellSlippage:         0.02,
		MaxPositionsPerGroup: 10,
		MaxPositionPct:       0.30,
	}
	planner := planning.NewPlanner(fixedMarket{}, plannerCfg, log)
	runService := planning.NewService(planner, groupRepo, signalRepo, archive, fixedVerdicts{}, registry, nil, log)

	srv := New(Config{
		Log:        log,
		Config:     &config.Config{Port: 0, DataDir: t.TempDir(), Planner: plannerCfg},
		LedgerDB:   ledgerDB,
		SignalsDB:  signalsDB,
		HistoryDB:  historyDB,
		GroupRepo:  groupRepo,
		SignalRepo: signalRepo,
		RunService: runService,
		Registry:   registry,
	})

	return srv, groupRepo
}

func doRequest(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestGroupsEndpoints(t *testing.T) {
	srv, groupRepo := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/groups/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	require.NoError(t, groupRepo.Create(domain.StrategyGroup{
		ID:   "g1",
		Name: "Test Group",
		Cash: 1_000_000,
	}))

	rec = doRequest(t, srv, http.MethodGet, "/api/groups/g1")
	assert.Equal(t, http.StatusOK, rec.Code)

	var group domain.StrategyGroup
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &group))
	assert.Equal(t, "Test Group", group.Name)

	rec = doRequest(t, srv, http.MethodGet, "/api/groups/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPlannerRunAndLatestSignals(t *testing.T) {
	srv, groupRepo := newTestServer(t)

	require.NoError(t, groupRepo.Create(domain.StrategyGroup{
		ID:            "g1",
		Cash:          1_000_000,
		EntryStrategy: "momentum",
		ExitStrategy:  "trailing_stop",
	}))

	rec := doRequest(t, srv, http.MethodPost, "/api/planner/run")
	require.Equal(t, http.StatusOK, rec.Code)

	var result planning.RunResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 1, result.SignalCount)

	rec = doRequest(t, srv, http.MethodGet, "/api/signals/latest")
	require.Equal(t, http.StatusOK, rec.Code)

	var latest struct {
		RunID   string          `json:"run_id"`
		Count   int             `json:"count"`
		Signals []domain.Signal `json:"signals"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &latest))
	assert.Equal(t, result.RunID, latest.RunID)
	require.Len(t, latest.Signals, 1)
	assert.Equal(t, domain.SignalBuy, latest.Signals[0].Type)
	assert.Equal(t, int64(100), latest.Signals[0].SuggestedQty)

	rec = doRequest(t, srv, http.MethodGet, "/api/signals/runs/"+result.RunID)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/signals/runs/no-such-run")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLatestSignalsEmptyStore(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/signals/latest")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"signals":[]`)
}

func TestGroupSignalsValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/groups/g1/signals?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/groups/g1/signals")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListStrategies(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/strategies")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "trailing_stop")
	assert.Contains(t, rec.Body.String(), "stop_profit")
}

func TestSchedulerJobsWithoutScheduler(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/scheduler/jobs")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"jobs":[]}`, rec.Body.String())
}

func TestSystemHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/system/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "databases")
}
