// Package main is the entry point for the Kabuplan daily signal planner.
// The planner evaluates every strategy group once per trading day: exits
// first, entries second, with an overlay policy able to override either
// phase. Output is advisory signals; no orders are ever placed.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kabuplan/kabuplan/internal/config"
	"github.com/kabuplan/kabuplan/internal/database"
	"github.com/kabuplan/kabuplan/internal/modules/evaluation"
	"github.com/kabuplan/kabuplan/internal/modules/ledger"
	"github.com/kabuplan/kabuplan/internal/modules/marketdata"
	"github.com/kabuplan/kabuplan/internal/modules/overlay"
	"github.com/kabuplan/kabuplan/internal/modules/planning"
	"github.com/kabuplan/kabuplan/internal/modules/signals"
	"github.com/kabuplan/kabuplan/internal/modules/strategies"
	"github.com/kabuplan/kabuplan/internal/scheduler"
	"github.com/kabuplan/kabuplan/internal/server"
	"github.com/kabuplan/kabuplan/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting Kabuplan")

	// Three databases: the group ledger (maximum safety), the signal
	// store, and the price history the collector maintains externally.
	ledgerDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger database")
	}
	defer ledgerDB.Close()

	signalsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "signals.db"),
		Profile: database.ProfileStandard,
		Name:    "signals",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open signals database")
	}
	defer signalsDB.Close()

	historyDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "history.db"),
		Profile: database.ProfileStandard,
		Name:    "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	for _, db := range []*database.DB{ledgerDB, signalsDB, historyDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("db", db.Name()).Msg("Failed to migrate database")
		}
	}

	// Repositories and providers
	groupRepo := ledger.NewGroupRepository(ledgerDB.Conn(), log)
	signalRepo := signals.NewRepository(signalsDB.Conn(), log)
	verdictRepo := evaluation.NewVerdictRepository(historyDB.Conn(), log)
	snapshots := marketdata.NewSnapshotProvider(historyDB.Conn(), cfg.Planner.StalenessDays, log)

	archive, err := signals.NewArchive(filepath.Join(cfg.DataDir, "archives"), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize signal archive")
	}

	// Planning pipeline
	registry := strategies.NewRegistry()
	policy := overlay.NewThresholdPolicy(
		cfg.Overlay.BlockEntriesAbove,
		cfg.Overlay.ScaleStartAt,
		cfg.Overlay.ForceExitAbove,
		log,
	)
	planner := planning.NewPlanner(snapshots, cfg.Planner, log)
	runService := planning.NewService(planner, groupRepo, signalRepo, archive, verdictRepo, registry, policy, log)

	// Scheduler with the daily planning job
	sched := scheduler.New(log)
	planningJob := scheduler.NewPlanningJob(runService, log)
	if err := sched.AddJob(cfg.RunSchedule, planningJob); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.RunSchedule).Msg("Failed to register planning job")
	}
	sched.Start()

	// HTTP server
	srv := server.New(server.Config{
		Log:        log,
		Config:     cfg,
		LedgerDB:   ledgerDB,
		SignalsDB:  signalsDB,
		HistoryDB:  historyDB,
		GroupRepo:  groupRepo,
		SignalRepo: signalRepo,
		RunService: runService,
		Registry:   registry,
		Scheduler:  sched,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Error().Err(err).Msg("HTTP server stopped unexpectedly")
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Kabuplan stopped")
}
