// Package server provides the HTTP server and routing for Kabuplan.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/kabuplan/kabuplan/internal/config"
	"github.com/kabuplan/kabuplan/internal/database"
	"github.com/kabuplan/kabuplan/internal/modules/ledger"
	"github.com/kabuplan/kabuplan/internal/modules/planning"
	"github.com/kabuplan/kabuplan/internal/modules/signals"
	"github.com/kabuplan/kabuplan/internal/modules/strategies"
	"github.com/kabuplan/kabuplan/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Log        zerolog.Logger
	Config     *config.Config
	LedgerDB   *database.DB
	SignalsDB  *database.DB
	HistoryDB  *database.DB
	GroupRepo  *ledger.GroupRepository
	SignalRepo *signals.Repository
	RunService *planning.Service
	Registry   *strategies.Registry
	Scheduler  *scheduler.Scheduler
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	ledgerDB       *database.DB
	signalsDB      *database.DB
	historyDB      *database.DB
	groupRepo      *ledger.GroupRepository
	signalRepo     *signals.Repository
	runService     *planning.Service
	registry       *strategies.Registry
	sched          *scheduler.Scheduler
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		log:        cfg.Log.With().Str("component", "server").Logger(),
		cfg:        cfg.Config,
		ledgerDB:   cfg.LedgerDB,
		signalsDB:  cfg.SignalsDB,
		historyDB:  cfg.HistoryDB,
		groupRepo:  cfg.GroupRepo,
		signalRepo: cfg.SignalRepo,
		runService: cfg.RunService,
		registry:   cfg.Registry,
		sched:      cfg.Scheduler,
	}
	s.systemHandlers = NewSystemHandlers(cfg.Log, cfg.Config.DataDir, cfg.LedgerDB, cfg.SignalsDB, cfg.HistoryDB)

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/signals", func(r chi.Router) {
			r.Get("/latest", s.handleLatestSignals)
			r.Get("/runs/{runID}", s.handleSignalsByRun)
		})

		r.Route("/groups", func(r chi.Router) {
			r.Get("/", s.handleListGroups)
			r.Get("/{groupID}", s.handleGetGroup)
			r.Get("/{groupID}/signals", s.handleGroupSignals)
		})

		r.Route("/planner", func(r chi.Router) {
			r.Post("/run", s.handleTriggerRun)
		})

		r.Get("/strategies", s.handleListStrategies)
		r.Get("/scheduler/jobs", s.handleSchedulerJobs)
		r.Get("/system/health", s.systemHandlers.HandleSystemHealth)
	})
}

// loggingMiddleware logs each request with its duration and status.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Request")
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
