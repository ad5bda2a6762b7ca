package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kabuplan/kabuplan/internal/domain"
	"github.com/kabuplan/kabuplan/internal/modules/planning"
)

// handleHealth is the liveness probe.
// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleLatestSignals returns the most recent run's signals.
// GET /api/signals/latest
func (s *Server) handleLatestSignals(w http.ResponseWriter, r *http.Request) {
	runID, err := s.signalRepo.LatestRunID()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to find latest run")
		writeError(w, http.StatusInternalServerError, "failed to find latest run")
		return
	}
	if runID == "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"run_id":  "",
			"signals": []domain.Signal{},
		})
		return
	}

	sigs, err := s.signalRepo.GetByRun(runID)
	if err != nil {
		s.log.Error().Err(err).Str("run_id", runID).Msg("Failed to load signals")
		writeError(w, http.StatusInternalServerError, "failed to load signals")
		return
	}
	if sigs == nil {
		sigs = []domain.Signal{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":  runID,
		"count":   len(sigs),
		"signals": sigs,
	})
}

// handleSignalsByRun returns one run's signals in emission order.
// GET /api/signals/runs/{runID}
func (s *Server) handleSignalsByRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	sigs, err := s.signalRepo.GetByRun(runID)
	if err != nil {
		s.log.Error().Err(err).Str("run_id", runID).Msg("Failed to load signals")
		writeError(w, http.StatusInternalServerError, "failed to load signals")
		return
	}
	if len(sigs) == 0 {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":  runID,
		"count":   len(sigs),
		"signals": sigs,
	})
}

// handleListGroups returns all strategy groups with their positions.
// GET /api/groups
func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.groupRepo.GetAll()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load groups")
		writeError(w, http.StatusInternalServerError, "failed to load groups")
		return
	}
	if groups == nil {
		groups = []domain.StrategyGroup{}
	}
	writeJSON(w, http.StatusOK, groups)
}

// handleGetGroup returns one strategy group.
// GET /api/groups/{groupID}
func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	group, err := s.groupRepo.Get(groupID)
	if err != nil {
		s.log.Error().Err(err).Str("group", groupID).Msg("Failed to load group")
		writeError(w, http.StatusInternalServerError, "failed to load group")
		return
	}
	if group == nil {
		writeError(w, http.StatusNotFound, "group not found")
		return
	}
	writeJSON(w, http.StatusOK, group)
}

// handleGroupSignals returns a group's recent signals, newest first.
// GET /api/groups/{groupID}/signals?limit=N
func (s *Server) handleGroupSignals(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	sigs, err := s.signalRepo.GetByGroup(groupID, limit)
	if err != nil {
		s.log.Error().Err(err).Str("group", groupID).Msg("Failed to load group signals")
		writeError(w, http.StatusInternalServerError, "failed to load signals")
		return
	}
	if sigs == nil {
		sigs = []domain.Signal{}
	}
	writeJSON(w, http.StatusOK, sigs)
}

// handleTriggerRun runs the planning cycle immediately. The run service
// holds the single-flight guard, so a trigger racing the scheduled run
// is rejected rather than doubled.
// POST /api/planner/run
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	result, err := s.runService.Run()
	if errors.Is(err, planning.ErrRunInProgress) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("Manual planning run failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleSchedulerJobs lists the registered background jobs.
// GET /api/scheduler/jobs
func (s *Server) handleSchedulerJobs(w http.ResponseWriter, r *http.Request) {
	jobs := []string{}
	if s.sched != nil {
		jobs = s.sched.Jobs()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

// handleListStrategies returns the registered exit strategy names.
// GET /api/strategies
func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"exit_strategies": s.registry.Names(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
