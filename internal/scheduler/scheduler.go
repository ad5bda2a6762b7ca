// Package scheduler drives the background jobs of the planner from a
// seconds-resolution cron.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one unit of scheduled work.
type Job interface {
	Run() error
	Name() string
}

// Scheduler wraps the cron runner and tracks what has been registered.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu   sync.Mutex
	jobs []string
}

// New creates an empty scheduler.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// AddJob registers a job under a six-field cron expression, e.g.
// "0 30 15 * * MON-FRI". A failing job is logged and the schedule keeps
// firing; errors never stop the cron loop.
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() { s.runJob(job) })
	if err != nil {
		return fmt.Errorf("failed to schedule job %s (%q): %w", job.Name(), schedule, err)
	}

	s.mu.Lock()
	s.jobs = append(s.jobs, job.Name())
	s.mu.Unlock()

	s.log.Info().
		Str("job", job.Name()).
		Str("schedule", schedule).
		Msg("Job registered")
	return nil
}

func (s *Scheduler) runJob(job Job) {
	start := time.Now()
	log := s.log.With().Str("job", job.Name()).Logger()
	log.Debug().Msg("Job starting")

	if err := job.Run(); err != nil {
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("Job failed")
		return
	}
	log.Debug().Dur("duration", time.Since(start)).Msg("Job completed")
}

// Jobs returns the names of all registered jobs, in registration order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.jobs...)
}

// Start begins firing schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.Jobs())).Msg("Scheduler started")
}

// Stop halts the cron loop and waits for any running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}
