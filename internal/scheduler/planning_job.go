package scheduler

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/kabuplan/kabuplan/internal/modules/planning"
)

// PlanRunner executes one planning cycle. Satisfied by *planning.Service.
type PlanRunner interface {
	Run() (*planning.RunResult, error)
}

// PlanningJob adapts the planning run service to the scheduler. The
// single-flight guard lives in the service itself, shared with the
// manual HTTP trigger; a cron firing that lands mid-run is skipped, not
// queued.
type PlanningJob struct {
	runner PlanRunner
	log    zerolog.Logger
}

// NewPlanningJob creates the daily planning job.
func NewPlanningJob(runner PlanRunner, log zerolog.Logger) *PlanningJob {
	return &PlanningJob{
		runner: runner,
		log:    log.With().Str("job", "daily_planning").Logger(),
	}
}

// Name implements Job.
func (j *PlanningJob) Name() string {
	return "daily_planning"
}

// Run implements Job.
func (j *PlanningJob) Run() error {
	result, err := j.runner.Run()
	if errors.Is(err, planning.ErrRunInProgress) {
		j.log.Warn().Msg("Previous planning run still in progress, skipping")
		return nil
	}
	if err != nil {
		return err
	}

	j.log.Info().
		Str("run_id", result.RunID).
		Int("groups", result.Groups).
		Int("signals", result.SignalCount).
		Msg("Scheduled planning run finished")
	return nil
}
