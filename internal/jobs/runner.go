// Package jobs executes tracked background tasks. Every execution attempt is
// recorded as a job row, failures are reported to the monitoring sink, and a
// panicking task is contained and recorded like any other failure.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/appointment-scheduler/internal/events"
	"github.com/example/appointment-scheduler/internal/persistence"
)

// DefaultRetries is how many times a retryable task is attempted again after
// its first failure.
const DefaultRetries = 1

// Definition pairs a job type name with the work it performs.
type Definition struct {
	Type string
	Work func(ctx context.Context) error
}

// Runner executes job definitions and records one job row per attempt.
type Runner struct {
	repo        persistence.JobRepository
	monitor     events.MonitorSink
	logger      *slog.Logger
	idGenerator func() string
	now         func() time.Time
	retries     int
}

// NewRunner wires a runner. A nil monitor discards notifications and a
// negative retries value falls back to the default.
func NewRunner(repo persistence.JobRepository, monitor events.MonitorSink, logger *slog.Logger, idGenerator func() string, now func() time.Time, retries int) *Runner {
	if monitor == nil {
		monitor = events.NopMonitor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if retries < 0 {
		retries = DefaultRetries
	}
	return &Runner{
		repo:        repo,
		monitor:     monitor,
		logger:      logger,
		idGenerator: idGenerator,
		now:         now,
		retries:     retries,
	}
}

// Run executes the definition once, records the attempt and notifies the
// monitor on failure.
func (r *Runner) Run(ctx context.Context, def Definition) error {
	startedAt := r.now()
	err := r.execute(ctx, def)
	r.record(ctx, def.Type, startedAt, err)

	if err != nil {
		r.monitor.Capture(fmt.Sprintf("job %s failed: %v", def.Type, err))
		r.logger.ErrorContext(ctx, "job failed", slog.String("job_type", def.Type), slog.Any("error", err))
		return err
	}
	return nil
}

// RunWithRetry executes the definition until it succeeds or the attempt
// budget is spent. Each attempt writes its own job row; the monitor is only
// notified when every attempt has failed.
func (r *Runner) RunWithRetry(ctx context.Context, def Definition) error {
	attempts := 1 + r.retries

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		startedAt := r.now()
		err = r.execute(ctx, def)
		r.record(ctx, def.Type, startedAt, err)
		if err == nil {
			return nil
		}
		r.logger.WarnContext(ctx, "job attempt failed",
			slog.String("job_type", def.Type),
			slog.Int("attempt", attempt),
			slog.Int("attempts", attempts),
			slog.Any("error", err))
	}

	r.monitor.Capture(fmt.Sprintf("job %s failed after %d attempts: %v", def.Type, attempts, err))
	return err
}

// RunChain executes the definitions in order and stops at the first failure.
// Steps after the failing one are not executed; each gets a synthetic failed
// job row so the chain outcome is fully visible in the job list.
func (r *Runner) RunChain(ctx context.Context, defs ...Definition) error {
	for i, def := range defs {
		if err := r.RunWithRetry(ctx, def); err != nil {
			for _, skipped := range defs[i+1:] {
				now := r.now()
				message := fmt.Sprintf("skipped: previous step %s failed", def.Type)
				r.createJob(ctx, persistence.Job{
					ID:         r.idGenerator(),
					Type:       skipped.Type,
					Succeeded:  false,
					Message:    &message,
					StartedAt:  now,
					FinishedAt: now,
					CreatedAt:  now,
				})
			}
			return fmt.Errorf("chain stopped at %s: %w", def.Type, err)
		}
	}
	return nil
}

// execute runs the work with panic containment.
func (r *Runner) execute(ctx context.Context, def Definition) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job %s panicked: %v", def.Type, p)
		}
	}()
	return def.Work(ctx)
}

func (r *Runner) record(ctx context.Context, jobType string, startedAt time.Time, runErr error) {
	finishedAt := r.now()
	job := persistence.Job{
		ID:         r.idGenerator(),
		Type:       jobType,
		Succeeded:  runErr == nil,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		CreatedAt:  finishedAt,
	}
	if runErr != nil {
		message := runErr.Error()
		job.Message = &message
	}
	r.createJob(ctx, job)
}

func (r *Runner) createJob(ctx context.Context, job persistence.Job) {
	if err := r.repo.CreateJob(ctx, job); err != nil {
		// Tracking must not fail the tracked work.
		r.logger.ErrorContext(ctx, "record job", slog.String("job_type", job.Type), slog.Any("error", err))
	}
}
