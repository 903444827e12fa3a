package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/example/appointment-scheduler/internal/persistence"
)

// Job type names for the nightly housekeeping chain.
const (
	JobTypePurgeHistory  = "PURGE_JOB_HISTORY"
	JobTypeFailedSummary = "FAILED_JOB_SUMMARY"
)

// Nightly runs the housekeeping chain on a cron schedule: old job rows are
// purged first, then the failed jobs of the last day are summarised. The
// summary only runs when the purge succeeded.
type Nightly struct {
	runner    *Runner
	repo      persistence.JobRepository
	logger    *slog.Logger
	now       func() time.Time
	retention time.Duration
	cron      *cron.Cron
}

// NewNightly wires the nightly housekeeping runner.
func NewNightly(runner *Runner, repo persistence.JobRepository, logger *slog.Logger, now func() time.Time, retention time.Duration) *Nightly {
	if logger == nil {
		logger = slog.Default()
	}
	return &Nightly{
		runner:    runner,
		repo:      repo,
		logger:    logger,
		now:       now,
		retention: retention,
	}
}

// Start schedules the chain with the given cron spec and starts the scheduler.
func (n *Nightly) Start(spec string) error {
	n.cron = cron.New()
	_, err := n.cron.AddFunc(spec, func() {
		if err := n.RunOnce(context.Background()); err != nil {
			n.logger.Error("nightly housekeeping failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule nightly chain: %w", err)
	}
	n.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running chain to finish.
func (n *Nightly) Stop() {
	if n.cron != nil {
		<-n.cron.Stop().Done()
	}
}

// RunOnce executes the housekeeping chain immediately.
func (n *Nightly) RunOnce(ctx context.Context) error {
	return n.runner.RunChain(ctx, n.purgeDefinition(), n.summaryDefinition())
}

func (n *Nightly) purgeDefinition() Definition {
	return Definition{
		Type: JobTypePurgeHistory,
		Work: func(ctx context.Context) error {
			cutoff := n.now().Add(-n.retention)
			purged, err := n.repo.DeleteJobsBefore(ctx, cutoff)
			if err != nil {
				return fmt.Errorf("purge job history: %w", err)
			}
			n.logger.InfoContext(ctx, "purged job history",
				slog.Int64("purged", purged),
				slog.Time("cutoff", cutoff))
			return nil
		},
	}
}

func (n *Nightly) summaryDefinition() Definition {
	return Definition{
		Type: JobTypeFailedSummary,
		Work: func(ctx context.Context) error {
			since := n.now().Add(-24 * time.Hour)
			failed, err := n.repo.ListJobs(ctx, persistence.JobFilter{OnlyFailed: true, CreatedAfter: &since})
			if err != nil {
				return fmt.Errorf("list failed jobs: %w", err)
			}
			if len(failed) == 0 {
				n.logger.InfoContext(ctx, "no failed jobs in the last day")
				return nil
			}

			byType := make(map[string]int)
			for _, job := range failed {
				byType[job.Type]++
			}
			for jobType, count := range byType {
				n.logger.WarnContext(ctx, "failed jobs in the last day",
					slog.String("job_type", jobType),
					slog.Int("count", count))
			}
			return nil
		},
	}
}
