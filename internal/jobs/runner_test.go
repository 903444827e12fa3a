package jobs_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/example/appointment-scheduler/internal/jobs"
	"github.com/example/appointment-scheduler/internal/persistence"
	"github.com/example/appointment-scheduler/internal/testfixtures"
)

type jobRepoStub struct {
	jobs         []persistence.Job
	listResult   []persistence.Job
	listErr      error
	deleteCutoff time.Time
	deleted      int64
	deleteErr    error
}

func (s *jobRepoStub) CreateJob(_ context.Context, job persistence.Job) error {
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *jobRepoStub) ListJobs(_ context.Context, _ persistence.JobFilter) ([]persistence.Job, error) {
	return s.listResult, s.listErr
}

func (s *jobRepoStub) DeleteJobsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.deleteCutoff = cutoff
	return s.deleted, s.deleteErr
}

type monitorStub struct {
	messages []string
}

func (s *monitorStub) Capture(message string) {
	s.messages = append(s.messages, message)
}

func newTestRunner(repo *jobRepoStub, monitor *monitorStub, retries int) *jobs.Runner {
	clock := testfixtures.NewClock(time.Date(2024, time.January, 10, 2, 0, 0, 0, time.UTC))
	ids := testfixtures.NewIDGenerator("job")
	return jobs.NewRunner(repo, monitor, nil, ids.NextFunc(), clock.NowFunc(), retries)
}

func TestRunner_RunRecordsSuccess(t *testing.T) {
	t.Parallel()

	repo := &jobRepoStub{}
	monitor := &monitorStub{}
	runner := newTestRunner(repo, monitor, 0)

	err := runner.Run(context.Background(), jobs.Definition{
		Type: "CANCEL_APPOINTMENTS",
		Work: func(context.Context) error { return nil },
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(repo.jobs) != 1 {
		t.Fatalf("expected one job row, got %d", len(repo.jobs))
	}
	job := repo.jobs[0]
	if !job.Succeeded || job.Type != "CANCEL_APPOINTMENTS" || job.Message != nil {
		t.Fatalf("unexpected job row: %+v", job)
	}
	if len(monitor.messages) != 0 {
		t.Fatalf("monitor must stay quiet on success: %v", monitor.messages)
	}
}

func TestRunner_RunRecordsFailureAndNotifiesMonitor(t *testing.T) {
	t.Parallel()

	repo := &jobRepoStub{}
	monitor := &monitorStub{}
	runner := newTestRunner(repo, monitor, 0)

	workErr := errors.New("downstream unavailable")
	err := runner.Run(context.Background(), jobs.Definition{
		Type: "CANCEL_APPOINTMENTS",
		Work: func(context.Context) error { return workErr },
	})
	if !errors.Is(err, workErr) {
		t.Fatalf("expected the work error, got %v", err)
	}

	if len(repo.jobs) != 1 || repo.jobs[0].Succeeded {
		t.Fatalf("expected one failed job row, got %+v", repo.jobs)
	}
	if repo.jobs[0].Message == nil || !strings.Contains(*repo.jobs[0].Message, "downstream unavailable") {
		t.Fatalf("failure message not recorded: %v", repo.jobs[0].Message)
	}
	if len(monitor.messages) != 1 {
		t.Fatalf("expected one monitor notification, got %d", len(monitor.messages))
	}
}

func TestRunner_ContainsPanics(t *testing.T) {
	t.Parallel()

	repo := &jobRepoStub{}
	monitor := &monitorStub{}
	runner := newTestRunner(repo, monitor, 0)

	err := runner.Run(context.Background(), jobs.Definition{
		Type: "UPDATE_APPOINTMENTS",
		Work: func(context.Context) error { panic("nil dereference") },
	})
	if err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Fatalf("expected a contained panic, got %v", err)
	}
	if len(repo.jobs) != 1 || repo.jobs[0].Succeeded {
		t.Fatalf("panic must be recorded as a failed attempt: %+v", repo.jobs)
	}
}

func TestRunner_RunWithRetrySecondAttemptSucceeds(t *testing.T) {
	t.Parallel()

	repo := &jobRepoStub{}
	monitor := &monitorStub{}
	runner := newTestRunner(repo, monitor, 1)

	attempts := 0
	err := runner.RunWithRetry(context.Background(), jobs.Definition{
		Type: "CANCEL_APPOINTMENTS",
		Work: func(context.Context) error {
			attempts++
			if attempts == 1 {
				return errors.New("transient")
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("retry should have recovered: %v", err)
	}

	if len(repo.jobs) != 2 {
		t.Fatalf("each attempt writes its own row, got %d", len(repo.jobs))
	}
	if repo.jobs[0].Succeeded || !repo.jobs[1].Succeeded {
		t.Fatalf("expected a failed row then a successful row: %+v", repo.jobs)
	}
	if len(monitor.messages) != 0 {
		t.Fatalf("monitor must stay quiet when a retry recovers: %v", monitor.messages)
	}
}

func TestRunner_RunWithRetryExhaustsBudget(t *testing.T) {
	t.Parallel()

	repo := &jobRepoStub{}
	monitor := &monitorStub{}
	runner := newTestRunner(repo, monitor, 2)

	workErr := errors.New("still broken")
	err := runner.RunWithRetry(context.Background(), jobs.Definition{
		Type: "CANCEL_APPOINTMENTS",
		Work: func(context.Context) error { return workErr },
	})
	if !errors.Is(err, workErr) {
		t.Fatalf("expected the work error, got %v", err)
	}

	if len(repo.jobs) != 3 {
		t.Fatalf("expected 3 attempt rows, got %d", len(repo.jobs))
	}
	if len(monitor.messages) != 1 {
		t.Fatalf("expected a single notification after exhaustion, got %d", len(monitor.messages))
	}
}

func TestRunner_RunChainShortCircuits(t *testing.T) {
	t.Parallel()

	repo := &jobRepoStub{}
	monitor := &monitorStub{}
	runner := newTestRunner(repo, monitor, 0)

	thirdRan := false
	err := runner.RunChain(context.Background(),
		jobs.Definition{Type: "STEP_ONE", Work: func(context.Context) error { return nil }},
		jobs.Definition{Type: "STEP_TWO", Work: func(context.Context) error { return errors.New("boom") }},
		jobs.Definition{Type: "STEP_THREE", Work: func(context.Context) error {
			thirdRan = true
			return nil
		}},
	)
	if err == nil || !strings.Contains(err.Error(), "STEP_TWO") {
		t.Fatalf("expected the chain to stop at STEP_TWO, got %v", err)
	}
	if thirdRan {
		t.Fatal("a step after the failure must not execute")
	}

	if len(repo.jobs) != 3 {
		t.Fatalf("expected 3 rows (success, failure, synthetic), got %d", len(repo.jobs))
	}
	synthetic := repo.jobs[2]
	if synthetic.Type != "STEP_THREE" || synthetic.Succeeded {
		t.Fatalf("skipped step must get a synthetic failed row: %+v", synthetic)
	}
	if synthetic.Message == nil || !strings.Contains(*synthetic.Message, "skipped") {
		t.Fatalf("synthetic row must explain the skip: %v", synthetic.Message)
	}
}

func TestNightly_RunOncePurgesThenSummarises(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, time.January, 10, 2, 0, 0, 0, time.UTC)
	clock := testfixtures.NewClock(now)
	ids := testfixtures.NewIDGenerator("job")

	repo := &jobRepoStub{deleted: 7}
	runner := jobs.NewRunner(repo, &monitorStub{}, nil, ids.NextFunc(), clock.NowFunc(), 0)
	nightly := jobs.NewNightly(runner, repo, nil, clock.NowFunc(), 30*24*time.Hour)

	if err := nightly.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	wantCutoff := now.Add(-30 * 24 * time.Hour)
	if !repo.deleteCutoff.Equal(wantCutoff) {
		t.Fatalf("purge cutoff: got %v want %v", repo.deleteCutoff, wantCutoff)
	}

	if len(repo.jobs) != 2 {
		t.Fatalf("expected purge and summary rows, got %d", len(repo.jobs))
	}
	if repo.jobs[0].Type != jobs.JobTypePurgeHistory || repo.jobs[1].Type != jobs.JobTypeFailedSummary {
		t.Fatalf("unexpected chain order: %s then %s", repo.jobs[0].Type, repo.jobs[1].Type)
	}
	for _, job := range repo.jobs {
		if !job.Succeeded {
			t.Fatalf("expected success rows, got %+v", job)
		}
	}
}
