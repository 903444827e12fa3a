package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/example/appointment-scheduler/internal/persistence"
)

// JobRepository implements persistence.JobRepository on SQLite.
type JobRepository struct {
	db *sql.DB
}

// NewJobRepository creates a SQLite-backed job repository.
func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

// CreateJob inserts one job execution record.
func (r *JobRepository) CreateJob(ctx context.Context, job persistence.Job) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, job_type, succeeded, message, started_at, finished_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.Type,
		job.Succeeded,
		nullString(job.Message),
		job.StartedAt.UTC().Format(timeFormat),
		job.FinishedAt.UTC().Format(timeFormat),
		job.CreatedAt.UTC().Format(timeFormat),
	)
	return mapError(err)
}

// ListJobs returns job records matching the filter, newest first.
func (r *JobRepository) ListJobs(ctx context.Context, filter persistence.JobFilter) ([]persistence.Job, error) {
	query := `SELECT id, job_type, succeeded, message, started_at, finished_at, created_at FROM jobs`

	var conditions []string
	var args []any
	if filter.Type != "" {
		conditions = append(conditions, "job_type = ?")
		args = append(args, filter.Type)
	}
	if filter.OnlyFailed {
		conditions = append(conditions, "succeeded = 0")
	}
	if filter.CreatedAfter != nil {
		conditions = append(conditions, "created_at > ?")
		args = append(args, filter.CreatedAfter.UTC().Format(timeFormat))
	}
	if filter.CreatedBefore != nil {
		conditions = append(conditions, "created_at < ?")
		args = append(args, filter.CreatedBefore.UTC().Format(timeFormat))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var jobs []persistence.Job
	for rows.Next() {
		var job persistence.Job
		var message sql.NullString
		var startedAtStr, finishedAtStr, createdAtStr string

		err := rows.Scan(&job.ID, &job.Type, &job.Succeeded, &message, &startedAtStr, &finishedAtStr, &createdAtStr)
		if err != nil {
			return nil, mapError(err)
		}

		job.Message = stringPtr(message)
		if job.StartedAt, err = parseTimestamp(startedAtStr); err != nil {
			return nil, err
		}
		if job.FinishedAt, err = parseTimestamp(finishedAtStr); err != nil {
			return nil, err
		}
		if job.CreatedAt, err = parseTimestamp(createdAtStr); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, mapError(rows.Err())
}

// DeleteJobsBefore removes job records created before the cutoff and reports
// how many were removed.
func (r *JobRepository) DeleteJobsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE created_at < ?`, cutoff.UTC().Format(timeFormat))
	if err != nil {
		return 0, mapError(err)
	}
	return result.RowsAffected()
}
