package persistence

import (
	"context"
	"time"

	"github.com/example/appointment-scheduler/internal/appointment"
)

// SeriesRepository stores appointment series aggregates. A series is loaded
// and saved whole, occurrences and attendees included, so invariant checks
// always see the full aggregate.
type SeriesRepository interface {
	CreateSeries(ctx context.Context, series *appointment.Series) error
	SaveSeries(ctx context.Context, series *appointment.Series) error
	GetSeries(ctx context.Context, id string) (*appointment.Series, error)
	GetSeriesByOccurrence(ctx context.Context, occurrenceID string) (*appointment.Series, error)
	ListSeriesForFacility(ctx context.Context, facilityCode string) ([]*appointment.Series, error)
}

// SetRepository stores appointment sets. The owned series are created through
// the SeriesRepository; the set row only records the grouping.
type SetRepository interface {
	CreateSet(ctx context.Context, set *appointment.Set) error
	GetSet(ctx context.Context, id string) (*appointment.Set, error)
}

// JobRepository stores background job execution records.
type JobRepository interface {
	CreateJob(ctx context.Context, job Job) error
	ListJobs(ctx context.Context, filter JobFilter) ([]Job, error)
	DeleteJobsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
