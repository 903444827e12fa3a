package application

import (
	"time"

	"github.com/example/appointment-scheduler/internal/appointment"
)

// Principal identifies the staff member performing an operation. Every
// mutation records the username in the audit stamps.
type Principal struct {
	Username string
}

// RepeatInput describes the recurrence of a new series.
type RepeatInput struct {
	Frequency string
	Count     int
}

// SeriesInput carries the fields of a new appointment series.
type SeriesInput struct {
	FacilityCode      string
	CategoryCode      string
	TierCode          string
	CustomName        string
	OrganiserID       *string
	Kind              string
	LocationID        *int64
	InCell            bool
	StartDate         time.Time
	StartTime         string
	EndTime           string
	Repeat            *RepeatInput
	Notes             string
	AttendeePersonIDs []string
}

// CreateSeriesParams wraps the input and acting principal for series creation.
type CreateSeriesParams struct {
	Principal Principal
	Input     SeriesInput
}

// CreateSeriesResult reports what series creation materialized. When the
// instance count exceeded the bulk threshold only the first occurrence was
// materialized synchronously and the remaining dates are filled in by a
// tracked background job.
type CreateSeriesResult struct {
	Series       *appointment.Series
	Asynchronous bool
}

// CreateSetParams creates several one-off series as one audited unit.
type CreateSetParams struct {
	Principal    Principal
	FacilityCode string
	Series       []SeriesInput
}

// CancelOccurrencesParams cancels the occurrences a scope resolves to.
type CancelOccurrencesParams struct {
	Principal    Principal
	OccurrenceID string
	Scope        string
	Reason       string
	Delete       bool
}

// UncancelOccurrencesParams restores the occurrences a scope resolves to.
type UncancelOccurrencesParams struct {
	Principal    Principal
	OccurrenceID string
	Scope        string
}

// OccurrenceUpdateInput carries the editable occurrence fields. Nil fields
// leave the current value untouched.
type OccurrenceUpdateInput struct {
	Date       *time.Time
	StartTime  *string
	EndTime    *string
	LocationID *int64
	Notes      *string
}

// UpdateOccurrencesParams edits the occurrences a scope resolves to.
type UpdateOccurrencesParams struct {
	Principal    Principal
	OccurrenceID string
	Scope        string
	Input        OccurrenceUpdateInput
}

// MutationResult reports what a scoped mutation touched. When the instance
// count exceeded the bulk threshold only the target occurrence was mutated
// synchronously and the rest completes in a tracked background job.
type MutationResult struct {
	SeriesID     string
	AffectedIDs  []string
	Asynchronous bool
}

// ListJobsParams narrows the job list.
type ListJobsParams struct {
	Type       string
	OnlyFailed bool
}
