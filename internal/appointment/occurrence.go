package appointment

import (
	"time"
)

// EditableWindow is how far in the past an occurrence may start and still be
// mutable: a five day grace window plus the day itself.
const EditableWindow = 6 * 24 * time.Hour

// Occurrence is one concrete dated instance generated from a series. Category,
// tier, organiser and location are copied from the series template at creation
// time so later template edits do not rewrite history.
type Occurrence struct {
	ID             string
	SeriesID       string
	SequenceNumber int

	CategoryCode string
	TierCode     string
	OrganiserID  *string
	LocationID   *int64
	InCell       bool

	Date      time.Time
	StartTime string
	EndTime   string
	Notes     string

	CancelledAt        *time.Time
	CancelledBy        *string
	CancellationReason *string
	Deleted            bool

	UpdatedAt *time.Time
	UpdatedBy *string

	Attendees []*Attendee
}

// StartDateTime combines the occurrence date with its start time of day.
func (o *Occurrence) StartDateTime() time.Time {
	return combineDateTime(o.Date, o.StartTime)
}

// EndDateTime combines the occurrence date with its end time of day.
func (o *Occurrence) EndDateTime() time.Time {
	return combineDateTime(o.Date, o.EndTime)
}

// IsCancelled reports whether the occurrence was cancelled. A hard-deleted
// occurrence is reported as deleted, never as cancelled.
func (o *Occurrence) IsCancelled() bool {
	return o != nil && o.CancelledAt != nil && !o.Deleted
}

// IsDeleted reports whether the occurrence was removed as created in error.
func (o *Occurrence) IsDeleted() bool {
	return o != nil && o.Deleted
}

// IsScheduled reports whether the occurrence still lies in the future and has
// been neither cancelled nor deleted.
func (o *Occurrence) IsScheduled(now time.Time) bool {
	return o != nil && !o.Deleted && o.CancelledAt == nil && o.StartDateTime().After(now)
}

// IsEditable reports whether the occurrence start falls within the editable
// window relative to now.
func (o *Occurrence) IsEditable(now time.Time) bool {
	return o != nil && !o.StartDateTime().Before(now.Add(-EditableWindow))
}

// ActiveAttendeeCount counts attendance records that are neither removed nor
// soft-deleted. This is the per-occurrence unit of bulk mutation cost.
func (o *Occurrence) ActiveAttendeeCount() int {
	count := 0
	for _, attendee := range o.Attendees {
		if attendee.IsActive() {
			count++
		}
	}
	return count
}

// ActiveAttendee returns the current attendance record for a person, if any.
func (o *Occurrence) ActiveAttendee(personID string) *Attendee {
	for _, attendee := range o.Attendees {
		if attendee.PersonID == personID && attendee.IsActive() {
			return attendee
		}
	}
	return nil
}

func (o *Occurrence) cancel(at time.Time, actor, reason string, deleted bool) {
	cancelledAt := at
	o.CancelledAt = &cancelledAt
	if actor != "" {
		o.CancelledBy = &actor
	}
	if reason != "" {
		o.CancellationReason = &reason
	}
	o.Deleted = deleted
}

func (o *Occurrence) uncancel(at time.Time, actor string) {
	// A hard-deleted occurrence stays deleted.
	if o.Deleted {
		return
	}
	o.CancelledAt = nil
	o.CancelledBy = nil
	o.CancellationReason = nil
	o.markEdited(at, actor)
}

func (o *Occurrence) markEdited(at time.Time, actor string) {
	updatedAt := at
	o.UpdatedAt = &updatedAt
	if actor != "" {
		o.UpdatedBy = &actor
	}
}

// combineDateTime builds a UTC timestamp from a date and an "HH:MM" time of
// day. An unparsable time of day falls back to midnight.
func combineDateTime(date time.Time, timeOfDay string) time.Time {
	parsed, err := time.Parse("15:04", timeOfDay)
	if err != nil {
		return date
	}
	y, m, d := date.UTC().Date()
	return time.Date(y, m, d, parsed.Hour(), parsed.Minute(), 0, 0, time.UTC)
}
