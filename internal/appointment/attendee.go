package appointment

import "time"

// Attendee is one person's attendance record on one occurrence. A person can
// accumulate several records on the same occurrence over time: removal marks
// the record rather than deleting it, and a later re-add soft-deletes the
// removed record before inserting a fresh one.
type Attendee struct {
	ID            string
	PersonID      string
	BookingID     int64
	AddedAt       time.Time
	AddedBy       string
	RemovedAt     *time.Time
	RemovalReason *string
	RemovedBy     *string
	Deleted       bool
}

// IsRemoved reports whether the record carries a removal stamp.
func (a *Attendee) IsRemoved() bool {
	return a != nil && a.RemovedAt != nil
}

// IsActive reports whether the record represents current attendance: not
// soft-deleted and not removed.
func (a *Attendee) IsActive() bool {
	return a != nil && !a.Deleted && a.RemovedAt == nil
}

func (a *Attendee) remove(at time.Time, reason, actor string) {
	removedAt := at
	a.RemovedAt = &removedAt
	if reason != "" {
		a.RemovalReason = &reason
	}
	if actor != "" {
		a.RemovedBy = &actor
	}
}
