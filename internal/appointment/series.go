package appointment

import (
	"errors"
	"fmt"
	"iter"
	"sort"
	"time"

	"github.com/example/appointment-scheduler/internal/recurrence"
)

// Type distinguishes single-attendee appointments from group appointments.
type Type string

const (
	// TypeIndividual series carry exactly one attendee per occurrence.
	TypeIndividual Type = "INDIVIDUAL"
	// TypeGroup series accept any number of attendees per occurrence.
	TypeGroup Type = "GROUP"
)

// TierWithOrganiser is the only tier designation that permits an organiser.
const TierWithOrganiser = "2"

var (
	// ErrOrganiserNotAllowed is returned when an organiser is assigned to a
	// series whose tier does not permit one.
	ErrOrganiserNotAllowed = errors.New("appointment: organiser can only be set on a tier 2 series")
	// ErrOccurrenceNotFound is returned when an occurrence id does not belong
	// to the series.
	ErrOccurrenceNotFound = errors.New("appointment: occurrence not found in series")
	// ErrDuplicateSequence is returned when an occurrence reuses a sequence
	// number already present in the series.
	ErrDuplicateSequence = errors.New("appointment: duplicate occurrence sequence number")
	// ErrSecondAttendee is returned when a second person is added to an
	// occurrence of an individual series.
	ErrSecondAttendee = errors.New("appointment: an individual appointment accepts only one attendee")
)

// Series is the aggregate root for a recurring appointment. It owns its
// occurrences and their attendees; all mutations go through the aggregate so
// the per-person attendance invariants hold.
type Series struct {
	ID           string
	SetID        *string
	FacilityCode string
	CategoryCode string
	TierCode     string
	CustomName   string
	OrganiserID  *string
	Kind         Type
	LocationID   *int64
	InCell       bool

	StartDate time.Time
	StartTime string
	EndTime   string
	Rule      *recurrence.Rule
	Notes     string

	CreatedAt time.Time
	CreatedBy string
	UpdatedAt *time.Time
	UpdatedBy *string

	CancelledAt   *time.Time
	CancelledBy   *string
	CancelledFrom *time.Time

	Occurrences []*Occurrence
}

// EffectiveRule returns the recurrence rule, defaulting an absent rule to a
// single daily occurrence.
func (s *Series) EffectiveRule() recurrence.Rule {
	if s.Rule == nil {
		return recurrence.Rule{Frequency: recurrence.FrequencyDaily, Count: 1}
	}
	return *s.Rule
}

// PlannedDates returns the restartable (sequence, date) sequence the series
// materializes occurrences from.
func (s *Series) PlannedDates() iter.Seq2[int, time.Time] {
	return recurrence.Dates(s.StartDate, s.EffectiveRule())
}

// SetOrganiser assigns an organiser, enforcing the tier gate at assignment
// time rather than at save time.
func (s *Series) SetOrganiser(organiserID string) error {
	if s.TierCode != TierWithOrganiser {
		return ErrOrganiserNotAllowed
	}
	s.OrganiserID = &organiserID
	return nil
}

// NewOccurrence builds an occurrence from the series template for the given
// sequence number and date, copying the denormalized template fields.
func (s *Series) NewOccurrence(id string, sequence int, date time.Time) *Occurrence {
	return &Occurrence{
		ID:             id,
		SeriesID:       s.ID,
		SequenceNumber: sequence,
		CategoryCode:   s.CategoryCode,
		TierCode:       s.TierCode,
		OrganiserID:    cloneStringPtr(s.OrganiserID),
		LocationID:     cloneInt64Ptr(s.LocationID),
		InCell:         s.InCell,
		Date:           date,
		StartTime:      s.StartTime,
		EndTime:        s.EndTime,
		Notes:          s.Notes,
	}
}

// AddOccurrence appends an occurrence, keeping the collection ordered by
// sequence number.
func (s *Series) AddOccurrence(occurrence *Occurrence) error {
	for _, existing := range s.Occurrences {
		if existing.SequenceNumber == occurrence.SequenceNumber {
			return fmt.Errorf("%w: %d", ErrDuplicateSequence, occurrence.SequenceNumber)
		}
	}
	occurrence.SeriesID = s.ID
	s.Occurrences = append(s.Occurrences, occurrence)
	sort.Slice(s.Occurrences, func(i, j int) bool {
		return s.Occurrences[i].SequenceNumber < s.Occurrences[j].SequenceNumber
	})
	return nil
}

// Occurrence returns the occurrence with the given id.
func (s *Series) Occurrence(id string) (*Occurrence, bool) {
	for _, occurrence := range s.Occurrences {
		if occurrence.ID == id {
			return occurrence, true
		}
	}
	return nil, false
}

// ScheduledOccurrences returns occurrences that are still scheduled relative
// to now, in sequence order.
func (s *Series) ScheduledOccurrences(now time.Time) []*Occurrence {
	var out []*Occurrence
	for _, occurrence := range s.Occurrences {
		if occurrence.IsScheduled(now) {
			out = append(out, occurrence)
		}
	}
	return out
}

// CancelledOccurrences returns cancelled (not deleted) occurrences in
// sequence order.
func (s *Series) CancelledOccurrences() []*Occurrence {
	var out []*Occurrence
	for _, occurrence := range s.Occurrences {
		if occurrence.IsCancelled() {
			out = append(out, occurrence)
		}
	}
	return out
}

// OccurrencesOnOrAfter returns non-deleted occurrences starting at or after
// the given instant, in sequence order.
func (s *Series) OccurrencesOnOrAfter(t time.Time) []*Occurrence {
	var out []*Occurrence
	for _, occurrence := range s.Occurrences {
		if occurrence.Deleted {
			continue
		}
		if !occurrence.StartDateTime().Before(t) {
			out = append(out, occurrence)
		}
	}
	return out
}

// AddAttendee records a person's attendance on an occurrence. The operation
// is idempotent per (occurrence, person): a nil attendee with a nil error
// signals the person was already attending. Any removed records for the
// person are soft-deleted before the fresh record is inserted.
func (s *Series) AddAttendee(occurrenceID, attendeeID, personID string, bookingID int64, now time.Time, actor string) (*Attendee, error) {
	occurrence, ok := s.Occurrence(occurrenceID)
	if !ok {
		return nil, ErrOccurrenceNotFound
	}

	if existing := occurrence.ActiveAttendee(personID); existing != nil {
		return nil, nil
	}

	if s.Kind == TypeIndividual && occurrence.ActiveAttendeeCount() > 0 {
		return nil, ErrSecondAttendee
	}

	for _, attendee := range occurrence.Attendees {
		if attendee.PersonID == personID && !attendee.Deleted {
			attendee.Deleted = true
		}
	}

	attendee := &Attendee{
		ID:        attendeeID,
		PersonID:  personID,
		BookingID: bookingID,
		AddedAt:   now,
		AddedBy:   actor,
	}
	occurrence.Attendees = append(occurrence.Attendees, attendee)
	return attendee, nil
}

// RemoveAttendee stamps every live attendance record for the person on the
// occurrence as removed. It returns the number of records stamped.
func (s *Series) RemoveAttendee(occurrenceID, personID, reason, actor string, now time.Time) (int, error) {
	occurrence, ok := s.Occurrence(occurrenceID)
	if !ok {
		return 0, ErrOccurrenceNotFound
	}

	removed := 0
	for _, attendee := range occurrence.Attendees {
		if attendee.PersonID == personID && attendee.IsActive() {
			attendee.remove(now, reason, actor)
			removed++
		}
	}
	return removed, nil
}

// OccurrenceUpdate carries the editable fields of an occurrence. Nil fields
// leave the current value untouched.
type OccurrenceUpdate struct {
	Date       *time.Time
	StartTime  *string
	EndTime    *string
	LocationID *int64
	Notes      *string
}

// CancelOccurrence stamps one occurrence as cancelled. With deleted set the
// occurrence is removed as created in error instead.
func (s *Series) CancelOccurrence(id string, now time.Time, actor, reason string, deleted bool) error {
	occurrence, ok := s.Occurrence(id)
	if !ok {
		return ErrOccurrenceNotFound
	}
	occurrence.cancel(now, actor, reason, deleted)
	return nil
}

// UncancelOccurrence restores one cancelled occurrence to the scheduled state.
func (s *Series) UncancelOccurrence(id string, now time.Time, actor string) error {
	occurrence, ok := s.Occurrence(id)
	if !ok {
		return ErrOccurrenceNotFound
	}
	occurrence.uncancel(now, actor)
	return nil
}

// UpdateOccurrence applies the non-nil fields of the update to one occurrence
// and records the edit stamp.
func (s *Series) UpdateOccurrence(id string, update OccurrenceUpdate, now time.Time, actor string) error {
	occurrence, ok := s.Occurrence(id)
	if !ok {
		return ErrOccurrenceNotFound
	}
	if update.Date != nil {
		occurrence.Date = *update.Date
	}
	if update.StartTime != nil {
		occurrence.StartTime = *update.StartTime
	}
	if update.EndTime != nil {
		occurrence.EndTime = *update.EndTime
	}
	if update.LocationID != nil {
		occurrence.LocationID = cloneInt64Ptr(update.LocationID)
	}
	if update.Notes != nil {
		occurrence.Notes = *update.Notes
	}
	occurrence.markEdited(now, actor)
	return nil
}

// Cancel stamps the series itself as cancelled from the given instant onward.
// Individual occurrences are cancelled through the scope resolver; this stamp
// records that the series as a whole was closed down.
func (s *Series) Cancel(now time.Time, actor string, from time.Time) {
	cancelledAt := now
	s.CancelledAt = &cancelledAt
	if actor != "" {
		s.CancelledBy = &actor
	}
	effective := from
	s.CancelledFrom = &effective
}

func cloneStringPtr(value *string) *string {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}

func cloneInt64Ptr(value *int64) *int64 {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
