package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/appointment-scheduler/internal/appointment"
	"github.com/example/appointment-scheduler/internal/persistence"
	"github.com/example/appointment-scheduler/internal/recurrence"
)

var (
	seriesCounter uint64
	jobCounter    uint64
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ---------------------------- Series fixtures ----------------------------

// SeriesFixture describes a deterministic appointment series that can be
// materialised for application or persistence tests.
type SeriesFixture struct {
	ID           string
	FacilityCode string
	CategoryCode string
	TierCode     string
	OrganiserID  *string
	Kind         appointment.Type
	LocationID   *int64
	InCell       bool
	StartDate    time.Time
	StartTime    string
	EndTime      string
	Rule         *recurrence.Rule
	Notes        string
	CreatedAt    time.Time
	CreatedBy    string
	Attendees    []AttendeeFixture
}

// AttendeeFixture describes one person attending every occurrence of the
// materialised series.
type AttendeeFixture struct {
	PersonID  string
	BookingID int64
}

// SeriesOption configures the generated series fixture.
type SeriesOption func(*SeriesFixture)

// NewSeriesFixture returns a deterministic series fixture with optional
// overrides. The default is a three occurrence weekly group appointment with
// a single attendee.
func NewSeriesFixture(opts ...SeriesOption) SeriesFixture {
	idx := atomic.AddUint64(&seriesCounter, 1)
	locationID := int64(27)
	fixture := SeriesFixture{
		ID:           fmt.Sprintf("series-%03d", idx),
		FacilityCode: "MDI",
		CategoryCode: "CHAP",
		TierCode:     "1",
		Kind:         appointment.TypeGroup,
		LocationID:   &locationID,
		StartDate:    recurrence.DateOnly(referenceTime.AddDate(0, 0, 7)),
		StartTime:    "09:00",
		EndTime:      "10:30",
		Rule:         &recurrence.Rule{Frequency: recurrence.FrequencyWeekly, Count: 3},
		CreatedAt:    referenceTime,
		CreatedBy:    "TEST.USER",
		Attendees:    []AttendeeFixture{{PersonID: "A1234BC", BookingID: 10001}},
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSeriesID overrides the generated series ID.
func WithSeriesID(id string) SeriesOption {
	return func(f *SeriesFixture) {
		f.ID = id
	}
}

// WithFacility sets the facility code.
func WithFacility(code string) SeriesOption {
	return func(f *SeriesFixture) {
		f.FacilityCode = code
	}
}

// WithCategory sets the category code.
func WithCategory(code string) SeriesOption {
	return func(f *SeriesFixture) {
		f.CategoryCode = code
	}
}

// WithTier sets the tier code.
func WithTier(code string) SeriesOption {
	return func(f *SeriesFixture) {
		f.TierCode = code
	}
}

// WithOrganiser sets the organiser and tier 2 in one step.
func WithOrganiser(organiserID string) SeriesOption {
	return func(f *SeriesFixture) {
		f.TierCode = appointment.TierWithOrganiser
		id := organiserID
		f.OrganiserID = &id
	}
}

// WithKind sets the appointment kind.
func WithKind(kind appointment.Type) SeriesOption {
	return func(f *SeriesFixture) {
		f.Kind = kind
	}
}

// WithLocation sets the location identifier.
func WithLocation(locationID int64) SeriesOption {
	return func(f *SeriesFixture) {
		id := locationID
		f.LocationID = &id
		f.InCell = false
	}
}

// InCell marks the fixture as an in cell appointment without a location.
func InCell() SeriesOption {
	return func(f *SeriesFixture) {
		f.LocationID = nil
		f.InCell = true
	}
}

// WithStartDate sets the first occurrence date.
func WithStartDate(date time.Time) SeriesOption {
	return func(f *SeriesFixture) {
		f.StartDate = recurrence.DateOnly(date)
	}
}

// WithTimes sets the start and end times of day.
func WithTimes(start, end string) SeriesOption {
	return func(f *SeriesFixture) {
		f.StartTime = start
		f.EndTime = end
	}
}

// WithRule sets the recurrence rule.
func WithRule(frequency recurrence.Frequency, count int) SeriesOption {
	return func(f *SeriesFixture) {
		f.Rule = &recurrence.Rule{Frequency: frequency, Count: count}
	}
}

// OneOff clears the recurrence rule so a single occurrence is materialised.
func OneOff() SeriesOption {
	return func(f *SeriesFixture) {
		f.Rule = nil
	}
}

// WithNotes sets the series notes.
func WithNotes(notes string) SeriesOption {
	return func(f *SeriesFixture) {
		f.Notes = notes
	}
}

// WithCreatedBy sets the creating username.
func WithCreatedBy(username string) SeriesOption {
	return func(f *SeriesFixture) {
		f.CreatedBy = username
	}
}

// WithAttendees replaces the attendee list applied to every occurrence.
func WithAttendees(attendees ...AttendeeFixture) SeriesOption {
	return func(f *SeriesFixture) {
		f.Attendees = append([]AttendeeFixture(nil), attendees...)
	}
}

// WithoutAttendees clears the attendee list.
func WithoutAttendees() SeriesOption {
	return func(f *SeriesFixture) {
		f.Attendees = nil
	}
}

// Build materialises the fixture into a full aggregate with occurrences and
// attendees. Identifiers for children are derived from the series ID.
func (f SeriesFixture) Build() *appointment.Series {
	series := &appointment.Series{
		ID:           f.ID,
		FacilityCode: f.FacilityCode,
		CategoryCode: f.CategoryCode,
		TierCode:     f.TierCode,
		OrganiserID:  f.OrganiserID,
		Kind:         f.Kind,
		LocationID:   f.LocationID,
		InCell:       f.InCell,
		StartDate:    f.StartDate,
		StartTime:    f.StartTime,
		EndTime:      f.EndTime,
		Rule:         f.Rule,
		Notes:        f.Notes,
		CreatedAt:    f.CreatedAt,
		CreatedBy:    f.CreatedBy,
	}
	for sequence, date := range series.PlannedDates() {
		occurrence := series.NewOccurrence(fmt.Sprintf("%s-occ-%d", f.ID, sequence), sequence, date)
		if err := series.AddOccurrence(occurrence); err != nil {
			panic(fmt.Sprintf("testfixtures: build series %s: %v", f.ID, err))
		}
		for i, attendee := range f.Attendees {
			attendeeID := fmt.Sprintf("%s-att-%d-%d", f.ID, sequence, i+1)
			if _, err := series.AddAttendee(occurrence.ID, attendeeID, attendee.PersonID, attendee.BookingID, f.CreatedAt, f.CreatedBy); err != nil {
				panic(fmt.Sprintf("testfixtures: build series %s: %v", f.ID, err))
			}
		}
	}
	return series
}

// ------------------------------ Job fixtures -----------------------------

// JobFixture describes a deterministic background job record.
type JobFixture struct {
	ID         string
	Type       string
	Succeeded  bool
	Message    *string
	StartedAt  time.Time
	FinishedAt time.Time
	CreatedAt  time.Time
}

// JobOption configures the generated job fixture.
type JobOption func(*JobFixture)

// NewJobFixture returns a deterministic job fixture with optional overrides.
func NewJobFixture(opts ...JobOption) JobFixture {
	idx := atomic.AddUint64(&jobCounter, 1)
	started := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := JobFixture{
		ID:         fmt.Sprintf("job-%03d", idx),
		Type:       "CANCEL_APPOINTMENTS",
		Succeeded:  true,
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
		CreatedAt:  started,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithJobID overrides the generated job ID.
func WithJobID(id string) JobOption {
	return func(f *JobFixture) {
		f.ID = id
	}
}

// WithJobType sets the job type.
func WithJobType(jobType string) JobOption {
	return func(f *JobFixture) {
		f.Type = jobType
	}
}

// Failed marks the job as failed with the given message.
func Failed(message string) JobOption {
	return func(f *JobFixture) {
		f.Succeeded = false
		msg := message
		f.Message = &msg
	}
}

// WithJobCreatedAt sets the created timestamp.
func WithJobCreatedAt(t time.Time) JobOption {
	return func(f *JobFixture) {
		f.CreatedAt = t
	}
}

// Persistence returns the fixture as a persistence.Job value.
func (f JobFixture) Persistence() persistence.Job {
	var message *string
	if f.Message != nil {
		msg := *f.Message
		message = &msg
	}
	return persistence.Job{
		ID:         f.ID,
		Type:       f.Type,
		Succeeded:  f.Succeeded,
		Message:    message,
		StartedAt:  f.StartedAt,
		FinishedAt: f.FinishedAt,
		CreatedAt:  f.CreatedAt,
	}
}
