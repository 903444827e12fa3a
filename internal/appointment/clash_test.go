package appointment

import (
	"testing"
	"time"
)

func clashOccurrence(t *testing.T, id string, locationID int64, start, end string, people ...string) *Occurrence {
	t.Helper()

	occurrence := &Occurrence{
		ID:         id,
		Date:       time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		StartTime:  start,
		EndTime:    end,
		LocationID: &locationID,
	}
	for _, personID := range people {
		occurrence.Attendees = append(occurrence.Attendees, &Attendee{
			ID:       id + "-att-" + personID,
			PersonID: personID,
			AddedAt:  time.Date(2023, time.December, 1, 12, 0, 0, 0, time.UTC),
			AddedBy:  "TEST.USER",
		})
	}
	return occurrence
}

func TestDetectClashes_AttendeeDoubleBooked(t *testing.T) {
	t.Parallel()

	existing := []*Occurrence{
		clashOccurrence(t, "occ-1", 27, "09:00", "10:00", "A1234BC"),
	}
	candidate := clashOccurrence(t, "occ-2", 35, "09:30", "10:30", "A1234BC")

	clashes := DetectClashes(existing, candidate)
	if len(clashes) != 1 {
		t.Fatalf("expected one clash, got %v", clashes)
	}
	if clashes[0].Type != ClashTypeAttendee || clashes[0].PersonID != "A1234BC" {
		t.Fatalf("unexpected clash: %+v", clashes[0])
	}
	if clashes[0].WithOccurrenceID != "occ-1" {
		t.Fatalf("unexpected clash partner: %+v", clashes[0])
	}
}

func TestDetectClashes_LocationDoubleBooked(t *testing.T) {
	t.Parallel()

	existing := []*Occurrence{
		clashOccurrence(t, "occ-1", 27, "09:00", "10:00", "A1234BC"),
	}
	candidate := clashOccurrence(t, "occ-2", 27, "09:30", "10:30", "B5678CD")

	clashes := DetectClashes(existing, candidate)
	if len(clashes) != 1 {
		t.Fatalf("expected one clash, got %v", clashes)
	}
	if clashes[0].Type != ClashTypeLocation {
		t.Fatalf("unexpected clash: %+v", clashes[0])
	}
	if clashes[0].LocationID == nil || *clashes[0].LocationID != 27 {
		t.Fatalf("location not reported: %+v", clashes[0])
	}
}

func TestDetectClashes_NoOverlapNoClash(t *testing.T) {
	t.Parallel()

	existing := []*Occurrence{
		clashOccurrence(t, "occ-1", 27, "09:00", "10:00", "A1234BC"),
	}
	candidate := clashOccurrence(t, "occ-2", 27, "10:00", "11:00", "A1234BC")

	if clashes := DetectClashes(existing, candidate); clashes != nil {
		t.Fatalf("back to back occurrences must not clash, got %v", clashes)
	}
}

func TestDetectClashes_CancelledOccurrencesIgnored(t *testing.T) {
	t.Parallel()

	cancelled := clashOccurrence(t, "occ-1", 27, "09:00", "10:00", "A1234BC")
	cancelledAt := time.Date(2023, time.December, 20, 9, 0, 0, 0, time.UTC)
	cancelled.CancelledAt = &cancelledAt

	candidate := clashOccurrence(t, "occ-2", 27, "09:00", "10:00", "A1234BC")

	if clashes := DetectClashes([]*Occurrence{cancelled}, candidate); clashes != nil {
		t.Fatalf("cancelled occurrences must not clash, got %v", clashes)
	}
}

func TestDetectClashes_RemovedAttendeeIgnored(t *testing.T) {
	t.Parallel()

	existing := clashOccurrence(t, "occ-1", 27, "09:00", "10:00", "A1234BC")
	removedAt := time.Date(2023, time.December, 20, 9, 0, 0, 0, time.UTC)
	existing.Attendees[0].RemovedAt = &removedAt

	candidate := clashOccurrence(t, "occ-2", 35, "09:00", "10:00", "A1234BC")

	if clashes := DetectClashes([]*Occurrence{existing}, candidate); clashes != nil {
		t.Fatalf("removed attendance must not clash, got %v", clashes)
	}
}
