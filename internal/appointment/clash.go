package appointment

// ClashType describes the kind of double booking detected between occurrences.
type ClashType string

const (
	// ClashTypeAttendee indicates a person is booked on two overlapping occurrences.
	ClashTypeAttendee ClashType = "attendee"
	// ClashTypeLocation indicates a location hosts two overlapping occurrences.
	ClashTypeLocation ClashType = "location"
)

// Clash details an overlapping occurrence relation that callers can present
// to users as a warning. Clashes never block a booking.
type Clash struct {
	WithOccurrenceID string
	Type             ClashType
	PersonID         string
	LocationID       *int64
}

// DetectClashes identifies double bookings for the candidate occurrence
// against existing ones. Cancelled and deleted occurrences never clash, and
// an occurrence does not clash with itself.
func DetectClashes(existing []*Occurrence, candidate *Occurrence) []Clash {
	if candidate == nil || candidate.Deleted || candidate.CancelledAt != nil {
		return nil
	}

	var clashes []Clash
	for _, occurrence := range existing {
		if occurrence == nil || occurrence.ID == candidate.ID {
			continue
		}
		if occurrence.Deleted || occurrence.CancelledAt != nil {
			continue
		}
		if !overlaps(occurrence, candidate) {
			continue
		}

		if occurrence.LocationID != nil && candidate.LocationID != nil &&
			*occurrence.LocationID == *candidate.LocationID {
			id := *occurrence.LocationID
			clashes = append(clashes, Clash{
				WithOccurrenceID: occurrence.ID,
				Type:             ClashTypeLocation,
				LocationID:       &id,
			})
		}

		for _, attendee := range candidate.Attendees {
			if !attendee.IsActive() {
				continue
			}
			if other := occurrence.ActiveAttendee(attendee.PersonID); other != nil {
				clashes = append(clashes, Clash{
					WithOccurrenceID: occurrence.ID,
					Type:             ClashTypeAttendee,
					PersonID:         attendee.PersonID,
				})
			}
		}
	}
	return clashes
}

func overlaps(a, b *Occurrence) bool {
	aStart, aEnd := a.StartDateTime(), a.EndDateTime()
	bStart, bEnd := b.StartDateTime(), b.EndDateTime()
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
