package appointment

import "time"

// Set groups several independently scheduled one-off series that were created
// in a single user action, so they can be treated as one created and audited
// unit. It has no recurrence of its own.
type Set struct {
	ID           string
	FacilityCode string
	CreatedAt    time.Time
	CreatedBy    string
	Series       []*Series
}

// AddSeries attaches a series to the set and stamps the back reference.
func (s *Set) AddSeries(series *Series) {
	setID := s.ID
	series.SetID = &setID
	s.Series = append(s.Series, series)
}

// SeriesIDs returns the ids of the owned series in creation order.
func (s *Set) SeriesIDs() []string {
	ids := make([]string, 0, len(s.Series))
	for _, series := range s.Series {
		ids = append(ids, series.ID)
	}
	return ids
}
