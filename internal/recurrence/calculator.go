package recurrence

import (
	"errors"
	"iter"
	"time"
)

// Frequency represents supported repeat intervals for an appointment series.
type Frequency int

const (
	// FrequencyUnspecified indicates the frequency is not set.
	FrequencyUnspecified Frequency = iota
	// FrequencyDaily generates one occurrence per calendar day.
	FrequencyDaily
	// FrequencyWeekday generates occurrences on Monday to Friday only.
	FrequencyWeekday
	// FrequencyWeekly generates one occurrence per week.
	FrequencyWeekly
	// FrequencyFortnightly generates one occurrence every two weeks.
	FrequencyFortnightly
	// FrequencyMonthly generates one occurrence per calendar month.
	FrequencyMonthly
)

var frequencyNames = map[Frequency]string{
	FrequencyDaily:       "DAILY",
	FrequencyWeekday:     "WEEKDAY",
	FrequencyWeekly:      "WEEKLY",
	FrequencyFortnightly: "FORTNIGHTLY",
	FrequencyMonthly:     "MONTHLY",
}

var frequencyFromName = map[string]Frequency{
	"DAILY":       FrequencyDaily,
	"WEEKDAY":     FrequencyWeekday,
	"WEEKLY":      FrequencyWeekly,
	"FORTNIGHTLY": FrequencyFortnightly,
	"MONTHLY":     FrequencyMonthly,
}

// String returns the canonical upper case name of the frequency.
func (f Frequency) String() string {
	if name, ok := frequencyNames[f]; ok {
		return name
	}
	return "UNSPECIFIED"
}

// ParseFrequency resolves a canonical frequency name such as "WEEKLY".
func ParseFrequency(name string) (Frequency, error) {
	if f, ok := frequencyFromName[name]; ok {
		return f, nil
	}
	return FrequencyUnspecified, ErrInvalidFrequency
}

// ErrInvalidFrequency indicates the frequency is not supported.
var ErrInvalidFrequency = errors.New("recurrence: invalid frequency")

// ErrInvalidSequence indicates a sequence number below one was requested.
var ErrInvalidSequence = errors.New("recurrence: sequence number must be at least 1")

// Rule pairs a frequency with the number of occurrences a series materializes.
type Rule struct {
	Frequency Frequency
	Count     int
}

// DateAt returns the date of the occurrence with the given 1-based sequence
// number. The calculation is pure: it depends only on the start date, the
// sequence number and the frequency.
//
// For FrequencyWeekday two special cases apply when the start date falls on a
// weekend: sequence 1 returns the start date unchanged, and sequences from 2
// onward anchor to the Friday preceding the start date.
func DateAt(start time.Time, sequence int, frequency Frequency) (time.Time, error) {
	if sequence < 1 {
		return time.Time{}, ErrInvalidSequence
	}

	start = DateOnly(start)

	switch frequency {
	case FrequencyDaily:
		return start.AddDate(0, 0, sequence-1), nil
	case FrequencyWeekly:
		return start.AddDate(0, 0, (sequence-1)*7), nil
	case FrequencyFortnightly:
		return start.AddDate(0, 0, (sequence*2-2)*7), nil
	case FrequencyMonthly:
		return start.AddDate(0, sequence-1, 0), nil
	case FrequencyWeekday:
		return weekdayDate(start, sequence), nil
	default:
		return time.Time{}, ErrInvalidFrequency
	}
}

// Dates returns a lazy sequence of (sequenceNumber, date) pairs for the rule.
// The sequence is finite and restartable: it is re-derived from the start date
// and the rule on every iteration rather than holding iteration state.
func Dates(start time.Time, rule Rule) iter.Seq2[int, time.Time] {
	return func(yield func(int, time.Time) bool) {
		for sequence := 1; sequence <= rule.Count; sequence++ {
			date, err := DateAt(start, sequence, rule.Frequency)
			if err != nil {
				return
			}
			if !yield(sequence, date) {
				return
			}
		}
	}
}

// DateOnly truncates a timestamp to midnight UTC on the same calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func weekdayDate(start time.Time, sequence int) time.Time {
	anchor := start
	if isWeekend(start) {
		if sequence == 1 {
			// A series explicitly started on a weekend keeps its first date.
			return start
		}
		anchor = previousFriday(start)
	}

	weeks := (sequence - 1) / 5
	remainder := (sequence - 1) % 5

	dayAdjustment := remainder
	if remainder+weekdayNumber(anchor) > 5 {
		// Skip the intervening weekend.
		dayAdjustment = remainder + 2
	}

	return anchor.AddDate(0, 0, weeks*7+dayAdjustment)
}

func isWeekend(t time.Time) bool {
	day := t.Weekday()
	return day == time.Saturday || day == time.Sunday
}

func previousFriday(t time.Time) time.Time {
	switch t.Weekday() {
	case time.Saturday:
		return t.AddDate(0, 0, -1)
	case time.Sunday:
		return t.AddDate(0, 0, -2)
	default:
		return t
	}
}

// weekdayNumber maps Monday to 1 through Friday to 5.
func weekdayNumber(t time.Time) int {
	return (int(t.Weekday())+6)%7 + 1
}
