// Package refdata resolves the reference codes an appointment series is
// described with. Categories, tiers, locations and organisers live in an
// upstream catalogue; lookups are cached because the catalogue changes rarely
// but is consulted on every create and update.
package refdata

import (
	"context"
	"errors"
)

var (
	// ErrUnknownCode is returned when a reference code is not in the catalogue.
	ErrUnknownCode = errors.New("refdata: unknown reference code")
	// ErrUnknownPerson is returned when a person has no booking at the facility.
	ErrUnknownPerson = errors.New("refdata: person has no booking at this facility")
)

// Category describes what kind of appointment a series holds.
type Category struct {
	Code        string
	Description string
}

// Tier describes the supervision tier of an appointment.
type Tier struct {
	Code        string
	Description string
}

// Location describes where an appointment takes place.
type Location struct {
	ID          int64
	Description string
}

// Organiser describes who runs a tier 2 appointment.
type Organiser struct {
	ID   string
	Name string
}

// Resolver looks up reference data by code or id.
type Resolver interface {
	Category(ctx context.Context, code string) (Category, error)
	Tier(ctx context.Context, code string) (Tier, error)
	Location(ctx context.Context, id int64) (Location, error)
	Organiser(ctx context.Context, id string) (Organiser, error)
}

// BookingDirectory resolves a person identifier to their active booking at a
// facility. Attendance records are keyed by booking, not by person.
type BookingDirectory interface {
	BookingID(ctx context.Context, facilityCode, personID string) (int64, error)
}

// StaticResolver serves reference data from in-memory maps. It backs tests and
// deployments where the catalogue is loaded once at startup.
type StaticResolver struct {
	Categories map[string]Category
	Tiers      map[string]Tier
	Locations  map[int64]Location
	Organisers map[string]Organiser
}

// Category implements Resolver.
func (r *StaticResolver) Category(_ context.Context, code string) (Category, error) {
	category, ok := r.Categories[code]
	if !ok {
		return Category{}, ErrUnknownCode
	}
	return category, nil
}

// Tier implements Resolver.
func (r *StaticResolver) Tier(_ context.Context, code string) (Tier, error) {
	tier, ok := r.Tiers[code]
	if !ok {
		return Tier{}, ErrUnknownCode
	}
	return tier, nil
}

// Location implements Resolver.
func (r *StaticResolver) Location(_ context.Context, id int64) (Location, error) {
	location, ok := r.Locations[id]
	if !ok {
		return Location{}, ErrUnknownCode
	}
	return location, nil
}

// Organiser implements Resolver.
func (r *StaticResolver) Organiser(_ context.Context, id string) (Organiser, error) {
	organiser, ok := r.Organisers[id]
	if !ok {
		return Organiser{}, ErrUnknownCode
	}
	return organiser, nil
}

// StaticDirectory resolves bookings from an in-memory map keyed by
// facility and person.
type StaticDirectory struct {
	Bookings map[string]map[string]int64
}

// BookingID implements BookingDirectory.
func (d *StaticDirectory) BookingID(_ context.Context, facilityCode, personID string) (int64, error) {
	facility, ok := d.Bookings[facilityCode]
	if !ok {
		return 0, ErrUnknownPerson
	}
	bookingID, ok := facility[personID]
	if !ok {
		return 0, ErrUnknownPerson
	}
	return bookingID, nil
}
