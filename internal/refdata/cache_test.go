package refdata

import (
	"context"
	"errors"
	"testing"
)

type countingResolver struct {
	inner Resolver
	calls int
}

func (r *countingResolver) Category(ctx context.Context, code string) (Category, error) {
	r.calls++
	return r.inner.Category(ctx, code)
}

func (r *countingResolver) Tier(ctx context.Context, code string) (Tier, error) {
	r.calls++
	return r.inner.Tier(ctx, code)
}

func (r *countingResolver) Location(ctx context.Context, id int64) (Location, error) {
	r.calls++
	return r.inner.Location(ctx, id)
}

func (r *countingResolver) Organiser(ctx context.Context, id string) (Organiser, error) {
	r.calls++
	return r.inner.Organiser(ctx, id)
}

func newTestResolver() *countingResolver {
	return &countingResolver{inner: &StaticResolver{
		Categories: map[string]Category{"CHAP": {Code: "CHAP", Description: "Chaplaincy"}},
		Tiers:      map[string]Tier{"2": {Code: "2", Description: "Tier 2"}},
		Locations:  map[int64]Location{27: {ID: 27, Description: "Chapel"}},
		Organisers: map[string]Organiser{"org-1": {ID: "org-1", Name: "Chaplain"}},
	}}
}

func TestCachedResolver_MemoizesHits(t *testing.T) {
	t.Parallel()

	counting := newTestResolver()
	cached, err := NewCachedResolver(counting, 8)
	if err != nil {
		t.Fatalf("new cached resolver: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		category, err := cached.Category(ctx, "CHAP")
		if err != nil {
			t.Fatalf("category: %v", err)
		}
		if category.Description != "Chaplaincy" {
			t.Fatalf("unexpected category: %+v", category)
		}
	}
	if counting.calls != 1 {
		t.Fatalf("expected a single upstream call, got %d", counting.calls)
	}

	if _, err := cached.Location(ctx, 27); err != nil {
		t.Fatalf("location: %v", err)
	}
	if _, err := cached.Location(ctx, 27); err != nil {
		t.Fatalf("location: %v", err)
	}
	if counting.calls != 2 {
		t.Fatalf("expected two upstream calls, got %d", counting.calls)
	}
}

func TestCachedResolver_DoesNotCacheMisses(t *testing.T) {
	t.Parallel()

	counting := newTestResolver()
	cached, err := NewCachedResolver(counting, 8)
	if err != nil {
		t.Fatalf("new cached resolver: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := cached.Tier(ctx, "9"); !errors.Is(err, ErrUnknownCode) {
			t.Fatalf("expected ErrUnknownCode, got %v", err)
		}
	}
	if counting.calls != 2 {
		t.Fatalf("misses must reach upstream every time, got %d calls", counting.calls)
	}
}

func TestCachedResolver_PurgeForcesReload(t *testing.T) {
	t.Parallel()

	counting := newTestResolver()
	cached, err := NewCachedResolver(counting, 8)
	if err != nil {
		t.Fatalf("new cached resolver: %v", err)
	}
	ctx := context.Background()

	if _, err := cached.Organiser(ctx, "org-1"); err != nil {
		t.Fatalf("organiser: %v", err)
	}
	cached.Purge()
	if _, err := cached.Organiser(ctx, "org-1"); err != nil {
		t.Fatalf("organiser after purge: %v", err)
	}
	if counting.calls != 2 {
		t.Fatalf("expected the purge to force a reload, got %d calls", counting.calls)
	}
}

func TestStaticDirectory_BookingLookup(t *testing.T) {
	t.Parallel()

	directory := &StaticDirectory{Bookings: map[string]map[string]int64{
		"MDI": {"A1234BC": 10001},
	}}
	ctx := context.Background()

	bookingID, err := directory.BookingID(ctx, "MDI", "A1234BC")
	if err != nil {
		t.Fatalf("booking id: %v", err)
	}
	if bookingID != 10001 {
		t.Fatalf("got booking %d, want 10001", bookingID)
	}

	if _, err := directory.BookingID(ctx, "MDI", "Z9999ZZ"); !errors.Is(err, ErrUnknownPerson) {
		t.Fatalf("expected ErrUnknownPerson, got %v", err)
	}
	if _, err := directory.BookingID(ctx, "LEI", "A1234BC"); !errors.Is(err, ErrUnknownPerson) {
		t.Fatalf("expected ErrUnknownPerson for an unknown facility, got %v", err)
	}
}
