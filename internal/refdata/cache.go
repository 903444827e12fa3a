package refdata

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedResolver memoizes catalogue lookups in bounded LRU caches. Negative
// results are not cached so a code added upstream becomes visible on the next
// lookup.
type CachedResolver struct {
	inner      Resolver
	categories *lru.Cache[string, Category]
	tiers      *lru.Cache[string, Tier]
	locations  *lru.Cache[int64, Location]
	organisers *lru.Cache[string, Organiser]
}

// NewCachedResolver wraps a resolver with LRU caches of the given size.
func NewCachedResolver(inner Resolver, size int) (*CachedResolver, error) {
	categories, err := lru.New[string, Category](size)
	if err != nil {
		return nil, err
	}
	tiers, err := lru.New[string, Tier](size)
	if err != nil {
		return nil, err
	}
	locations, err := lru.New[int64, Location](size)
	if err != nil {
		return nil, err
	}
	organisers, err := lru.New[string, Organiser](size)
	if err != nil {
		return nil, err
	}

	return &CachedResolver{
		inner:      inner,
		categories: categories,
		tiers:      tiers,
		locations:  locations,
		organisers: organisers,
	}, nil
}

// Category implements Resolver.
func (r *CachedResolver) Category(ctx context.Context, code string) (Category, error) {
	if category, ok := r.categories.Get(code); ok {
		return category, nil
	}
	category, err := r.inner.Category(ctx, code)
	if err != nil {
		return Category{}, err
	}
	r.categories.Add(code, category)
	return category, nil
}

// Tier implements Resolver.
func (r *CachedResolver) Tier(ctx context.Context, code string) (Tier, error) {
	if tier, ok := r.tiers.Get(code); ok {
		return tier, nil
	}
	tier, err := r.inner.Tier(ctx, code)
	if err != nil {
		return Tier{}, err
	}
	r.tiers.Add(code, tier)
	return tier, nil
}

// Location implements Resolver.
func (r *CachedResolver) Location(ctx context.Context, id int64) (Location, error) {
	if location, ok := r.locations.Get(id); ok {
		return location, nil
	}
	location, err := r.inner.Location(ctx, id)
	if err != nil {
		return Location{}, err
	}
	r.locations.Add(id, location)
	return location, nil
}

// Organiser implements Resolver.
func (r *CachedResolver) Organiser(ctx context.Context, id string) (Organiser, error) {
	if organiser, ok := r.organisers.Get(id); ok {
		return organiser, nil
	}
	organiser, err := r.inner.Organiser(ctx, id)
	if err != nil {
		return Organiser{}, err
	}
	r.organisers.Add(id, organiser)
	return organiser, nil
}

// Purge drops every cached entry. Used when the upstream catalogue reloads.
func (r *CachedResolver) Purge() {
	r.categories.Purge()
	r.tiers.Purge()
	r.locations.Purge()
	r.organisers.Purge()
}
