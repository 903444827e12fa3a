package persistence

import "time"

// Job records one execution attempt of a tracked background task. Every
// attempt writes its own row, so a retried task leaves a visible trail of
// failures followed by the final outcome.
type Job struct {
	ID         string
	Type       string
	Succeeded  bool
	Message    *string
	StartedAt  time.Time
	FinishedAt time.Time
	CreatedAt  time.Time
}

// JobFilter narrows job queries.
type JobFilter struct {
	Type          string
	OnlyFailed    bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
