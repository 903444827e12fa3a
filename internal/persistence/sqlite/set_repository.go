package sqlite

import (
	"context"
	"database/sql"

	"github.com/example/appointment-scheduler/internal/appointment"
	"github.com/example/appointment-scheduler/internal/persistence"
)

// SetRepository implements persistence.SetRepository on SQLite.
type SetRepository struct {
	db *sql.DB
}

// NewSetRepository creates a SQLite-backed set repository.
func NewSetRepository(db *sql.DB) *SetRepository {
	return &SetRepository{db: db}
}

// CreateSet inserts the set row. The owned series are persisted separately
// through the series repository with their set id stamped.
func (r *SetRepository) CreateSet(ctx context.Context, set *appointment.Set) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO appointment_sets (id, facility_code, created_at, created_by) VALUES (?, ?, ?, ?)`,
		set.ID,
		set.FacilityCode,
		set.CreatedAt.UTC().Format(timeFormat),
		set.CreatedBy,
	)
	return mapError(err)
}

// GetSet loads a set and its owned series aggregates.
func (r *SetRepository) GetSet(ctx context.Context, id string) (*appointment.Set, error) {
	if id == "" {
		return nil, persistence.ErrNotFound
	}

	set := &appointment.Set{}
	var createdAtStr string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, facility_code, created_at, created_by FROM appointment_sets WHERE id = ?`, id).
		Scan(&set.ID, &set.FacilityCode, &createdAtStr, &set.CreatedBy)
	if err != nil {
		return nil, mapError(err)
	}
	if set.CreatedAt, err = parseTimestamp(createdAtStr); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM appointment_series WHERE set_id = ? ORDER BY created_at ASC, id ASC`, id)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var seriesIDs []string
	for rows.Next() {
		var seriesID string
		if err := rows.Scan(&seriesID); err != nil {
			return nil, mapError(err)
		}
		seriesIDs = append(seriesIDs, seriesID)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	seriesRepo := NewSeriesRepository(r.db)
	for _, seriesID := range seriesIDs {
		series, err := seriesRepo.GetSeries(ctx, seriesID)
		if err != nil {
			return nil, err
		}
		set.Series = append(set.Series, series)
	}
	return set, nil
}
