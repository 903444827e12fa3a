package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/appointment-scheduler/internal/appointment"
	"github.com/example/appointment-scheduler/internal/persistence"
	"github.com/example/appointment-scheduler/internal/recurrence"
)

// SeriesRepository implements persistence.SeriesRepository on SQLite. The
// aggregate is written whole: the series row is inserted or updated and every
// occurrence and attendee record is upserted in the same transaction.
type SeriesRepository struct {
	db *sql.DB
}

// NewSeriesRepository creates a SQLite-backed series repository.
func NewSeriesRepository(db *sql.DB) *SeriesRepository {
	return &SeriesRepository{db: db}
}

const seriesColumns = `id, set_id, facility_code, category_code, tier_code, custom_name,
	organiser_id, kind, location_id, in_cell, start_date, start_time, end_time,
	frequency, occurrence_count, notes, created_at, created_by, updated_at,
	updated_by, cancelled_at, cancelled_by, cancelled_from`

// CreateSeries inserts a new series aggregate.
func (r *SeriesRepository) CreateSeries(ctx context.Context, series *appointment.Series) error {
	return withTx(r.db, func(tx *sql.Tx) error {
		query := `
			INSERT INTO appointment_series (` + seriesColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		if _, err := tx.ExecContext(ctx, query, r.seriesArgs(series)...); err != nil {
			return mapError(err)
		}
		return r.upsertChildren(ctx, tx, series)
	})
}

// SaveSeries persists the current state of an existing series aggregate.
func (r *SeriesRepository) SaveSeries(ctx context.Context, series *appointment.Series) error {
	return withTx(r.db, func(tx *sql.Tx) error {
		query := `
			UPDATE appointment_series
			SET set_id = ?, facility_code = ?, category_code = ?, tier_code = ?,
				custom_name = ?, organiser_id = ?, kind = ?, location_id = ?,
				in_cell = ?, start_date = ?, start_time = ?, end_time = ?,
				frequency = ?, occurrence_count = ?, notes = ?, created_at = ?,
				created_by = ?, updated_at = ?, updated_by = ?, cancelled_at = ?,
				cancelled_by = ?, cancelled_from = ?
			WHERE id = ?
		`
		args := r.seriesArgs(series)
		// Rotate the id from first position to the WHERE clause.
		args = append(args[1:], args[0])

		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return mapError(err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return persistence.ErrNotFound
		}
		return r.upsertChildren(ctx, tx, series)
	})
}

// GetSeries loads a full series aggregate by id.
func (r *SeriesRepository) GetSeries(ctx context.Context, id string) (*appointment.Series, error) {
	if id == "" {
		return nil, persistence.ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+seriesColumns+` FROM appointment_series WHERE id = ?`, id)
	series, err := scanSeries(row)
	if err != nil {
		return nil, err
	}

	if err := r.loadOccurrences(ctx, series); err != nil {
		return nil, err
	}
	return series, nil
}

// GetSeriesByOccurrence loads the series aggregate that owns an occurrence.
func (r *SeriesRepository) GetSeriesByOccurrence(ctx context.Context, occurrenceID string) (*appointment.Series, error) {
	if occurrenceID == "" {
		return nil, persistence.ErrNotFound
	}

	var seriesID string
	err := r.db.QueryRowContext(ctx,
		`SELECT series_id FROM appointment_occurrences WHERE id = ?`, occurrenceID).Scan(&seriesID)
	if err != nil {
		return nil, mapError(err)
	}
	return r.GetSeries(ctx, seriesID)
}

// ListSeriesForFacility loads every series of a facility ordered by creation.
func (r *SeriesRepository) ListSeriesForFacility(ctx context.Context, facilityCode string) ([]*appointment.Series, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM appointment_series WHERE facility_code = ? ORDER BY created_at ASC, id ASC`, facilityCode)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, mapError(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	series := make([]*appointment.Series, 0, len(ids))
	for _, id := range ids {
		loaded, err := r.GetSeries(ctx, id)
		if err != nil {
			return nil, err
		}
		series = append(series, loaded)
	}
	return series, nil
}

func (r *SeriesRepository) seriesArgs(series *appointment.Series) []any {
	var frequency sql.NullString
	var count sql.NullInt64
	if series.Rule != nil {
		frequency = sql.NullString{String: series.Rule.Frequency.String(), Valid: true}
		count = sql.NullInt64{Int64: int64(series.Rule.Count), Valid: true}
	}

	return []any{
		series.ID,
		nullString(series.SetID),
		series.FacilityCode,
		series.CategoryCode,
		series.TierCode,
		series.CustomName,
		nullString(series.OrganiserID),
		string(series.Kind),
		nullInt64(series.LocationID),
		series.InCell,
		formatDate(series.StartDate),
		series.StartTime,
		series.EndTime,
		frequency,
		count,
		series.Notes,
		series.CreatedAt.UTC().Format(timeFormat),
		series.CreatedBy,
		nullTime(series.UpdatedAt),
		nullString(series.UpdatedBy),
		nullTime(series.CancelledAt),
		nullString(series.CancelledBy),
		nullTime(series.CancelledFrom),
	}
}

func (r *SeriesRepository) upsertChildren(ctx context.Context, tx *sql.Tx, series *appointment.Series) error {
	occurrenceQuery := `
		INSERT INTO appointment_occurrences (
			id, series_id, sequence_number, category_code, tier_code, organiser_id,
			location_id, in_cell, appointment_date, start_time, end_time, notes,
			cancelled_at, cancelled_by, cancellation_reason, is_deleted, updated_at, updated_by
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			category_code = excluded.category_code,
			tier_code = excluded.tier_code,
			organiser_id = excluded.organiser_id,
			location_id = excluded.location_id,
			in_cell = excluded.in_cell,
			appointment_date = excluded.appointment_date,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			notes = excluded.notes,
			cancelled_at = excluded.cancelled_at,
			cancelled_by = excluded.cancelled_by,
			cancellation_reason = excluded.cancellation_reason,
			is_deleted = excluded.is_deleted,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by
	`

	attendeeQuery := `
		INSERT INTO appointment_attendees (
			id, occurrence_id, person_id, booking_id, added_at, added_by,
			removed_at, removal_reason, removed_by, is_deleted
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			removed_at = excluded.removed_at,
			removal_reason = excluded.removal_reason,
			removed_by = excluded.removed_by,
			is_deleted = excluded.is_deleted
	`

	for _, occurrence := range series.Occurrences {
		_, err := tx.ExecContext(ctx, occurrenceQuery,
			occurrence.ID,
			series.ID,
			occurrence.SequenceNumber,
			occurrence.CategoryCode,
			occurrence.TierCode,
			nullString(occurrence.OrganiserID),
			nullInt64(occurrence.LocationID),
			occurrence.InCell,
			formatDate(occurrence.Date),
			occurrence.StartTime,
			occurrence.EndTime,
			occurrence.Notes,
			nullTime(occurrence.CancelledAt),
			nullString(occurrence.CancelledBy),
			nullString(occurrence.CancellationReason),
			occurrence.Deleted,
			nullTime(occurrence.UpdatedAt),
			nullString(occurrence.UpdatedBy),
		)
		if err != nil {
			return mapError(err)
		}

		for _, attendee := range occurrence.Attendees {
			_, err := tx.ExecContext(ctx, attendeeQuery,
				attendee.ID,
				occurrence.ID,
				attendee.PersonID,
				attendee.BookingID,
				attendee.AddedAt.UTC().Format(timeFormat),
				attendee.AddedBy,
				nullTime(attendee.RemovedAt),
				nullString(attendee.RemovalReason),
				nullString(attendee.RemovedBy),
				attendee.Deleted,
			)
			if err != nil {
				return mapError(err)
			}
		}
	}
	return nil
}

func (r *SeriesRepository) loadOccurrences(ctx context.Context, series *appointment.Series) error {
	query := `
		SELECT id, sequence_number, category_code, tier_code, organiser_id,
			location_id, in_cell, appointment_date, start_time, end_time, notes,
			cancelled_at, cancelled_by, cancellation_reason, is_deleted, updated_at, updated_by
		FROM appointment_occurrences
		WHERE series_id = ?
		ORDER BY sequence_number ASC
	`
	rows, err := r.db.QueryContext(ctx, query, series.ID)
	if err != nil {
		return mapError(err)
	}
	defer rows.Close()

	byID := make(map[string]*appointment.Occurrence)
	for rows.Next() {
		occurrence := &appointment.Occurrence{SeriesID: series.ID}
		var organiserID, cancelledAt, cancelledBy, reason, updatedAt, updatedBy sql.NullString
		var locationID sql.NullInt64
		var dateStr string

		err := rows.Scan(
			&occurrence.ID,
			&occurrence.SequenceNumber,
			&occurrence.CategoryCode,
			&occurrence.TierCode,
			&organiserID,
			&locationID,
			&occurrence.InCell,
			&dateStr,
			&occurrence.StartTime,
			&occurrence.EndTime,
			&occurrence.Notes,
			&cancelledAt,
			&cancelledBy,
			&reason,
			&occurrence.Deleted,
			&updatedAt,
			&updatedBy,
		)
		if err != nil {
			return mapError(err)
		}

		if occurrence.Date, err = parseDate(dateStr); err != nil {
			return fmt.Errorf("parse appointment_date: %w", err)
		}
		occurrence.OrganiserID = stringPtr(organiserID)
		occurrence.LocationID = int64Ptr(locationID)
		occurrence.CancelledBy = stringPtr(cancelledBy)
		occurrence.CancellationReason = stringPtr(reason)
		occurrence.UpdatedBy = stringPtr(updatedBy)
		if occurrence.CancelledAt, err = timePtr(cancelledAt); err != nil {
			return err
		}
		if occurrence.UpdatedAt, err = timePtr(updatedAt); err != nil {
			return err
		}

		series.Occurrences = append(series.Occurrences, occurrence)
		byID[occurrence.ID] = occurrence
	}
	if err := rows.Err(); err != nil {
		return mapError(err)
	}

	return r.loadAttendees(ctx, series.ID, byID)
}

func (r *SeriesRepository) loadAttendees(ctx context.Context, seriesID string, occurrences map[string]*appointment.Occurrence) error {
	query := `
		SELECT a.id, a.occurrence_id, a.person_id, a.booking_id, a.added_at, a.added_by,
			a.removed_at, a.removal_reason, a.removed_by, a.is_deleted
		FROM appointment_attendees a
		JOIN appointment_occurrences o ON o.id = a.occurrence_id
		WHERE o.series_id = ?
		ORDER BY a.added_at ASC, a.id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, seriesID)
	if err != nil {
		return mapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		attendee := &appointment.Attendee{}
		var occurrenceID, addedAtStr string
		var removedAt, removalReason, removedBy sql.NullString

		err := rows.Scan(
			&attendee.ID,
			&occurrenceID,
			&attendee.PersonID,
			&attendee.BookingID,
			&addedAtStr,
			&attendee.AddedBy,
			&removedAt,
			&removalReason,
			&removedBy,
			&attendee.Deleted,
		)
		if err != nil {
			return mapError(err)
		}

		if attendee.AddedAt, err = parseTimestamp(addedAtStr); err != nil {
			return err
		}
		attendee.RemovalReason = stringPtr(removalReason)
		attendee.RemovedBy = stringPtr(removedBy)
		if attendee.RemovedAt, err = timePtr(removedAt); err != nil {
			return err
		}

		occurrence, ok := occurrences[occurrenceID]
		if !ok {
			return fmt.Errorf("attendee %s references unknown occurrence %s", attendee.ID, occurrenceID)
		}
		occurrence.Attendees = append(occurrence.Attendees, attendee)
	}
	return mapError(rows.Err())
}

// scanner abstracts sql.Row and sql.Rows for the series scan.
type scanner interface {
	Scan(dest ...any) error
}

func scanSeries(row scanner) (*appointment.Series, error) {
	series := &appointment.Series{}
	var setID, organiserID, frequency, updatedAt, updatedBy, cancelledAt, cancelledBy, cancelledFrom sql.NullString
	var locationID, count sql.NullInt64
	var kind, startDateStr, createdAtStr string

	err := row.Scan(
		&series.ID,
		&setID,
		&series.FacilityCode,
		&series.CategoryCode,
		&series.TierCode,
		&series.CustomName,
		&organiserID,
		&kind,
		&locationID,
		&series.InCell,
		&startDateStr,
		&series.StartTime,
		&series.EndTime,
		&frequency,
		&count,
		&series.Notes,
		&createdAtStr,
		&series.CreatedBy,
		&updatedAt,
		&updatedBy,
		&cancelledAt,
		&cancelledBy,
		&cancelledFrom,
	)
	if err != nil {
		return nil, mapError(err)
	}

	series.Kind = appointment.Type(kind)
	series.SetID = stringPtr(setID)
	series.OrganiserID = stringPtr(organiserID)
	series.LocationID = int64Ptr(locationID)
	series.UpdatedBy = stringPtr(updatedBy)
	series.CancelledBy = stringPtr(cancelledBy)

	if series.StartDate, err = parseDate(startDateStr); err != nil {
		return nil, fmt.Errorf("parse start_date: %w", err)
	}
	if series.CreatedAt, err = parseTimestamp(createdAtStr); err != nil {
		return nil, err
	}
	if series.UpdatedAt, err = timePtr(updatedAt); err != nil {
		return nil, err
	}
	if series.CancelledAt, err = timePtr(cancelledAt); err != nil {
		return nil, err
	}
	if series.CancelledFrom, err = timePtr(cancelledFrom); err != nil {
		return nil, err
	}

	if frequency.Valid && count.Valid {
		parsed, err := recurrence.ParseFrequency(frequency.String)
		if err != nil {
			return nil, fmt.Errorf("parse frequency: %w", err)
		}
		series.Rule = &recurrence.Rule{Frequency: parsed, Count: int(count.Int64)}
	}

	return series, nil
}
