package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/appointment-scheduler/internal/appointment"
	"github.com/example/appointment-scheduler/internal/events"
	"github.com/example/appointment-scheduler/internal/jobs"
	"github.com/example/appointment-scheduler/internal/persistence"
	"github.com/example/appointment-scheduler/internal/recurrence"
	"github.com/example/appointment-scheduler/internal/refdata"
)

// SeriesRepository captures the persistence interactions needed by the service.
type SeriesRepository interface {
	CreateSeries(ctx context.Context, series *appointment.Series) error
	SaveSeries(ctx context.Context, series *appointment.Series) error
	GetSeries(ctx context.Context, id string) (*appointment.Series, error)
	GetSeriesByOccurrence(ctx context.Context, occurrenceID string) (*appointment.Series, error)
	ListSeriesForFacility(ctx context.Context, facilityCode string) ([]*appointment.Series, error)
}

// SetRepository captures the set persistence interactions needed by the service.
type SetRepository interface {
	CreateSet(ctx context.Context, set *appointment.Set) error
	GetSet(ctx context.Context, id string) (*appointment.Set, error)
}

// JobLister exposes the job history for the jobs endpoint.
type JobLister interface {
	ListJobs(ctx context.Context, filter persistence.JobFilter) ([]persistence.Job, error)
}

// DefaultBulkThreshold is the instance count at which a scoped mutation moves
// its tail into a background job.
const DefaultBulkThreshold = 500

// MaxOccurrenceCount bounds how many occurrences one series may materialize.
const MaxOccurrenceCount = 365

// AppointmentService orchestrates validation, the aggregate and persistence
// for appointment operations.
type AppointmentService struct {
	series      SeriesRepository
	sets        SetRepository
	jobs        JobLister
	refdata     refdata.Resolver
	bookings    refdata.BookingDirectory
	emitter     events.Emitter
	runner      BackgroundRunner
	logger      *slog.Logger
	idGenerator func() string
	now         func() time.Time
	threshold   int
}

// NewAppointmentService wires dependencies for appointment operations. A zero
// or negative threshold falls back to the default.
func NewAppointmentService(
	series SeriesRepository,
	sets SetRepository,
	jobs JobLister,
	resolver refdata.Resolver,
	bookings refdata.BookingDirectory,
	emitter events.Emitter,
	runner BackgroundRunner,
	logger *slog.Logger,
	idGenerator func() string,
	now func() time.Time,
	threshold int,
) *AppointmentService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if threshold <= 0 {
		threshold = DefaultBulkThreshold
	}
	if emitter == nil {
		emitter = &events.LogEmitter{Logger: logger}
	}
	return &AppointmentService{
		series:      series,
		sets:        sets,
		jobs:        jobs,
		refdata:     resolver,
		bookings:    bookings,
		emitter:     emitter,
		runner:      runner,
		logger:      defaultLogger(logger),
		idGenerator: idGenerator,
		now:         now,
		threshold:   threshold,
	}
}

// CreateSeries validates the request, materializes the occurrences from the
// recurrence rule and persists the new aggregate. Above the bulk threshold
// only the first occurrence is materialized in the request; the remaining
// dates are filled in by a tracked background job.
func (s *AppointmentService) CreateSeries(ctx context.Context, params CreateSeriesParams) (CreateSeriesResult, error) {
	if s == nil {
		return CreateSeriesResult{}, fmt.Errorf("AppointmentService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "AppointmentService", "CreateSeries",
		"facility", params.Input.FacilityCode)

	series, bookings, err := s.buildSeries(ctx, params.Input, params.Principal)
	if err != nil {
		logger.Warn("create series rejected", "error_kind", ErrorKind(err))
		return CreateSeriesResult{}, err
	}

	type plannedOccurrence struct {
		sequence int
		date     time.Time
	}
	var planned []plannedOccurrence
	for sequence, date := range series.PlannedDates() {
		planned = append(planned, plannedOccurrence{sequence: sequence, date: date})
	}

	actor := params.Principal.Username
	instanceCount := len(planned) * len(bookings)

	if instanceCount <= s.threshold {
		for _, p := range planned {
			if err := s.materializeOccurrence(series, p.sequence, p.date, bookings, actor); err != nil {
				return CreateSeriesResult{}, err
			}
		}
		if err := s.series.CreateSeries(ctx, series); err != nil {
			return CreateSeriesResult{}, mapRepoError(err)
		}

		s.emitter.Emit(ctx, events.AuditEvent{
			ID:            s.idGenerator(),
			Action:        "CREATE_SERIES",
			SeriesID:      series.ID,
			AffectedCount: len(planned),
			Actor:         actor,
			OccurredAt:    s.now(),
		})
		logger.Info("series created", "series_id", series.ID, "occurrences", len(planned))
		return CreateSeriesResult{Series: series}, nil
	}

	// Split phase. The first occurrence is materialized in the request so the
	// caller gets one concrete, usable occurrence back immediately.
	if err := s.materializeOccurrence(series, planned[0].sequence, planned[0].date, bookings, actor); err != nil {
		return CreateSeriesResult{}, err
	}
	if err := s.series.CreateSeries(ctx, series); err != nil {
		return CreateSeriesResult{}, mapRepoError(err)
	}

	s.emitter.Emit(ctx, events.AuditEvent{
		ID:            s.idGenerator(),
		Action:        "CREATE_SERIES",
		SeriesID:      series.ID,
		AffectedCount: len(planned),
		Actor:         actor,
		OccurredAt:    s.now(),
	})

	remaining := planned[1:]
	definition := jobs.Definition{
		Type: JobTypeCreateAppointments,
		Work: func(jobCtx context.Context) error {
			failures := 0
			for _, p := range remaining {
				if err := s.materializeOccurrence(series, p.sequence, p.date, bookings, actor); err != nil {
					failures++
					logger.ErrorContext(jobCtx, "occurrence creation failed",
						slog.Int("sequence_number", p.sequence), slog.Any("error", err))
				}
			}
			if err := s.series.SaveSeries(jobCtx, series); err != nil {
				return mapRepoError(err)
			}
			if failures > 0 {
				return fmt.Errorf("%s: %d of %d occurrences failed", JobTypeCreateAppointments, failures, len(remaining))
			}
			return nil
		},
	}

	logger.Info("series creation split",
		"series_id", series.ID, "occurrences", len(planned), "instances", instanceCount, "threshold", s.threshold)

	if s.runner == nil {
		return CreateSeriesResult{}, fmt.Errorf("background runner not configured")
	}
	jobCtx := context.WithoutCancel(ctx)
	go func() {
		if err := s.runner.RunWithRetry(jobCtx, definition); err != nil {
			logger.Error("background creation failed", slog.Any("error", err))
		}
	}()

	// The job keeps appending to the aggregate, so the caller gets a snapshot
	// holding only what was materialized synchronously.
	snapshot := *series
	snapshot.Occurrences = append([]*appointment.Occurrence(nil), series.Occurrences...)
	return CreateSeriesResult{Series: &snapshot, Asynchronous: true}, nil
}

// materializeOccurrence creates one occurrence from the series template and
// books the given attendees onto it.
func (s *AppointmentService) materializeOccurrence(series *appointment.Series, sequence int, date time.Time, bookings map[string]int64, actor string) error {
	occurrence := series.NewOccurrence(s.idGenerator(), sequence, date)
	if err := series.AddOccurrence(occurrence); err != nil {
		return err
	}
	for personID, bookingID := range bookings {
		if _, err := series.AddAttendee(occurrence.ID, s.idGenerator(), personID, bookingID, series.CreatedAt, actor); err != nil {
			return err
		}
	}
	return nil
}

// GetSeries loads a series aggregate by id.
func (s *AppointmentService) GetSeries(ctx context.Context, id string) (*appointment.Series, error) {
	if s == nil {
		return nil, fmt.Errorf("AppointmentService is nil")
	}
	series, err := s.series.GetSeries(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return series, nil
}

// ListSeriesForFacility returns every series booked at the given facility.
func (s *AppointmentService) ListSeriesForFacility(ctx context.Context, facilityCode string) ([]*appointment.Series, error) {
	if s == nil {
		return nil, fmt.Errorf("AppointmentService is nil")
	}
	if facilityCode == "" {
		vErr := &ValidationError{}
		vErr.add("facility", "facility code is required")
		return nil, vErr
	}
	series, err := s.series.ListSeriesForFacility(ctx, facilityCode)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return series, nil
}

// CreateSet creates several one-off series as one audited unit. Each entry is
// validated independently so the caller sees every problem at once.
func (s *AppointmentService) CreateSet(ctx context.Context, params CreateSetParams) (*appointment.Set, error) {
	if s == nil {
		return nil, fmt.Errorf("AppointmentService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "AppointmentService", "CreateSet",
		"facility", params.FacilityCode)

	vErr := &ValidationError{}
	if params.FacilityCode == "" {
		vErr.add("facilityCode", "facility code is required")
	}
	if len(params.Series) == 0 {
		vErr.add("series", "a set needs at least one appointment")
	}

	built := make([]*appointment.Series, 0, len(params.Series))
	for i, input := range params.Series {
		if input.FacilityCode == "" {
			input.FacilityCode = params.FacilityCode
		}
		if input.FacilityCode != params.FacilityCode {
			vErr.add(fmt.Sprintf("series[%d].facilityCode", i), "must match the set facility")
			continue
		}
		if input.Repeat != nil {
			vErr.add(fmt.Sprintf("series[%d].repeat", i), "appointments in a set cannot repeat")
			continue
		}

		series, bookings, err := s.buildSeries(ctx, input, params.Principal)
		if err != nil {
			var inner *ValidationError
			if errors.As(err, &inner) {
				for field, msg := range inner.FieldErrors {
					vErr.add(fmt.Sprintf("series[%d].%s", i, field), msg)
				}
				continue
			}
			return nil, err
		}
		// Set members never repeat, so the fan-out is bounded by the request
		// payload and stays synchronous.
		for sequence, date := range series.PlannedDates() {
			if err := s.materializeOccurrence(series, sequence, date, bookings, params.Principal.Username); err != nil {
				return nil, err
			}
		}
		built = append(built, series)
	}
	if vErr.HasErrors() {
		logger.Warn("create set rejected", "error_kind", ErrorKind(vErr))
		return nil, vErr
	}

	// Double bookings inside the set are reported but never block creation.
	var pool []*appointment.Occurrence
	for _, series := range built {
		for _, occurrence := range series.Occurrences {
			if clashes := appointment.DetectClashes(pool, occurrence); len(clashes) > 0 {
				logger.Warn("set member double books an attendee or location",
					"occurrence_id", occurrence.ID, "clashes", len(clashes))
			}
			pool = append(pool, occurrence)
		}
	}

	set := &appointment.Set{
		ID:           s.idGenerator(),
		FacilityCode: params.FacilityCode,
		CreatedAt:    s.now(),
		CreatedBy:    params.Principal.Username,
	}
	for _, series := range built {
		set.AddSeries(series)
	}

	if err := s.sets.CreateSet(ctx, set); err != nil {
		return nil, mapRepoError(err)
	}
	for _, series := range set.Series {
		if err := s.series.CreateSeries(ctx, series); err != nil {
			return nil, mapRepoError(err)
		}
	}

	s.emitter.Emit(ctx, events.AuditEvent{
		ID:            s.idGenerator(),
		Action:        "CREATE_SET",
		SeriesID:      set.ID,
		AffectedCount: len(set.Series),
		Actor:         params.Principal.Username,
		OccurredAt:    s.now(),
	})
	logger.Info("set created", "set_id", set.ID, "series", len(set.Series))
	return set, nil
}

// GetSet loads a set and its owned series.
func (s *AppointmentService) GetSet(ctx context.Context, id string) (*appointment.Set, error) {
	if s == nil {
		return nil, fmt.Errorf("AppointmentService is nil")
	}
	set, err := s.sets.GetSet(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return set, nil
}

// ListJobs returns the background job history.
func (s *AppointmentService) ListJobs(ctx context.Context, params ListJobsParams) ([]persistence.Job, error) {
	if s == nil {
		return nil, fmt.Errorf("AppointmentService is nil")
	}
	if s.jobs == nil {
		return nil, fmt.Errorf("job repository not configured")
	}
	return s.jobs.ListJobs(ctx, persistence.JobFilter{Type: params.Type, OnlyFailed: params.OnlyFailed})
}

// buildSeries validates the input and assembles the aggregate shell plus the
// resolved booking ids for its attendees. Occurrences are materialized by the
// caller so large expansions can split into a background job. Nothing is
// persisted here.
func (s *AppointmentService) buildSeries(ctx context.Context, input SeriesInput, principal Principal) (*appointment.Series, map[string]int64, error) {
	vErr := &ValidationError{}

	if input.FacilityCode == "" {
		vErr.add("facilityCode", "facility code is required")
	}
	if input.CategoryCode == "" {
		vErr.add("categoryCode", "category code is required")
	} else if s.refdata != nil {
		if _, err := s.refdata.Category(ctx, input.CategoryCode); err != nil {
			if errors.Is(err, refdata.ErrUnknownCode) {
				vErr.add("categoryCode", "unknown appointment category")
			} else {
				return nil, nil, err
			}
		}
	}
	if input.TierCode == "" {
		vErr.add("tierCode", "tier code is required")
	} else if s.refdata != nil {
		if _, err := s.refdata.Tier(ctx, input.TierCode); err != nil {
			if errors.Is(err, refdata.ErrUnknownCode) {
				vErr.add("tierCode", "unknown tier")
			} else {
				return nil, nil, err
			}
		}
	}

	kind := appointment.Type(strings.ToUpper(strings.TrimSpace(input.Kind)))
	if kind != appointment.TypeIndividual && kind != appointment.TypeGroup {
		vErr.add("kind", "kind must be INDIVIDUAL or GROUP")
	}

	if input.LocationID != nil && s.refdata != nil {
		if _, err := s.refdata.Location(ctx, *input.LocationID); err != nil {
			if errors.Is(err, refdata.ErrUnknownCode) {
				vErr.add("locationId", "unknown location")
			} else {
				return nil, nil, err
			}
		}
	}
	if input.LocationID == nil && !input.InCell {
		vErr.add("locationId", "a location is required unless the appointment is in cell")
	}

	if input.StartDate.IsZero() {
		vErr.add("startDate", "start date is required")
	}
	validateTimeOfDay(vErr, "startTime", input.StartTime, true)
	validateTimeOfDay(vErr, "endTime", input.EndTime, false)
	if input.StartTime != "" && input.EndTime != "" && input.EndTime <= input.StartTime {
		vErr.add("endTime", "end time must be after the start time")
	}

	var rule *recurrence.Rule
	if input.Repeat != nil {
		frequency, err := recurrence.ParseFrequency(input.Repeat.Frequency)
		if err != nil {
			vErr.add("repeat.frequency", "unknown repeat frequency")
		}
		if input.Repeat.Count < 1 {
			vErr.add("repeat.count", "repeat count must be at least 1")
		} else if input.Repeat.Count > MaxOccurrenceCount {
			vErr.add("repeat.count", fmt.Sprintf("repeat count must not exceed %d", MaxOccurrenceCount))
		}
		rule = &recurrence.Rule{Frequency: frequency, Count: input.Repeat.Count}
	}

	if input.OrganiserID != nil {
		if input.TierCode != appointment.TierWithOrganiser {
			vErr.add("organiserId", "an organiser can only be set on a tier 2 appointment")
		} else if s.refdata != nil {
			if _, err := s.refdata.Organiser(ctx, *input.OrganiserID); err != nil {
				if errors.Is(err, refdata.ErrUnknownCode) {
					vErr.add("organiserId", "unknown organiser")
				} else {
					return nil, nil, err
				}
			}
		}
	}

	if kind == appointment.TypeIndividual && len(input.AttendeePersonIDs) > 1 {
		vErr.add("attendees", "an individual appointment accepts only one attendee")
	}

	bookings := make(map[string]int64, len(input.AttendeePersonIDs))
	if s.bookings != nil {
		for _, personID := range input.AttendeePersonIDs {
			bookingID, err := s.bookings.BookingID(ctx, input.FacilityCode, personID)
			if err != nil {
				if errors.Is(err, refdata.ErrUnknownPerson) {
					vErr.add("attendees", fmt.Sprintf("%s has no booking at %s", personID, input.FacilityCode))
					continue
				}
				return nil, nil, err
			}
			bookings[personID] = bookingID
		}
	}

	if vErr.HasErrors() {
		return nil, nil, vErr
	}

	now := s.now()
	series := &appointment.Series{
		ID:           s.idGenerator(),
		FacilityCode: input.FacilityCode,
		CategoryCode: input.CategoryCode,
		TierCode:     input.TierCode,
		CustomName:   strings.TrimSpace(input.CustomName),
		Kind:         kind,
		LocationID:   input.LocationID,
		InCell:       input.InCell,
		StartDate:    recurrence.DateOnly(input.StartDate),
		StartTime:    input.StartTime,
		EndTime:      input.EndTime,
		Rule:         rule,
		Notes:        input.Notes,
		CreatedAt:    now,
		CreatedBy:    principal.Username,
	}

	if input.OrganiserID != nil {
		if err := series.SetOrganiser(*input.OrganiserID); err != nil {
			vErr.add("organiserId", "an organiser can only be set on a tier 2 appointment")
			return nil, nil, vErr
		}
	}

	return series, bookings, nil
}

func validateTimeOfDay(vErr *ValidationError, field, value string, required bool) {
	if value == "" {
		if required {
			vErr.add(field, "time is required in HH:MM format")
		}
		return
	}
	if _, err := time.Parse("15:04", value); err != nil {
		vErr.add(field, "time must be in HH:MM format")
	}
}

func mapRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		vErr := &ValidationError{}
		vErr.add("series", "related records are missing")
		return vErr
	case errors.Is(err, persistence.ErrConstraintViolation):
		vErr := &ValidationError{}
		vErr.add("series", "the record violates a storage constraint")
		return vErr
	}
	return err
}
