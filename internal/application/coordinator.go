package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/appointment-scheduler/internal/appointment"
	"github.com/example/appointment-scheduler/internal/events"
	"github.com/example/appointment-scheduler/internal/jobs"
)

// BackgroundRunner executes a tracked job outside the request that started it.
type BackgroundRunner interface {
	RunWithRetry(ctx context.Context, def jobs.Definition) error
}

// Job type names for the asynchronous tails of bulk mutations.
const (
	JobTypeCreateAppointments   = "CREATE_APPOINTMENTS"
	JobTypeCancelAppointments   = "CANCEL_APPOINTMENTS"
	JobTypeUncancelAppointments = "UNCANCEL_APPOINTMENTS"
	JobTypeUpdateAppointments   = "UPDATE_APPOINTMENTS"
)

// CancelOccurrences cancels every occurrence the scope resolves to. Above the
// bulk threshold only the target is cancelled synchronously; the rest is
// finished by a tracked background job.
func (s *AppointmentService) CancelOccurrences(ctx context.Context, params CancelOccurrencesParams) (MutationResult, error) {
	if s == nil {
		return MutationResult{}, fmt.Errorf("AppointmentService is nil")
	}

	scope, err := appointment.ParseScope(params.Scope)
	if err != nil {
		vErr := &ValidationError{}
		vErr.add("scope", "unknown mutation scope")
		return MutationResult{}, vErr
	}

	series, err := s.series.GetSeriesByOccurrence(ctx, params.OccurrenceID)
	if err != nil {
		return MutationResult{}, mapRepoError(err)
	}

	now := s.now()
	affected, err := series.ResolveScope(params.OccurrenceID, scope, appointment.OperationCancel, now)
	if err != nil {
		return MutationResult{}, mapScopeError(err)
	}

	apply := func(id string) error {
		return series.CancelOccurrence(id, now, params.Principal.Username, params.Reason, params.Delete)
	}
	return s.runScoped(ctx, series, affected, scopedMutation{
		action:  "CANCEL_OCCURRENCES",
		jobType: JobTypeCancelAppointments,
		scope:   string(scope),
		actor:   params.Principal.Username,
		apply:   apply,
	})
}

// UncancelOccurrences restores every cancelled occurrence the scope resolves to.
func (s *AppointmentService) UncancelOccurrences(ctx context.Context, params UncancelOccurrencesParams) (MutationResult, error) {
	if s == nil {
		return MutationResult{}, fmt.Errorf("AppointmentService is nil")
	}

	scope, err := appointment.ParseScope(params.Scope)
	if err != nil {
		vErr := &ValidationError{}
		vErr.add("scope", "unknown mutation scope")
		return MutationResult{}, vErr
	}

	series, err := s.series.GetSeriesByOccurrence(ctx, params.OccurrenceID)
	if err != nil {
		return MutationResult{}, mapRepoError(err)
	}

	now := s.now()
	affected, err := series.ResolveScope(params.OccurrenceID, scope, appointment.OperationUncancel, now)
	if err != nil {
		return MutationResult{}, mapScopeError(err)
	}

	apply := func(id string) error {
		return series.UncancelOccurrence(id, now, params.Principal.Username)
	}
	return s.runScoped(ctx, series, affected, scopedMutation{
		action:  "UNCANCEL_OCCURRENCES",
		jobType: JobTypeUncancelAppointments,
		scope:   string(scope),
		actor:   params.Principal.Username,
		apply:   apply,
	})
}

// UpdateOccurrences edits every occurrence the scope resolves to.
func (s *AppointmentService) UpdateOccurrences(ctx context.Context, params UpdateOccurrencesParams) (MutationResult, error) {
	if s == nil {
		return MutationResult{}, fmt.Errorf("AppointmentService is nil")
	}

	// Scope and field problems are accumulated so the caller sees every
	// issue in one response.
	vErr := &ValidationError{}
	scope, err := appointment.ParseScope(params.Scope)
	if err != nil {
		vErr.add("scope", "unknown mutation scope")
	}
	vErr.merge(validateOccurrenceUpdate(params.Input))
	if vErr.HasErrors() {
		return MutationResult{}, vErr
	}

	series, err := s.series.GetSeriesByOccurrence(ctx, params.OccurrenceID)
	if err != nil {
		return MutationResult{}, mapRepoError(err)
	}

	now := s.now()
	affected, err := series.ResolveScope(params.OccurrenceID, scope, appointment.OperationEdit, now)
	if err != nil {
		return MutationResult{}, mapScopeError(err)
	}

	update := appointment.OccurrenceUpdate{
		Date:       params.Input.Date,
		StartTime:  params.Input.StartTime,
		EndTime:    params.Input.EndTime,
		LocationID: params.Input.LocationID,
		Notes:      params.Input.Notes,
	}
	apply := func(id string) error {
		return series.UpdateOccurrence(id, update, now, params.Principal.Username)
	}
	return s.runScoped(ctx, series, affected, scopedMutation{
		action:  "UPDATE_OCCURRENCES",
		jobType: JobTypeUpdateAppointments,
		scope:   string(scope),
		actor:   params.Principal.Username,
		apply:   apply,
	})
}

type scopedMutation struct {
	action  string
	jobType string
	scope   string
	actor   string
	apply   func(occurrenceID string) error
}

// runScoped applies a mutation over a resolved occurrence set. The cost of the
// mutation is its instance count, the number of active attendance records it
// touches. At or below the threshold the whole set is mutated and saved in the
// request; above it the target is handled synchronously and the tail moves to
// a tracked job with per-occurrence failure isolation.
func (s *AppointmentService) runScoped(ctx context.Context, series *appointment.Series, affected []*appointment.Occurrence, mutation scopedMutation) (MutationResult, error) {
	logger := serviceLogger(ctx, s.logger, "AppointmentService", mutation.action,
		"series_id", series.ID, "scope", mutation.scope)

	ids := make([]string, len(affected))
	instanceCount := 0
	for i, occurrence := range affected {
		ids[i] = occurrence.ID
		instanceCount += occurrence.ActiveAttendeeCount()
	}

	if instanceCount <= s.threshold {
		for _, id := range ids {
			if err := mutation.apply(id); err != nil {
				return MutationResult{}, err
			}
		}
		if err := s.series.SaveSeries(ctx, series); err != nil {
			return MutationResult{}, mapRepoError(err)
		}

		s.emitAudit(ctx, mutation, series.ID, len(ids))
		logger.Info("scoped mutation applied", "affected", len(ids), "instances", instanceCount)
		return MutationResult{SeriesID: series.ID, AffectedIDs: ids, Asynchronous: false}, nil
	}

	// Split phase. The target must succeed in the request so the caller gets
	// an immediate error when it cannot be mutated.
	if err := mutation.apply(ids[0]); err != nil {
		return MutationResult{}, err
	}
	if err := s.series.SaveSeries(ctx, series); err != nil {
		return MutationResult{}, mapRepoError(err)
	}
	s.emitAudit(ctx, mutation, series.ID, len(ids))

	remaining := append([]string(nil), ids[1:]...)
	definition := jobs.Definition{
		Type: mutation.jobType,
		Work: func(jobCtx context.Context) error {
			failures := 0
			for _, id := range remaining {
				if err := mutation.apply(id); err != nil {
					failures++
					logger.ErrorContext(jobCtx, "occurrence mutation failed",
						slog.String("occurrence_id", id), slog.Any("error", err))
				}
			}
			if err := s.series.SaveSeries(jobCtx, series); err != nil {
				return mapRepoError(err)
			}
			if failures > 0 {
				return fmt.Errorf("%s: %d of %d occurrences failed", mutation.jobType, failures, len(remaining))
			}
			return nil
		},
	}

	logger.Info("scoped mutation split",
		"affected", len(ids), "instances", instanceCount, "threshold", s.threshold)

	jobCtx := context.WithoutCancel(ctx)
	if s.runner == nil {
		return MutationResult{}, fmt.Errorf("background runner not configured")
	}
	go func() {
		if err := s.runner.RunWithRetry(jobCtx, definition); err != nil {
			logger.Error("background tail failed", slog.Any("error", err))
		}
	}()

	return MutationResult{SeriesID: series.ID, AffectedIDs: ids, Asynchronous: true}, nil
}

func (s *AppointmentService) emitAudit(ctx context.Context, mutation scopedMutation, seriesID string, affected int) {
	s.emitter.Emit(ctx, events.AuditEvent{
		ID:            s.idGenerator(),
		Action:        mutation.action,
		SeriesID:      seriesID,
		Scope:         mutation.scope,
		AffectedCount: affected,
		Actor:         mutation.actor,
		OccurredAt:    s.now(),
	})
}

func validateOccurrenceUpdate(input OccurrenceUpdateInput) *ValidationError {
	vErr := &ValidationError{}
	if input.Date == nil && input.StartTime == nil && input.EndTime == nil && input.LocationID == nil && input.Notes == nil {
		vErr.add("update", "at least one field must change")
	}
	if input.StartTime != nil {
		validateTimeOfDay(vErr, "startTime", *input.StartTime, true)
	}
	if input.EndTime != nil {
		validateTimeOfDay(vErr, "endTime", *input.EndTime, true)
	}
	if input.Date != nil && input.Date.IsZero() {
		vErr.add("date", "date must be a valid calendar day")
	}
	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

func mapScopeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, appointment.ErrOccurrenceNotFound) {
		return ErrNotFound
	}
	var scopeErr *appointment.ScopeError
	if errors.As(err, &scopeErr) {
		return scopeErr
	}
	return err
}
