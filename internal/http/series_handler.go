package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/appointment-scheduler/internal/application"
	"github.com/example/appointment-scheduler/internal/appointment"
)

type seriesService interface {
	CreateSeries(ctx context.Context, params application.CreateSeriesParams) (application.CreateSeriesResult, error)
	GetSeries(ctx context.Context, id string) (*appointment.Series, error)
	ListSeriesForFacility(ctx context.Context, facilityCode string) ([]*appointment.Series, error)
}

type SeriesHandler struct {
	service   seriesService
	responder responder
}

func NewSeriesHandler(service seriesService, logger *slog.Logger) *SeriesHandler {
	return &SeriesHandler{service: service, responder: newResponder(logger)}
}

func (h *SeriesHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req seriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	result, err := h.service.CreateSeries(r.Context(), application.CreateSeriesParams{
		Principal: principal,
		Input:     req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	status := http.StatusCreated
	if result.Asynchronous {
		status = http.StatusAccepted
	}
	h.responder.writeJSON(r.Context(), w, status, toSeriesDTO(result.Series))
}

func (h *SeriesHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	facility := strings.TrimSpace(r.URL.Query().Get("facility"))

	series, err := h.service.ListSeriesForFacility(r.Context(), facility)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]seriesDTO, 0, len(series))
	for _, item := range series {
		out = append(out, toSeriesDTO(item))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listSeriesResponse{Series: out})
}

type listSeriesResponse struct {
	Series []seriesDTO `json:"series"`
}

func (h *SeriesHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	seriesID, ok := SeriesIDFromContext(r.Context())
	if !ok || strings.TrimSpace(seriesID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSeriesID)
		return
	}

	series, err := h.service.GetSeries(r.Context(), seriesID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSeriesDTO(series))
}

type repeatRequest struct {
	Frequency string `json:"frequency"`
	Count     int    `json:"count"`
}

type seriesRequest struct {
	FacilityCode string         `json:"facilityCode"`
	CategoryCode string         `json:"categoryCode"`
	TierCode     string         `json:"tierCode"`
	CustomName   string         `json:"customName"`
	OrganiserID  *string        `json:"organiserId"`
	Kind         string         `json:"kind"`
	LocationID   *int64         `json:"locationId"`
	InCell       bool           `json:"inCell"`
	StartDate    string         `json:"startDate"`
	StartTime    string         `json:"startTime"`
	EndTime      string         `json:"endTime"`
	Repeat       *repeatRequest `json:"repeat"`
	Notes        string         `json:"notes"`
	Attendees    []string       `json:"attendees"`
}

func (r seriesRequest) toInput() application.SeriesInput {
	input := application.SeriesInput{
		FacilityCode:      strings.TrimSpace(r.FacilityCode),
		CategoryCode:      strings.TrimSpace(r.CategoryCode),
		TierCode:          strings.TrimSpace(r.TierCode),
		CustomName:        r.CustomName,
		OrganiserID:       r.OrganiserID,
		Kind:              r.Kind,
		LocationID:        r.LocationID,
		InCell:            r.InCell,
		StartDate:         parseDate(r.StartDate),
		StartTime:         strings.TrimSpace(r.StartTime),
		EndTime:           strings.TrimSpace(r.EndTime),
		Notes:             r.Notes,
		AttendeePersonIDs: append([]string(nil), r.Attendees...),
	}
	if r.Repeat != nil {
		input.Repeat = &application.RepeatInput{
			Frequency: strings.TrimSpace(r.Repeat.Frequency),
			Count:     r.Repeat.Count,
		}
	}
	return input
}

func parseDate(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	if ts, err := time.Parse("2006-01-02", value); err == nil {
		return ts
	}
	return time.Time{}
}

type repeatDTO struct {
	Frequency string `json:"frequency"`
	Count     int    `json:"count"`
}

type seriesDTO struct {
	ID           string          `json:"id"`
	SetID        *string         `json:"setId,omitempty"`
	FacilityCode string          `json:"facilityCode"`
	CategoryCode string          `json:"categoryCode"`
	TierCode     string          `json:"tierCode"`
	CustomName   string          `json:"customName,omitempty"`
	OrganiserID  *string         `json:"organiserId,omitempty"`
	Kind         string          `json:"kind"`
	LocationID   *int64          `json:"locationId,omitempty"`
	InCell       bool            `json:"inCell"`
	StartDate    string          `json:"startDate"`
	StartTime    string          `json:"startTime"`
	EndTime      string          `json:"endTime,omitempty"`
	Repeat       *repeatDTO      `json:"repeat,omitempty"`
	Notes        string          `json:"notes,omitempty"`
	CreatedAt    string          `json:"createdAt"`
	CreatedBy    string          `json:"createdBy"`
	UpdatedAt    *string         `json:"updatedAt,omitempty"`
	UpdatedBy    *string         `json:"updatedBy,omitempty"`
	Occurrences  []occurrenceDTO `json:"occurrences"`
}

func toSeriesDTO(series *appointment.Series) seriesDTO {
	dto := seriesDTO{
		ID:           series.ID,
		SetID:        series.SetID,
		FacilityCode: series.FacilityCode,
		CategoryCode: series.CategoryCode,
		TierCode:     series.TierCode,
		CustomName:   series.CustomName,
		OrganiserID:  series.OrganiserID,
		Kind:         string(series.Kind),
		LocationID:   series.LocationID,
		InCell:       series.InCell,
		StartDate:    series.StartDate.Format("2006-01-02"),
		StartTime:    series.StartTime,
		EndTime:      series.EndTime,
		Notes:        series.Notes,
		CreatedAt:    series.CreatedAt.UTC().Format(time.RFC3339),
		CreatedBy:    series.CreatedBy,
		UpdatedAt:    formatTimePtr(series.UpdatedAt),
		UpdatedBy:    series.UpdatedBy,
		Occurrences:  toOccurrenceDTOs(series.Occurrences),
	}
	if series.Rule != nil {
		dto.Repeat = &repeatDTO{
			Frequency: series.Rule.Frequency.String(),
			Count:     series.Rule.Count,
		}
	}
	return dto
}

type occurrenceDTO struct {
	ID                 string        `json:"id"`
	SequenceNumber     int           `json:"sequenceNumber"`
	Date               string        `json:"date"`
	StartTime          string        `json:"startTime"`
	EndTime            string        `json:"endTime,omitempty"`
	LocationID         *int64        `json:"locationId,omitempty"`
	InCell             bool          `json:"inCell"`
	Notes              string        `json:"notes,omitempty"`
	CancelledAt        *string       `json:"cancelledAt,omitempty"`
	CancelledBy        *string       `json:"cancelledBy,omitempty"`
	CancellationReason *string       `json:"cancellationReason,omitempty"`
	UpdatedAt          *string       `json:"updatedAt,omitempty"`
	UpdatedBy          *string       `json:"updatedBy,omitempty"`
	Attendees          []attendeeDTO `json:"attendees"`
}

func toOccurrenceDTOs(occurrences []*appointment.Occurrence) []occurrenceDTO {
	out := make([]occurrenceDTO, 0, len(occurrences))
	for _, occurrence := range occurrences {
		if occurrence.Deleted {
			continue
		}
		out = append(out, occurrenceDTO{
			ID:                 occurrence.ID,
			SequenceNumber:     occurrence.SequenceNumber,
			Date:               occurrence.Date.Format("2006-01-02"),
			StartTime:          occurrence.StartTime,
			EndTime:            occurrence.EndTime,
			LocationID:         occurrence.LocationID,
			InCell:             occurrence.InCell,
			Notes:              occurrence.Notes,
			CancelledAt:        formatTimePtr(occurrence.CancelledAt),
			CancelledBy:        occurrence.CancelledBy,
			CancellationReason: occurrence.CancellationReason,
			UpdatedAt:          formatTimePtr(occurrence.UpdatedAt),
			UpdatedBy:          occurrence.UpdatedBy,
			Attendees:          toAttendeeDTOs(occurrence.Attendees),
		})
	}
	return out
}

type attendeeDTO struct {
	ID            string  `json:"id"`
	PersonID      string  `json:"personId"`
	BookingID     int64   `json:"bookingId"`
	AddedAt       string  `json:"addedAt"`
	AddedBy       string  `json:"addedBy"`
	RemovedAt     *string `json:"removedAt,omitempty"`
	RemovalReason *string `json:"removalReason,omitempty"`
	RemovedBy     *string `json:"removedBy,omitempty"`
}

func toAttendeeDTOs(attendees []*appointment.Attendee) []attendeeDTO {
	out := make([]attendeeDTO, 0, len(attendees))
	for _, attendee := range attendees {
		if attendee.Deleted {
			continue
		}
		out = append(out, attendeeDTO{
			ID:            attendee.ID,
			PersonID:      attendee.PersonID,
			BookingID:     attendee.BookingID,
			AddedAt:       attendee.AddedAt.UTC().Format(time.RFC3339),
			AddedBy:       attendee.AddedBy,
			RemovedAt:     formatTimePtr(attendee.RemovedAt),
			RemovalReason: attendee.RemovalReason,
			RemovedBy:     attendee.RemovedBy,
		})
	}
	return out
}

func formatTimePtr(value *time.Time) *string {
	if value == nil {
		return nil
	}
	formatted := value.UTC().Format(time.RFC3339)
	return &formatted
}
