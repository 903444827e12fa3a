package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/appointment-scheduler/internal/application"
)

type occurrenceService interface {
	CancelOccurrences(ctx context.Context, params application.CancelOccurrencesParams) (application.MutationResult, error)
	UncancelOccurrences(ctx context.Context, params application.UncancelOccurrencesParams) (application.MutationResult, error)
	UpdateOccurrences(ctx context.Context, params application.UpdateOccurrencesParams) (application.MutationResult, error)
}

type OccurrenceHandler struct {
	service   occurrenceService
	responder responder
}

func NewOccurrenceHandler(service occurrenceService, logger *slog.Logger) *OccurrenceHandler {
	return &OccurrenceHandler{service: service, responder: newResponder(logger)}
}

func (h *OccurrenceHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	occurrenceID, ok := OccurrenceIDFromContext(r.Context())
	if !ok || strings.TrimSpace(occurrenceID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidOccurrenceID)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	result, err := h.service.CancelOccurrences(r.Context(), application.CancelOccurrencesParams{
		Principal:    principal,
		OccurrenceID: occurrenceID,
		Scope:        req.Scope,
		Reason:       req.Reason,
		Delete:       req.Delete,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.renderResult(r.Context(), w, result)
}

func (h *OccurrenceHandler) Uncancel(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	occurrenceID, ok := OccurrenceIDFromContext(r.Context())
	if !ok || strings.TrimSpace(occurrenceID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidOccurrenceID)
		return
	}

	var req uncancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	result, err := h.service.UncancelOccurrences(r.Context(), application.UncancelOccurrencesParams{
		Principal:    principal,
		OccurrenceID: occurrenceID,
		Scope:        req.Scope,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.renderResult(r.Context(), w, result)
}

func (h *OccurrenceHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	occurrenceID, ok := OccurrenceIDFromContext(r.Context())
	if !ok || strings.TrimSpace(occurrenceID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidOccurrenceID)
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	result, err := h.service.UpdateOccurrences(r.Context(), application.UpdateOccurrencesParams{
		Principal:    principal,
		OccurrenceID: occurrenceID,
		Scope:        req.Scope,
		Input:        req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.renderResult(r.Context(), w, result)
}

// renderResult writes the common mutation outcome. A split mutation responds
// 202 so the caller knows the tail is still being applied.
func (h *OccurrenceHandler) renderResult(ctx context.Context, w http.ResponseWriter, result application.MutationResult) {
	status := http.StatusOK
	if result.Asynchronous {
		status = http.StatusAccepted
	}
	h.responder.writeJSON(ctx, w, status, mutationResultDTO{
		SeriesID:     result.SeriesID,
		AffectedIDs:  result.AffectedIDs,
		Asynchronous: result.Asynchronous,
	})
}

type cancelRequest struct {
	Scope  string `json:"scope"`
	Reason string `json:"reason"`
	Delete bool   `json:"delete"`
}

type uncancelRequest struct {
	Scope string `json:"scope"`
}

type updateRequest struct {
	Scope      string  `json:"scope"`
	Date       *string `json:"date"`
	StartTime  *string `json:"startTime"`
	EndTime    *string `json:"endTime"`
	LocationID *int64  `json:"locationId"`
	Notes      *string `json:"notes"`
}

func (r updateRequest) toInput() application.OccurrenceUpdateInput {
	input := application.OccurrenceUpdateInput{
		StartTime:  r.StartTime,
		EndTime:    r.EndTime,
		LocationID: r.LocationID,
		Notes:      r.Notes,
	}
	if r.Date != nil {
		date := parseDate(*r.Date)
		input.Date = &date
	}
	return input
}

type mutationResultDTO struct {
	SeriesID     string   `json:"seriesId"`
	AffectedIDs  []string `json:"affectedIds"`
	Asynchronous bool     `json:"asynchronous"`
}
