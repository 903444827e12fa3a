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

type setService interface {
	CreateSet(ctx context.Context, params application.CreateSetParams) (*appointment.Set, error)
	GetSet(ctx context.Context, id string) (*appointment.Set, error)
}

type SetHandler struct {
	service   setService
	responder responder
}

func NewSetHandler(service setService, logger *slog.Logger) *SetHandler {
	return &SetHandler{service: service, responder: newResponder(logger)}
}

func (h *SetHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req setRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	inputs := make([]application.SeriesInput, 0, len(req.Appointments))
	for _, member := range req.Appointments {
		inputs = append(inputs, member.toInput())
	}

	set, err := h.service.CreateSet(r.Context(), application.CreateSetParams{
		Principal:    principal,
		FacilityCode: strings.TrimSpace(req.FacilityCode),
		Series:       inputs,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toSetDTO(set))
}

func (h *SetHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	setID, ok := SetIDFromContext(r.Context())
	if !ok || strings.TrimSpace(setID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidSetID)
		return
	}

	set, err := h.service.GetSet(r.Context(), setID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSetDTO(set))
}

type setRequest struct {
	FacilityCode string          `json:"facilityCode"`
	Appointments []seriesRequest `json:"appointments"`
}

type setDTO struct {
	ID           string      `json:"id"`
	FacilityCode string      `json:"facilityCode"`
	CreatedAt    string      `json:"createdAt"`
	CreatedBy    string      `json:"createdBy"`
	Appointments []seriesDTO `json:"appointments"`
}

func toSetDTO(set *appointment.Set) setDTO {
	appointments := make([]seriesDTO, 0, len(set.Series))
	for _, series := range set.Series {
		appointments = append(appointments, toSeriesDTO(series))
	}
	return setDTO{
		ID:           set.ID,
		FacilityCode: set.FacilityCode,
		CreatedAt:    set.CreatedAt.UTC().Format(time.RFC3339),
		CreatedBy:    set.CreatedBy,
		Appointments: appointments,
	}
}
