package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/appointment-scheduler/internal/application"
	"github.com/example/appointment-scheduler/internal/persistence"
)

type jobService interface {
	ListJobs(ctx context.Context, params application.ListJobsParams) ([]persistence.Job, error)
}

type JobHandler struct {
	service   jobService
	responder responder
}

func NewJobHandler(service jobService, logger *slog.Logger) *JobHandler {
	return &JobHandler{service: service, responder: newResponder(logger)}
}

func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	params := application.ListJobsParams{
		Type:       strings.TrimSpace(r.URL.Query().Get("type")),
		OnlyFailed: r.URL.Query().Get("failed") == "true",
	}

	jobs, err := h.service.ListJobs(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listJobsResponse{Jobs: toJobDTOs(jobs)})
}

type listJobsResponse struct {
	Jobs []jobDTO `json:"jobs"`
}

type jobDTO struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	Succeeded  bool    `json:"succeeded"`
	Message    *string `json:"message,omitempty"`
	StartedAt  string  `json:"startedAt"`
	FinishedAt string  `json:"finishedAt"`
	CreatedAt  string  `json:"createdAt"`
}

func toJobDTOs(jobs []persistence.Job) []jobDTO {
	out := make([]jobDTO, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, jobDTO{
			ID:         job.ID,
			Type:       job.Type,
			Succeeded:  job.Succeeded,
			Message:    job.Message,
			StartedAt:  job.StartedAt.UTC().Format(time.RFC3339),
			FinishedAt: job.FinishedAt.UTC().Format(time.RFC3339),
			CreatedAt:  job.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}
