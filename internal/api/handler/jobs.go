package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kiranshivaraju/sqlrunner/internal/api/response"
	"github.com/kiranshivaraju/sqlrunner/internal/jobs"
	"github.com/kiranshivaraju/sqlrunner/pkg/models"
)

const maxSubmitBodyBytes = 10 << 20

// JobRegistry defines the registry operations the job handlers depend on.
type JobRegistry interface {
	SubmitAsync(ctx context.Context, commands []string) (*models.Job, error)
	SubmitSync(ctx context.Context, commands []string) (*models.Job, error)
	Get(id uuid.UUID) (*models.Job, error)
	ListRunning() []models.RunningJob
	Clear()
}

// StatusLookup reads the mirrored job status kept outside the registry.
type StatusLookup interface {
	GetJobStatus(ctx context.Context, jobID uuid.UUID) (string, bool, error)
}

const (
	statusSourceRegistry = "registry"
	statusSourceMirror   = "mirror"
)

type jobStatusResponse struct {
	JobID  uuid.UUID `json:"job_id"`
	Status string    `json:"status"`
	Source string    `json:"source"`
}

type submitRequest struct {
	SQLCommands []string `json:"sql_commands"`
	Sync        bool     `json:"sync"`
}

type submitResponse struct {
	JobID  uuid.UUID `json:"job_id"`
	Status string    `json:"status"`
}

// NewSubmitJobHandler returns an http.HandlerFunc for POST /api/v1/jobs.
// By default the batch runs in the background and the response is 202 with
// the job ID. With ?wait=true or "sync": true the request blocks until the
// batch finishes and the full job is returned.
func NewSubmitJobHandler(reg JobRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxSubmitBodyBytes)

		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.SQLCommands == nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "sql_commands is required", nil)
			return
		}

		wait := req.Sync
		if v := r.URL.Query().Get("wait"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "wait must be a boolean", nil)
				return
			}
			wait = wait || b
		}

		if wait {
			job, err := reg.SubmitSync(r.Context(), req.SQLCommands)
			if err != nil {
				writeSubmitError(w, err)
				return
			}
			response.JSON(w, job)
			return
		}

		job, err := reg.SubmitAsync(r.Context(), req.SQLCommands)
		if err != nil {
			writeSubmitError(w, err)
			return
		}
		response.Accepted(w, submitResponse{JobID: job.ID, Status: job.Status})
	}
}

func writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrInvalidBatch):
		msg := strings.TrimPrefix(err.Error(), jobs.ErrInvalidBatch.Error()+": ")
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", msg, nil)
	default:
		slog.Error("failed to submit job", "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
// A malformed ID cannot name a job and is reported as not found.
func NewGetJobHandler(reg JobRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
			return
		}

		job, err := reg.Get(id)
		if err != nil {
			if errors.Is(err, jobs.ErrJobNotFound) {
				response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
				return
			}
			slog.Error("failed to get job", "job_id", id, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, job)
	}
}

// NewGetJobStatusHandler returns an http.HandlerFunc for
// GET /api/v1/jobs/{jobID}/status. The registry answers first; a job it no
// longer tracks (cleared, or submitted before a restart) is looked up in the
// mirror while its entry lives. mirror may be nil.
func NewGetJobStatusHandler(reg JobRegistry, mirror StatusLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
			return
		}

		job, err := reg.Get(id)
		if err == nil {
			response.JSON(w, jobStatusResponse{JobID: id, Status: job.Status, Source: statusSourceRegistry})
			return
		}
		if !errors.Is(err, jobs.ErrJobNotFound) {
			slog.Error("failed to get job", "job_id", id, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		if mirror != nil {
			status, ok, err := mirror.GetJobStatus(r.Context(), id)
			switch {
			case err != nil:
				slog.Warn("failed to read mirrored job status", "job_id", id, "error", err)
			case ok:
				response.JSON(w, jobStatusResponse{JobID: id, Status: status, Source: statusSourceMirror})
				return
			}
		}

		response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
	}
}

// NewListRunningHandler returns an http.HandlerFunc for GET /api/v1/jobs.
func NewListRunningHandler(reg JobRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		running := reg.ListRunning()
		if running == nil {
			running = []models.RunningJob{}
		}
		response.JSON(w, running)
	}
}
