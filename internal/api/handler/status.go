package handler

import (
	"net/http"
	"strconv"

	"github.com/kiranshivaraju/sqlrunner/internal/api/response"
	"github.com/kiranshivaraju/sqlrunner/pkg/models"
)

const (
	defaultPage  = 1
	defaultLimit = 50
	maxLimit     = 500

	orderAsc  = "asc"
	orderDesc = "desc"
)

// History defines the ledger operations the status handlers depend on.
type History interface {
	Page(page, size int) ([]models.CommandResult, int)
	PageNewestFirst(page, size int) ([]models.CommandResult, int)
	Clear()
}

type statusResponse struct {
	History []models.CommandResult `json:"history"`
	Running []models.RunningJob    `json:"running"`
}

// NewStatusHandler returns an http.HandlerFunc for GET /api/v1/status.
// Query params: page (default 1), limit (default 50, max 500),
// order (asc or desc, default asc).
func NewStatusHandler(reg JobRegistry, hist History) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		page, ok := positiveIntParam(q.Get("page"), defaultPage)
		if !ok {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "page must be a positive integer", nil)
			return
		}
		limit, ok := positiveIntParam(q.Get("limit"), defaultLimit)
		if !ok {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer", nil)
			return
		}
		if limit > maxLimit {
			limit = maxLimit
		}

		order := q.Get("order")
		if order == "" {
			order = orderAsc
		}

		var (
			entries []models.CommandResult
			total   int
		)
		switch order {
		case orderAsc:
			entries, total = hist.Page(page, limit)
		case orderDesc:
			entries, total = hist.PageNewestFirst(page, limit)
		default:
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "order must be asc or desc", nil)
			return
		}

		running := reg.ListRunning()
		if running == nil {
			running = []models.RunningJob{}
		}

		response.Collection(w, statusResponse{History: entries, Running: running}, response.PaginationMeta{
			Page:    page,
			Limit:   limit,
			Total:   total,
			HasNext: page < (total+limit-1)/limit,
			Order:   order,
		})
	}
}

// NewClearHandler returns an http.HandlerFunc for DELETE /api/v1/history.
// It empties the ledger and forgets every tracked job.
func NewClearHandler(reg JobRegistry, hist History) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hist.Clear()
		reg.Clear()
		response.JSON(w, map[string]string{"status": "cleared"})
	}
}

func positiveIntParam(raw string, def int) (int, bool) {
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, false
	}
	return v, true
}
