package jobs

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/sqlrunner/pkg/models"
)

// jobHandle owns the mutable state of one job. Every read goes through
// snapshot, which deep-copies under the read lock.
type jobHandle struct {
	mu  sync.RWMutex
	job models.Job

	// started and completed keep the monotonic clock reading so elapsed
	// time never goes backwards while the job runs.
	started   time.Time
	completed time.Time

	// gen is the registry generation the job was created in.
	gen uint64
}

func newJobHandle(job models.Job, gen uint64) *jobHandle {
	return &jobHandle{job: job, gen: gen}
}

func (h *jobHandle) id() uuid.UUID {
	return h.job.ID
}

// commands is safe without the lock: the slice is fixed at creation.
func (h *jobHandle) commands() []string {
	return h.job.Commands
}

func (h *jobHandle) markRunning(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.job.Status != models.JobStatusPending {
		return
	}
	h.started = now
	startedAt := now.UTC()
	h.job.StartedAt = &startedAt
	h.job.Status = models.JobStatusRunning
}

func (h *jobHandle) appendResult(res models.CommandResult) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.job.IsTerminal() || len(h.job.Results) >= len(h.job.Commands) {
		return
	}
	h.job.Results = append(h.job.Results, res)
	if res.Succeeded() {
		h.job.SuccessCount++
	} else {
		h.job.ErrorCount++
	}
}

// finish moves the job to a terminal status. It reports false when the job
// was already terminal, in which case nothing changes.
func (h *jobHandle) finish(status string, errMsg string, now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.job.IsTerminal() {
		return false
	}
	if h.started.IsZero() {
		h.started = now
		startedAt := now.UTC()
		h.job.StartedAt = &startedAt
	}
	h.completed = now
	completedAt := now.UTC()
	h.job.CompletedAt = &completedAt
	h.job.Status = status
	if errMsg != "" {
		h.job.ErrorMessage = &errMsg
	}
	return true
}

// snapshot returns a copy of the job with ElapsedSeconds computed for now.
func (h *jobHandle) snapshot(now time.Time) *models.Job {
	h.mu.RLock()
	defer h.mu.RUnlock()

	j := h.job
	j.Commands = append([]string(nil), h.job.Commands...)
	j.Results = append(make([]models.CommandResult, 0, len(h.job.Results)), h.job.Results...)
	if h.job.StartedAt != nil {
		t := *h.job.StartedAt
		j.StartedAt = &t
	}
	if h.job.CompletedAt != nil {
		t := *h.job.CompletedAt
		j.CompletedAt = &t
	}
	if h.job.ErrorMessage != nil {
		msg := *h.job.ErrorMessage
		j.ErrorMessage = &msg
	}

	switch {
	case !h.completed.IsZero():
		j.ElapsedSeconds = h.completed.Sub(h.started).Seconds()
	case !h.started.IsZero():
		j.ElapsedSeconds = now.Sub(h.started).Seconds()
	}
	return &j
}
