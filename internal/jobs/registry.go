// Package jobs owns the lifecycle of submitted SQL batches: validation,
// dispatch, in-flight tracking and snapshot reads.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/kiranshivaraju/sqlrunner/pkg/models"
)

const (
	defaultMaxCommands = 1000
	statusWriteTimeout = 2 * time.Second
)

// StatusSink receives every job status transition. Writes are best-effort:
// a failing sink is logged and never affects the job.
type StatusSink interface {
	SetJobStatus(ctx context.Context, jobID uuid.UUID, status string, ttl time.Duration) error
}

// Option configures a Registry.
type Option func(*Registry)

// WithMaxConcurrent bounds how many async jobs execute at once. Queued jobs
// stay pending and start in submission order. n <= 0 means unbounded.
func WithMaxConcurrent(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithMaxCommands caps the number of commands accepted in one batch.
func WithMaxCommands(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxCommands = n
		}
	}
}

// WithStatusSink mirrors status transitions to sink with the given TTL.
func WithStatusSink(sink StatusSink, ttl time.Duration) Option {
	return func(r *Registry) {
		r.sink = sink
		r.sinkTTL = ttl
	}
}

// Registry tracks every job submitted since start (or since the last Clear)
// and the subset currently executing.
type Registry struct {
	orch *Orchestrator

	mu      sync.Mutex
	jobs    map[uuid.UUID]*jobHandle
	running map[uuid.UUID]*jobHandle
	gen     uint64

	wg          sync.WaitGroup
	sem         *semaphore.Weighted
	maxCommands int
	sink        StatusSink
	sinkTTL     time.Duration
	now         func() time.Time
}

// NewRegistry creates a Registry that runs batches with orch.
func NewRegistry(orch *Orchestrator, opts ...Option) *Registry {
	r := &Registry{
		orch:        orch,
		jobs:        make(map[uuid.UUID]*jobHandle),
		running:     make(map[uuid.UUID]*jobHandle),
		maxCommands: defaultMaxCommands,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SubmitAsync registers a pending job and starts it in the background. The
// returned snapshot is taken before execution begins.
//
// The batch runs on a context detached from ctx so that a finished HTTP
// request does not cancel its statements.
func (r *Registry) SubmitAsync(ctx context.Context, commands []string) (*models.Job, error) {
	h, err := r.create(commands)
	if err != nil {
		return nil, err
	}
	snap := h.snapshot(r.now())

	slog.Info("job submitted", "job_id", h.id(), "commands", len(commands), "mode", "async")

	runCtx := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if r.sem != nil {
			if err := r.sem.Acquire(runCtx, 1); err != nil {
				r.tracked(h).Finished(models.JobStatusFailed, fmt.Sprintf("wait for slot: %v", err))
				return
			}
			defer r.sem.Release(1)
		}
		r.orch.RunBatch(runCtx, r.tracked(h))
	}()

	return snap, nil
}

// SubmitSync registers a job and runs it to completion on the caller's
// goroutine. A batch that cannot run comes back as a failed job, not as an
// error; the error return is reserved for rejected input.
func (r *Registry) SubmitSync(ctx context.Context, commands []string) (*models.Job, error) {
	h, err := r.create(commands)
	if err != nil {
		return nil, err
	}

	slog.Info("job submitted", "job_id", h.id(), "commands", len(commands), "mode", "sync")

	r.wg.Add(1)
	defer r.wg.Done()
	r.orch.RunBatch(context.WithoutCancel(ctx), r.tracked(h))

	return h.snapshot(r.now()), nil
}

// Get returns a snapshot of the job with the given ID.
func (r *Registry) Get(id uuid.UUID) (*models.Job, error) {
	r.mu.Lock()
	h, ok := r.jobs[id]
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return h.snapshot(r.now()), nil
}

// ListRunning returns the jobs currently executing, oldest start first.
func (r *Registry) ListRunning() []models.RunningJob {
	r.mu.Lock()
	handles := make([]*jobHandle, 0, len(r.running))
	for _, h := range r.running {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	now := r.now()
	out := make([]models.RunningJob, 0, len(handles))
	for _, h := range handles {
		j := h.snapshot(now)
		if j.Status != models.JobStatusRunning || j.StartedAt == nil {
			continue
		}
		out = append(out, models.RunningJob{
			ID:             j.ID,
			StartedAt:      *j.StartedAt,
			ElapsedSeconds: j.ElapsedSeconds,
			CommandCount:   len(j.Commands),
			CompletedCount: len(j.Results),
		})
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].StartedAt.Equal(out[k].StartedAt) {
			return out[i].ID.String() < out[k].ID.String()
		}
		return out[i].StartedAt.Before(out[k].StartedAt)
	})
	return out
}

// Clear forgets every job and empties the running view. Jobs executing at
// this moment run to completion but are unreachable afterwards.
func (r *Registry) Clear() {
	r.mu.Lock()
	n := len(r.jobs)
	r.jobs = make(map[uuid.UUID]*jobHandle)
	r.running = make(map[uuid.UUID]*jobHandle)
	r.gen++
	r.mu.Unlock()

	slog.Info("job registry cleared", "jobs_removed", n)
}

// Wait blocks until every submitted batch has returned or ctx is done.
func (r *Registry) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) validate(commands []string) error {
	if len(commands) == 0 {
		return fmt.Errorf("%w: sql_commands must not be empty", ErrInvalidBatch)
	}
	if len(commands) > r.maxCommands {
		return fmt.Errorf("%w: sql_commands has %d entries, max %d", ErrInvalidBatch, len(commands), r.maxCommands)
	}
	for i, c := range commands {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("%w: sql_commands[%d] is blank", ErrInvalidBatch, i)
		}
	}
	return nil
}

func (r *Registry) create(commands []string) (*jobHandle, error) {
	if err := r.validate(commands); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate job id: %w", err)
	}

	job := models.Job{
		ID:        id,
		Status:    models.JobStatusPending,
		Commands:  append([]string(nil), commands...),
		Results:   make([]models.CommandResult, 0, len(commands)),
		CreatedAt: r.now().UTC(),
	}

	r.mu.Lock()
	h := newJobHandle(job, r.gen)
	r.jobs[id] = h
	r.mu.Unlock()

	r.publish(id, models.JobStatusPending)
	return h, nil
}

func (r *Registry) publish(id uuid.UUID, status string) {
	if r.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), statusWriteTimeout)
	defer cancel()

	if err := r.sink.SetJobStatus(ctx, id, status, r.sinkTTL); err != nil {
		slog.Warn("failed to mirror job status", "job_id", id, "status", status, "error", err)
	}
}

func (r *Registry) tracked(h *jobHandle) *trackedJob {
	return &trackedJob{reg: r, h: h}
}

// trackedJob adapts a jobHandle to Batch and keeps the registry's running
// view in step with it.
type trackedJob struct {
	reg *Registry
	h   *jobHandle
}

func (t *trackedJob) ID() string {
	return t.h.id().String()
}

func (t *trackedJob) Commands() []string {
	return t.h.commands()
}

func (t *trackedJob) Started() {
	t.h.markRunning(t.reg.now())

	t.reg.mu.Lock()
	if t.h.gen == t.reg.gen {
		t.reg.running[t.h.id()] = t.h
	}
	t.reg.mu.Unlock()

	t.reg.publish(t.h.id(), models.JobStatusRunning)
}

func (t *trackedJob) Recorded(res models.CommandResult) {
	t.h.appendResult(res)
}

func (t *trackedJob) Finished(status, errMsg string) {
	if !t.h.finish(status, errMsg, t.reg.now()) {
		return
	}

	t.reg.mu.Lock()
	if t.h.gen == t.reg.gen {
		delete(t.reg.running, t.h.id())
	}
	t.reg.mu.Unlock()

	t.reg.publish(t.h.id(), status)

	j := t.h.snapshot(t.reg.now())
	slog.Info("job finished",
		"job_id", j.ID,
		"status", j.Status,
		"success_count", j.SuccessCount,
		"error_count", j.ErrorCount,
		"elapsed_seconds", j.ElapsedSeconds,
	)
}
