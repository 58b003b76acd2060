package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/kiranshivaraju/sqlrunner/internal/database"
	"github.com/kiranshivaraju/sqlrunner/internal/executor"
	"github.com/kiranshivaraju/sqlrunner/internal/history"
	"github.com/kiranshivaraju/sqlrunner/pkg/models"
)

// Batch is the job-side view the orchestrator drives. The registry supplies
// an implementation that also keeps its running view and status mirror in
// step with each transition.
type Batch interface {
	ID() string
	Commands() []string
	Started()
	Recorded(res models.CommandResult)
	Finished(status, errMsg string)
}

// Orchestrator runs every command of a batch in order on one connection.
type Orchestrator struct {
	provider database.Provider
	runner   *executor.Runner
	ledger   *history.Ledger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(provider database.Provider, runner *executor.Runner, ledger *history.Ledger) *Orchestrator {
	return &Orchestrator{
		provider: provider,
		runner:   runner,
		ledger:   ledger,
	}
}

// RunBatch moves b from pending through running to a terminal status.
// Command errors are recorded as results and the batch still completes; only
// a missing connection or a panic fails it. It never returns early without a
// terminal transition.
func (o *Orchestrator) RunBatch(ctx context.Context, b Batch) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in batch",
				"job_id", b.ID(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			b.Finished(models.JobStatusFailed, fmt.Sprintf("panic: %v", r))
		}
	}()

	b.Started()

	conn, err := o.provider.Acquire(ctx)
	if err != nil {
		slog.Error("failed to acquire connection", "job_id", b.ID(), "error", err)
		b.Finished(models.JobStatusFailed, fmt.Sprintf("acquire connection: %v", err))
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Warn("failed to release connection", "job_id", b.ID(), "error", err)
		}
	}()

	for _, cmd := range b.Commands() {
		res := o.runner.Run(ctx, conn, cmd)
		o.ledger.Append(res)
		b.Recorded(res)
	}

	b.Finished(models.JobStatusCompleted, "")
}
