// Package executor runs single SQL statements and turns their outcome into a
// models.CommandResult. It is the only place a database error is absorbed: a
// failing statement becomes data and never aborts sibling statements.
package executor

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/kiranshivaraju/sqlrunner/internal/database"
	"github.com/kiranshivaraju/sqlrunner/pkg/models"
)

const previewLen = 100

type runnerOptions struct {
	statementTimeout time.Duration
	now              func() time.Time
}

// Option configures a Runner.
type Option func(*runnerOptions)

// WithStatementTimeout bounds each statement. A statement that exceeds it is
// recorded as a command error. Zero disables the bound.
func WithStatementTimeout(d time.Duration) Option {
	return func(o *runnerOptions) { o.statementTimeout = d }
}

// WithClock overrides the wall clock used for completion timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *runnerOptions) { o.now = now }
}

// Runner executes one statement at a time against a caller-provided
// connection. It is stateless and safe for concurrent use.
type Runner struct {
	opts runnerOptions
}

// NewRunner creates a Runner.
func NewRunner(opts ...Option) *Runner {
	o := runnerOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Runner{opts: o}
}

// Run executes sql on conn exactly once. Duration is measured from just
// before execution until the driver returns.
func (r *Runner) Run(ctx context.Context, conn database.Execer, sql string) models.CommandResult {
	if r.opts.statementTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.statementTimeout)
		defer cancel()
	}

	start := time.Now()
	err := conn.Exec(ctx, sql)
	duration := time.Since(start)

	result := models.CommandResult{
		Command:         sql,
		DurationSeconds: duration.Seconds(),
		Status:          models.CommandStatusSuccess,
		Timestamp:       r.opts.now().UTC(),
	}

	if err != nil {
		msg := err.Error()
		result.Status = models.CommandStatusError
		result.Error = &msg
		slog.Warn("command failed",
			"command", preview(sql),
			"duration_ms", duration.Milliseconds(),
			"error", msg,
		)
		return result
	}

	slog.Info("command executed",
		"command", preview(sql),
		"duration_ms", duration.Milliseconds(),
	)
	return result
}

// preview truncates s to previewLen bytes without splitting a UTF-8 sequence.
func preview(s string) string {
	if len(s) <= previewLen {
		return s
	}
	cut := previewLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
