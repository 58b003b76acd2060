package jobs_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/sqlrunner/internal/executor"
	"github.com/kiranshivaraju/sqlrunner/internal/history"
	"github.com/kiranshivaraju/sqlrunner/internal/jobs"
	"github.com/kiranshivaraju/sqlrunner/pkg/models"
)

// recordingBatch is a jobs.Batch that logs every callback in order.
type recordingBatch struct {
	cmds    []string
	events  []string
	results []models.CommandResult
	status  string
	errMsg  string
}

func (b *recordingBatch) ID() string         { return "test-batch" }
func (b *recordingBatch) Commands() []string { return b.cmds }
func (b *recordingBatch) Started()           { b.events = append(b.events, "started") }

func (b *recordingBatch) Recorded(res models.CommandResult) {
	b.events = append(b.events, "recorded")
	b.results = append(b.results, res)
}

func (b *recordingBatch) Finished(status, errMsg string) {
	b.events = append(b.events, "finished")
	b.status = status
	b.errMsg = errMsg
}

func TestRunBatch_OrderOfCallbacks(t *testing.T) {
	p := newFakeProvider()
	ledger := history.NewLedger(0)
	orch := jobs.NewOrchestrator(p, executor.NewRunner(), ledger)

	b := &recordingBatch{cmds: []string{"SELECT 1", "SELECT 2"}}
	orch.RunBatch(context.Background(), b)

	assert.Equal(t, []string{"started", "recorded", "recorded", "finished"}, b.events)
	assert.Equal(t, models.JobStatusCompleted, b.status)
	assert.Empty(t, b.errMsg)

	entries, total := ledger.Page(1, 10)
	require.Equal(t, 2, total)
	assert.Equal(t, b.results, entries, "ledger and job see the same results in the same order")

	acquired, released := p.counts()
	assert.Equal(t, 1, acquired, "one connection per batch")
	assert.Equal(t, 1, released)
}

func TestRunBatch_AcquireFailureRunsNothing(t *testing.T) {
	p := newFakeProvider()
	p.acquireErr = errors.New("too many clients")
	orch := jobs.NewOrchestrator(p, executor.NewRunner(), history.NewLedger(0))

	b := &recordingBatch{cmds: []string{"SELECT 1"}}
	orch.RunBatch(context.Background(), b)

	assert.Equal(t, []string{"started", "finished"}, b.events)
	assert.Equal(t, models.JobStatusFailed, b.status)
	assert.Equal(t, "acquire connection: too many clients", b.errMsg)
	assert.Empty(t, p.executed)
}

func TestRunBatch_RecoversPanic(t *testing.T) {
	p := newFakeProvider()
	p.execFn = func(string) error { panic(errors.New("driver exploded")) }
	orch := jobs.NewOrchestrator(p, executor.NewRunner(), history.NewLedger(0))

	b := &recordingBatch{cmds: []string{"SELECT 1"}}
	require.NotPanics(t, func() { orch.RunBatch(context.Background(), b) })

	assert.Equal(t, models.JobStatusFailed, b.status)
	assert.Equal(t, "panic: driver exploded", b.errMsg)

	_, released := p.counts()
	assert.Equal(t, 1, released, "connection released on panic")
}
