package jobs_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/sqlrunner/internal/database"
	"github.com/kiranshivaraju/sqlrunner/internal/executor"
	"github.com/kiranshivaraju/sqlrunner/internal/history"
	"github.com/kiranshivaraju/sqlrunner/internal/jobs"
)

const blockSQL = "SELECT pg_sleep(3600)"

// fakeProvider hands out connections whose Exec behaviour is scripted.
// Statements equal to blockSQL wait until the gate is opened.
type fakeProvider struct {
	acquireErr error
	execFn     func(sql string) error
	gate       chan struct{}

	mu       sync.Mutex
	acquired int
	released int
	executed []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{gate: make(chan struct{})}
}

func (p *fakeProvider) open() {
	close(p.gate)
}

func (p *fakeProvider) Acquire(ctx context.Context) (database.Conn, error) {
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	p.mu.Lock()
	p.acquired++
	p.mu.Unlock()
	return &fakeConn{p: p}, nil
}

func (p *fakeProvider) Ping(ctx context.Context) error { return nil }
func (p *fakeProvider) Driver() string                 { return "fake" }
func (p *fakeProvider) Close() error                   { return nil }

func (p *fakeProvider) counts() (acquired, released int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquired, p.released
}

type fakeConn struct {
	p *fakeProvider
}

func (c *fakeConn) Exec(ctx context.Context, sql string) error {
	c.p.mu.Lock()
	c.p.executed = append(c.p.executed, sql)
	c.p.mu.Unlock()

	if sql == blockSQL {
		select {
		case <-c.p.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if c.p.execFn != nil {
		return c.p.execFn(sql)
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.p.mu.Lock()
	c.p.released++
	c.p.mu.Unlock()
	return nil
}

// statusRecorder is a jobs.StatusSink that remembers every transition.
type statusRecorder struct {
	mu      sync.Mutex
	history map[uuid.UUID][]string
	err     error
}

func newStatusRecorder() *statusRecorder {
	return &statusRecorder{history: make(map[uuid.UUID][]string)}
}

func (s *statusRecorder) SetJobStatus(ctx context.Context, jobID uuid.UUID, status string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[jobID] = append(s.history[jobID], status)
	return s.err
}

func (s *statusRecorder) transitions(id uuid.UUID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.history[id]...)
}

var errNoTable = errors.New("relation \"nonexistent_table\" does not exist")

type testEnv struct {
	provider *fakeProvider
	ledger   *history.Ledger
	registry *jobs.Registry
}

func newTestEnv(t *testing.T, opts ...jobs.Option) *testEnv {
	t.Helper()
	p := newFakeProvider()
	ledger := history.NewLedger(0)
	orch := jobs.NewOrchestrator(p, executor.NewRunner(), ledger)
	reg := jobs.NewRegistry(orch, opts...)

	t.Cleanup(func() {
		select {
		case <-p.gate:
		default:
			p.open()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = reg.Wait(ctx)
	})

	return &testEnv{provider: p, ledger: ledger, registry: reg}
}
