// Package database yields live connections to the target database that SQL
// batches run against. A job acquires one Conn and releases it when the batch
// ends.
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiranshivaraju/sqlrunner/internal/config"
)

var ErrUnsupportedDriver = errors.New("unsupported database driver")

// Execer runs one SQL statement and reports the driver error, if any.
type Execer interface {
	Exec(ctx context.Context, sql string) error
}

// Conn is a connection checked out from a Provider. Close returns it to the
// pool; it must be called exactly once.
type Conn interface {
	Execer
	Close() error
}

// Provider hands out connections to the configured database.
// Implementations must be safe for concurrent use.
type Provider interface {
	Acquire(ctx context.Context) (Conn, error)
	Ping(ctx context.Context) error
	Driver() string
	Close() error
}

// NewProvider constructs the provider for cfg.Driver.
// Called once at server startup.
func NewProvider(ctx context.Context, cfg config.DatabaseConfig) (Provider, error) {
	switch cfg.Driver {
	case "postgres":
		pool, err := Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewPgxProvider(pool), nil
	case "sqlite":
		return OpenSQL(ctx, "sqlite3", cfg)
	case "duckdb":
		return OpenSQL(ctx, "duckdb", cfg)
	default:
		return nil, fmt.Errorf("%w %q: must be one of postgres, sqlite, duckdb", ErrUnsupportedDriver, cfg.Driver)
	}
}
