package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kiranshivaraju/sqlrunner/internal/config"
)

// SQLProvider implements Provider on a database/sql handle. It backs the
// sqlite3 and duckdb engines.
type SQLProvider struct {
	db     *sql.DB
	driver string
}

// OpenSQL opens driverName with cfg.URL as the DSN, applies the pool limits
// and verifies connectivity.
func OpenSQL(ctx context.Context, driverName string, cfg config.DatabaseConfig) (*SQLProvider, error) {
	db, err := sql.Open(driverName, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driverName, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", driverName, err)
	}
	return NewSQLProvider(db, driverName), nil
}

// NewSQLProvider wraps an already opened handle.
func NewSQLProvider(db *sql.DB, driver string) *SQLProvider {
	return &SQLProvider{db: db, driver: driver}
}

func (p *SQLProvider) Acquire(ctx context.Context) (Conn, error) {
	c, err := p.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire %s connection: %w", p.driver, err)
	}
	return &sqlConn{conn: c}, nil
}

func (p *SQLProvider) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *SQLProvider) Driver() string { return p.driver }

func (p *SQLProvider) Close() error {
	return p.db.Close()
}

type sqlConn struct {
	conn *sql.Conn
}

func (c *sqlConn) Exec(ctx context.Context, query string) error {
	_, err := c.conn.ExecContext(ctx, query)
	return err
}

func (c *sqlConn) Close() error {
	return c.conn.Close()
}
