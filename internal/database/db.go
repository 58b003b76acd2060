package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/sqlrunner/internal/config"
)

func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// PgxProvider implements Provider on a pgx connection pool.
type PgxProvider struct {
	pool *pgxpool.Pool
}

// NewPgxProvider creates a new PgxProvider.
func NewPgxProvider(pool *pgxpool.Pool) *PgxProvider {
	return &PgxProvider{pool: pool}
}

func (p *PgxProvider) Acquire(ctx context.Context) (Conn, error) {
	c, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire postgres connection: %w", err)
	}
	return &pgxConn{conn: c}, nil
}

func (p *PgxProvider) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PgxProvider) Driver() string { return "postgres" }

func (p *PgxProvider) Close() error {
	p.pool.Close()
	return nil
}

type pgxConn struct {
	conn *pgxpool.Conn
}

// Exec runs sql without arguments, which pgx sends over the simple query
// protocol. Multi-statement strings are therefore accepted and each
// statement autocommits.
func (c *pgxConn) Exec(ctx context.Context, sql string) error {
	_, err := c.conn.Exec(ctx, sql)
	return err
}

func (c *pgxConn) Close() error {
	c.conn.Release()
	return nil
}
