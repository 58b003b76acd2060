package database_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kiranshivaraju/sqlrunner/internal/config"
	"github.com/kiranshivaraju/sqlrunner/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqliteConfig(t *testing.T) config.DatabaseConfig {
	t.Helper()
	return config.DatabaseConfig{
		Driver:          "sqlite",
		URL:             filepath.Join(t.TempDir(), "test.sqlite"),
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	}
}

func TestNewProvider_SQLite(t *testing.T) {
	ctx := context.Background()
	p, err := database.NewProvider(ctx, sqliteConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	assert.Equal(t, "sqlite3", p.Driver())
	assert.NoError(t, p.Ping(ctx))
}

func TestNewProvider_UnsupportedDriver(t *testing.T) {
	_, err := database.NewProvider(context.Background(), config.DatabaseConfig{Driver: "mssql", URL: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, database.ErrUnsupportedDriver)
}

func TestSQLProvider_ExecSuccessAndError(t *testing.T) {
	ctx := context.Background()
	p, err := database.NewProvider(ctx, sqliteConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	conn, err := p.Acquire(ctx)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Exec(ctx, "CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL)"))
	require.NoError(t, conn.Exec(ctx, "INSERT INTO items (name) VALUES ('a')"))

	err = conn.Exec(ctx, "SELECT * FROM nonexistent_table")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such table")

	// The connection stays usable after a failed statement.
	assert.NoError(t, conn.Exec(ctx, "INSERT INTO items (name) VALUES ('b')"))
}

func TestSQLProvider_ConnectionsShareDatabase(t *testing.T) {
	ctx := context.Background()
	p, err := database.NewProvider(ctx, sqliteConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	first, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Exec(ctx, "CREATE TABLE shared (v INTEGER)"))
	require.NoError(t, first.Close())

	second, err := p.Acquire(ctx)
	require.NoError(t, err)
	defer second.Close()
	assert.NoError(t, second.Exec(ctx, "INSERT INTO shared (v) VALUES (1)"))
}

func TestSQLProvider_AcquireAfterClose(t *testing.T) {
	ctx := context.Background()
	p, err := database.NewProvider(ctx, sqliteConfig(t))
	require.NoError(t, err)
	require.NoError(t, p.Close())

	_, err = p.Acquire(ctx)
	assert.Error(t, err)
}
