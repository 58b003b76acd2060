// Package main is the entrypoint for the sqlrunner API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kiranshivaraju/sqlrunner/internal/api"
	"github.com/kiranshivaraju/sqlrunner/internal/api/handler"
	mw "github.com/kiranshivaraju/sqlrunner/internal/api/middleware"
	"github.com/kiranshivaraju/sqlrunner/internal/api/response"
	"github.com/kiranshivaraju/sqlrunner/internal/cache"
	"github.com/kiranshivaraju/sqlrunner/internal/config"
	"github.com/kiranshivaraju/sqlrunner/internal/database"
	"github.com/kiranshivaraju/sqlrunner/internal/executor"
	"github.com/kiranshivaraju/sqlrunner/internal/history"
	"github.com/kiranshivaraju/sqlrunner/internal/jobs"
)

const (
	shutdownTimeout = 30 * time.Second

	// providerCloseTimeout bounds the pool close at exit. A pgx pool waits
	// for every acquired connection, and a job that outlived the drain still
	// holds one.
	providerCloseTimeout = 5 * time.Second
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	closeLog, err := setupLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer closeLog()
	slog.Info("config loaded", "db_type", cfg.Database.Driver, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	return serve(ctx, cfg, ln)
}

// serve wires every component and runs the HTTP server on ln until ctx is
// done. Shutdown stops accepting requests first, then waits for running
// batches to finish.
func serve(ctx context.Context, cfg *config.Config, ln net.Listener) error {
	defer ln.Close()

	// 2. Connect to the target database
	provider, err := database.NewProvider(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer closeWithin(provider, providerCloseTimeout)
	slog.Info("database connected", "driver", provider.Driver())

	// 3. Run migrations
	if cfg.Database.MigrationsDir != "" {
		if err := database.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		slog.Info("database migrations applied", "dir", cfg.Database.MigrationsDir)
	}

	// 4. Optional Redis: shared rate limits and job status mirror
	var (
		redisCache *cache.RedisCache
		rateLimit  func(http.Handler) http.Handler
		jobOpts    = []jobs.Option{
			jobs.WithMaxConcurrent(cfg.Jobs.MaxConcurrent),
			jobs.WithMaxCommands(cfg.Jobs.MaxCommands),
		}
	)
	if cfg.Redis.URL != "" {
		redisCache, err = cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer redisCache.Close()

		if err := redisCache.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		slog.Info("redis connected")

		rateLimit = mw.NewRateLimit(redisCache, cfg.Server.RateLimitPerMinute).Limit
		jobOpts = append(jobOpts, jobs.WithStatusSink(redisCache, cfg.Jobs.StatusTTL))
	} else {
		rateLimit = mw.NewLocalRateLimit(ctx, cfg.Server.RateLimitPerMinute).Limit
		slog.Info("redis not configured, using in-process rate limiting")
	}

	// 5. Execution pipeline
	ledger := history.NewLedger(cfg.History.MaxEntries)
	runner := executor.NewRunner(executor.WithStatementTimeout(cfg.Jobs.StatementTimeout))
	registry := jobs.NewRegistry(jobs.NewOrchestrator(provider, runner, ledger), jobOpts...)

	// 6. Build router with dependencies
	var (
		healthCache pinger
		mirror      handler.StatusLookup
	)
	if redisCache != nil {
		healthCache = redisCache
		mirror = redisCache
	}
	router := api.NewRouter(api.Dependencies{
		RateLimit: rateLimit,

		HealthHandler:      healthHandler(provider, healthCache),
		SubmitJobHandler:   handler.NewSubmitJobHandler(registry),
		GetJobHandler:      handler.NewGetJobHandler(registry),
		JobStatusHandler:   handler.NewGetJobStatusHandler(registry, mirror),
		ListRunningHandler: handler.NewListRunningHandler(registry),
		StatusHandler:      handler.NewStatusHandler(registry, ledger),
		ClearHandler:       handler.NewClearHandler(registry, ledger),
	})

	// 7. Start HTTP server
	srv := &http.Server{
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // sync submissions hold the response open for the whole batch
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, draining connections...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		if err := registry.Wait(shutdownCtx); err != nil {
			slog.Error("running jobs did not finish before shutdown timeout",
				"running", len(registry.ListRunning()),
				"error", err,
			)
			return fmt.Errorf("drain running jobs: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("server stopped gracefully")
	return nil
}

// closeWithin closes c but gives up after timeout, logging instead of
// blocking the exit.
func closeWithin(c io.Closer, timeout time.Duration) {
	done := make(chan error, 1)
	go func() { done <- c.Close() }()

	select {
	case err := <-done:
		if err != nil {
			slog.Warn("failed to close database", "error", err)
		}
	case <-time.After(timeout):
		slog.Warn("database close timed out, connections still in use", "timeout", timeout)
	}
}

// setupLogger installs the JSON logger at the configured level. When a log
// file is set, records go to stdout and the file.
func setupLogger(cfg config.LogConfig) (func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, err
	}

	var (
		w       io.Writer = os.Stdout
		closeFn           = func() {}
	)
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, f)
		closeFn = func() { f.Close() }
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
	return closeFn, nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database and cache connectivity. A nil cache means
// Redis is not configured and is reported as disabled.
func healthHandler(db pinger, c pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			slog.Warn("database health check failed", "error", err)
			checks["database"] = "degraded"
		}
		if c == nil {
			checks["cache"] = "disabled"
		} else if err := c.Ping(r.Context()); err != nil {
			slog.Warn("cache health check failed", "error", err)
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] == "degraded" || checks["cache"] == "degraded"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
