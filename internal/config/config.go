package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the sqlrunner server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Jobs     JobsConfig
	History  HistoryConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	RateLimitPerMinute int
}

type DatabaseConfig struct {
	Driver          string
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
}

type RedisConfig struct {
	URL string
}

type JobsConfig struct {
	MaxConcurrent    int
	MaxCommands      int
	StatementTimeout time.Duration
	StatusTTL        time.Duration
}

type HistoryConfig struct {
	MaxEntries int
}

type LogConfig struct {
	Level string
	File  string
}

var validDrivers = map[string]bool{
	"postgres": true,
	"sqlite":   true,
	"duckdb":   true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:               envInt("SQLRUNNER_PORT", 8080),
			Env:                envString("SQLRUNNER_ENV", "development"),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(envString("DB_TYPE", "postgres")),
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsDir:   os.Getenv("DATABASE_MIGRATIONS_DIR"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Jobs: JobsConfig{
			MaxConcurrent:    envInt("JOBS_MAX_CONCURRENT", 0),
			MaxCommands:      envInt("JOBS_MAX_COMMANDS", 1000),
			StatementTimeout: envDuration("JOBS_STATEMENT_TIMEOUT", 0),
			StatusTTL:        envDuration("JOBS_STATUS_TTL", 30*time.Minute),
		},
		History: HistoryConfig{
			MaxEntries: envInt("HISTORY_MAX_ENTRIES", 10000),
		},
		Log: LogConfig{
			Level: strings.ToLower(envString("LOG_LEVEL", "info")),
			File:  os.Getenv("LOG_FILE"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("DB_TYPE must be one of postgres, sqlite, duckdb; got %q", c.Database.Driver)
	}
	if c.Database.MigrationsDir != "" && c.Database.Driver != "postgres" {
		return fmt.Errorf("DATABASE_MIGRATIONS_DIR is only supported when DB_TYPE is postgres")
	}

	if c.Redis.URL != "" && !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}

	if c.Jobs.MaxConcurrent < 0 {
		return fmt.Errorf("JOBS_MAX_CONCURRENT must be >= 0, got %d", c.Jobs.MaxConcurrent)
	}
	if c.Jobs.MaxCommands <= 0 {
		return fmt.Errorf("JOBS_MAX_COMMANDS must be > 0, got %d", c.Jobs.MaxCommands)
	}
	if c.History.MaxEntries < 0 {
		return fmt.Errorf("HISTORY_MAX_ENTRIES must be >= 0, got %d", c.History.MaxEntries)
	}

	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.Log.Level)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
