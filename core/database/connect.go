package database

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	coreconfig "github.com/m3rciful/regbot/core/config"
	"github.com/m3rciful/regbot/core/logger"
)

const (
	// DriverPostgres is the database/sql driver name registered by lib/pq.
	DriverPostgres = "postgres"
	// DriverSQLite is the database/sql driver name registered by modernc.org/sqlite.
	DriverSQLite = "sqlite"
)

// Target names a database for both the SQL connection and the migration runner.
type Target struct {
	Driver       string
	DSN          string
	MigrationURL string
	MaxConns     int
	// Name is logged instead of the DSN so credentials never reach the logs.
	Name string
}

// PostgresTarget builds a Target from postgres settings.
func PostgresTarget(cfg coreconfig.DatabaseConfig) Target {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     cfg.Host + ":" + cfg.Port,
		Path:     "/" + cfg.Name,
		RawQuery: url.Values{"sslmode": {cfg.SSLMode}}.Encode(),
	}
	if cfg.Port == "" {
		u.Host = cfg.Host
	}
	return Target{
		Driver:       DriverPostgres,
		DSN:          u.String(),
		MigrationURL: u.String(),
		MaxConns:     cfg.MaxConnections,
		Name:         cfg.Host + "/" + cfg.Name,
	}
}

// SQLiteTarget builds a Target for an sqlite database file.
func SQLiteTarget(path string) Target {
	return Target{
		Driver:       DriverSQLite,
		DSN:          path + "?_pragma=busy_timeout(5000)",
		MigrationURL: "sqlite://" + path,
		MaxConns:     1,
		Name:         path,
	}
}

// Connect opens the database connection, configures the pool, and verifies connectivity.
func Connect(ctx context.Context, t Target) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	db, err := sqlx.ConnectContext(ctx, t.Driver, t.DSN)
	took := time.Since(start)
	if err != nil {
		logger.Error(ctx, "db", "db.connect",
			slog.String("status", "fail"),
			slog.String("driver", t.Driver),
			slog.String("db", t.Name),
			slog.Duration("duration", took),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	if t.MaxConns > 0 {
		db.SetMaxOpenConns(t.MaxConns)
		db.SetMaxIdleConns(t.MaxConns)
	}

	logger.Info(ctx, "db", "db.connect",
		slog.String("status", "ok"),
		slog.String("driver", t.Driver),
		slog.String("db", t.Name),
		slog.Int("pool_open", t.MaxConns),
		slog.Duration("duration", took),
	)
	return db, nil
}
