package database

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/m3rciful/onboardbot/core/logger"
)

const (
	connectTimeout = 5 * time.Second
	readyTimeout   = 30 * time.Second
	readyInterval  = 2 * time.Second
)

const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

// postgresURL renders a URL form DSN, understood by both lib/pq and migrate.
func postgresURL(cfg Config) string {
	port := cfg.Port
	if port == "" {
		port = "5432"
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, port),
		Path:   "/" + cfg.Name,
	}
	if cfg.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {cfg.SSLMode}}.Encode()
	}
	return u.String()
}

func sqlitePath(cfg Config) (string, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return "", fmt.Errorf("database path is required for sqlite")
	}
	return filepath.Clean(path), nil
}

// DSN renders the driver connection string for cfg.
func DSN(cfg Config) (string, error) {
	switch cfg.DriverName() {
	case DriverPostgres:
		return postgresURL(cfg), nil
	case DriverSQLite:
		path, err := sqlitePath(cfg)
		if err != nil {
			return "", err
		}
		return path + "?" + sqlitePragmas, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

// Connect opens and pings the database and sizes the pool. SQLite always
// gets a single connection so writers never race for the file lock.
func Connect(cfg Config) (*sqlx.DB, error) {
	driver := cfg.DriverName()
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	attrs := []slog.Attr{slog.String("driver", driver), slog.String("db", dbLabel(cfg))}
	start := time.Now()
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		logger.Error(ctx, "db", "db.connect", append(attrs,
			slog.String("status", "fail"),
			slog.Duration("duration", time.Since(start)),
			slog.Any("err", err),
		)...)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	pool := cfg.MaxConnections
	if driver == DriverSQLite {
		pool = 1
	}
	if pool > 0 {
		db.SetMaxOpenConns(pool)
		db.SetMaxIdleConns(pool)
	}
	logger.Info(ctx, "db", "db.connect", append(attrs,
		slog.String("status", "ok"),
		slog.Int("pool_open", pool),
		slog.Duration("duration", time.Since(start)),
	)...)
	return db, nil
}

func dbLabel(cfg Config) string {
	if cfg.DriverName() == DriverSQLite {
		return cfg.Path
	}
	return cfg.Host + "/" + cfg.Name
}

// WaitForPostgres pings dsn every few seconds until it answers, ctx ends
// or timeout passes.
func WaitForPostgres(ctx context.Context, dsn string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(readyInterval)
	defer ticker.Stop()
	for attempt := 1; ; attempt++ {
		err := ping(ctx, dsn)
		if err == nil {
			return nil
		}
		logger.Debug(ctx, "db", "db.wait", slog.Int("attempt", attempt), slog.Any("err", err))
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for database: %w", err)
		case <-ticker.C:
		}
	}
}

func ping(ctx context.Context, dsn string) error {
	db, err := sqlx.Open(DriverPostgres, dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.PingContext(ctx)
}
