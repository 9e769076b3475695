package database

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/m3rciful/onboardbot/core/logger"
)

// Migrations points at an embedded migration set. Dir is resolved inside FS
// and usually holds one sub-directory per driver.
type Migrations struct {
	FS  fs.FS
	Dir string
}

// For returns the migration directory matching the configured driver.
func (m Migrations) For(cfg Config) Migrations {
	return Migrations{FS: m.FS, Dir: filepath.ToSlash(filepath.Join(m.Dir, cfg.DriverName()))}
}

func migrateURL(cfg Config) (string, error) {
	switch cfg.DriverName() {
	case DriverPostgres:
		return postgresURL(cfg), nil
	case DriverSQLite:
		path, err := sqlitePath(cfg)
		if err != nil {
			return "", err
		}
		return "sqlite://" + path, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

// RunMigrations applies every pending up migration of set.Dir. PostgreSQL is
// waited for first, since the bot often starts alongside its database.
func RunMigrations(cfg Config, set Migrations) error {
	ctx := logger.Background()
	dbURL, err := migrateURL(cfg)
	if err != nil {
		return err
	}
	if cfg.DriverName() == DriverPostgres {
		if err := WaitForPostgres(ctx, dbURL, readyTimeout); err != nil {
			logger.Error(ctx, "db.migrate", "migrate.wait", slog.String("status", "fail"), slog.Any("err", err))
			return fmt.Errorf("database not ready: %w", err)
		}
	}

	files := listMigrationFiles(set.FS, set.Dir)
	logger.Debug(ctx, "db.migrate", "migrate.resolve",
		append(fileAttrs(files), slog.String("path", set.Dir), slog.String("driver", cfg.DriverName()))...)

	src, err := iofs.New(set.FS, set.Dir)
	if err != nil {
		return fmt.Errorf("open migration source %s: %w", set.Dir, err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer func() {
		if err := errors.Join(m.Close()); err != nil {
			logger.Warn(ctx, "db.migrate", "migrate.close", slog.Any("err", err))
		}
	}()

	from, _, _ := m.Version()
	start := time.Now()
	upErr := m.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		logger.Error(ctx, "db.migrate", "migrate.apply",
			slog.String("status", "fail"),
			slog.Uint64("from_ver", uint64(from)),
			slog.Duration("duration", time.Since(start)),
			slog.Any("err", upErr),
		)
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	to, _, _ := m.Version()
	applied := selectApplied(files, uint64(from), uint64(to))
	logger.Info(ctx, "db.migrate", "migrate.apply", append(fileAttrs(applied),
		slog.String("status", "ok"),
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Duration("duration", time.Since(start)),
	)...)
	return nil
}

func fileAttrs(files []string) []slog.Attr {
	return []slog.Attr{
		slog.Int("files", len(files)),
		slog.String("files_preview", logger.Preview(files, 6)),
	}
}

func listMigrationFiles(fsys fs.FS, dir string) []string {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".up.sql") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func parseVersion(name string) uint64 {
	parts := strings.SplitN(name, "_", 2)
	v, _ := strconv.ParseUint(parts[0], 10, 64)
	return v
}

func selectApplied(files []string, from, to uint64) []string {
	if to <= from {
		return nil
	}
	var out []string
	for _, f := range files {
		v := parseVersion(f)
		if v > from && v <= to {
			out = append(out, f)
		}
	}
	return out
}
