// Package bootstrap prepares the infrastructure a bot needs before it starts
// polling: the logger, then the database schema, then the connection pool.
package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/onboardbot/core/config"
	coredatabase "github.com/m3rciful/onboardbot/core/database"
	"github.com/m3rciful/onboardbot/core/logger"
)

// Options control the bootstrap pipeline. A nil Database skips the migrate
// and connect steps; nil funcs take the core defaults.
type Options struct {
	Config   *coreconfig.Config
	Database *coredatabase.Config

	LoggerInit func(*coreconfig.Config) error
	Migrate    func(coredatabase.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
}

// Result exposes what the pipeline initialized. DB is nil without a database.
type Result struct {
	DB *sqlx.DB
}

type step struct {
	name string
	run  func() error
}

// Run executes the steps in order and stops at the first failure. Migrations
// run before the pool opens so a fresh SQLite file already has its schema.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, errors.New("bootstrap: nil config provided")
	}
	if opts.LoggerInit == nil {
		opts.LoggerInit = logger.InitLogger
	}
	if opts.Connect == nil {
		opts.Connect = coredatabase.Connect
	}

	res := &Result{}
	steps := []step{{"logger", func() error { return opts.LoggerInit(opts.Config) }}}
	if db := opts.Database; db != nil {
		if opts.Migrate != nil {
			steps = append(steps, step{"migrate", func() error { return opts.Migrate(*db) }})
		}
		steps = append(steps, step{"connect", func() (err error) {
			res.DB, err = opts.Connect(*db)
			return err
		}})
	}

	for _, s := range steps {
		start := time.Now()
		if err := s.run(); err != nil {
			return nil, fmt.Errorf("bootstrap: %s: %w", s.name, err)
		}
		logger.Debug(logger.Background(), "app", "bootstrap.step",
			slog.String("step", s.name),
			slog.Duration("duration", time.Since(start)),
		)
	}
	return res, nil
}
