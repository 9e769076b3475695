package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/onboardbot/core/bootstrap"
	coredatabase "github.com/m3rciful/onboardbot/core/database"
	"github.com/m3rciful/onboardbot/core/logger"
	tg "github.com/m3rciful/onboardbot/core/telegram"
	"github.com/m3rciful/onboardbot/onboarding/catalog"
	"github.com/m3rciful/onboardbot/onboarding/director"
	"github.com/m3rciful/onboardbot/onboarding/engine"
	"github.com/m3rciful/onboardbot/onboarding/review"
	"github.com/m3rciful/onboardbot/onboarding/store"
	"github.com/m3rciful/onboardbot/onboarding/tgbot"
)

// App is the wired onboarding bot.
type App struct {
	cfg *Config
	db  *sqlx.DB

	Store    store.Store
	Catalog  *catalog.Catalog
	Outbox   *tgbot.Outbox
	Gateway  *review.Gateway
	Director *director.Director
	Bot      *tgbot.Bot
}

// Options override infrastructure steps, mainly for tests.
type Options struct {
	Bootstrap func(bootstrap.Options) (*bootstrap.Result, error)
}

// Bootstrap initializes logging and storage and wires the flow.
func Bootstrap(cfg *Config) (*App, error) {
	return BootstrapWith(cfg, Options{})
}

// BootstrapWith is Bootstrap with overridable infrastructure.
func BootstrapWith(cfg *Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config")
	}
	run := opts.Bootstrap
	if run == nil {
		run = bootstrap.Run
	}
	res, err := run(bootstrap.Options{
		Config:   &cfg.Config,
		Database: cfg.DatabaseConfig(),
		Migrate: func(db coredatabase.Config) error {
			return coredatabase.RunMigrations(db, store.Migrations.For(db))
		},
	})
	if err != nil {
		return nil, err
	}

	ctx := logger.Background()
	var st store.Store
	switch {
	case res.DB != nil:
		st = store.NewSQL(res.DB, nil)
	default:
		st = store.OpenFile(ctx, cfg.Storage.Path, nil)
	}

	cat, err := catalog.New(catalog.Options{
		ReferralLink: cfg.Onboarding.ReferralLink,
		GroupLink:    cfg.Onboarding.GroupLink,
		Images:       cfg.Images(),
		Path:         cfg.Onboarding.CatalogPath,
	})
	if err != nil {
		if res.DB != nil {
			_ = res.DB.Close()
		}
		return nil, fmt.Errorf("app: catalog: %w", err)
	}

	return wire(cfg, res.DB, st, cat), nil
}

func wire(cfg *Config, db *sqlx.DB, st store.Store, cat *catalog.Catalog) *App {
	admins := cfg.Telegram.AdminIDs
	outbox := tgbot.NewOutbox(cat)
	gw := review.New(admins, outbox, st)
	d := director.New(director.Config{
		Engine:    engine.New(engine.Config{Reviewers: admins}),
		Store:     st,
		Outbox:    outbox,
		Reviewers: gw,
	})
	gw.SetHandler(d)

	return &App{
		cfg:      cfg,
		db:       db,
		Store:    st,
		Catalog:  cat,
		Outbox:   outbox,
		Gateway:  gw,
		Director: d,
		Bot:      tgbot.New(d, gw, cat, admins),
	}
}

// TelegramRunOptions assembles the runtime options for the bot.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	reg := tg.NewRegistry()
	if err := a.Bot.Register(reg); err != nil {
		return tg.RunOptions{}, fmt.Errorf("app: register handlers: %w", err)
	}

	return tg.RunOptions{
		Config:            &a.cfg.Config,
		Registry:          reg,
		DispatcherOptions: a.cfg.DispatcherOptions(),
		Middlewares:       tg.DefaultMiddlewares(&a.cfg.Config, a.Bot.OnRateLimited),
		Routes:            a.Bot.Routes(reg),
		OnStart: func(ctx context.Context, rt tg.Runtime) error {
			if rt.Bot == nil {
				return fmt.Errorf("app: runtime has no bot")
			}
			a.Outbox.Bind(rt.Bot)
			attrs := []slog.Attr{
				slog.String("status", "ok"),
				slog.String("storage", a.cfg.Storage.Driver),
				slog.Int("reviewers", len(a.Gateway.Reviewers())),
			}
			if len(a.Gateway.Reviewers()) == 0 {
				logger.Warn(ctx, "review", "review.config", append(attrs, slog.String("reason", "no_reviewers"))...)
			} else {
				logger.Info(ctx, "review", "review.config", attrs...)
			}
			if reason := a.cfg.ImagesProblem(); reason != "" {
				// The existing-account branch fails its image sends until this is fixed.
				logger.Warn(ctx, "flow", "images.config",
					slog.String("status", "skip"),
					slog.String("reason", reason),
					slog.Int("configured", len(a.cfg.Onboarding.TransferImages)),
				)
			}
			return nil
		},
		OnStop: func(ctx context.Context, _ tg.Runtime) error {
			return a.Close()
		},
	}, nil
}

// Close releases the database, if any.
func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("app: close database: %w", err)
	}
	a.db = nil
	return nil
}
