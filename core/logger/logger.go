// Package logger is the structured, context aware logging layer of the bot.
// Every line carries a component and an event name; update metadata stored in
// the context (rid, user, chat, handler) is attached automatically.
package logger

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/m3rciful/onboardbot/core/buildinfo"
	coreconfig "github.com/m3rciful/onboardbot/core/config"
)

const defaultDebugSample = 50

var (
	initOnce sync.Once
	stopOnce sync.Once

	writers []*asyncWriter
	closers []io.Closer

	levelVar slog.LevelVar
	base     atomic.Pointer[slog.Logger]

	debugSampler sampler
	trace        atomic.Bool
	stacks       atomic.Bool
)

func init() {
	// Until InitLogger runs, lines go through the slog default handler.
	base.Store(slog.Default())
	debugSampler.set(1, defaultDebugSample)
}

// InitLogger configures the global structured logger. Only the first call has an effect.
func InitLogger(cfg *coreconfig.Config) error {
	var initErr error
	initOnce.Do(func() {
		if cfg == nil {
			cfg = &coreconfig.Config{}
		}
		lc := cfg.Logging
		levelVar.Set(parseLevel(lc.Level))
		trace.Store(isTruthy(os.Getenv("TRACE")) || isTruthy(os.Getenv("LOG_TRACE")))
		stacks.Store(trace.Load() || isTruthy(lc.Stacks))
		if num, den, ok := parseRatio(lc.DebugSample); ok {
			debugSampler.set(num, den)
		}

		routes := []route{{min: slog.LevelDebug, out: track(newAsyncWriter(openSinks(lc.Dir, lc.BotFile, os.Stdout), 0))}}
		if errSinks := openSinks(lc.Dir, lc.ErrorsFile, nil); len(errSinks) > 0 {
			routes = append(routes, route{min: slog.LevelWarn, out: track(newAsyncWriter(errSinks, 0))})
		}

		l := slog.New(newLineHandler(handlerOptions{
			level:  &levelVar,
			routes: routes,
			json:   useJSON(lc),
			order:  keyOrder(lc.KeysOrder),
		}))
		base.Store(l)
		slog.SetDefault(l)

		build := buildinfo.Get()
		Info(context.Background(), "app", "startup",
			slog.String("go_version", runtime.Version()),
			slog.String("build_version", build.Version),
			slog.String("build_commit", build.Commit),
			slog.String("build_time", build.Date),
			slog.String("cfg_profile", profile(lc)),
		)
	})
	return initErr
}

func track(w *asyncWriter) *asyncWriter {
	writers = append(writers, w)
	return w
}

// openSinks opens dir/file for appending. fallback, when non-nil, is always included.
// A file that cannot be opened is reported on the standard logger and skipped.
func openSinks(dir, file string, fallback io.Writer) []io.Writer {
	var out []io.Writer
	if fallback != nil {
		out = append(out, fallback)
	}
	dir, file = strings.TrimSpace(dir), strings.TrimSpace(file)
	if dir == "" || file == "" {
		return out
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("logger: failed to create log dir %s: %v", dir, err)
		return out
	}
	path := filepath.Join(dir, file)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("logger: failed to open log file %s: %v", path, err)
		return out
	}
	closers = append(closers, f)
	return append(out, f)
}

// Shutdown flushes buffered lines and closes the log files.
func Shutdown() error {
	var errs []error
	stopOnce.Do(func() {
		for _, w := range writers {
			errs = append(errs, w.Close())
		}
		for _, c := range closers {
			errs = append(errs, c.Close())
		}
	})
	return errors.Join(errs...)
}

func useJSON(lc coreconfig.LoggingConfig) bool {
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "json":
		return true
	case "kv", "text", "pretty":
		return false
	}
	p := profile(lc)
	return p != "debug" && p != "dev"
}

func keyOrder(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "default" {
		return defaultKeyOrder
	}
	var order []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			order = append(order, k)
		}
	}
	if len(order) == 0 {
		return defaultKeyOrder
	}
	return order
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func profile(lc coreconfig.LoggingConfig) string {
	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		return p
	}
	return "prod"
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// Background returns a fresh root context for log calls outside any update.
func Background() context.Context {
	return context.Background()
}

// Component returns the base logger scoped to name.
func Component(name string) *slog.Logger {
	l := base.Load()
	if name = strings.TrimSpace(name); name != "" {
		l = l.With("component", name)
	}
	return l
}

// Event logs one line for component at level.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	if ctx == nil {
		ctx = context.Background()
	}
	l := Component(component)
	if !l.Enabled(ctx, level) {
		return
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	l.LogAttrs(ctx, level, event, attrs...)
}

// Debug logs a debug-level event for the given component.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

// Info logs an info-level event for the given component.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

// Warn logs a warn-level event for the given component.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

// Error logs an error-level event for the given component.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}

// ShouldSampleDebug reports whether a high-volume debug line should be written.
func ShouldSampleDebug() bool {
	return trace.Load() || debugSampler.allow()
}

// TraceEnabled reports whether TRACE or LOG_TRACE forces full debug output.
func TraceEnabled() bool {
	return trace.Load()
}

// StacksEnabled reports whether panic logs should carry a stack trace.
func StacksEnabled() bool {
	return stacks.Load()
}
