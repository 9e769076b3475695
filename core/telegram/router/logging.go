// Package router turns registry entries into telebot routes. Every routed
// update ends with a single "handler.handled" summary line.
package router

import (
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/onboardbot/core/logger"
	tghelpers "github.com/m3rciful/onboardbot/core/telegram/helpers"
	"github.com/m3rciful/onboardbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// handled runs fn as handler name and logs its summary. A nil fn is logged
// as skipped.
func handled(c tele.Context, name string, fn tele.HandlerFunc, extras ...slog.Attr) error {
	start := time.Now()
	ctx := tghelpers.WithHandler(c, name)

	status := "skip"
	var err error
	if fn != nil {
		status = "ok"
		err = fn(c)
	}
	msgs, kb := middleware.GetCounters(c)
	attrs := make([]slog.Attr, 0, 6+len(extras))
	if err != nil {
		status = "fail"
		attrs = append(attrs, slog.Any("err", err))
	}
	attrs = append(attrs,
		slog.String("status", status),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Duration("duration", time.Since(start)),
	)
	logger.Info(ctx, "tg", "handler.handled", append(attrs, extras...)...)
	return err
}

// wrap applies the per-route middleware shared by all routes.
func wrap(h tele.HandlerFunc) tele.HandlerFunc {
	return middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
}

func handlerName(kind, key string) string {
	key = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(key), "/"))
	if key == "" {
		key = "unknown"
	}
	return kind + "." + strings.ReplaceAll(key, " ", "_")
}
