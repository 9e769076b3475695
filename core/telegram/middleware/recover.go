package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/onboardbot/core/logger"
	tghelpers "github.com/m3rciful/onboardbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RecoverMiddleware catches panics in handlers and turns them into errors so
// one broken update never stops the bot.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				attrs := []slog.Attr{
					slog.String("status", "fail"),
					slog.Any("err", r),
					slog.String("err_code", "PANIC"),
				}
				if logger.StacksEnabled() {
					attrs = append(attrs, slog.String("stack", string(debug.Stack())))
				}
				logger.Error(tghelpers.BuildContext(c), "tg", "tg.panic", attrs...)
				err = fmt.Errorf("telegram: handler panic: %v", r)
			}
		}()
		return next(c)
	}
}
