package router

import (
	"log/slog"

	tg "github.com/m3rciful/onboardbot/core/telegram"
	"github.com/m3rciful/onboardbot/core/telegram/callbacks"

	tele "gopkg.in/telebot.v4"
)

// CallbackOptions customises the handling of unregistered callback keys.
type CallbackOptions struct {
	// NotFound is used when the registry has no not-found handler.
	NotFound tele.HandlerFunc
}

// CallbackRoute returns the single OnCallback route. The button press is
// acknowledged before the handler runs so the client spinner stops.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	handler := func(c tele.Context) error {
		if c.Callback() == nil {
			return nil
		}
		key := callbacks.CallbackKey(c)
		_ = c.Respond()

		if h, ok := reg.GetCallback(key); ok {
			return handled(c, handlerName("callback", key), h, slog.String("cb_key", key))
		}
		fallback := reg.CallbackNotFound()
		if fallback == nil {
			fallback = opts.NotFound
		}
		return handled(c, handlerName("callback", key), fallback,
			slog.String("cb_key", key),
			slog.String("reason", "not_found"),
		)
	}
	return tg.Route{Endpoint: tele.OnCallback, Handler: wrap(handler)}
}
