package router

import (
	"log/slog"

	"github.com/m3rciful/onboardbot/core/logger"
	tg "github.com/m3rciful/onboardbot/core/telegram"
	"github.com/m3rciful/onboardbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRouteOptions configures the admin gate of AdminOnly commands.
type CommandRouteOptions struct {
	AdminIDs      []int64
	OnAdminReject tele.HandlerFunc
}

// CommandRoutes returns one route per registered command.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}
	gate := middleware.AdminOnlyMiddleware(middleware.AdminOptions{
		AdminIDs: opts.AdminIDs,
		OnReject: opts.OnAdminReject,
	})

	cmds := reg.Commands()
	routes := make([]tg.Route, 0, len(cmds))
	admin := 0
	for key, cmd := range cmds {
		name, inner := handlerName("command", key), cmd.Handler
		var h tele.HandlerFunc = func(c tele.Context) error {
			return handled(c, name, inner)
		}
		if cmd.AdminOnly {
			h = gate(h)
			admin++
		}
		routes = append(routes, tg.Route{Endpoint: key, Handler: wrap(h)})
	}

	logger.Info(logger.Background(), "tg.wire", "routes.commands",
		slog.Int("commands", len(routes)),
		slog.Int("admin_only", admin),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)
	return routes
}
