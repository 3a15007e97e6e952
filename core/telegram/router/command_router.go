package router

import (
	"context"
	"log/slog"
	"maps"
	"slices"

	"github.com/m3rciful/regbot/core/logger"
	tg "github.com/m3rciful/regbot/core/telegram"
	"github.com/m3rciful/regbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRouteOptions configures how commands are wrapped and exposed.
type CommandRouteOptions struct {
	AdminID       int64
	OnAdminReject tele.HandlerFunc
}

// CommandRoutes turns the registered commands into bot routes, sorted by name.
// Admin-only commands go through the operator check first.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}
	guard := middleware.AdminOnlyMiddleware(middleware.AdminOptions{
		AdminID:  opts.AdminID,
		OnReject: opts.OnAdminReject,
	})

	defs := reg.Commands()
	names := slices.Sorted(maps.Keys(defs))
	routes := make([]tg.Route, 0, len(names))
	guarded := 0
	for _, name := range names {
		h := defs[name].Handler
		if defs[name].AdminOnly {
			h = guard(h)
			guarded++
		}
		routes = append(routes, tg.Route{Endpoint: name, Handler: h})
	}

	logger.Info(context.Background(), "tg.wire", "routes.commands",
		slog.Int("commands", len(routes)),
		slog.Int("admin_only", guarded),
	)
	return routes
}
