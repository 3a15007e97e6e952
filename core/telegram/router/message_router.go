package router

import (
	"context"
	"time"

	"github.com/m3rciful/regbot/core/messenger"
	tg "github.com/m3rciful/regbot/core/telegram"
	tghelpers "github.com/m3rciful/regbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// InboundHandler handles one transport-neutral event.
type InboundHandler func(ctx context.Context, in messenger.Inbound) error

// Handle adapts h to a telebot handler that logs a summary line under name.
func Handle(name string, h InboundHandler) tele.HandlerFunc {
	return func(c tele.Context) error {
		start := time.Now()
		return handleWithSummary(c, name, start, func(ctx context.Context) error {
			return h(ctx, tghelpers.Inbound(c))
		})
	}
}

// TextRoutes sends plain text and media messages to h. Captions are dropped,
// so h sees media as empty messages.
func TextRoutes(h InboundHandler) []tg.Route {
	if h == nil {
		return nil
	}
	return []tg.Route{
		{Endpoint: tele.OnText, Handler: Handle("text", h)},
		{Endpoint: tele.OnMedia, Handler: Handle("media", h)},
	}
}
