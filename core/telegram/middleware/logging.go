package middleware

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/regbot/core/logger"
	tghelpers "github.com/m3rciful/regbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

const seenTTL = 10 * time.Second

// seenUpdates remembers recently received update IDs. Telegram redelivers a
// webhook update when the first answer is late; the receipt is logged once.
type seenUpdates struct {
	mu   sync.Mutex
	seen map[int]time.Time
}

var receipts = &seenUpdates{seen: make(map[int]time.Time)}

func (s *seenUpdates) first(updateID int, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ts := range s.seen {
		if now.Sub(ts) > seenTTL {
			delete(s.seen, id)
		}
	}
	if _, ok := s.seen[updateID]; ok {
		return false
	}
	s.seen[updateID] = now
	return true
}

// LoggerMiddleware stores the per-update logging context (rid, update, user and
// chat ids) and logs one receipt line per update at debug level. A context stored
// by an outer application of the middleware is kept as is.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if _, ok := tghelpers.ContextFrom(c); ok {
			return next(c)
		}
		ctx, rid := tghelpers.NewUpdateContext(c)
		upd := c.Update()

		if logger.ShouldSampleDebug() && receipts.first(upd.ID, time.Now()) {
			logger.LogEvent(ctx, logger.Component("tg"), slog.LevelDebug, "update.received", receiptAttrs(c, rid)...)
		}
		return next(c)
	}
}

// receiptAttrs describes the update without its free text: names and broadcast
// bodies arrive as plain messages, so only commands are logged verbatim.
func receiptAttrs(c tele.Context, rid string) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("rid", rid),
		slog.Int("update_id", c.Update().ID),
	}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if user := c.Sender(); user != nil && user.Username != "" {
		attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
	}

	text := c.Text()
	switch {
	case strings.HasPrefix(text, "/"):
		cmd, _, _ := strings.Cut(text, " ")
		attrs = append(attrs, slog.String("kind", "command"), slog.String("command", logger.SanitizeLimit(cmd, 64)))
	case text != "":
		attrs = append(attrs, slog.String("kind", "text"), slog.Int("text_len", len([]rune(text))))
	default:
		attrs = append(attrs, slog.String("kind", "other"))
	}
	return attrs
}
