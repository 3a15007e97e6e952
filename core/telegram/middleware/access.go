package middleware

import (
	"log/slog"

	"github.com/m3rciful/regbot/core/logger"
	tghelpers "github.com/m3rciful/regbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// AdminOptions defines how admin-only checks should behave.
type AdminOptions struct {
	AdminID int64
	// OnReject replies to a caller that is not the operator. Nil drops the update silently.
	OnReject tele.HandlerFunc
}

// AdminOnlyMiddleware ensures that only the operator can invoke downstream handlers.
// A zero AdminID rejects everyone.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if opts.AdminID != 0 && sender != nil && sender.ID == opts.AdminID {
				return next(c)
			}
			var id int64
			if sender != nil {
				id = sender.ID
			}
			logger.Warn(tghelpers.BuildContext(c), "tg", "access.denied",
				slog.Int64("identity", id),
			)
			if opts.OnReject != nil {
				return opts.OnReject(c)
			}
			return nil
		}
	}
}
