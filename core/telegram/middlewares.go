package telegram

import (
	"github.com/m3rciful/regbot/core/telegram/middleware"
)

// DefaultMiddlewares builds the shared middleware chain: panic recovery, the
// per-update logging context, then reply counters.
func DefaultMiddlewares() []Middleware {
	return []Middleware{
		{Name: "recover", Use: middleware.RecoverMiddleware},
		{Name: "logger", Use: middleware.LoggerMiddleware},
		{Name: "metrics", Use: middleware.MessageMetricsMiddleware},
	}
}
