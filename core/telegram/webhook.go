package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/regbot/core/logger"
)

const maxUpdateBytes = 1 << 20

// UpdateProcessor consumes one decoded update. *tele.Bot implements it.
type UpdateProcessor interface {
	ProcessUpdate(u tele.Update)
}

// WebhookServerOptions configures NewWebhookServer.
type WebhookServerOptions struct {
	Listen string
	Port   int
	// Path receives the update POSTs, e.g. /telegram/webhook.
	Path string
}

// NewWebhookHandler builds the HTTP surface for webhook mode: a health probe and
// the update endpoint. Bodies that are not a JSON object carrying update_id are
// rejected with 400 and never reach the bot.
func NewWebhookHandler(path string, proc UpdateProcessor) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.With(requireUpdate).Post(path, func(w http.ResponseWriter, r *http.Request) {
		upd, _ := r.Context().Value(updateKey{}).(tele.Update)
		proc.ProcessUpdate(upd)
		w.WriteHeader(http.StatusOK)
	})
	return r
}

// NewWebhookServer wraps NewWebhookHandler in an http.Server with bounded timeouts.
func NewWebhookServer(opts WebhookServerOptions, proc UpdateProcessor) *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort(opts.Listen, strconv.Itoa(opts.Port)),
		Handler:           NewWebhookHandler(opts.Path, proc),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// ServeWebhook runs srv until ctx is done, then shuts it down gracefully.
func ServeWebhook(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "tg.webhook", "webhook.listen", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("telegram: webhook server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("telegram: webhook shutdown: %w", err)
	}
	logger.Info(ctx, "tg.webhook", "webhook.stop", slog.String("status", "ok"))
	return nil
}

type updateKey struct{}

func requireUpdate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upd, err := decodeUpdate(io.LimitReader(r.Body, maxUpdateBytes))
		if err != nil {
			logger.Warn(r.Context(), "tg.webhook", "update.reject",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		ctx := context.WithValue(r.Context(), updateKey{}, upd)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func decodeUpdate(body io.Reader) (tele.Update, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return tele.Update{}, fmt.Errorf("read body: %w", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return tele.Update{}, errors.New("body is not a JSON object")
	}
	if _, ok := fields["update_id"]; !ok {
		return tele.Update{}, errors.New("update_id is missing")
	}
	var upd tele.Update
	if err := json.Unmarshal(raw, &upd); err != nil {
		return tele.Update{}, fmt.Errorf("decode update: %w", err)
	}
	return upd, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
