package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/regbot/core/config"
	"github.com/m3rciful/regbot/core/logger"
	tghelpers "github.com/m3rciful/regbot/core/telegram/helpers"
	"github.com/m3rciful/regbot/core/telegram/netutil"
	tgsender "github.com/m3rciful/regbot/core/telegram/sender"
)

// Middleware describes a global bot middleware to be registered via bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route declares a single bot handler bound to an arbitrary endpoint.
// Endpoint values are passed directly to tele.Bot.Handle.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config *coreconfig.Config
	// Bot is built by NewBot so callers can wire outbound adapters before routes.
	Bot      *tele.Bot
	Registry *Registry

	Dispatcher *tgsender.Dispatcher

	Middlewares []Middleware
	Routes      []Route

	DisableWebhookCleanup bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// NewBot builds the telebot client for cfg. It calls getMe to verify the token.
func NewBot(cfg *coreconfig.Config) (*tele.Bot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("telegram: nil config provided")
	}
	poller := BuildPoller(PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		WebhookURL:             cfg.Webhook.URL,
	})

	start := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Telegram.Token,
		Poller:  poller,
		Client:  BuildHTTPClient(),
		OnError: onError,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	logger.Info(context.Background(), "tg", "bot.init",
		slog.String("status", "ok"),
		slog.String("mode", cfg.Telegram.RunMode),
		slog.String("username", bot.Me.Username),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return bot, nil
}

// RunTelegram wires routes into the bot and runs it until ctx is done.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return fmt.Errorf("telegram: nil config provided")
	}
	if opts.Bot == nil {
		return fmt.Errorf("telegram: nil bot provided")
	}

	cfg := opts.Config
	bot := opts.Bot
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}
	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = tgsender.NewDispatcher(tgsender.Options{})
	}

	rt := Runtime{
		Bot:        bot,
		Dispatcher: dispatcher,
		Registry:   reg,
	}

	for _, mw := range opts.Middlewares {
		if mw.Use == nil {
			continue
		}
		bot.Use(mw.Use)
	}
	for _, route := range opts.Routes {
		if route.Endpoint == nil || route.Handler == nil {
			continue
		}
		bot.Handle(route.Endpoint, route.Handler)
	}
	InitBotCommands(bot, reg)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			dispatcher.Close()
			return err
		}
	}

	var runErr error
	if strings.EqualFold(cfg.Telegram.RunMode, coreconfig.RunModeWebhook) {
		runErr = runWebhook(ctx, cfg, bot)
	} else {
		runErr = runLongPoll(ctx, bot, !opts.DisableWebhookCleanup)
	}

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(context.WithoutCancel(ctx), rt)
	}
	dispatcher.Close()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return errors.Join(runErr, stopErr)
	}
	return stopErr
}

func runWebhook(ctx context.Context, cfg *coreconfig.Config, bot *tele.Bot) error {
	hook, ok := bot.Poller.(*tele.Webhook)
	if !ok {
		return fmt.Errorf("telegram: webhook mode needs a webhook poller, got %T", bot.Poller)
	}
	if err := bot.SetWebhook(hook); err != nil {
		return fmt.Errorf("telegram: set webhook: %w", err)
	}
	logger.Info(ctx, "tg", "mode",
		slog.String("mode", coreconfig.RunModeWebhook),
		slog.String("public_url", hook.Endpoint.PublicURL),
	)

	srv := NewWebhookServer(WebhookServerOptions{
		Listen: cfg.Webhook.Listen,
		Port:   cfg.Webhook.Port,
		Path:   cfg.Webhook.Path,
	}, bot)
	return ServeWebhook(ctx, srv)
}

func runLongPoll(ctx context.Context, bot *tele.Bot, cleanup bool) error {
	if cleanup {
		if err := bot.RemoveWebhook(); err != nil {
			logger.Warn(ctx, "tg", "delete_webhook",
				slog.String("status", "fail"),
				slog.String("err", netutil.RedactToken(err.Error())),
			)
		} else {
			logger.Info(ctx, "tg", "delete_webhook", slog.String("status", "ok"))
		}
	}
	logger.Info(ctx, "tg", "mode", slog.String("mode", coreconfig.RunModeLongpoll))

	runDone := make(chan struct{})
	go func() {
		bot.Start()
		close(runDone)
	}()

	select {
	case <-ctx.Done():
		bot.Stop()
		<-runDone
		return ctx.Err()
	case <-runDone:
		return nil
	}
}

// onError logs errors returned by handlers and by the poller.
func onError(err error, c tele.Context) {
	if err == nil {
		return
	}
	ctx := context.Background()
	if c != nil {
		chatID, userID := tghelpers.IDs(c)
		ctx = logger.WithUpdateMeta(ctx, c.Update().ID, userID, chatID)
	}
	logger.Warn(ctx, "tg", "handler.error",
		slog.String("err", netutil.RedactToken(err.Error())),
		slog.String("error_kind", netutil.Classify(err)),
	)
}
