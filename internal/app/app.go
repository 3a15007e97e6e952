// Package app wires configuration, storage, the conversation engine and the
// Telegram runtime into the regbot process.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/regbot/core/bootstrap"
	corecmd "github.com/m3rciful/regbot/core/cmd"
	coreconfig "github.com/m3rciful/regbot/core/config"
	tg "github.com/m3rciful/regbot/core/telegram"
	"github.com/m3rciful/regbot/core/telegram/commands"
	"github.com/m3rciful/regbot/core/telegram/router"
	"github.com/m3rciful/regbot/core/telegram/sender"
	"github.com/m3rciful/regbot/internal/attendee"
	"github.com/m3rciful/regbot/internal/broadcast"
	"github.com/m3rciful/regbot/internal/conversation"
)

// App holds the process-wide components.
type App struct {
	cfg      *coreconfig.Config
	store    attendee.Store
	bot      *tele.Bot
	queue    *sender.Dispatcher
	engine   *conversation.Engine
	registry *tg.Registry
}

var _ corecmd.TelegramApp = (*App)(nil)

// Bootstrap is the corecmd.Options.Bootstrap hook.
func Bootstrap(ctx context.Context, cfg *coreconfig.Config) (corecmd.TelegramApp, error) {
	return New(ctx, cfg)
}

// New initializes logging and storage, connects the bot and builds the engine.
func New(ctx context.Context, cfg *coreconfig.Config) (*App, error) {
	res, err := bootstrap.Run(ctx, bootstrap.Options[attendee.Store]{
		Config:    cfg,
		OpenStore: attendee.Open,
	})
	if err != nil {
		return nil, err
	}

	bot, err := tg.NewBot(cfg)
	if err != nil {
		return nil, errors.Join(err, res.Store.Close())
	}

	queue := sender.NewDispatcher(sender.Options{
		Workers:      cfg.Sender.Workers,
		QueueSize:    cfg.Sender.QueueSize,
		MaxRetries:   cfg.Sender.MaxRetries,
		RetryBackoff: time.Duration(cfg.Sender.RetryBackoff) * time.Millisecond,
	})
	out := tg.NewMessenger(bot, queue)

	engine, err := conversation.New(conversation.Options{
		Store:       res.Store,
		Messenger:   out,
		Notifier:    out,
		Broadcaster: broadcast.NewDispatcher(res.Store, out, time.Duration(cfg.Broadcast.SendTimeoutMS)*time.Millisecond),
		AdminID:     cfg.Telegram.AdminID,
	})
	if err != nil {
		queue.Close()
		return nil, errors.Join(err, res.Store.Close())
	}

	registry, err := NewRegistry(engine)
	if err != nil {
		queue.Close()
		return nil, errors.Join(err, res.Store.Close())
	}

	return &App{
		cfg:      cfg,
		store:    res.Store,
		bot:      bot,
		queue:    queue,
		engine:   engine,
		registry: registry,
	}, nil
}

// NewRegistry registers the bot commands served by engine.
func NewRegistry(engine *conversation.Engine) (*tg.Registry, error) {
	reg := tg.NewRegistry()
	err := errors.Join(
		reg.RegisterCommand("/start", commands.Command{
			Handler:     router.Handle("start", engine.Greet),
			Description: "Show your registration status",
		}),
		reg.RegisterCommand("/broadcast", commands.Command{
			Handler:     router.Handle("broadcast", engine.BroadcastInit),
			Description: "Send a message to all registered attendees",
			AdminOnly:   true,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("app: register commands: %w", err)
	}
	return reg, nil
}

// Routes returns the command and text routes for engine.
// Rejected /broadcast callers still reach the engine, which owns the denial reply.
func Routes(reg *tg.Registry, engine *conversation.Engine, adminID int64) []tg.Route {
	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID:       adminID,
		OnAdminReject: router.Handle("broadcast.denied", engine.BroadcastInit),
	})
	return append(routes, router.TextRoutes(engine.HandleText)...)
}

// TelegramRunOptions assembles the runtime options for core/telegram.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	if a.bot == nil || a.engine == nil {
		return tg.RunOptions{}, fmt.Errorf("app: not initialized")
	}
	return tg.RunOptions{
		Config:      a.cfg,
		Bot:         a.bot,
		Registry:    a.registry,
		Dispatcher:  a.queue,
		Middlewares: tg.DefaultMiddlewares(),
		Routes:      Routes(a.registry, a.engine, a.cfg.Telegram.AdminID),
	}, nil
}

// Close releases the attendee store.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}
