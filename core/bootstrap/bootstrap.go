// Package bootstrap initializes the infrastructure shared by the binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	coreconfig "github.com/m3rciful/regbot/core/config"
	"github.com/m3rciful/regbot/core/logger"
)

// Store is the storage contract bootstrap needs: prepare on start, release on stop.
type Store interface {
	Init(ctx context.Context) error
	Close() error
}

// Options control the generic bootstrap pipeline.
type Options[S Store] struct {
	Config *coreconfig.Config

	// LoggerInit defaults to logger.InitLogger.
	LoggerInit func(*coreconfig.Config) error
	OpenStore  func(context.Context, *coreconfig.Config) (S, error)
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result[S Store] struct {
	Store S
}

// Run initializes the logger, opens the store and prepares its schema.
func Run[S Store](ctx context.Context, opts Options[S]) (*Result[S], error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	if opts.OpenStore == nil {
		return nil, fmt.Errorf("bootstrap: OpenStore is required")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	start := time.Now()
	store, err := opts.OpenStore(ctx, opts.Config)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: store open failed: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("bootstrap: store init failed: %w", err), store.Close())
	}
	logger.Info(ctx, "app", "store.ready",
		slog.String("driver", opts.Config.Storage.Driver),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return &Result[S]{Store: store}, nil
}
