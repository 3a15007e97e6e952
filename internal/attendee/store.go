package attendee

import (
	"context"
	"fmt"
	"iter"
	"slices"

	coreconfig "github.com/m3rciful/regbot/core/config"
	"github.com/m3rciful/regbot/core/database"
)

// Store is the durable attendee table.
//
// Mutations are serialized inside the process and committed before they return.
// Reads may run concurrently with each other but never with a mutation.
type Store interface {
	// Init creates the table with its fixed header when it does not exist yet.
	Init(ctx context.Context) error
	// Find returns the first record for identity in row order.
	Find(ctx context.Context, identity int64) (Record, bool, error)
	// Upsert overwrites the supplied fields of the identity's record or appends a
	// new one. created reports whether a row was appended.
	Upsert(ctx context.Context, identity int64, patch Patch) (created bool, err error)
	// Active snapshots every non-cancelled record at call time.
	Active(ctx context.Context) (iter.Seq[Record], error)
	// All snapshots the whole table in row order.
	All(ctx context.Context) ([]Record, error)
	Close() error
}

// Open builds the store selected by cfg.Storage.Driver. Init is left to the caller.
func Open(ctx context.Context, cfg *coreconfig.Config) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("attendee: nil config")
	}
	switch cfg.Storage.Driver {
	case coreconfig.DriverXLSX, "":
		return NewXLSXStore(cfg.Storage.Path, cfg.Storage.Sheet), nil
	case coreconfig.DriverSQLite:
		return openSQL(ctx, database.SQLiteTarget(cfg.Storage.Path))
	case coreconfig.DriverPostgres:
		return openSQL(ctx, database.PostgresTarget(cfg.Database))
	default:
		return nil, fmt.Errorf("attendee: unsupported storage driver %q", cfg.Storage.Driver)
	}
}

func openSQL(ctx context.Context, target database.Target) (Store, error) {
	db, err := database.Connect(ctx, target)
	if err != nil {
		return nil, err
	}
	return NewSQLStore(db, target), nil
}

// snapshot turns a copied slice into a restartable sequence.
func snapshot(records []Record) iter.Seq[Record] {
	records = slices.Clone(records)
	return func(yield func(Record) bool) {
		for _, r := range records {
			if !yield(r) {
				return
			}
		}
	}
}
