package attendee

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/regbot/core/database"
	"github.com/m3rciful/regbot/core/logger"
)

const recordColumns = `handle, registered_at, identity, full_name, status`

// SQLStore keeps attendees in the attendees table of an SQL database.
// Row order is the position column, assigned once on insert.
type SQLStore struct {
	mu     sync.RWMutex
	db     *sqlx.DB
	target database.Target
}

// NewSQLStore wraps an open connection. Init applies the schema.
func NewSQLStore(db *sqlx.DB, target database.Target) *SQLStore {
	return &SQLStore{db: db, target: target}
}

// Init applies the embedded migrations.
func (s *SQLStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := database.RunMigrations(ctx, s.target); err != nil {
		return fmt.Errorf("attendee: migrate: %w", err)
	}
	return nil
}

// Find returns the record for identity.
func (s *SQLStore) Find(ctx context.Context, identity int64) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec Record
	err := s.db.GetContext(ctx, &rec, s.db.Rebind(
		`SELECT `+recordColumns+` FROM attendees WHERE identity = ?`), identity)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Record{}, false, nil
	case err != nil:
		return Record{}, false, fmt.Errorf("attendee: find %d: %w", identity, err)
	}
	return rec, true, nil
}

// Upsert overwrites the supplied fields of identity's row or inserts a new one.
func (s *SQLStore) Upsert(ctx context.Context, identity int64, patch Patch) (created bool, err error) {
	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("attendee: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current Record
	err = tx.GetContext(ctx, &current, tx.Rebind(
		`SELECT `+recordColumns+` FROM attendees WHERE identity = ?`), identity)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		created = true
	case err != nil:
		return false, fmt.Errorf("attendee: load %d: %w", identity, err)
	}

	var base *Record
	if !created {
		base = &current
	}
	rec, err := merge(base, identity, patch)
	if err != nil {
		return false, err
	}

	if created {
		var position int64
		if err = tx.GetContext(ctx, &position,
			`SELECT COALESCE(MAX(position), 0) + 1 FROM attendees`); err != nil {
			return false, fmt.Errorf("attendee: next position: %w", err)
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(
			`INSERT INTO attendees (identity, position, handle, registered_at, full_name, status)
			 VALUES (?, ?, ?, ?, ?, ?)`),
			rec.Identity, position, rec.Handle, rec.RegisteredAt, rec.FullName, string(rec.Status))
	} else {
		_, err = tx.ExecContext(ctx, tx.Rebind(
			`UPDATE attendees SET handle = ?, registered_at = ?, full_name = ?, status = ? WHERE identity = ?`),
			rec.Handle, rec.RegisteredAt, rec.FullName, string(rec.Status), rec.Identity)
	}
	if err != nil {
		return false, fmt.Errorf("attendee: write %d: %w", identity, err)
	}
	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("attendee: commit %d: %w", identity, err)
	}

	logger.Debug(ctx, "store", "store.upsert",
		slog.String("status", "ok"),
		slog.String("driver", s.target.Driver),
		slog.Int64("identity", identity),
		slog.Bool("created", created),
		slog.Duration("duration", time.Since(start)),
	)
	return created, nil
}

// Active snapshots all non-cancelled records in position order.
func (s *SQLStore) Active(ctx context.Context) (iter.Seq[Record], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var recs []Record
	err := s.db.SelectContext(ctx, &recs, s.db.Rebind(
		`SELECT `+recordColumns+` FROM attendees WHERE status <> ? ORDER BY position`),
		string(StatusCancelled))
	if err != nil {
		return nil, fmt.Errorf("attendee: list active: %w", err)
	}
	return snapshot(recs), nil
}

// All snapshots every record in position order.
func (s *SQLStore) All(ctx context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var recs []Record
	if err := s.db.SelectContext(ctx, &recs,
		`SELECT `+recordColumns+` FROM attendees ORDER BY position`); err != nil {
		return nil, fmt.Errorf("attendee: list: %w", err)
	}
	return recs, nil
}

// Close releases the connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
