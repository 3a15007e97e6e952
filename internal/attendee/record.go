// Package attendee keeps one registration record per Telegram identity.
package attendee

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Status is the participation status of a record.
type Status string

const (
	// StatusActive is the empty status of a registered, non-cancelled attendee.
	StatusActive Status = ""
	// StatusCancelled marks an attendee who opted out. Records are never deleted.
	StatusCancelled Status = "cancelled"
)

// TimeLayout is the format of RegisteredAt.
const TimeLayout = "2006-01-02 15:04"

// Header is the fixed column order of the attendee table.
var Header = []string{"handle", "registered_at", "identity", "full_name", "status"}

var (
	// ErrInvalidRecord is returned when a mutation would commit a record that breaks the schema.
	ErrInvalidRecord = errors.New("attendee: invalid record")
	// ErrHeaderMismatch is returned when an existing table carries a different header row.
	ErrHeaderMismatch = errors.New("attendee: table header mismatch")
)

var validate = validator.New()

// Record is a single attendee row.
type Record struct {
	Handle       string `db:"handle"`
	RegisteredAt string `db:"registered_at"`
	Identity     int64  `db:"identity" validate:"required"`
	FullName     string `db:"full_name"`
	Status       Status `db:"status" validate:"omitempty,oneof=cancelled"`
}

// Active reports whether the record should receive broadcasts.
func (r Record) Active() bool {
	return r.Status != StatusCancelled
}

// Patch lists the fields to overwrite; nil fields are left untouched.
type Patch struct {
	Handle       *string
	RegisteredAt *string
	FullName     *string
	Status       *Status
}

// Apply copies every supplied field onto r.
func (p Patch) Apply(r *Record) {
	if p.Handle != nil {
		r.Handle = *p.Handle
	}
	if p.RegisteredAt != nil {
		r.RegisteredAt = *p.RegisteredAt
	}
	if p.FullName != nil {
		r.FullName = *p.FullName
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
}

// Validate checks r against the table schema.
func Validate(r Record) error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: identity %d: %v", ErrInvalidRecord, r.Identity, err)
	}
	return nil
}

// FormatTime renders t the way RegisteredAt is stored.
func FormatTime(t time.Time) string {
	return t.Format(TimeLayout)
}

// merge resolves an upsert against the current row, if any.
func merge(current *Record, identity int64, patch Patch) (Record, error) {
	rec := Record{Identity: identity}
	if current != nil {
		rec = *current
	}
	patch.Apply(&rec)
	if err := Validate(rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}
