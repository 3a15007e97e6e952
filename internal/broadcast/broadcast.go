// Package broadcast fans an operator message out to every active attendee.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/m3rciful/regbot/core/logger"
	"github.com/m3rciful/regbot/core/messenger"
	"github.com/m3rciful/regbot/internal/attendee"
)

const defaultSendTimeout = 5 * time.Second

// Source yields the recipients of a broadcast.
type Source interface {
	Active(ctx context.Context) (iter.Seq[attendee.Record], error)
}

// Result is the outcome of one send.
type Result struct {
	Identity int64
	Err      error
}

// Delivered reports whether the send succeeded.
func (r Result) Delivered() bool { return r.Err == nil }

// Unconfirmed reports whether the send timed out locally and may still arrive.
func (r Result) Unconfirmed() bool { return errors.Is(r.Err, messenger.ErrUnconfirmed) }

func (r Result) failed() bool { return !r.Delivered() && !r.Unconfirmed() }

// Report collects the per-recipient results of one broadcast.
type Report struct {
	ID      uuid.UUID
	Results []Result
	Took    time.Duration
}

// Attempted is the number of recipients a send was tried for.
func (r Report) Attempted() int { return len(r.Results) }

// Sent is the number of successful sends.
func (r Report) Sent() int {
	return lo.CountBy(r.Results, Result.Delivered)
}

// Unconfirmed is the number of sends given up on before the transport answered.
func (r Report) Unconfirmed() int {
	return lo.CountBy(r.Results, Result.Unconfirmed)
}

// Failed is the number of sends the transport rejected.
func (r Report) Failed() int {
	return lo.CountBy(r.Results, Result.failed)
}

// FailedIdentities lists the recipients whose send was rejected.
func (r Report) FailedIdentities() []int64 {
	return lo.FilterMap(r.Results, func(res Result, _ int) (int64, bool) {
		return res.Identity, res.failed()
	})
}

// Dispatcher sends a body to each active attendee once.
type Dispatcher struct {
	source      Source
	out         messenger.Messenger
	sendTimeout time.Duration
}

// NewDispatcher builds a Dispatcher. A non-positive sendTimeout selects the default.
func NewDispatcher(source Source, out messenger.Messenger, sendTimeout time.Duration) *Dispatcher {
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	return &Dispatcher{source: source, out: out, sendTimeout: sendTimeout}
}

// Dispatch sends body to every record in a snapshot of the active attendees.
// A failed send is recorded and the fan-out continues; nothing is retried.
// The error is non-nil only when the recipients could not be listed.
func (d *Dispatcher) Dispatch(ctx context.Context, body string) (Report, error) {
	report := Report{ID: uuid.New()}
	if d.source == nil || d.out == nil {
		return report, errors.New("broadcast: dispatcher is not configured")
	}
	start := time.Now()

	recipients, err := d.source.Active(ctx)
	if err != nil {
		logger.Error(ctx, "broadcast", "broadcast.dispatch",
			slog.String("status", "fail"),
			slog.String("broadcast_id", report.ID.String()),
			slog.String("err", err.Error()),
		)
		return report, fmt.Errorf("broadcast: list recipients: %w", err)
	}

	for rec := range recipients {
		sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
		err := d.out.Send(sendCtx, rec.Identity, body, nil)
		cancel()
		if err != nil {
			logger.Warn(ctx, "broadcast", "broadcast.send",
				slog.String("status", "fail"),
				slog.String("broadcast_id", report.ID.String()),
				slog.Int64("identity", rec.Identity),
				slog.String("err", err.Error()),
			)
		}
		report.Results = append(report.Results, Result{Identity: rec.Identity, Err: err})
	}
	report.Took = time.Since(start)

	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("broadcast_id", report.ID.String()),
		slog.Int("recipients", report.Attempted()),
		slog.Int("sent", report.Sent()),
		slog.Int("failed", report.Failed()),
		slog.Int("unconfirmed", report.Unconfirmed()),
		slog.Duration("duration", report.Took),
	}
	if failed := report.FailedIdentities(); len(failed) > 0 {
		ids := lo.Map(failed, func(id int64, _ int) string { return strconv.FormatInt(id, 10) })
		preview, truncated := logger.SummarizeStrings(ids, 20)
		attrs = append(attrs,
			slog.String("failed_identities", preview),
			slog.Bool("failed_truncated", truncated),
		)
	}
	logger.Info(ctx, "broadcast", "broadcast.dispatch", attrs...)
	return report, nil
}
