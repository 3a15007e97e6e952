// Package conversation implements the registration dialogue and the operator broadcast flow.
//
// The engine keeps no per-user state besides the one pending step per chat; who a
// sender is and what they registered is looked up in the attendee store on every event.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/m3rciful/regbot/core/logger"
	"github.com/m3rciful/regbot/core/messenger"
	"github.com/m3rciful/regbot/core/telegram/state"
	"github.com/m3rciful/regbot/internal/attendee"
	"github.com/m3rciful/regbot/internal/broadcast"
)

// Pending steps armed by the engine.
const (
	StepAwaitingName      state.State = "awaiting_name"
	StepAwaitingBroadcast state.State = "awaiting_broadcast"
)

// ErrEmptyText is returned for an inbound text event with no content.
var ErrEmptyText = errors.New("conversation: empty text")

// Broadcaster fans a message out to the active attendees.
type Broadcaster interface {
	Dispatch(ctx context.Context, body string) (broadcast.Report, error)
}

// Options wires the engine's collaborators.
type Options struct {
	Store       attendee.Store
	Messenger   messenger.Messenger
	Notifier    messenger.Notifier
	Broadcaster Broadcaster
	Steps       state.Manager
	// AdminID is the only identity allowed to broadcast and the receiver of
	// new participant notifications.
	AdminID int64
	// Now defaults to time.Now.
	Now func() time.Time
}

type step func(ctx context.Context, in messenger.Inbound) error

// Engine routes inbound events to the dialogue operations.
type Engine struct {
	store       attendee.Store
	out         messenger.Messenger
	notifier    messenger.Notifier
	broadcaster Broadcaster
	steps       state.Manager
	adminID     int64
	now         func() time.Time
	handlers    map[state.State]step
}

// New validates opts and builds an Engine.
func New(opts Options) (*Engine, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("conversation: store is required")
	case opts.Messenger == nil:
		return nil, errors.New("conversation: messenger is required")
	case opts.Broadcaster == nil:
		return nil, errors.New("conversation: broadcaster is required")
	case opts.AdminID == 0:
		return nil, errors.New("conversation: admin id is required")
	}
	if opts.Steps == nil {
		opts.Steps = state.NewMemoryManager()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	e := &Engine{
		store:       opts.Store,
		out:         opts.Messenger,
		notifier:    opts.Notifier,
		broadcaster: opts.Broadcaster,
		steps:       opts.Steps,
		adminID:     opts.AdminID,
		now:         opts.Now,
	}
	e.handlers = map[state.State]step{
		StepAwaitingName:      e.CompleteRegistration,
		StepAwaitingBroadcast: e.BroadcastDispatch,
	}
	return e, nil
}

// IsAdmin reports whether identity is the operator.
func (e *Engine) IsAdmin(identity int64) bool {
	return identity == e.adminID
}

// HandleText routes a free-text message: a pending step for the chat wins, then
// menu labels, then a hint. Empty text and unknown commands get a reply and leave
// a pending step armed.
func (e *Engine) HandleText(ctx context.Context, in messenger.Inbound) error {
	if strings.TrimSpace(in.Text) == "" {
		logger.Warn(ctx, "conversation", "text.reject",
			slog.Int64("identity", in.SenderID),
			slog.String("reason", "empty"),
		)
		if err := e.reply(ctx, in, textEmpty, nil); err != nil {
			return errors.Join(ErrEmptyText, err)
		}
		return ErrEmptyText
	}

	if in.IsCommand {
		logger.Debug(ctx, "conversation", "text.command.unknown",
			slog.Int64("identity", in.SenderID),
			slog.String("pending", string(e.steps.Pending(in.ChatID))),
		)
		return e.reply(ctx, in, textUnknown, mainMenu)
	}

	if st, ok := e.steps.Take(in.ChatID); ok {
		if h, found := e.handlers[st]; found {
			logger.Debug(ctx, "conversation", "step.resume",
				slog.Int64("identity", in.SenderID),
				slog.String("step", string(st)),
			)
			return h(ctx, in)
		}
	}

	switch in.Text {
	case LabelRegister, LabelUpdate:
		return e.BeginRegistration(ctx, in)
	case LabelCancel:
		return e.Cancel(ctx, in)
	default:
		return e.reply(ctx, in, textUnknown, mainMenu)
	}
}

// Greet replies with the sender's registration summary or a welcome, plus the main menu.
func (e *Engine) Greet(ctx context.Context, in messenger.Inbound) error {
	rec, found, err := e.store.Find(ctx, in.SenderID)
	if err != nil {
		return e.fail(ctx, in, "greet", err)
	}
	text := textWelcome
	if found {
		text = textStatus(rec)
	}
	logger.Info(ctx, "conversation", "greet",
		slog.Int64("identity", in.SenderID),
		slog.Bool("found", found),
	)
	return e.reply(ctx, in, text, mainMenu)
}

// BeginRegistration records the sender's handle and timestamp, asks for a name and
// arms the name step. Only the first registration of an identity notifies the operator.
func (e *Engine) BeginRegistration(ctx context.Context, in messenger.Inbound) error {
	handle := in.Handle
	if handle == "" {
		handle = PlaceholderHandle
	}
	created, err := e.store.Upsert(ctx, in.SenderID, attendee.Patch{
		Handle:       lo.ToPtr(handle),
		RegisteredAt: lo.ToPtr(attendee.FormatTime(e.now())),
	})
	if err != nil {
		return e.fail(ctx, in, "registration.begin", err)
	}
	logger.Info(ctx, "conversation", "registration.begin",
		slog.Int64("identity", in.SenderID),
		slog.Bool("created", created),
	)
	if created {
		e.notifyOperator(ctx, textNewParticipant(handle, in.SenderID))
	}

	e.steps.Arm(in.ChatID, StepAwaitingName)
	return e.reply(ctx, in, textAskName, nil)
}

// CompleteRegistration stores the message text as the full name and reactivates the record.
func (e *Engine) CompleteRegistration(ctx context.Context, in messenger.Inbound) error {
	created, err := e.store.Upsert(ctx, in.SenderID, attendee.Patch{
		FullName: lo.ToPtr(in.Text),
		Status:   lo.ToPtr(attendee.StatusActive),
	})
	if err != nil {
		return e.fail(ctx, in, "registration.complete", err)
	}
	logger.Info(ctx, "conversation", "registration.complete",
		slog.Int64("identity", in.SenderID),
		slog.Bool("created", created),
	)
	if created {
		e.notifyOperator(ctx, textNewParticipant(PlaceholderHandle, in.SenderID))
	}
	return e.reply(ctx, in, textRegistered, postMenu)
}

// Cancel marks the sender's record cancelled. Unknown senders get the same reply.
func (e *Engine) Cancel(ctx context.Context, in messenger.Inbound) error {
	_, found, err := e.store.Find(ctx, in.SenderID)
	if err != nil {
		return e.fail(ctx, in, "registration.cancel", err)
	}
	if found {
		if _, err := e.store.Upsert(ctx, in.SenderID, attendee.Patch{
			Status: lo.ToPtr(attendee.StatusCancelled),
		}); err != nil {
			return e.fail(ctx, in, "registration.cancel", err)
		}
	}
	logger.Info(ctx, "conversation", "registration.cancel",
		slog.Int64("identity", in.SenderID),
		slog.Bool("found", found),
	)
	return e.reply(ctx, in, textCancelled, nil)
}

// BroadcastInit asks the operator for the broadcast text. Anyone else is denied.
func (e *Engine) BroadcastInit(ctx context.Context, in messenger.Inbound) error {
	if !e.IsAdmin(in.SenderID) {
		logger.Warn(ctx, "conversation", "broadcast.init",
			slog.String("status", "denied"),
			slog.Int64("identity", in.SenderID),
		)
		return e.reply(ctx, in, textAccessDenied, nil)
	}
	e.steps.Arm(in.ChatID, StepAwaitingBroadcast)
	logger.Info(ctx, "conversation", "broadcast.init",
		slog.String("status", "ok"),
		slog.Int64("identity", in.SenderID),
	)
	return e.reply(ctx, in, textAskBroadcast, nil)
}

// BroadcastDispatch sends the message text to every active attendee and reports the count.
func (e *Engine) BroadcastDispatch(ctx context.Context, in messenger.Inbound) error {
	if !e.IsAdmin(in.SenderID) {
		return e.reply(ctx, in, textAccessDenied, nil)
	}
	report, err := e.broadcaster.Dispatch(ctx, in.Text)
	if err != nil {
		logger.Error(ctx, "conversation", "broadcast.dispatch",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		if rerr := e.reply(ctx, in, textBroadcastFailed, nil); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	return e.reply(ctx, in, textBroadcastDone(report.Sent(), report.Failed(), report.Unconfirmed()), nil)
}

func (e *Engine) reply(ctx context.Context, in messenger.Inbound, text string, menu messenger.Menu) error {
	if err := e.out.Send(ctx, in.ChatID, text, menu); err != nil {
		return fmt.Errorf("conversation: reply to %d: %w", in.ChatID, err)
	}
	return nil
}

// fail sends the generic failure reply and returns the cause.
func (e *Engine) fail(ctx context.Context, in messenger.Inbound, event string, cause error) error {
	logger.Error(ctx, "conversation", event,
		slog.String("status", "fail"),
		slog.Int64("identity", in.SenderID),
		slog.String("err", cause.Error()),
	)
	if err := e.reply(ctx, in, textFailure, nil); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (e *Engine) notifyOperator(ctx context.Context, text string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, e.adminID, text); err != nil {
		logger.Warn(ctx, "conversation", "operator.notify",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
}
