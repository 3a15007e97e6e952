// Package messenger defines the transport-neutral ports used by the conversation
// and broadcast code. core/telegram provides the production implementation.
package messenger

import (
	"context"
	"errors"
)

// ErrUnconfirmed is returned by Messenger.Send when ctx ended before the transport
// answered. The message may still arrive.
var ErrUnconfirmed = errors.New("messenger: delivery unconfirmed")

// Inbound is one text event delivered by the transport.
type Inbound struct {
	UpdateID int
	ChatID   int64
	SenderID int64
	// Handle is the sender's display handle, or a placeholder when the transport has none.
	Handle string
	// Text is the message body. Media captions are not text.
	Text string
	// IsCommand marks a slash command that no registered command handler took.
	IsCommand bool
}

// Menu is a reply keyboard: rows of button labels. A nil Menu sends no keyboard.
type Menu [][]string

// Messenger delivers an outbound text message synchronously. A send abandoned
// because ctx ended wraps ErrUnconfirmed.
type Messenger interface {
	Send(ctx context.Context, to int64, text string, menu Menu) error
}

// Notifier delivers an out-of-band message on a best-effort basis. It returns once
// the message is accepted for delivery, not when it arrives.
type Notifier interface {
	Notify(ctx context.Context, to int64, text string) error
}
