package telegram

import (
	"context"
	"errors"
	"fmt"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/regbot/core/messenger"
	"github.com/m3rciful/regbot/core/telegram/keyboard"
	"github.com/m3rciful/regbot/core/telegram/middleware"
	"github.com/m3rciful/regbot/core/telegram/sender"
)

// BotSender is the part of *tele.Bot used for outbound messages.
type BotSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Messenger sends conversation replies and broadcasts through the Bot API.
type Messenger struct {
	bot   BotSender
	queue *sender.Dispatcher
}

var (
	_ messenger.Messenger = (*Messenger)(nil)
	_ messenger.Notifier  = (*Messenger)(nil)
)

// NewMessenger builds a Messenger. queue carries notifications; when nil they are sent inline.
func NewMessenger(bot BotSender, queue *sender.Dispatcher) *Messenger {
	return &Messenger{bot: bot, queue: queue}
}

// Send delivers text to a chat and returns once the Bot API answered or ctx is done.
// The Bot API call cannot be cancelled, so a send that outlives ctx keeps running
// and is reported with messenger.ErrUnconfirmed.
func (m *Messenger) Send(ctx context.Context, to int64, text string, menu messenger.Menu) error {
	opts := &tele.SendOptions{}
	if markup := keyboard.ReplyButtons(menu...); markup != nil {
		opts.ReplyMarkup = markup
	}

	done := make(chan error, 1)
	go func() {
		_, err := m.bot.Send(tele.ChatID(to), text, opts)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("telegram: send to %d: %w", to, err)
		}
		middleware.CountMessage(ctx, opts.ReplyMarkup != nil)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("telegram: send to %d: %w", to, errors.Join(messenger.ErrUnconfirmed, ctx.Err()))
	}
}

// Notify queues text for asynchronous delivery with retries.
func (m *Messenger) Notify(ctx context.Context, to int64, text string) error {
	if m.queue == nil {
		return m.Send(ctx, to, text, nil)
	}
	return m.queue.Enqueue(ctx, sender.Job{
		Action:    "notify",
		Recipient: to,
		Run: func(ctx context.Context) error {
			return m.Send(ctx, to, text, nil)
		},
	})
}
