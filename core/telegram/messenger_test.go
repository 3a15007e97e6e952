package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/regbot/core/messenger"
	"github.com/m3rciful/regbot/core/telegram/sender"
)

type sentMessage struct {
	to   string
	text string
	opts *tele.SendOptions
}

type fakeBot struct {
	mu    sync.Mutex
	sent  []sentMessage
	err   error
	delay time.Duration
}

func (b *fakeBot) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	msg := sentMessage{to: to.Recipient(), text: what.(string)}
	if len(opts) > 0 {
		msg.opts, _ = opts[0].(*tele.SendOptions)
	}
	b.sent = append(b.sent, msg)
	return &tele.Message{}, nil
}

func TestMessengerSendWithMenu(t *testing.T) {
	bot := &fakeBot{}
	m := NewMessenger(bot, nil)

	err := m.Send(context.Background(), 111, "hello", messenger.Menu{{"Register"}, {"Cancel"}})
	require.NoError(t, err)
	require.Len(t, bot.sent, 1)
	require.Equal(t, "111", bot.sent[0].to)
	require.Equal(t, "hello", bot.sent[0].text)
	require.NotNil(t, bot.sent[0].opts.ReplyMarkup)
	require.Len(t, bot.sent[0].opts.ReplyMarkup.ReplyKeyboard, 2)
}

func TestMessengerSendWithoutMenu(t *testing.T) {
	bot := &fakeBot{}
	m := NewMessenger(bot, nil)

	require.NoError(t, m.Send(context.Background(), 1, "hi", nil))
	require.Nil(t, bot.sent[0].opts.ReplyMarkup)
}

func TestMessengerSendWrapsError(t *testing.T) {
	bot := &fakeBot{err: tele.ErrBlockedByUser}
	m := NewMessenger(bot, nil)

	err := m.Send(context.Background(), 1, "hi", nil)
	require.ErrorIs(t, err, tele.ErrBlockedByUser)
}

func TestMessengerSendHonoursDeadline(t *testing.T) {
	bot := &fakeBot{delay: 200 * time.Millisecond}
	m := NewMessenger(bot, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := m.Send(ctx, 1, "hi", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorIs(t, err, messenger.ErrUnconfirmed)
}

func TestMessengerNotifyUsesQueue(t *testing.T) {
	bot := &fakeBot{}
	queue := sender.NewDispatcher(sender.Options{Workers: 1})
	m := NewMessenger(bot, queue)

	require.NoError(t, m.Notify(context.Background(), 999, "New participant registered: @alice (111)"))
	queue.Close()

	require.Len(t, bot.sent, 1)
	require.Equal(t, "999", bot.sent[0].to)
	require.EqualValues(t, 1, queue.Completed())
}

func TestMessengerNotifyFailureIsCounted(t *testing.T) {
	bot := &fakeBot{err: errors.New("telegram: Forbidden (403)")}
	queue := sender.NewDispatcher(sender.Options{Workers: 1})
	m := NewMessenger(bot, queue)

	require.NoError(t, m.Notify(context.Background(), 999, "x"))
	queue.Close()
	require.EqualValues(t, 1, queue.ErrorCount())
}
