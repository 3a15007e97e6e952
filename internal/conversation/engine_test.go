package conversation

import (
	"context"
	"errors"
	"iter"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/m3rciful/regbot/core/messenger"
	"github.com/m3rciful/regbot/core/telegram/state"
	"github.com/m3rciful/regbot/internal/attendee"
	"github.com/m3rciful/regbot/internal/broadcast"
)

const adminID int64 = 999

// memStore is an in-memory attendee.Store keeping row order.
type memStore struct {
	mu   sync.Mutex
	rows []attendee.Record
	err  error
}

func (s *memStore) Init(context.Context) error { return s.err }

func (s *memStore) Find(_ context.Context, id int64) (attendee.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return attendee.Record{}, false, s.err
	}
	for _, r := range s.rows {
		if r.Identity == id {
			return r, true, nil
		}
	}
	return attendee.Record{}, false, nil
}

func (s *memStore) Upsert(_ context.Context, id int64, p attendee.Patch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	for i := range s.rows {
		if s.rows[i].Identity == id {
			p.Apply(&s.rows[i])
			return false, nil
		}
	}
	rec := attendee.Record{Identity: id}
	p.Apply(&rec)
	s.rows = append(s.rows, rec)
	return true, nil
}

func (s *memStore) Active(context.Context) (iter.Seq[attendee.Record], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []attendee.Record
	for _, r := range s.rows {
		if r.Active() {
			out = append(out, r)
		}
	}
	return slices.Values(out), nil
}

func (s *memStore) All(context.Context) ([]attendee.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.rows), s.err
}

func (s *memStore) Close() error { return nil }

type sent struct {
	To   int64
	Text string
	Menu messenger.Menu
}

// outbox records sends and notifications; sends to identities in fail return an error.
type outbox struct {
	mu       sync.Mutex
	sent     []sent
	notified []sent
	fail     map[int64]bool
}

func (o *outbox) Send(_ context.Context, to int64, text string, menu messenger.Menu) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail[to] {
		return errors.New("blocked")
	}
	o.sent = append(o.sent, sent{To: to, Text: text, Menu: menu})
	return nil
}

func (o *outbox) Notify(_ context.Context, to int64, text string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notified = append(o.notified, sent{To: to, Text: text})
	return nil
}

func (o *outbox) last() sent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sent[len(o.sent)-1]
}

func (o *outbox) to(id int64) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var texts []string
	for _, s := range o.sent {
		if s.To == id {
			texts = append(texts, s.Text)
		}
	}
	return texts
}

type fixture struct {
	engine *Engine
	store  *memStore
	out    *outbox
	steps  state.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: &memStore{},
		out:   &outbox{fail: map[int64]bool{}},
		steps: state.NewMemoryManager(),
	}
	eng, err := New(Options{
		Store:       f.store,
		Messenger:   f.out,
		Notifier:    f.out,
		Broadcaster: broadcast.NewDispatcher(f.store, f.out, time.Second),
		Steps:       f.steps,
		AdminID:     adminID,
		Now:         func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	f.engine = eng
	return f
}

func user(id int64, handle, text string) messenger.Inbound {
	return messenger.Inbound{ChatID: id, SenderID: id, Handle: handle, Text: text}
}

func TestScenarioRegisterCancelBroadcast(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	req.NoError(f.engine.Greet(ctx, user(111, "alice", "/start")))
	req.Equal(sent{To: 111, Text: textWelcome, Menu: mainMenu}, f.out.last())
	req.Empty(f.store.rows)

	req.NoError(f.engine.HandleText(ctx, user(111, "alice", LabelRegister)))
	req.Equal([]attendee.Record{{Handle: "alice", RegisteredAt: "2024-05-01 10:00", Identity: 111}}, f.store.rows)
	req.Len(f.out.notified, 1)
	req.Equal(sent{To: adminID, Text: "New participant registered: @alice (111)"}, f.out.notified[0])
	req.Equal(textAskName, f.out.last().Text)

	req.NoError(f.engine.HandleText(ctx, user(111, "alice", "Alice A.")))
	req.Equal("Alice A.", f.store.rows[0].FullName)
	req.Equal(attendee.StatusActive, f.store.rows[0].Status)
	req.Equal(sent{To: 111, Text: textRegistered, Menu: postMenu}, f.out.last())

	req.NoError(f.engine.HandleText(ctx, user(111, "alice", LabelCancel)))
	req.Equal(attendee.StatusCancelled, f.store.rows[0].Status)
	req.Equal(textCancelled, f.out.last().Text)

	req.NoError(f.engine.HandleText(ctx, user(222, "bob", LabelRegister)))
	req.NoError(f.engine.HandleText(ctx, user(222, "bob", "Bob")))

	req.NoError(f.engine.BroadcastInit(ctx, user(adminID, "op", "/broadcast")))
	req.Equal(textAskBroadcast, f.out.last().Text)
	req.NoError(f.engine.HandleText(ctx, user(adminID, "op", "hello")))

	req.NotContains(f.out.to(111), "hello")
	req.Contains(f.out.to(222), "hello")
	req.Equal(textBroadcastDone(1, 0, 0), f.out.last().Text)
}

func TestNotificationFiresOncePerIdentity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, label := range []string{LabelRegister, LabelUpdate, LabelRegister} {
		require.NoError(t, f.engine.HandleText(ctx, user(5, "eve", label)))
		require.NoError(t, f.engine.HandleText(ctx, user(5, "eve", "Eve")))
	}
	require.Len(t, f.out.notified, 1)
	require.Len(t, f.store.rows, 1)
}

func TestUpdateRefreshesHandleOnly(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	req.NoError(f.engine.HandleText(ctx, user(5, "eve", LabelRegister)))
	req.NoError(f.engine.HandleText(ctx, user(5, "eve", "Eve")))
	req.NoError(f.engine.HandleText(ctx, user(5, "eve2", LabelUpdate)))

	req.Equal("eve2", f.store.rows[0].Handle)
	req.Equal("Eve", f.store.rows[0].FullName, "name is kept until a new one is submitted")
	req.Equal(StepAwaitingName, f.steps.Pending(5))
}

func TestReRegistrationReactivates(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	req.NoError(f.engine.HandleText(ctx, user(5, "eve", LabelRegister)))
	req.NoError(f.engine.HandleText(ctx, user(5, "eve", "Eve")))
	req.NoError(f.engine.HandleText(ctx, user(5, "eve", LabelCancel)))

	req.NoError(f.engine.HandleText(ctx, user(5, "eve", LabelRegister)))
	req.Equal(attendee.StatusCancelled, f.store.rows[0].Status, "status changes only once the name is submitted")
	req.NoError(f.engine.HandleText(ctx, user(5, "eve", "Eve")))
	req.Equal(attendee.StatusActive, f.store.rows[0].Status)
}

func TestMissingHandleUsesPlaceholder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.engine.HandleText(ctx, user(5, "", LabelRegister)))
	require.Equal(t, PlaceholderHandle, f.store.rows[0].Handle)
}

func TestCancelUnknownSenderIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.engine.HandleText(ctx, user(5, "eve", LabelCancel)))
	require.Empty(t, f.store.rows)
	require.Equal(t, textCancelled, f.out.last().Text)
}

func TestGreetShowsStatusSummary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.rows = []attendee.Record{{Identity: 5, Status: attendee.StatusCancelled}}

	require.NoError(t, f.engine.Greet(ctx, user(5, "eve", "/start")))
	got := f.out.last()
	require.Equal(t, "👋 You are already registered!\nName: —\nStatus: cancelled", got.Text)
	require.Equal(t, mainMenu, got.Menu)
}

func TestNonOperatorBroadcastIsDenied(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.rows = []attendee.Record{{Identity: 1}, {Identity: 2}}

	require.NoError(t, f.engine.BroadcastInit(ctx, user(1, "mallory", "/broadcast")))
	require.Equal(t, []string{textAccessDenied}, f.out.to(1))
	require.Equal(t, state.StateIdle, f.steps.Pending(1))

	require.NoError(t, f.engine.HandleText(ctx, user(1, "mallory", "spam")))
	require.Empty(t, f.out.to(2))
}

func TestBroadcastReportsPartialDelivery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.rows = []attendee.Record{{Identity: 1}, {Identity: 2}, {Identity: 3}}
	f.out.fail[2] = true

	require.NoError(t, f.engine.BroadcastInit(ctx, user(adminID, "op", "/broadcast")))
	require.NoError(t, f.engine.HandleText(ctx, user(adminID, "op", "hello")))
	require.Equal(t, textBroadcastDone(2, 1, 0), f.out.last().Text)
	require.Equal(t, "Broadcast delivered to 2 users (1 failed).", f.out.last().Text)
}

func TestContinuationIsOneShot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.engine.HandleText(ctx, user(5, "eve", LabelRegister)))
	require.NoError(t, f.engine.HandleText(ctx, user(5, "eve", "Eve")))
	require.NoError(t, f.engine.HandleText(ctx, user(5, "eve", "Not a name")))

	require.Equal(t, "Eve", f.store.rows[0].FullName)
	require.Equal(t, textUnknown, f.out.last().Text)
}

func TestEmptyTextKeepsPendingStep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.engine.HandleText(ctx, user(5, "eve", LabelRegister)))
	err := f.engine.HandleText(ctx, user(5, "eve", "   "))
	require.ErrorIs(t, err, ErrEmptyText)
	require.Equal(t, textEmpty, f.out.last().Text)
	require.Equal(t, StepAwaitingName, f.steps.Pending(5))
}

func TestStoreFailureRepliesGenerically(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	boom := errors.New("disk unavailable")
	f.store.err = boom

	err := f.engine.HandleText(ctx, user(5, "eve", LabelRegister))
	require.ErrorIs(t, err, boom)
	require.Equal(t, textFailure, f.out.last().Text)
	require.Equal(t, state.StateIdle, f.steps.Pending(5))
	require.Empty(t, f.out.notified)
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestUnknownCommandKeepsPendingStep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.engine.HandleText(ctx, user(5, "eve", LabelRegister)))
	cmd := user(5, "eve", "/help")
	cmd.IsCommand = true
	require.NoError(t, f.engine.HandleText(ctx, cmd))

	require.Equal(t, textUnknown, f.out.last().Text)
	require.Equal(t, StepAwaitingName, f.steps.Pending(5))
	require.Empty(t, f.store.rows[0].FullName)
}

func TestBroadcastDoneText(t *testing.T) {
	require.Equal(t, "Broadcast delivered to 3 users.", textBroadcastDone(3, 0, 0))
	require.Equal(t, "Broadcast delivered to 2 users (1 failed).", textBroadcastDone(2, 1, 0))
	require.Equal(t, "Broadcast delivered to 1 users (1 failed, 2 unconfirmed).", textBroadcastDone(1, 1, 2))
}
