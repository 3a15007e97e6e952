package telegram

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

type recordingProcessor struct {
	mu      sync.Mutex
	updates []tele.Update
}

func (p *recordingProcessor) ProcessUpdate(u tele.Update) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, u)
}

func postUpdate(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhookAcceptsUpdate(t *testing.T) {
	proc := &recordingProcessor{}
	h := NewWebhookHandler("/telegram/webhook", proc)

	rec := postUpdate(t, h, `{"update_id":42,"message":{"message_id":1,"text":"hi","chat":{"id":111,"type":"private"},"from":{"id":111,"username":"alice"}}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, proc.updates, 1)
	require.Equal(t, 42, proc.updates[0].ID)
	require.Equal(t, "hi", proc.updates[0].Message.Text)
}

func TestWebhookRejectsMalformedBodies(t *testing.T) {
	proc := &recordingProcessor{}
	h := NewWebhookHandler("/telegram/webhook", proc)

	for name, body := range map[string]string{
		"empty":     ``,
		"not json":  `hello`,
		"array":     `[1,2]`,
		"null":      `null`,
		"no id":     `{"message":{"text":"hi"}}`,
		"bad field": `{"update_id":"x"}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := postUpdate(t, h, body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	require.Empty(t, proc.updates)
}

func TestWebhookHealthz(t *testing.T) {
	h := NewWebhookHandler("/telegram/webhook", &recordingProcessor{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestWebhookOnlyAcceptsPost(t *testing.T) {
	h := NewWebhookHandler("/telegram/webhook", &recordingProcessor{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/telegram/webhook", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
