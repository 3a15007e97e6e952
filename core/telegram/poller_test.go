package telegram

import (
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

func TestBuildPollerWebhook(t *testing.T) {
	p := BuildPoller(PollerOptions{RunMode: "Webhook", WebhookURL: "https://example.org/telegram/webhook"})
	hook, ok := p.(*tele.Webhook)
	if !ok {
		t.Fatalf("poller = %T; want *tele.Webhook", p)
	}
	if hook.Listen != "" {
		t.Fatalf("webhook poller must not listen itself, got %q", hook.Listen)
	}
	if hook.Endpoint.PublicURL != "https://example.org/telegram/webhook" {
		t.Fatalf("public url = %q", hook.Endpoint.PublicURL)
	}
}

func TestBuildPollerLongPollTimeout(t *testing.T) {
	p := BuildPoller(PollerOptions{RunMode: "longpoll"})
	lp, ok := p.(*tele.LongPoller)
	if !ok {
		t.Fatalf("poller = %T; want *tele.LongPoller", p)
	}
	if lp.Timeout != 10*time.Second {
		t.Fatalf("timeout = %v; want 10s", lp.Timeout)
	}
	lp = BuildPoller(PollerOptions{LongPollTimeoutSeconds: 25}).(*tele.LongPoller)
	if lp.Timeout != 25*time.Second {
		t.Fatalf("timeout = %v; want 25s", lp.Timeout)
	}
}
