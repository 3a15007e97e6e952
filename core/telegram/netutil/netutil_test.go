package netutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestShouldRetry(t *testing.T) {
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"dial", dial, true},
		{"wrapped dial", &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: dial}, true},
		{"api error", tele.ErrBlockedByUser, false},
		{"flood", tele.FloodError{RetryAfter: 3}, true},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ShouldRetry(tc.err); got != tc.want {
				t.Fatalf("ShouldRetry(%s) = %v; want %v", tc.name, got, tc.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	cases := map[string]error{
		"timeout": fmt.Errorf("send: %w", context.DeadlineExceeded),
		"dial":    &net.OpError{Op: "dial", Err: errors.New("refused")},
		"blocked": tele.ErrBlockedByUser,
		"http_4xx": errors.New("telegram: Bad Request: chat not found (400)"),
		"unknown": errors.New("boom"),
	}
	for want, err := range cases {
		if got := Classify(err); got != want {
			t.Errorf("Classify(%v) = %q; want %q", err, got, want)
		}
	}
}

func TestRedactToken(t *testing.T) {
	got := RedactToken(`Post "https://api.telegram.org/bot123456:AAH-x_y/sendMessage": timeout`)
	want := `Post "https://api.telegram.org/bot<redacted>/sendMessage": timeout`
	if got != want {
		t.Fatalf("RedactToken = %q; want %q", got, want)
	}
}
