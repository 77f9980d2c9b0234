package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"webhookrelay/models"
)

func TestTruncateKeepsRunesWhole(t *testing.T) {
	body := strings.Repeat("€", 300) // 900 bytes

	got := truncate(body, 600)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated body is invalid UTF-8: %q", got[len(got)-8:])
	}
	if got != strings.Repeat("€", 200)+"…" {
		t.Fatalf("unexpected truncation, %d bytes", len(got))
	}

	got = truncate(strings.Repeat("€", 300), 601)
	if got != strings.Repeat("€", 200)+"…" {
		t.Fatalf("expected cut back to the previous rune boundary, %d bytes", len(got))
	}

	if got := truncate("short", 600); got != "short" {
		t.Fatalf("expected short body unchanged, got %q", got)
	}
}

func TestPingTimeoutReportsPingDeadline(t *testing.T) {
	saved := pingTimeout
	pingTimeout = 50 * time.Millisecond
	defer func() { pingTimeout = saved }()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	cfg := models.DefaultRelayConfig()
	cfg.ServerAddress = server.URL
	cfg.WebhookPath = "chat"

	err := NewWebhookRelay(NewStaticConfig(cfg), nil).Ping(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	var relayErr *RelayError
	if !errors.As(err, &relayErr) || relayErr.Detail != "50ms" {
		t.Fatalf("expected the ping deadline in the detail, got %v", err)
	}
}
