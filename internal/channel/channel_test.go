package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"eventRelay/internal/model"
)

type captured struct {
	path   string
	auth   string
	body   map[string]interface{}
	status int
}

func newServer(t *testing.T, status int) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{status: status}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.path = r.URL.Path
		c.auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&c.body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(c.status)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	return srv, c
}

var sample = model.Notification{
	ID:       "n1",
	UserID:   "u1",
	Title:    "Token transfer detected",
	Message:  "1 transferred",
	Priority: model.PriorityHigh,
}

func TestTelegramSend(t *testing.T) {
	srv, c := newServer(t, http.StatusOK)
	defer srv.Close()

	sender := NewTelegram(nil, "TOKEN", srv.URL)
	cfg := model.ChannelConfig{Kind: model.ChannelTelegram, IsActive: true, Settings: map[string]string{"chat_id": "42"}}
	if err := sender.Send(context.Background(), cfg, sample); err != nil {
		t.Fatalf("send: %v", err)
	}
	if c.path != "/botTOKEN/sendMessage" {
		t.Fatalf("path mismatch: %s", c.path)
	}
	if c.body["chat_id"] != "42" || c.body["text"] != "Token transfer detected\n1 transferred" {
		t.Fatalf("body mismatch: %+v", c.body)
	}
}

func TestTelegramMissingSettings(t *testing.T) {
	sender := NewTelegram(nil, "TOKEN", "http://127.0.0.1:0")
	err := sender.Send(context.Background(), model.ChannelConfig{Kind: model.ChannelTelegram}, sample)
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}

	sender = NewTelegram(nil, "", "")
	err = sender.Send(context.Background(), model.ChannelConfig{Settings: map[string]string{"chat_id": "1"}}, sample)
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected not configured without token, got %v", err)
	}
}

func TestTelegramTransportErrorHidesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	sender := NewTelegram(nil, "SECRET-TOKEN", base)
	cfg := model.ChannelConfig{Kind: model.ChannelTelegram, IsActive: true, Settings: map[string]string{"chat_id": "42"}}
	err := sender.Send(context.Background(), cfg, sample)
	if err == nil {
		t.Fatalf("expected transport error")
	}
	if strings.Contains(err.Error(), "SECRET-TOKEN") {
		t.Fatalf("token leaked in error: %v", err)
	}
}

func TestDiscordSendAndErrorStatus(t *testing.T) {
	srv, c := newServer(t, http.StatusNoContent)
	defer srv.Close()

	sender := NewDiscord(nil)
	cfg := model.ChannelConfig{Kind: model.ChannelDiscord, Settings: map[string]string{"webhook_url": srv.URL + "/hook"}}
	if err := sender.Send(context.Background(), cfg, sample); err != nil {
		t.Fatalf("send: %v", err)
	}
	embeds, _ := c.body["embeds"].([]interface{})
	if len(embeds) != 1 {
		t.Fatalf("embeds mismatch: %+v", c.body)
	}
	embed, _ := embeds[0].(map[string]interface{})
	if embed["title"] != sample.Title || embed["color"] != float64(0xe74c3c) {
		t.Fatalf("embed mismatch: %+v", embed)
	}

	c.status = http.StatusInternalServerError
	if err := sender.Send(context.Background(), cfg, sample); err == nil {
		t.Fatalf("expected error on 500")
	}
}

func TestEmailSend(t *testing.T) {
	srv, c := newServer(t, http.StatusAccepted)
	defer srv.Close()

	sender := NewEmail(nil, srv.URL+"/send", "KEY", "alerts@example.com")
	cfg := model.ChannelConfig{Kind: model.ChannelEmail, Settings: map[string]string{"address": "user@example.com"}}
	if err := sender.Send(context.Background(), cfg, sample); err != nil {
		t.Fatalf("send: %v", err)
	}
	if c.auth != "Bearer KEY" {
		t.Fatalf("auth mismatch: %s", c.auth)
	}
	if c.body["to"] != "user@example.com" || c.body["subject"] != sample.Title || c.body["from"] != "alerts@example.com" {
		t.Fatalf("body mismatch: %+v", c.body)
	}
}

func TestSendersCoverExternalChannels(t *testing.T) {
	senders := Senders(Config{})
	for _, kind := range model.ExternalChannels {
		if _, ok := senders[kind]; !ok {
			t.Fatalf("missing sender for %s", kind)
		}
	}
}
