// Package channel implements the external notification senders.
package channel

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"eventRelay/internal/model"
	"eventRelay/internal/notify"
)

// ErrNotConfigured is returned when a sender or a user's channel settings lack a required value.
var ErrNotConfigured = errors.New("channel not configured")

// Config holds sender credentials and endpoints.
type Config struct {
	TelegramBotToken string
	TelegramAPIBase  string
	EmailEndpoint    string
	EmailAPIKey      string
	EmailFrom        string
}

func newClient() *resty.Client {
	return resty.New().
		SetTimeout(15*time.Second).
		SetHeader("Content-Type", "application/json")
}

// Senders builds a sender for every external channel kind.
func Senders(cfg Config) map[model.ChannelKind]notify.Sender {
	client := newClient()
	return map[model.ChannelKind]notify.Sender{
		model.ChannelTelegram: NewTelegram(client, cfg.TelegramBotToken, cfg.TelegramAPIBase),
		model.ChannelDiscord:  NewDiscord(client),
		model.ChannelEmail:    NewEmail(client, cfg.EmailEndpoint, cfg.EmailAPIKey, cfg.EmailFrom),
	}
}

func requireSetting(cfg model.ChannelConfig, key string) (string, error) {
	v := cfg.Setting(key)
	if v == "" {
		return "", fmt.Errorf("%w: %s %s missing", ErrNotConfigured, cfg.Kind, key)
	}
	return v, nil
}

// checkResponse drops the request URL from transport errors; Telegram carries the bot token in it.
func checkResponse(channel string, resp *resty.Response, err error) error {
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("%s request: %w", channel, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%s responded %d: %s", channel, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return nil
}

func plainText(n model.Notification) string {
	return n.Title + "\n" + n.Message
}
