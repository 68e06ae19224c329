package channel

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"eventRelay/internal/model"
)

const defaultTelegramAPI = "https://api.telegram.org"

// Telegram posts notifications through the Bot API sendMessage method.
type Telegram struct {
	client  *resty.Client
	token   string
	apiBase string
}

func NewTelegram(client *resty.Client, token, apiBase string) *Telegram {
	if client == nil {
		client = newClient()
	}
	if apiBase == "" {
		apiBase = defaultTelegramAPI
	}
	return &Telegram{client: client, token: token, apiBase: strings.TrimRight(apiBase, "/")}
}

func (t *Telegram) Send(ctx context.Context, cfg model.ChannelConfig, n model.Notification) error {
	if t.token == "" {
		return fmt.Errorf("%w: telegram bot token missing", ErrNotConfigured)
	}
	chatID, err := requireSetting(cfg, "chat_id")
	if err != nil {
		return err
	}
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"chat_id": chatID,
			"text":    plainText(n),
		}).
		Post(fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token))
	return checkResponse("telegram", resp, err)
}
