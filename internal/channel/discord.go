package channel

import (
	"context"

	"github.com/go-resty/resty/v2"

	"eventRelay/internal/model"
)

// Discord posts an embed to the user's webhook URL.
type Discord struct {
	client *resty.Client
}

func NewDiscord(client *resty.Client) *Discord {
	if client == nil {
		client = newClient()
	}
	return &Discord{client: client}
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp,omitempty"`
}

var priorityColor = map[model.Priority]int{
	model.PriorityLow:    0x95a5a6,
	model.PriorityMedium: 0x3498db,
	model.PriorityHigh:   0xe74c3c,
}

func (d *Discord) Send(ctx context.Context, cfg model.ChannelConfig, n model.Notification) error {
	webhook, err := requireSetting(cfg, "webhook_url")
	if err != nil {
		return err
	}
	embed := discordEmbed{
		Title:       n.Title,
		Description: n.Message,
		Color:       priorityColor[n.Priority],
	}
	if !n.CreatedAt.IsZero() {
		embed.Timestamp = n.CreatedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	resp, err := d.client.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{"embeds": []discordEmbed{embed}}).
		Post(webhook)
	return checkResponse("discord", resp, err)
}
