package model

import "strings"

// ChannelKind names a delivery surface.
type ChannelKind string

const (
	ChannelPresence ChannelKind = "presence"
	ChannelTelegram ChannelKind = "telegram"
	ChannelDiscord  ChannelKind = "discord"
	ChannelEmail    ChannelKind = "email"
)

// ExternalChannels lists the external channels in dispatch order.
var ExternalChannels = []ChannelKind{ChannelTelegram, ChannelDiscord, ChannelEmail}

// ParseChannelKind normalizes a channel name.
func ParseChannelKind(input string) (ChannelKind, bool) {
	kind := ChannelKind(strings.ToLower(strings.TrimSpace(input)))
	switch kind {
	case ChannelPresence, ChannelTelegram, ChannelDiscord, ChannelEmail:
		return kind, true
	default:
		return "", false
	}
}

// ChannelConfig is a user's configuration for one external channel.
// Settings keys: telegram "chat_id", discord "webhook_url", email "address".
type ChannelConfig struct {
	UserID   string            `json:"user_id"`
	Kind     ChannelKind       `json:"kind"`
	IsActive bool              `json:"is_active"`
	Settings map[string]string `json:"settings"`
}

// Setting returns a trimmed setting value.
func (c ChannelConfig) Setting(key string) string {
	if c.Settings == nil {
		return ""
	}
	return strings.TrimSpace(c.Settings[key])
}
