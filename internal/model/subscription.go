package model

import "time"

// EventSubscription selects the events that produce notifications for a user.
// An empty ContractAddress matches any contract.
type EventSubscription struct {
	ID                   string        `json:"id"`
	UserID               string        `json:"user_id"`
	SmartAccountID       string        `json:"smart_account_id,omitempty"`
	ContractAddress      string        `json:"contract_address,omitempty"`
	EventType            string        `json:"event_type"`
	ChainID              uint64        `json:"chain_id"`
	FilterConditions     ConditionMap  `json:"filter_conditions,omitempty"`
	NotificationChannels []ChannelKind `json:"notification_channels,omitempty"`
	IsActive             bool          `json:"is_active"`
	CreatedAt            time.Time     `json:"created_at"`
}

// IsWildcard reports whether the subscription matches every contract.
func (s EventSubscription) IsWildcard() bool {
	return s.ContractAddress == ""
}
