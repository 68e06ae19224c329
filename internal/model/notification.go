package model

import "time"

// Priority ranks a notification.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Notification is a persisted user-visible message.
type Notification struct {
	ID             string           `json:"id"`
	UserID         string           `json:"user_id"`
	SubscriptionID string           `json:"subscription_id,omitempty"`
	EventType      string           `json:"event_type"`
	Priority       Priority         `json:"priority"`
	Title          string           `json:"title"`
	Message        string           `json:"message"`
	Metadata       map[string]Value `json:"metadata,omitempty"`
	IsRead         bool             `json:"is_read"`
	CreatedAt      time.Time        `json:"created_at"`
}
