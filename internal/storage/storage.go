// Package storage defines the persistence contracts used by the notification and automation pipelines.
package storage

import (
	"context"
	"errors"
	"time"

	"eventRelay/internal/model"
)

var (
	// ErrNotFound is returned when a keyed lookup has no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateSubscription is returned when an active subscription already covers the same scope.
	ErrDuplicateSubscription = errors.New("duplicate active subscription")
)

// SubscriptionStore reads and writes event subscriptions.
type SubscriptionStore interface {
	// ActiveSubscriptions returns active subscriptions for chainID and eventType whose contract
	// address equals contractAddress (case-insensitive) or is a wildcard.
	ActiveSubscriptions(ctx context.Context, chainID uint64, eventType, contractAddress string) ([]model.EventSubscription, error)
	SaveSubscription(ctx context.Context, sub model.EventSubscription) error
}

// RuleStore reads automation rules and records executions.
type RuleStore interface {
	// RuleOwners returns the distinct users holding active rules on chainID.
	RuleOwners(ctx context.Context, chainID uint64) ([]string, error)
	ActiveRules(ctx context.Context, userID string, chainID uint64) ([]model.AutomationRule, error)
	GetRule(ctx context.Context, ruleID string) (model.AutomationRule, error)
	SaveRule(ctx context.Context, rule model.AutomationRule) error
	// RecordExecution atomically increments execution_count, sets last_executed_at and
	// returns the new count.
	RecordExecution(ctx context.Context, ruleID string, at time.Time) (uint64, error)
}

// NotificationStore persists notifications.
type NotificationStore interface {
	SaveNotification(ctx context.Context, n model.Notification) (string, error)
	ListNotifications(ctx context.Context, userID string, limit int) ([]model.Notification, error)
}

// ChannelStore holds per-user external channel configuration.
type ChannelStore interface {
	// ChannelConfig returns ErrNotFound when the user has no configuration for kind.
	ChannelConfig(ctx context.Context, userID string, kind model.ChannelKind) (model.ChannelConfig, error)
	SaveChannelConfig(ctx context.Context, cfg model.ChannelConfig) error
}

// ExecutionLog is an append-only audit trail of rule execution attempts.
type ExecutionLog interface {
	AppendExecution(ctx context.Context, entry model.ExecutionLogEntry) error
}

// Store is the full persistence surface.
type Store interface {
	SubscriptionStore
	RuleStore
	NotificationStore
	ChannelStore
	ExecutionLog
	Close()
}
