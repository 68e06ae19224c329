// Package subscription turns incoming events into notifications for subscribed users.
package subscription

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"eventRelay/internal/model"
	"eventRelay/internal/predicate"
	"eventRelay/internal/storage"
)

// Matcher selects the active subscriptions an event satisfies.
type Matcher struct {
	store  storage.SubscriptionStore
	logger *zap.Logger
}

func NewMatcher(store storage.SubscriptionStore, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{store: store, logger: logger}
}

// Match returns subscriptions scoped to the event whose filter conditions hold.
// Condition errors are logged and count as non-match.
func (m *Matcher) Match(ctx context.Context, event model.BlockchainEvent) ([]model.EventSubscription, error) {
	candidates, err := m.store.ActiveSubscriptions(ctx, event.ChainID, event.EventType, event.ContractAddress)
	if err != nil {
		return nil, fmt.Errorf("load subscriptions: %w", err)
	}
	return lo.Filter(candidates, func(sub model.EventSubscription, _ int) bool {
		matched, err := predicate.Check(sub.FilterConditions, event.Payload)
		if err != nil {
			m.logger.Debug("filter condition rejected",
				zap.String("subscription_id", sub.ID),
				zap.String("user_id", sub.UserID),
				zap.Error(err),
			)
			return false
		}
		return matched
	}), nil
}
