// Package automation matches automation rules against events, runs their actions and
// records every attempt.
package automation

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"eventRelay/internal/model"
	"eventRelay/internal/predicate"
	"eventRelay/internal/storage"
)

// Matcher selects a user's active rules whose trigger conditions an event satisfies.
type Matcher struct {
	store  storage.RuleStore
	logger *zap.Logger
}

func NewMatcher(store storage.RuleStore, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{store: store, logger: logger}
}

func (m *Matcher) Match(ctx context.Context, event model.BlockchainEvent, userID string) ([]model.AutomationRule, error) {
	rules, err := m.store.ActiveRules(ctx, userID, event.ChainID)
	if err != nil {
		return nil, fmt.Errorf("load rules for %s: %w", userID, err)
	}
	return lo.Filter(rules, func(rule model.AutomationRule, _ int) bool {
		trigger := rule.TriggerConditions
		if trigger.EventType == "" {
			trigger.EventType = rule.TriggerEventType
		}
		matched, err := Triggered(trigger, event)
		if err != nil {
			m.logger.Debug("trigger condition rejected",
				zap.String("rule_id", rule.ID),
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
		return matched
	}), nil
}

// Triggered reports whether event satisfies trigger. Empty event type and contract address
// are not checked; the contract address compares case-insensitively.
func Triggered(trigger model.TriggerConditions, event model.BlockchainEvent) (bool, error) {
	if trigger.EventType != "" && trigger.EventType != event.EventType {
		return false, nil
	}
	if trigger.ContractAddress != "" && !strings.EqualFold(trigger.ContractAddress, event.ContractAddress) {
		return false, nil
	}
	return predicate.Check(trigger.Conditions, event.Payload)
}
