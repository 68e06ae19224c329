// Package memory is an in-process Store used for development runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"eventRelay/internal/model"
	"eventRelay/internal/storage"
)

// Store keeps every entity in maps guarded by a single RWMutex.
type Store struct {
	mu            sync.RWMutex
	subscriptions map[string]model.EventSubscription
	rules         map[string]model.AutomationRule
	notifications []model.Notification
	channels      map[string]model.ChannelConfig
	executions    []model.ExecutionLogEntry
}

var _ storage.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		subscriptions: make(map[string]model.EventSubscription),
		rules:         make(map[string]model.AutomationRule),
		channels:      make(map[string]model.ChannelConfig),
	}
}

func (s *Store) Close() {}

func (s *Store) ActiveSubscriptions(_ context.Context, chainID uint64, eventType, contractAddress string) ([]model.EventSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.EventSubscription, 0)
	for _, sub := range s.subscriptions {
		if !sub.IsActive || sub.ChainID != chainID || sub.EventType != eventType {
			continue
		}
		if !sub.IsWildcard() && !strings.EqualFold(sub.ContractAddress, contractAddress) {
			continue
		}
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveSubscription inserts or replaces a subscription, rejecting a second active
// subscription for the same (user, smart account, contract, event type).
func (s *Store) SaveSubscription(_ context.Context, sub model.EventSubscription) error {
	if sub.ID == "" {
		return fmt.Errorf("subscription id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.IsActive {
		for id, existing := range s.subscriptions {
			if id == sub.ID || !existing.IsActive {
				continue
			}
			if existing.UserID == sub.UserID &&
				existing.SmartAccountID == sub.SmartAccountID &&
				strings.EqualFold(existing.ContractAddress, sub.ContractAddress) &&
				existing.EventType == sub.EventType {
				return storage.ErrDuplicateSubscription
			}
		}
	}
	s.subscriptions[sub.ID] = sub
	return nil
}

func (s *Store) RuleOwners(_ context.Context, chainID uint64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, rule := range s.rules {
		if !rule.IsActive || rule.ChainID != chainID {
			continue
		}
		if _, ok := seen[rule.UserID]; ok {
			continue
		}
		seen[rule.UserID] = struct{}{}
		out = append(out, rule.UserID)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) ActiveRules(_ context.Context, userID string, chainID uint64) ([]model.AutomationRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.AutomationRule, 0)
	for _, rule := range s.rules {
		if rule.IsActive && rule.UserID == userID && rule.ChainID == chainID {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetRule(_ context.Context, ruleID string) (model.AutomationRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rules[ruleID]
	if !ok {
		return model.AutomationRule{}, storage.ErrNotFound
	}
	return rule, nil
}

func (s *Store) SaveRule(_ context.Context, rule model.AutomationRule) error {
	if rule.ID == "" {
		return fmt.Errorf("rule id required")
	}
	s.mu.Lock()
	s.rules[rule.ID] = rule
	s.mu.Unlock()
	return nil
}

func (s *Store) RecordExecution(_ context.Context, ruleID string, at time.Time) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rule, ok := s.rules[ruleID]
	if !ok {
		return 0, storage.ErrNotFound
	}
	rule.ExecutionCount++
	executedAt := at
	rule.LastExecutedAt = &executedAt
	s.rules[ruleID] = rule
	return rule.ExecutionCount, nil
}

func (s *Store) SaveNotification(_ context.Context, n model.Notification) (string, error) {
	if n.ID == "" {
		return "", fmt.Errorf("notification id required")
	}
	s.mu.Lock()
	s.notifications = append(s.notifications, n)
	s.mu.Unlock()
	return n.ID, nil
}

// ListNotifications returns the newest notifications first; limit <= 0 means all.
func (s *Store) ListNotifications(_ context.Context, userID string, limit int) ([]model.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Notification, 0)
	for i := len(s.notifications) - 1; i >= 0; i-- {
		n := s.notifications[i]
		if n.UserID != userID {
			continue
		}
		out = append(out, n)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) ChannelConfig(_ context.Context, userID string, kind model.ChannelKind) (model.ChannelConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.channels[channelKey(userID, kind)]
	if !ok {
		return model.ChannelConfig{}, storage.ErrNotFound
	}
	return cfg, nil
}

func (s *Store) SaveChannelConfig(_ context.Context, cfg model.ChannelConfig) error {
	s.mu.Lock()
	s.channels[channelKey(cfg.UserID, cfg.Kind)] = cfg
	s.mu.Unlock()
	return nil
}

func (s *Store) AppendExecution(_ context.Context, entry model.ExecutionLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.executions {
		if existing.RuleID == entry.RuleID && existing.AttemptSeq == entry.AttemptSeq {
			return fmt.Errorf("execution %s/%d already recorded", entry.RuleID, entry.AttemptSeq)
		}
	}
	s.executions = append(s.executions, entry)
	return nil
}

// Executions returns the recorded execution log for a rule in append order.
func (s *Store) Executions(ruleID string) []model.ExecutionLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.ExecutionLogEntry, 0)
	for _, entry := range s.executions {
		if entry.RuleID == ruleID {
			out = append(out, entry)
		}
	}
	return out
}

func channelKey(userID string, kind model.ChannelKind) string {
	return userID + "|" + string(kind)
}
