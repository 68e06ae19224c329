package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"eventRelay/internal/metrics"
	"eventRelay/internal/model"
	"eventRelay/internal/storage"
)

// ErrRuleNotFound is returned by TriggerRule when the rule does not exist or belongs to another user.
var ErrRuleNotFound = fmt.Errorf("rule %w", storage.ErrNotFound)

// TriggerResult is the caller-visible outcome of a manual trigger.
type TriggerResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Service runs the automation pipeline for incoming events and manual triggers.
type Service struct {
	rules    storage.RuleStore
	matcher  *Matcher
	executor *Executor
	limit    int
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewService(rules storage.RuleStore, matcher *Matcher, executor *Executor, fanoutLimit int, logger *zap.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fanoutLimit <= 0 {
		fanoutLimit = 16
	}
	return &Service{
		rules:    rules,
		matcher:  matcher,
		executor: executor,
		limit:    fanoutLimit,
		logger:   logger,
		metrics:  m,
	}
}

func (s *Service) Name() string {
	return "automation"
}

// OnEvent matches the event against the rules of every user with active rules on the
// event's chain and executes each matched rule in its own branch.
func (s *Service) OnEvent(ctx context.Context, event model.BlockchainEvent) error {
	owners, err := s.rules.RuleOwners(ctx, event.ChainID)
	if err != nil {
		return fmt.Errorf("load rule owners: %w", err)
	}

	var (
		mu   sync.Mutex
		errs error
	)
	collect := func(err error) {
		mu.Lock()
		errs = multierr.Append(errs, err)
		mu.Unlock()
	}

	g := new(errgroup.Group)
	g.SetLimit(s.limit)
	for _, userID := range owners {
		rules, err := s.matcher.Match(ctx, event, userID)
		if err != nil {
			s.logger.Error("match rules failed", zap.String("user_id", userID), zap.Error(err))
			collect(err)
			continue
		}
		for _, rule := range rules {
			rule := rule
			g.Go(func() error {
				if err := s.execute(ctx, rule, event); err != nil {
					collect(err)
				}
				return nil
			})
		}
	}
	_ = g.Wait()
	return errs
}

func (s *Service) execute(ctx context.Context, rule model.AutomationRule, event model.BlockchainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rule %s panic: %v", rule.ID, r)
		}
	}()
	if _, err := s.executor.Execute(ctx, rule, event); err != nil {
		return fmt.Errorf("rule %s: %w", rule.ID, err)
	}
	return nil
}

// TriggerRule executes a rule on demand, bypassing trigger matching. Without a test event a
// manual_trigger event with an empty payload is synthesized on the rule's chain.
func (s *Service) TriggerRule(ctx context.Context, ruleID, userID string, testEvent *model.BlockchainEvent) (TriggerResult, error) {
	rule, err := s.rules.GetRule(ctx, ruleID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return TriggerResult{}, ErrRuleNotFound
		}
		return TriggerResult{}, fmt.Errorf("load rule %s: %w", ruleID, err)
	}
	if rule.UserID != userID {
		return TriggerResult{}, ErrRuleNotFound
	}

	event := model.BlockchainEvent{
		ChainID:   rule.ChainID,
		EventType: model.ManualTriggerEventType,
		Timestamp: uint64(time.Now().Unix()),
		Payload:   model.Payload{},
	}
	if testEvent != nil {
		event = *testEvent
		if event.Payload == nil {
			event.Payload = model.Payload{}
		}
	}

	s.logger.Info("manual trigger", zap.String("rule_id", rule.ID), zap.String("user_id", userID), zap.String("event_type", event.EventType))
	result, err := s.executor.Execute(ctx, rule, event)
	if err != nil {
		if errors.Is(err, ErrNotRecorded) {
			return TriggerResult{}, err
		}
		s.logger.Warn("manual trigger bookkeeping incomplete", zap.String("rule_id", rule.ID), zap.Error(err))
	}
	if !result.Success {
		return TriggerResult{Success: false, Message: "Rule execution failed: " + result.ErrorMessage}, nil
	}
	return TriggerResult{Success: true, Message: "Rule execution succeeded"}, nil
}
