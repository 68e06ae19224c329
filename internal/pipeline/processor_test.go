package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"eventRelay/internal/automation"
	"eventRelay/internal/model"
	"eventRelay/internal/notify"
	"eventRelay/internal/storage/memory"
	"eventRelay/internal/subscription"
)

type stubSubscriber struct {
	name  string
	calls int32
	err   error
	panic bool
}

func (s *stubSubscriber) Name() string { return s.name }

func (s *stubSubscriber) OnEvent(context.Context, model.BlockchainEvent) error {
	atomic.AddInt32(&s.calls, 1)
	if s.panic {
		panic("subscriber exploded")
	}
	return s.err
}

func TestOnEventIsolatesSubscribers(t *testing.T) {
	failing := &stubSubscriber{name: "failing", err: errors.New("store down")}
	crashing := &stubSubscriber{name: "crashing", panic: true}
	healthy := &stubSubscriber{name: "healthy"}
	p := NewProcessor(nil, nil, failing, crashing, healthy)

	err := p.OnEvent(context.Background(), model.BlockchainEvent{EventType: "Transfer"})
	if err == nil {
		t.Fatalf("expected joined error")
	}
	for _, s := range []*stubSubscriber{failing, crashing, healthy} {
		if atomic.LoadInt32(&s.calls) != 1 {
			t.Fatalf("%s calls mismatch: %d", s.name, s.calls)
		}
	}
}

type nopPresence struct{}

func (nopPresence) IsOnline(string) bool { return false }

func (nopPresence) Publish(string, string, interface{}) {}

func newPipelines(store *memory.Store) *Processor {
	composer := notify.NewComposer()
	publisher := notify.NewPublisher(store, notify.NewDispatcher(notify.DispatchConfig{}, nopPresence{}, store, nil, nil, nil), nil)
	subs := subscription.NewService(subscription.NewMatcher(store, nil), composer, publisher, 4, nil, nil)
	registry := automation.DefaultRegistry(composer, publisher)
	registry.Register(model.ActionTransfer, automation.HandlerFunc(func(context.Context, model.AutomationRule, map[string]model.Value, model.BlockchainEvent) (model.ActionResult, error) {
		return model.ActionResult{Success: true}, nil
	}))
	executor := automation.NewExecutor(automation.ExecutorConfig{}, registry, store, store, composer, publisher, nil, nil)
	rules := automation.NewService(store, automation.NewMatcher(store, nil), executor, 4, nil, nil)
	return NewProcessor(nil, nil, subs, rules)
}

func countByType(ns []model.Notification) (results, others int) {
	for _, n := range ns {
		if n.EventType == notify.ResultEventType {
			results++
		} else {
			others++
		}
	}
	return results, others
}

func TestRuleOnlyEventProducesOnlyResultNotification(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	if err := store.SaveRule(ctx, model.AutomationRule{
		ID: "r1", UserID: "u1", ChainID: 1, IsActive: true, ActionType: model.ActionTransfer,
		TriggerConditions: model.TriggerConditions{EventType: "Transfer"},
	}); err != nil {
		t.Fatalf("save rule: %v", err)
	}

	if err := newPipelines(store).OnEvent(ctx, model.BlockchainEvent{ChainID: 1, EventType: "Transfer"}); err != nil {
		t.Fatalf("on event: %v", err)
	}
	ns, _ := store.ListNotifications(ctx, "u1", 0)
	results, others := countByType(ns)
	if results != 1 || others != 0 {
		t.Fatalf("notification mix mismatch: results=%d others=%d", results, others)
	}
}

func TestSubscriptionOnlyEventProducesNoResultNotification(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	if err := store.SaveSubscription(ctx, model.EventSubscription{
		ID: "s1", UserID: "u1", ChainID: 1, EventType: "Transfer", IsActive: true,
	}); err != nil {
		t.Fatalf("save subscription: %v", err)
	}

	if err := newPipelines(store).OnEvent(ctx, model.BlockchainEvent{ChainID: 1, EventType: "Transfer"}); err != nil {
		t.Fatalf("on event: %v", err)
	}
	ns, _ := store.ListNotifications(ctx, "u1", 0)
	results, others := countByType(ns)
	if results != 0 || others != 1 {
		t.Fatalf("notification mix mismatch: results=%d others=%d", results, others)
	}
}
