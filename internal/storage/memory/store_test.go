package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"eventRelay/internal/model"
	"eventRelay/internal/storage"
)

func TestActiveSubscriptionsScope(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	subs := []model.EventSubscription{
		{ID: "a", UserID: "u1", ChainID: 10143, EventType: "Transfer", ContractAddress: "0xC02A", IsActive: true},
		{ID: "b", UserID: "u2", ChainID: 10143, EventType: "Transfer", IsActive: true},
		{ID: "c", UserID: "u3", ChainID: 10143, EventType: "Transfer", ContractAddress: "0xdead", IsActive: true},
		{ID: "d", UserID: "u4", ChainID: 1, EventType: "Transfer", IsActive: true},
		{ID: "e", UserID: "u5", ChainID: 10143, EventType: "Approval", IsActive: true},
		{ID: "f", UserID: "u6", ChainID: 10143, EventType: "Transfer", IsActive: false},
	}
	for _, sub := range subs {
		if err := store.SaveSubscription(ctx, sub); err != nil {
			t.Fatalf("save %s: %v", sub.ID, err)
		}
	}

	got, err := store.ActiveSubscriptions(ctx, 10143, "Transfer", "0xc02a")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("scope mismatch: %+v", got)
	}
}

func TestSaveSubscriptionRejectsActiveDuplicate(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	first := model.EventSubscription{ID: "a", UserID: "u1", EventType: "Transfer", ContractAddress: "0xabc", IsActive: true}
	if err := store.SaveSubscription(ctx, first); err != nil {
		t.Fatalf("save first: %v", err)
	}

	dup := first
	dup.ID = "b"
	if err := store.SaveSubscription(ctx, dup); !errors.Is(err, storage.ErrDuplicateSubscription) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	dup.IsActive = false
	if err := store.SaveSubscription(ctx, dup); err != nil {
		t.Fatalf("inactive duplicate should be allowed: %v", err)
	}
}

func TestRecordExecutionConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	if err := store.SaveRule(ctx, model.AutomationRule{ID: "r1", UserID: "u1", IsActive: true}); err != nil {
		t.Fatalf("save rule: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.RecordExecution(ctx, "r1", time.Now()); err != nil {
				t.Errorf("record: %v", err)
			}
		}()
	}
	wg.Wait()

	rule, err := store.GetRule(ctx, "r1")
	if err != nil {
		t.Fatalf("get rule: %v", err)
	}
	if rule.ExecutionCount != 50 {
		t.Fatalf("execution count mismatch: %d", rule.ExecutionCount)
	}
	if rule.LastExecutedAt == nil {
		t.Fatalf("last executed at not set")
	}

	if _, err := store.RecordExecution(ctx, "missing", time.Now()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRuleOwnersDistinct(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	rules := []model.AutomationRule{
		{ID: "r1", UserID: "u2", ChainID: 1, IsActive: true},
		{ID: "r2", UserID: "u2", ChainID: 1, IsActive: true},
		{ID: "r3", UserID: "u1", ChainID: 1, IsActive: true},
		{ID: "r4", UserID: "u3", ChainID: 1, IsActive: false},
		{ID: "r5", UserID: "u4", ChainID: 2, IsActive: true},
	}
	for _, rule := range rules {
		if err := store.SaveRule(ctx, rule); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	owners, err := store.RuleOwners(ctx, 1)
	if err != nil {
		t.Fatalf("owners: %v", err)
	}
	if len(owners) != 2 || owners[0] != "u1" || owners[1] != "u2" {
		t.Fatalf("owners mismatch: %v", owners)
	}
}
