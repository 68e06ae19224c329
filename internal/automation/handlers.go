package automation

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"eventRelay/internal/model"
	"eventRelay/internal/notify"
)

// ErrUnknownAction is returned when no handler is registered for a rule's action type.
var ErrUnknownAction = errors.New("unknown action type")

// ActionHandler performs the action of a matched rule.
type ActionHandler interface {
	Execute(ctx context.Context, rule model.AutomationRule, params map[string]model.Value, event model.BlockchainEvent) (model.ActionResult, error)
}

// HandlerFunc adapts a function to ActionHandler.
type HandlerFunc func(ctx context.Context, rule model.AutomationRule, params map[string]model.Value, event model.BlockchainEvent) (model.ActionResult, error)

func (f HandlerFunc) Execute(ctx context.Context, rule model.AutomationRule, params map[string]model.Value, event model.BlockchainEvent) (model.ActionResult, error) {
	return f(ctx, rule, params, event)
}

// Registry maps action types to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[model.ActionType]ActionHandler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[model.ActionType]ActionHandler)}
}

func (r *Registry) Register(action model.ActionType, handler ActionHandler) {
	r.mu.Lock()
	r.handlers[action] = handler
	r.mu.Unlock()
}

func (r *Registry) Handler(action model.ActionType) (ActionHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[action]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return handler, nil
}

// DefaultRegistry registers the built-in handlers. The on-chain actions validate their
// parameters and queue the interaction; notify persists and pushes a notification.
func DefaultRegistry(composer *notify.Composer, publisher *notify.Publisher) *Registry {
	r := NewRegistry()
	r.Register(model.ActionTransfer, HandlerFunc(transfer))
	r.Register(model.ActionSwap, HandlerFunc(swap))
	r.Register(model.ActionStake, HandlerFunc(stake))
	r.Register(model.ActionApprove, HandlerFunc(approve))
	r.Register(model.ActionNotify, &NotifyHandler{composer: composer, publisher: publisher})
	return r
}

func transfer(ctx context.Context, rule model.AutomationRule, params map[string]model.Value, _ model.BlockchainEvent) (model.ActionResult, error) {
	to, err := addressParam(params, "to")
	if err != nil {
		return model.ActionResult{}, err
	}
	amount, err := amountParam(params, "amount")
	if err != nil {
		return model.ActionResult{}, err
	}
	return queued(ctx, rule, map[string]model.Value{
		"to":     model.String(to),
		"amount": model.Number(amount),
	})
}

func swap(ctx context.Context, rule model.AutomationRule, params map[string]model.Value, _ model.BlockchainEvent) (model.ActionResult, error) {
	tokenIn, err := addressParam(params, "tokenIn")
	if err != nil {
		return model.ActionResult{}, err
	}
	tokenOut, err := addressParam(params, "tokenOut")
	if err != nil {
		return model.ActionResult{}, err
	}
	if strings.EqualFold(tokenIn, tokenOut) {
		return model.ActionResult{}, fmt.Errorf("tokenIn and tokenOut must differ")
	}
	amountIn, err := amountParam(params, "amountIn")
	if err != nil {
		return model.ActionResult{}, err
	}
	return queued(ctx, rule, map[string]model.Value{
		"tokenIn":  model.String(tokenIn),
		"tokenOut": model.String(tokenOut),
		"amountIn": model.Number(amountIn),
	})
}

func stake(ctx context.Context, rule model.AutomationRule, params map[string]model.Value, _ model.BlockchainEvent) (model.ActionResult, error) {
	key := "validator"
	if _, ok := params[key]; !ok {
		key = "pool"
	}
	target, err := addressParam(params, key)
	if err != nil {
		return model.ActionResult{}, err
	}
	amount, err := amountParam(params, "amount")
	if err != nil {
		return model.ActionResult{}, err
	}
	return queued(ctx, rule, map[string]model.Value{
		key:      model.String(target),
		"amount": model.Number(amount),
	})
}

func approve(ctx context.Context, rule model.AutomationRule, params map[string]model.Value, _ model.BlockchainEvent) (model.ActionResult, error) {
	token, err := addressParam(params, "token")
	if err != nil {
		return model.ActionResult{}, err
	}
	spender, err := addressParam(params, "spender")
	if err != nil {
		return model.ActionResult{}, err
	}
	amount, err := amountParam(params, "amount")
	if err != nil {
		return model.ActionResult{}, err
	}
	return queued(ctx, rule, map[string]model.Value{
		"token":   model.String(token),
		"spender": model.String(spender),
		"amount":  model.Number(amount),
	})
}

func queued(ctx context.Context, rule model.AutomationRule, payload map[string]model.Value) (model.ActionResult, error) {
	if err := ctx.Err(); err != nil {
		return model.ActionResult{}, err
	}
	payload["status"] = model.String("queued")
	payload["action"] = model.String(string(rule.ActionType))
	if rule.SmartAccountID != "" {
		payload["smartAccountId"] = model.String(rule.SmartAccountID)
	}
	return model.ActionResult{Success: true, Payload: payload}, nil
}

func addressParam(params map[string]model.Value, key string) (string, error) {
	v, ok := params[key]
	if !ok || v.Kind() != model.KindString {
		return "", fmt.Errorf("param %s: address required", key)
	}
	if !common.IsHexAddress(v.Text()) {
		return "", fmt.Errorf("param %s: invalid address %q", key, v.Text())
	}
	return strings.ToLower(common.HexToAddress(v.Text()).Hex()), nil
}

func amountParam(params map[string]model.Value, key string) (string, error) {
	v, ok := params[key]
	if !ok || (v.Kind() != model.KindString && v.Kind() != model.KindNumber) {
		return "", fmt.Errorf("param %s: amount required", key)
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(v.Text()), 10)
	if !ok {
		return "", fmt.Errorf("param %s: invalid integer %q", key, v.Text())
	}
	if amount.Sign() <= 0 {
		return "", fmt.Errorf("param %s: must be positive", key)
	}
	return amount.String(), nil
}

// NotifyHandler persists a notification for the rule's user and pushes it over presence.
// Failures are reported through the result rather than as an error.
type NotifyHandler struct {
	composer  *notify.Composer
	publisher *notify.Publisher
}

func (h *NotifyHandler) Execute(ctx context.Context, rule model.AutomationRule, params map[string]model.Value, event model.BlockchainEvent) (model.ActionResult, error) {
	title := stringParam(params, "title", fmt.Sprintf("Automation: %s", rule.RuleName))
	message := stringParam(params, "message", fmt.Sprintf("Rule %q triggered by %s", rule.RuleName, event.EventType))

	n := h.composer.ComposeCustom(rule.UserID, event.EventType, title, message, map[string]model.Value{
		"rule_id":          model.String(rule.ID),
		"transaction_hash": model.String(event.TransactionHash),
	})
	id, err := h.publisher.Publish(ctx, n, nil)
	if err != nil {
		return model.ActionResult{Success: false, Message: err.Error()}, nil
	}
	return model.ActionResult{
		Success: true,
		Payload: map[string]model.Value{"notificationId": model.String(id)},
	}, nil
}

func stringParam(params map[string]model.Value, key, fallback string) string {
	v, ok := params[key]
	if !ok || v.Kind() != model.KindString || strings.TrimSpace(v.Text()) == "" {
		return fallback
	}
	return v.Text()
}
