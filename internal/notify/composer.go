package notify

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"eventRelay/internal/model"
)

// ResultEventType is the event type carried by automation result notifications.
const ResultEventType = "automation_execution"

// DefaultPriority is assigned to every subscription notification.
const DefaultPriority = model.PriorityMedium

type template struct {
	title   func(model.BlockchainEvent) string
	summary func(model.BlockchainEvent) string
}

var templates = map[string]template{
	"Transfer": {
		title: func(model.BlockchainEvent) string { return "Token transfer detected" },
		summary: func(e model.BlockchainEvent) string {
			return fmt.Sprintf("%s transferred from %s to %s",
				field(e, "value"), field(e, "from"), field(e, "to"))
		},
	},
	"Approval": {
		title: func(model.BlockchainEvent) string { return "Token approval detected" },
		summary: func(e model.BlockchainEvent) string {
			return fmt.Sprintf("%s approved %s to spend %s",
				field(e, "owner"), field(e, "spender"), field(e, "value"))
		},
	},
	"Swap": {
		title: func(model.BlockchainEvent) string { return "Swap executed" },
		summary: func(e model.BlockchainEvent) string {
			return fmt.Sprintf("Swap by %s", field(e, "sender"))
		},
	},
	"Deposit": {
		title: func(model.BlockchainEvent) string { return "Deposit received" },
		summary: func(e model.BlockchainEvent) string {
			return fmt.Sprintf("%s deposited %s", field(e, "dst"), field(e, "wad"))
		},
	},
	"Withdrawal": {
		title: func(model.BlockchainEvent) string { return "Withdrawal processed" },
		summary: func(e model.BlockchainEvent) string {
			return fmt.Sprintf("%s withdrew %s", field(e, "src"), field(e, "wad"))
		},
	},
	"UserOperationEvent": {
		title: func(model.BlockchainEvent) string { return "Smart account operation executed" },
		summary: func(e model.BlockchainEvent) string {
			return fmt.Sprintf("Operation from %s, success=%s", field(e, "sender"), field(e, "success"))
		},
	},
}

// Composer builds notifications from matched subscriptions and rule outcomes.
type Composer struct {
	now   func() time.Time
	newID func() string
}

func NewComposer() *Composer {
	return &Composer{
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.NewString() },
	}
}

// Title returns the deterministic title for an event type.
func Title(event model.BlockchainEvent) string {
	if tpl, ok := templates[event.EventType]; ok {
		return tpl.title(event)
	}
	return fmt.Sprintf("New event: %s", event.EventType)
}

// Message returns the deterministic message for an event, always ending with the contract
// address and transaction hash.
func Message(event model.BlockchainEvent) string {
	trace := fmt.Sprintf("contract %s, tx %s", event.ContractAddress, event.TransactionHash)
	if tpl, ok := templates[event.EventType]; ok {
		return tpl.summary(event) + " (" + trace + ")"
	}
	return fmt.Sprintf("%s observed on %s", event.EventType, trace)
}

// Compose builds the notification for one matched subscription.
func (c *Composer) Compose(sub model.EventSubscription, event model.BlockchainEvent) model.Notification {
	return model.Notification{
		ID:             c.newID(),
		UserID:         sub.UserID,
		SubscriptionID: sub.ID,
		EventType:      event.EventType,
		Priority:       DefaultPriority,
		Title:          Title(event),
		Message:        Message(event),
		Metadata:       eventMetadata(event),
		CreatedAt:      c.now(),
	}
}

// ComposeResult builds the notification reporting one rule execution attempt.
func (c *Composer) ComposeResult(rule model.AutomationRule, event model.BlockchainEvent, result model.ExecutionResult) model.Notification {
	title := "Rule execution succeeded"
	priority := model.PriorityMedium
	message := fmt.Sprintf("Rule %q ran %s on %s", rule.RuleName, rule.ActionType, event.EventType)
	if !result.Success {
		title = "Rule execution failed: " + result.ErrorMessage
		priority = model.PriorityHigh
		message = fmt.Sprintf("Rule %q failed to run %s on %s: %s",
			rule.RuleName, rule.ActionType, event.EventType, result.ErrorMessage)
	}

	metadata := eventMetadata(event)
	metadata["rule_id"] = model.String(rule.ID)
	metadata["action_type"] = model.String(string(rule.ActionType))
	metadata["success"] = model.Bool(result.Success)
	if len(result.ResultPayload) > 0 {
		metadata["result"] = model.Map(result.ResultPayload)
	}
	if result.ErrorMessage != "" {
		metadata["error"] = model.String(result.ErrorMessage)
	}

	return model.Notification{
		ID:        c.newID(),
		UserID:    rule.UserID,
		EventType: ResultEventType,
		Priority:  priority,
		Title:     title,
		Message:   message,
		Metadata:  metadata,
		CreatedAt: c.now(),
	}
}

// ComposeCustom builds a free-form notification, used by the notify action.
func (c *Composer) ComposeCustom(userID, eventType, title, message string, metadata map[string]model.Value) model.Notification {
	if metadata == nil {
		metadata = make(map[string]model.Value)
	}
	return model.Notification{
		ID:        c.newID(),
		UserID:    userID,
		EventType: eventType,
		Priority:  DefaultPriority,
		Title:     title,
		Message:   message,
		Metadata:  metadata,
		CreatedAt: c.now(),
	}
}

func eventMetadata(event model.BlockchainEvent) map[string]model.Value {
	payload := make(map[string]model.Value, len(event.Payload))
	for k, v := range event.Payload {
		payload[k] = v
	}
	return map[string]model.Value{
		"chain_id":         model.Number(strconv.FormatUint(event.ChainID, 10)),
		"contract_address": model.String(event.ContractAddress),
		"transaction_hash": model.String(event.TransactionHash),
		"block_number":     model.Number(strconv.FormatUint(event.BlockNumber, 10)),
		"payload":          model.Map(payload),
	}
}

func field(event model.BlockchainEvent, name string) string {
	v := event.Payload.Get(name)
	if v.IsUndefined() {
		return "?"
	}
	return v.String()
}
