package model

import "time"

// ActionType selects the handler executed for a matched rule.
type ActionType string

const (
	ActionTransfer ActionType = "transfer"
	ActionSwap     ActionType = "swap"
	ActionStake    ActionType = "stake"
	ActionApprove  ActionType = "approve"
	ActionNotify   ActionType = "notify"
)

// AutomationRule runs an action when a matching event arrives.
type AutomationRule struct {
	ID                string            `json:"id"`
	UserID            string            `json:"user_id"`
	SmartAccountID    string            `json:"smart_account_id"`
	RuleName          string            `json:"rule_name"`
	TriggerEventType  string            `json:"trigger_event_type"`
	TriggerConditions TriggerConditions `json:"trigger_conditions"`
	ActionType        ActionType        `json:"action_type"`
	ActionParams      map[string]Value  `json:"action_params,omitempty"`
	ChainID           uint64            `json:"chain_id"`
	IsActive          bool              `json:"is_active"`
	ExecutionCount    uint64            `json:"execution_count"`
	LastExecutedAt    *time.Time        `json:"last_executed_at,omitempty"`
}

// ActionResult is returned by an action handler.
type ActionResult struct {
	Success bool             `json:"success"`
	Payload map[string]Value `json:"payload,omitempty"`
	Message string           `json:"message,omitempty"`
}

// ExecutionResult is the outcome of one execution attempt.
type ExecutionResult struct {
	RuleID        string           `json:"rule_id"`
	Success       bool             `json:"success"`
	ResultPayload map[string]Value `json:"result_payload,omitempty"`
	ErrorMessage  string           `json:"error_message,omitempty"`
}

// ExecutionLogEntry is the append-only audit record of an attempt, keyed by (RuleID, AttemptSeq).
type ExecutionLogEntry struct {
	ID              string           `json:"id"`
	RuleID          string           `json:"rule_id"`
	UserID          string           `json:"user_id"`
	AttemptSeq      uint64           `json:"attempt_seq"`
	ActionType      ActionType       `json:"action_type"`
	EventType       string           `json:"event_type"`
	TransactionHash string           `json:"transaction_hash,omitempty"`
	Success         bool             `json:"success"`
	ResultPayload   map[string]Value `json:"result_payload,omitempty"`
	ErrorMessage    string           `json:"error_message,omitempty"`
	ExecutedAt      time.Time        `json:"executed_at"`
}
