package model

// ConditionMap maps a payload field to a literal (equality) or an operator object
// such as {"gt": "1000"}. An empty map matches every payload.
type ConditionMap map[string]Value

// TriggerConditions scopes an automation rule. Empty fields are not checked.
type TriggerConditions struct {
	EventType       string       `json:"event_type,omitempty"`
	ContractAddress string       `json:"contract_address,omitempty"`
	Conditions      ConditionMap `json:"conditions,omitempty"`
}
