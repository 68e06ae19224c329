package model

// ManualTriggerEventType is the event type synthesized for a manual rule trigger without a test event.
const ManualTriggerEventType = "manual_trigger"

// BlockchainEvent is a normalized on-chain occurrence supplied by an indexer or feed.
type BlockchainEvent struct {
	ChainID         uint64  `json:"chain_id"`
	ContractAddress string  `json:"contract_address"`
	EventType       string  `json:"event_type"`
	TransactionHash string  `json:"transaction_hash"`
	BlockNumber     uint64  `json:"block_number"`
	Timestamp       uint64  `json:"timestamp"`
	Payload         Payload `json:"payload"`
}
