// Package decode turns raw chain logs into normalized blockchain events.
package decode

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"eventRelay/internal/model"
)

// ErrUnsupported is returned for logs whose topic0 or topic layout is not known.
var ErrUnsupported = errors.New("unsupported log")

// Decoder decodes the events listed in EventsABI. When a ContractCaller is set, token events
// are enriched with the emitting token's symbol and decimals.
type Decoder struct {
	events  abi.ABI
	byTopic map[common.Hash]abi.Event
	caller  ContractCaller
	tokens  *TokenMetaCache
	logger  *zap.Logger
}

func NewDecoder(caller ContractCaller, logger *zap.Logger) (*Decoder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	events, err := EventsABI()
	if err != nil {
		return nil, fmt.Errorf("parse events abi: %w", err)
	}
	byTopic := make(map[common.Hash]abi.Event, len(events.Events))
	for _, event := range events.Events {
		byTopic[event.ID] = event
	}
	return &Decoder{
		events:  events,
		byTopic: byTopic,
		caller:  caller,
		tokens:  NewTokenMetaCache(),
		logger:  logger,
	}, nil
}

// Topics returns the topic0 hashes of every supported event.
func (d *Decoder) Topics() []common.Hash {
	out := make([]common.Hash, 0, len(d.byTopic))
	for topic := range d.byTopic {
		out = append(out, topic)
	}
	return out
}

// CanDecode checks if the topic0 is supported.
func (d *Decoder) CanDecode(topic0 string) bool {
	data, err := hexutil.Decode(topic0)
	if err != nil || len(data) != 32 {
		return false
	}
	_, ok := d.byTopic[common.BytesToHash(data)]
	return ok
}

// Decode converts a log into a BlockchainEvent. Addresses are lowercase hex and integers
// are decimal strings.
func (d *Decoder) Decode(ctx context.Context, log model.LogRecord) (model.BlockchainEvent, error) {
	if len(log.Topics) == 0 {
		return model.BlockchainEvent{}, fmt.Errorf("%w: missing topics", ErrUnsupported)
	}
	topics, err := parseTopicHashes(log.Topics)
	if err != nil {
		return model.BlockchainEvent{}, err
	}
	event, ok := d.byTopic[topics[0]]
	if !ok {
		return model.BlockchainEvent{}, fmt.Errorf("%w: topic0 %s", ErrUnsupported, log.Topics[0])
	}
	if !common.IsHexAddress(log.Address) {
		return model.BlockchainEvent{}, fmt.Errorf("invalid contract address: %s", log.Address)
	}

	indexed := indexedArguments(event.Inputs)
	if len(topics) != len(indexed)+1 {
		return model.BlockchainEvent{}, fmt.Errorf("%w: %s expects %d topics, got %d",
			ErrUnsupported, event.Name, len(indexed)+1, len(topics))
	}

	raw := make(map[string]interface{}, len(event.Inputs))
	if err := abi.ParseTopicsIntoMap(raw, indexed, topics[1:]); err != nil {
		return model.BlockchainEvent{}, fmt.Errorf("parse %s topics: %w", event.Name, err)
	}
	data, err := hexutil.Decode(log.Data)
	if err != nil {
		return model.BlockchainEvent{}, fmt.Errorf("invalid data: %w", err)
	}
	if err := event.Inputs.NonIndexed().UnpackIntoMap(raw, data); err != nil {
		return model.BlockchainEvent{}, fmt.Errorf("unpack %s: %w", event.Name, err)
	}

	payload := make(model.Payload, len(raw)+2)
	for name, value := range raw {
		payload[name] = toValue(value)
	}

	contract := common.HexToAddress(log.Address)
	if event.Name == "Transfer" || event.Name == "Approval" {
		d.attachTokenMeta(ctx, contract, payload)
	}

	return model.BlockchainEvent{
		ChainID:         log.ChainID,
		ContractAddress: strings.ToLower(contract.Hex()),
		EventType:       event.Name,
		TransactionHash: strings.ToLower(log.TxHash),
		BlockNumber:     log.BlockNumber,
		Timestamp:       log.Timestamp,
		Payload:         payload,
	}, nil
}

func (d *Decoder) attachTokenMeta(ctx context.Context, token common.Address, payload model.Payload) {
	if d.caller == nil {
		return
	}
	meta, ok := d.tokens.Get(token)
	if !ok {
		var err error
		meta, err = FetchTokenMeta(ctx, d.caller, token)
		if err != nil {
			d.logger.Debug("token metadata unavailable", zap.String("token", token.Hex()), zap.Error(err))
			return
		}
		d.tokens.Set(token, meta)
	}
	payload["decimals"] = model.Int(int64(meta.Decimals))
	if meta.Symbol != "" {
		payload["symbol"] = model.String(meta.Symbol)
	}
	if amount, ok := new(big.Int).SetString(payload.Get("value").Text(), 10); ok {
		payload["formattedValue"] = model.String(formatUnits(amount, meta.Decimals))
	}
}

// formatUnits scales a raw token amount down by its decimals, e.g. 5500000000000000000 with
// 18 decimals is "5.5".
func formatUnits(amount *big.Int, decimals uint8) string {
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}

func toValue(value interface{}) model.Value {
	switch v := value.(type) {
	case common.Address:
		return model.String(strings.ToLower(v.Hex()))
	case *big.Int:
		return model.String(v.String())
	case bool:
		return model.Bool(v)
	case uint8:
		return model.Int(int64(v))
	case uint16:
		return model.Int(int64(v))
	case uint32:
		return model.Int(int64(v))
	case uint64:
		return model.String(new(big.Int).SetUint64(v).String())
	case int8:
		return model.Int(int64(v))
	case int16:
		return model.Int(int64(v))
	case int32:
		return model.Int(int64(v))
	case int64:
		return model.Int(v)
	case [32]byte:
		return model.String(hexutil.Encode(v[:]))
	case []byte:
		return model.String(hexutil.Encode(v))
	case string:
		return model.String(v)
	default:
		return model.String(fmt.Sprint(v))
	}
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(topic)
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
