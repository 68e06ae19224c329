package feed

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"eventRelay/internal/decode"
	"eventRelay/internal/metrics"
	"eventRelay/internal/model"
)

// LogSource is the subset of the chain client the poller needs.
type LogSource interface {
	GetChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
}

// ChainConfig holds chain polling settings.
type ChainConfig struct {
	FromBlock      uint64
	Addresses      []common.Address
	BatchSize      uint64
	PollInterval   time.Duration
	CheckpointPath string
	MaxRetries     int
	RetryBackoff   time.Duration
}

// ChainFeed polls eth_getLogs in block batches, decodes supported events and checkpoints
// each completed batch.
type ChainFeed struct {
	cfg        ChainConfig
	source     LogSource
	decoder    *decode.Decoder
	checkpoint *CheckpointStore
	seen       map[string]uint64
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

func NewChainFeed(cfg ChainConfig, source LogSource, decoder *decode.Decoder, logger *zap.Logger, m *metrics.Metrics) *ChainFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &ChainFeed{
		cfg:        cfg,
		source:     source,
		decoder:    decoder,
		checkpoint: NewCheckpointStore(cfg.CheckpointPath),
		seen:       make(map[string]uint64),
		logger:     logger,
		metrics:    m,
	}
}

func (f *ChainFeed) Name() string {
	return "chain"
}

// Run polls until ctx is done.
func (f *ChainFeed) Run(ctx context.Context, sink Sink) error {
	if f.source == nil {
		return fmt.Errorf("chain client is nil")
	}
	if f.decoder == nil {
		return fmt.Errorf("decoder is nil")
	}
	if f.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}

	chainID, err := f.source.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}
	chainIDValue := chainID.Uint64()

	next, err := f.startBlock(ctx, chainIDValue)
	if err != nil {
		return err
	}

	for {
		next, err = f.Poll(ctx, chainIDValue, next, sink)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			f.logger.Warn("poll failed", zap.Uint64("resume_from", next), zap.Error(err))
		}
		if err := sleep(ctx, f.cfg.PollInterval); err != nil {
			return err
		}
	}
}

func (f *ChainFeed) startBlock(ctx context.Context, chainID uint64) (uint64, error) {
	from := f.cfg.FromBlock
	cp, ok, err := f.checkpoint.Load(chainID)
	if err != nil {
		return 0, err
	}
	if ok && cp.LastProcessedBlock >= from {
		from = cp.LastProcessedBlock + 1
		f.logger.Info("resume from checkpoint", zap.Uint64("last_processed", cp.LastProcessedBlock), zap.Uint64("from", from))
	}
	if from == 0 {
		latest, err := f.source.LatestBlockNumber(ctx)
		if err != nil {
			return 0, fmt.Errorf("get latest block: %w", err)
		}
		from = latest
	}
	return from, nil
}

// Poll processes blocks from `from` up to the chain head and returns the block the next poll
// starts at. On error that is the first block of the batch that did not complete, so finished
// batches are never delivered twice.
func (f *ChainFeed) Poll(ctx context.Context, chainID, from uint64, sink Sink) (uint64, error) {
	var latest uint64
	err := withRetry(ctx, f.cfg.MaxRetries, f.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		latest, err = f.source.LatestBlockNumber(ctx)
		return err
	})
	if err != nil {
		return from, fmt.Errorf("get latest block: %w", err)
	}
	if from > latest {
		return from, nil
	}

	ranges, err := SplitRange(from, latest, f.cfg.BatchSize)
	if err != nil {
		return from, err
	}

	next := from
	for _, blockRange := range ranges {
		if err := ctx.Err(); err != nil {
			return next, err
		}
		f.logger.Debug("fetch logs", zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))

		logs, err := f.filterLogsWithRetry(ctx, blockRange.From, blockRange.To)
		if err != nil {
			return next, fmt.Errorf("filter logs: %w", err)
		}

		delivered := 0
		for _, log := range logs {
			if log.Removed || f.isDuplicate(log) {
				continue
			}
			ts, err := f.blockTimestampWithRetry(ctx, log.BlockNumber)
			if err != nil {
				return next, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
			}
			event, err := f.decoder.Decode(ctx, buildLogRecord(chainID, log, ts))
			if err != nil {
				f.logger.Debug("skip undecodable log", zap.String("tx_hash", log.TxHash.Hex()), zap.Error(err))
				continue
			}
			f.metrics.EventReceived(f.Name(), event.EventType)
			if err := sink.OnEvent(ctx, event); err != nil {
				f.logger.Error("event processing failed",
					zap.String("event_type", event.EventType),
					zap.String("tx_hash", event.TransactionHash),
					zap.Error(err),
				)
			}
			delivered++
		}

		if err := f.checkpoint.Save(chainID, blockRange.To); err != nil {
			return next, err
		}
		next = blockRange.To + 1
		f.forget(blockRange.From)
		f.logger.Info("batch complete", zap.Int("events", delivered), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
	}
	return next, nil
}

func (f *ChainFeed) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	topics := f.decoder.Topics()
	var logs []types.Log
	err := withRetry(ctx, f.cfg.MaxRetries, f.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = f.source.FilterLogs(ctx, fromBlock, toBlock, f.cfg.Addresses, topics)
		if err != nil {
			f.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}

func (f *ChainFeed) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := withRetry(ctx, f.cfg.MaxRetries, f.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		ts, err = f.source.BlockTimestamp(ctx, blockNumber)
		if err != nil {
			f.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return ts, err
}

func (f *ChainFeed) isDuplicate(log types.Log) bool {
	id := fmt.Sprintf("%d:%s:%d", log.BlockNumber, log.TxHash.Hex(), log.Index)
	if _, ok := f.seen[id]; ok {
		return true
	}
	f.seen[id] = log.BlockNumber
	return false
}

// forget drops dedupe keys for blocks before the given one; those blocks are never refetched.
func (f *ChainFeed) forget(before uint64) {
	for id, block := range f.seen {
		if block < before {
			delete(f.seen, id)
		}
	}
}

func buildLogRecord(chainID uint64, log types.Log, timestamp uint64) model.LogRecord {
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}
	return model.LogRecord{
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      log.TxHash.Hex(),
		TxIndex:     uint64(log.TxIndex),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(log.Data),
		Removed:     log.Removed,
		Timestamp:   timestamp,
	}
}
