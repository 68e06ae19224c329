// Package pipeline composes independent event subscribers behind a single OnEvent entry point.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"eventRelay/internal/metrics"
	"eventRelay/internal/model"
)

// Subscriber consumes every inbound event.
type Subscriber interface {
	Name() string
	OnEvent(ctx context.Context, event model.BlockchainEvent) error
}

// Processor fans each event out to its subscribers concurrently. A subscriber's error or
// panic never reaches the others.
type Processor struct {
	subscribers []Subscriber
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

func NewProcessor(logger *zap.Logger, m *metrics.Metrics, subscribers ...Subscriber) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{subscribers: subscribers, logger: logger, metrics: m}
}

// OnEvent is safe for concurrent use. The returned error joins subscriber failures.
func (p *Processor) OnEvent(ctx context.Context, event model.BlockchainEvent) error {
	started := time.Now()
	defer p.metrics.ObserveEvent(event.EventType, started)

	logger := p.logger.With(
		zap.String("event_type", event.EventType),
		zap.Uint64("chain_id", event.ChainID),
		zap.String("tx_hash", event.TransactionHash),
	)

	var (
		mu   sync.Mutex
		errs error
	)
	g := new(errgroup.Group)
	for _, sub := range p.subscribers {
		sub := sub
		g.Go(func() error {
			err := safeCall(ctx, sub, event)
			p.metrics.EventProcessed(sub.Name(), err)
			if err != nil {
				logger.Error("subscriber failed", zap.String("pipeline", sub.Name()), zap.Error(err))
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", sub.Name(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func safeCall(ctx context.Context, sub Subscriber, event model.BlockchainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return sub.OnEvent(ctx, event)
}
