// Package feed drives the event pipelines from an inbound source: a NATS subject, chain log
// polling, or a JSONL replay file.
package feed

import (
	"context"

	"eventRelay/internal/model"
)

// Sink consumes normalized events.
type Sink interface {
	OnEvent(ctx context.Context, event model.BlockchainEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event model.BlockchainEvent) error

func (f SinkFunc) OnEvent(ctx context.Context, event model.BlockchainEvent) error {
	return f(ctx, event)
}

// Feed delivers events to a sink until its source is exhausted or ctx is done.
type Feed interface {
	Name() string
	Run(ctx context.Context, sink Sink) error
}
