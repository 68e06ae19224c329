package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"eventRelay/internal/metrics"
	"eventRelay/internal/model"
)

// NATSConfig selects the broker and subject carrying JSON BlockchainEvent messages.
type NATSConfig struct {
	URL            string
	Subject        string
	Queue          string
	ConnectTimeout time.Duration
}

// NATSFeed subscribes to a subject and hands every decoded message to the sink.
type NATSFeed struct {
	cfg     NATSConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewNATSFeed(cfg NATSConfig, logger *zap.Logger, m *metrics.Metrics) *NATSFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	return &NATSFeed{cfg: cfg, logger: logger, metrics: m}
}

func (f *NATSFeed) Name() string {
	return "nats"
}

// Run blocks until ctx is done. Messages are processed one at a time in arrival order.
func (f *NATSFeed) Run(ctx context.Context, sink Sink) error {
	if f.cfg.Subject == "" {
		return fmt.Errorf("nats subject is empty")
	}

	conn, err := nats.Connect(f.cfg.URL,
		nats.Name("eventrelay"),
		nats.Timeout(f.cfg.ConnectTimeout),
		nats.ReconnectWait(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			f.logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			f.logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer conn.Close()

	handler := func(msg *nats.Msg) {
		f.handleMessage(ctx, sink, msg.Data)
	}

	var sub *nats.Subscription
	if f.cfg.Queue != "" {
		sub, err = conn.QueueSubscribe(f.cfg.Subject, f.cfg.Queue, handler)
	} else {
		sub, err = conn.Subscribe(f.cfg.Subject, handler)
	}
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", f.cfg.Subject, err)
	}
	f.logger.Info("nats feed subscribed", zap.String("subject", f.cfg.Subject), zap.String("queue", f.cfg.Queue))

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		f.logger.Warn("nats drain failed", zap.Error(err))
	}
	return ctx.Err()
}

// handleMessage decodes one message. Malformed messages are logged and dropped.
func (f *NATSFeed) handleMessage(ctx context.Context, sink Sink, data []byte) {
	var event model.BlockchainEvent
	if err := json.Unmarshal(data, &event); err != nil {
		f.logger.Warn("drop malformed event message", zap.Error(err))
		return
	}
	if event.EventType == "" {
		f.logger.Warn("drop event message without eventType")
		return
	}
	f.metrics.EventReceived(f.Name(), event.EventType)
	if err := sink.OnEvent(ctx, event); err != nil {
		f.logger.Error("event processing failed",
			zap.String("event_type", event.EventType),
			zap.String("tx_hash", event.TransactionHash),
			zap.Error(err),
		)
	}
}
