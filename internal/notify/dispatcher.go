package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"eventRelay/internal/metrics"
	"eventRelay/internal/model"
	"eventRelay/internal/storage"
)

// PresenceEvent is the event name used for pushed notifications.
const PresenceEvent = "notification"

// Presence reports live connections and pushes to them.
type Presence interface {
	IsOnline(userID string) bool
	Publish(userID, event string, data interface{})
}

// Sender delivers a notification over one external channel.
type Sender interface {
	Send(ctx context.Context, cfg model.ChannelConfig, n model.Notification) error
}

// DispatchConfig holds dispatcher settings.
type DispatchConfig struct {
	SendTimeout time.Duration
}

// Dispatcher delivers a persisted notification to presence and external channels.
type Dispatcher struct {
	cfg      DispatchConfig
	presence Presence
	channels storage.ChannelStore
	senders  map[model.ChannelKind]Sender
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewDispatcher(cfg DispatchConfig, presence Presence, channels storage.ChannelStore, senders map[model.ChannelKind]Sender, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if senders == nil {
		senders = make(map[model.ChannelKind]Sender)
	}
	return &Dispatcher{
		cfg:      cfg,
		presence: presence,
		channels: channels,
		senders:  senders,
		logger:   logger,
		metrics:  m,
	}
}

// Dispatch pushes n to the user's live connections, then tries each requested external
// channel in telegram, discord, email order. Failures are logged per channel and never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, userID string, n model.Notification, channels []model.ChannelKind) {
	d.pushPresence(userID, n)

	for _, kind := range model.ExternalChannels {
		if !lo.Contains(channels, kind) {
			continue
		}
		logger := d.logger.With(
			zap.String("user_id", userID),
			zap.String("channel", string(kind)),
			zap.String("notification_id", n.ID),
		)
		status, err := d.deliver(ctx, userID, kind, n)
		d.metrics.ChannelDelivery(string(kind), status)
		switch {
		case err != nil:
			logger.Warn("channel delivery failed", zap.Error(err))
		case status == metrics.StatusSkipped:
			logger.Debug("channel skipped")
		default:
			logger.Debug("channel delivered")
		}
	}
}

func (d *Dispatcher) pushPresence(userID string, n model.Notification) {
	if d.presence == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.metrics.PresencePush("failed")
			d.logger.Warn("presence push panicked", zap.String("user_id", userID), zap.Any("panic", r))
		}
	}()
	if !d.presence.IsOnline(userID) {
		d.metrics.PresencePush("offline")
		return
	}
	d.presence.Publish(userID, PresenceEvent, n)
	d.metrics.PresencePush("delivered")
}

func (d *Dispatcher) deliver(ctx context.Context, userID string, kind model.ChannelKind, n model.Notification) (status string, err error) {
	defer func() {
		if r := recover(); r != nil {
			status = metrics.StatusFailure
			err = fmt.Errorf("sender panic: %v", r)
		}
	}()

	if d.channels == nil {
		return metrics.StatusSkipped, nil
	}
	cfg, err := d.channels.ChannelConfig(ctx, userID, kind)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return metrics.StatusSkipped, nil
		}
		return metrics.StatusFailure, fmt.Errorf("load channel config: %w", err)
	}
	if !cfg.IsActive {
		return metrics.StatusSkipped, nil
	}
	sender, ok := d.senders[kind]
	if !ok {
		return metrics.StatusSkipped, nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()
	if err := sender.Send(sendCtx, cfg, n); err != nil {
		return metrics.StatusFailure, err
	}
	return metrics.StatusSuccess, nil
}
