package notify

import (
	"context"
	"fmt"

	"eventRelay/internal/metrics"
	"eventRelay/internal/model"
	"eventRelay/internal/storage"
)

// Publisher persists a notification and then hands it to the dispatcher.
type Publisher struct {
	store      storage.NotificationStore
	dispatcher *Dispatcher
	metrics    *metrics.Metrics
}

func NewPublisher(store storage.NotificationStore, dispatcher *Dispatcher, m *metrics.Metrics) *Publisher {
	return &Publisher{store: store, dispatcher: dispatcher, metrics: m}
}

// Publish saves n and dispatches it. Only the save can fail; delivery is fire-and-forget.
// A nil channels slice limits delivery to presence.
func (p *Publisher) Publish(ctx context.Context, n model.Notification, channels []model.ChannelKind) (string, error) {
	id, err := p.store.SaveNotification(ctx, n)
	if err != nil {
		return "", fmt.Errorf("save notification: %w", err)
	}
	n.ID = id
	p.metrics.NotificationCreated(n.EventType)
	if p.dispatcher != nil {
		p.dispatcher.Dispatch(ctx, n.UserID, n, channels)
	}
	return id, nil
}
