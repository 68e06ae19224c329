package subscription

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"eventRelay/internal/metrics"
	"eventRelay/internal/model"
	"eventRelay/internal/notify"
)

// Service runs the subscription pipeline for one event: match, compose, persist, dispatch.
type Service struct {
	matcher   *Matcher
	composer  *notify.Composer
	publisher *notify.Publisher
	limit     int
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func NewService(matcher *Matcher, composer *notify.Composer, publisher *notify.Publisher, fanoutLimit int, logger *zap.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fanoutLimit <= 0 {
		fanoutLimit = 16
	}
	return &Service{
		matcher:   matcher,
		composer:  composer,
		publisher: publisher,
		limit:     fanoutLimit,
		logger:    logger,
		metrics:   m,
	}
}

func (s *Service) Name() string {
	return "subscriptions"
}

// OnEvent creates one notification per matched subscription. Each subscription is handled in
// its own branch; branch errors are joined and never cancel siblings.
func (s *Service) OnEvent(ctx context.Context, event model.BlockchainEvent) error {
	subs, err := s.matcher.Match(ctx, event)
	if err != nil {
		return err
	}

	var (
		mu   sync.Mutex
		errs error
	)
	g := new(errgroup.Group)
	g.SetLimit(s.limit)
	for _, sub := range subs {
		sub := sub
		s.metrics.SubscriptionMatched(event.EventType)
		g.Go(func() error {
			if err := s.notify(ctx, sub, event); err != nil {
				s.logger.Error("subscription notification failed",
					zap.String("subscription_id", sub.ID),
					zap.String("user_id", sub.UserID),
					zap.String("tx_hash", event.TransactionHash),
					zap.Error(err),
				)
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func (s *Service) notify(ctx context.Context, sub model.EventSubscription, event model.BlockchainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscription %s panic: %v", sub.ID, r)
		}
	}()
	n := s.composer.Compose(sub, event)
	if _, err := s.publisher.Publish(ctx, n, sub.NotificationChannels); err != nil {
		return fmt.Errorf("subscription %s: %w", sub.ID, err)
	}
	return nil
}
