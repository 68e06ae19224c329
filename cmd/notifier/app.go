package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"eventRelay/internal/automation"
	"eventRelay/internal/chain"
	"eventRelay/internal/channel"
	"eventRelay/internal/config"
	"eventRelay/internal/decode"
	"eventRelay/internal/feed"
	"eventRelay/internal/metrics"
	"eventRelay/internal/notify"
	"eventRelay/internal/pipeline"
	"eventRelay/internal/presence"
	"eventRelay/internal/server"
	"eventRelay/internal/storage"
	"eventRelay/internal/storage/memory"
	"eventRelay/internal/storage/postgres"
	"eventRelay/internal/subscription"
)

type app struct {
	cfg    config.Config
	logger *zap.Logger

	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	store      storage.Store
	hub        *presence.Hub
	automation *automation.Service
	processor  *pipeline.Processor

	closers []func()
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.registry)

	if cfg.PGDSN != "" {
		pg, err := postgres.NewStore(ctx, cfg.PGDSN, logger.Named("postgres"))
		if err != nil {
			return nil, err
		}
		a.store = pg
	} else {
		logger.Warn("pg-dsn not set, using the in-memory store")
		a.store = memory.NewStore()
	}
	a.closers = append(a.closers, a.store.Close)

	var execLog storage.ExecutionLog = a.store
	if cfg.ExecutionLog != "" {
		execLog = storage.MultiExecutionLog{a.store, storage.NewJSONLExecutionLog(cfg.ExecutionLog)}
	}

	a.hub = presence.NewHub(logger.Named("presence"), a.metrics)
	senders := channel.Senders(channel.Config{
		TelegramBotToken: cfg.TelegramBotToken,
		TelegramAPIBase:  cfg.TelegramAPIBase,
		EmailEndpoint:    cfg.EmailEndpoint,
		EmailAPIKey:      cfg.EmailAPIKey,
		EmailFrom:        cfg.EmailFrom,
	})
	dispatcher := notify.NewDispatcher(notify.DispatchConfig{SendTimeout: cfg.SendTimeout}, a.hub, a.store, senders, logger.Named("dispatch"), a.metrics)
	publisher := notify.NewPublisher(a.store, dispatcher, a.metrics)
	composer := notify.NewComposer()

	subscriptions := subscription.NewService(
		subscription.NewMatcher(a.store, logger.Named("subscriptions")),
		composer, publisher, cfg.FanoutLimit, logger.Named("subscriptions"), a.metrics,
	)

	executor := automation.NewExecutor(
		automation.ExecutorConfig{ActionTimeout: cfg.ActionTimeout},
		automation.DefaultRegistry(composer, publisher),
		a.store, execLog, composer, publisher, logger.Named("executor"), a.metrics,
	)
	a.automation = automation.NewService(a.store, automation.NewMatcher(a.store, logger.Named("automation")), executor, cfg.FanoutLimit, logger.Named("automation"), a.metrics)

	a.processor = pipeline.NewProcessor(logger.Named("pipeline"), a.metrics, subscriptions, a.automation)
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) newFeed(ctx context.Context) (feed.Feed, error) {
	switch a.cfg.Feed {
	case config.FeedNATS:
		return feed.NewNATSFeed(feed.NATSConfig{
			URL:     a.cfg.NATSURL,
			Subject: a.cfg.NATSSubject,
			Queue:   a.cfg.NATSQueue,
		}, a.logger.Named("feed"), a.metrics), nil
	case config.FeedFile:
		return feed.NewFileFeed(a.cfg.In, a.logger.Named("feed"), a.metrics), nil
	case config.FeedChain:
		addresses, err := feed.ParseAddresses(a.cfg.Addresses)
		if err != nil {
			return nil, err
		}
		client, err := chain.NewClient(ctx, a.cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("connect rpc: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		decoder, err := decode.NewDecoder(client, a.logger.Named("decode"))
		if err != nil {
			return nil, err
		}
		return feed.NewChainFeed(feed.ChainConfig{
			FromBlock:      a.cfg.FromBlock,
			Addresses:      addresses,
			BatchSize:      a.cfg.BatchSize,
			PollInterval:   a.cfg.PollInterval,
			CheckpointPath: a.cfg.Checkpoint,
			MaxRetries:     a.cfg.MaxRetries,
			RetryBackoff:   a.cfg.RetryBackoff,
		}, client, decoder, a.logger.Named("feed"), a.metrics), nil
	default:
		return nil, fmt.Errorf("unknown feed %q", a.cfg.Feed)
	}
}

// Run serves HTTP and consumes the feed until ctx is done. A file feed stops the process
// once the replay finishes.
func (a *app) Run(ctx context.Context) error {
	src, err := a.newFeed(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := &http.Server{
		Addr: a.cfg.HTTPAddr,
		Handler: server.NewRouter(server.Deps{
			WS:            a.hub.ServeWS,
			Triggerer:     a.automation,
			Notifications: a.store,
			Gatherer:      a.registry,
			Logger:        a.logger.Named("http"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		err := src.Run(gctx, a.processor)
		if err == nil || errors.Is(err, context.Canceled) {
			a.logger.Info("feed stopped", zap.String("feed", src.Name()))
			cancel()
			return nil
		}
		return fmt.Errorf("%s feed: %w", src.Name(), err)
	})

	return g.Wait()
}
