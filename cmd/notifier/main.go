package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"eventRelay/internal/config"
	"eventRelay/internal/model"
	"eventRelay/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "notifier",
		Short:        "Blockchain event notifications and automation rules",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Consume events and serve the HTTP surface",
		RunE:  runNotifier,
	}

	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	runCmd.Flags().String("http-addr", ":8080", "HTTP listen address")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN, empty uses the in-memory store")
	runCmd.Flags().String("execution-log", "", "optional JSONL execution log path")
	runCmd.Flags().Int("fanout-limit", 16, "concurrent branches per event")
	runCmd.Flags().Duration("send-timeout", 10*time.Second, "per-channel send timeout")
	runCmd.Flags().Duration("action-timeout", 30*time.Second, "per-action timeout")
	runCmd.Flags().String("feed", config.FeedNATS, "event feed (nats, chain, file)")
	runCmd.Flags().String("nats-url", "nats://127.0.0.1:4222", "NATS server URL")
	runCmd.Flags().String("nats-subject", "blockchain.events", "NATS subject carrying events")
	runCmd.Flags().String("nats-queue", "", "optional NATS queue group")
	runCmd.Flags().String("rpc", "", "chain RPC URL")
	runCmd.Flags().StringSlice("address", nil, "contract addresses to poll (comma-separated)")
	runCmd.Flags().Uint64("from", 0, "start block, 0 means latest")
	runCmd.Flags().Uint64("batch-size", 2000, "blocks per eth_getLogs batch")
	runCmd.Flags().Duration("poll-interval", 5*time.Second, "chain poll interval")
	runCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path, empty disables")
	runCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().String("in", "", "input events JSONL for the file feed")
	runCmd.Flags().String("telegram-bot-token", "", "Telegram bot token")
	runCmd.Flags().String("telegram-api-base", "https://api.telegram.org", "Telegram API base URL")
	runCmd.Flags().String("email-endpoint", "", "email HTTP API endpoint")
	runCmd.Flags().String("email-api-key", "", "email HTTP API key")
	runCmd.Flags().String("email-from", "", "email sender address")

	root.AddCommand(runCmd)

	triggerCmd := &cobra.Command{
		Use:   "trigger",
		Short: "Execute a rule once on behalf of its owner",
		RunE:  runTrigger,
	}

	triggerCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	triggerCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	triggerCmd.Flags().String("execution-log", "", "optional JSONL execution log path")
	triggerCmd.Flags().Duration("action-timeout", 30*time.Second, "per-action timeout")
	triggerCmd.Flags().String("rule", "", "rule id")
	triggerCmd.Flags().String("user", "", "owner user id")
	triggerCmd.Flags().String("event", "", "optional JSON file holding a test event")

	root.AddCommand(triggerCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the Postgres schema",
		RunE:  runMigrate,
	}

	migrateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	migrateCmd.Flags().String("pg-dsn", "", "Postgres DSN")

	root.AddCommand(migrateCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func runNotifier(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("notifier start",
		zap.String("feed", cfg.Feed),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.Bool("postgres", cfg.PGDSN != ""),
		zap.Int("fanout_limit", cfg.FanoutLimit),
		zap.Duration("send_timeout", cfg.SendTimeout),
		zap.Duration("action_timeout", cfg.ActionTimeout),
	)

	return a.Run(ctx)
}

func runTrigger(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.PGDSN == "" {
		return fmt.Errorf("pg-dsn is required")
	}
	ruleID, _ := cmd.Flags().GetString("rule")
	userID, _ := cmd.Flags().GetString("user")
	if ruleID == "" || userID == "" {
		return fmt.Errorf("rule and user are required")
	}

	var testEvent *model.BlockchainEvent
	if path, _ := cmd.Flags().GetString("event"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read event: %w", err)
		}
		var event model.BlockchainEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return fmt.Errorf("parse event: %w", err)
		}
		testEvent = &event
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.automation.TriggerRule(ctx, ruleID, userID, testEvent)
	if err != nil {
		return err
	}
	out, err := json.Marshal(result)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.PGDSN == "" {
		return fmt.Errorf("pg-dsn is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PGDSN, logger.Named("postgres"))
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}
	logger.Info("schema migrated")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
