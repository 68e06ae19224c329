package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Feed kinds accepted by the "feed" key.
const (
	FeedNATS  = "nats"
	FeedChain = "chain"
	FeedFile  = "file"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	LogLevel string
	HTTPAddr string

	PGDSN        string
	ExecutionLog string

	FanoutLimit   int
	SendTimeout   time.Duration
	ActionTimeout time.Duration

	Feed        string
	NATSURL     string
	NATSSubject string
	NATSQueue   string

	RPCURL       string
	Addresses    []string
	FromBlock    uint64
	BatchSize    uint64
	PollInterval time.Duration
	Checkpoint   string
	MaxRetries   int
	RetryBackoff time.Duration

	In string

	TelegramBotToken string
	TelegramAPIBase  string
	EmailEndpoint    string
	EmailAPIKey      string
	EmailFrom        string
}

// Load merges config file, environment variables (NOTIFIER_ prefix), and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NOTIFIER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("http-addr", ":8080")
	v.SetDefault("fanout-limit", 16)
	v.SetDefault("send-timeout", 10*time.Second)
	v.SetDefault("action-timeout", 30*time.Second)
	v.SetDefault("feed", FeedNATS)
	v.SetDefault("nats-url", "nats://127.0.0.1:4222")
	v.SetDefault("nats-subject", "blockchain.events")
	v.SetDefault("batch-size", uint64(2000))
	v.SetDefault("poll-interval", 5*time.Second)
	v.SetDefault("checkpoint", "./data/checkpoint.json")
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("telegram-api-base", "https://api.telegram.org")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	addresses, err := getStringSlice(v, "address")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		LogLevel:         v.GetString("log-level"),
		HTTPAddr:         v.GetString("http-addr"),
		PGDSN:            v.GetString("pg-dsn"),
		ExecutionLog:     v.GetString("execution-log"),
		FanoutLimit:      v.GetInt("fanout-limit"),
		SendTimeout:      v.GetDuration("send-timeout"),
		ActionTimeout:    v.GetDuration("action-timeout"),
		Feed:             strings.ToLower(strings.TrimSpace(v.GetString("feed"))),
		NATSURL:          v.GetString("nats-url"),
		NATSSubject:      v.GetString("nats-subject"),
		NATSQueue:        v.GetString("nats-queue"),
		RPCURL:           v.GetString("rpc"),
		Addresses:        addresses,
		FromBlock:        v.GetUint64("from"),
		BatchSize:        v.GetUint64("batch-size"),
		PollInterval:     v.GetDuration("poll-interval"),
		Checkpoint:       v.GetString("checkpoint"),
		MaxRetries:       v.GetInt("max-retries"),
		RetryBackoff:     v.GetDuration("retry-backoff"),
		In:               v.GetString("in"),
		TelegramBotToken: v.GetString("telegram-bot-token"),
		TelegramAPIBase:  v.GetString("telegram-api-base"),
		EmailEndpoint:    v.GetString("email-endpoint"),
		EmailAPIKey:      v.GetString("email-api-key"),
		EmailFrom:        v.GetString("email-from"),
	}

	return cfg, cfg.Validate()
}

// Validate checks the settings the selected feed depends on.
func (c Config) Validate() error {
	if c.FanoutLimit <= 0 {
		return fmt.Errorf("fanout-limit must be greater than zero")
	}
	switch c.Feed {
	case FeedNATS:
		if c.NATSSubject == "" {
			return fmt.Errorf("nats-subject is required for the nats feed")
		}
	case FeedChain:
		if c.RPCURL == "" {
			return fmt.Errorf("rpc url is required for the chain feed")
		}
		if c.BatchSize == 0 {
			return fmt.Errorf("batch-size must be greater than zero")
		}
	case FeedFile:
	default:
		return fmt.Errorf("unknown feed %q", c.Feed)
	}
	return nil
}

// getStringSlice reads a list or comma-separated string. YAML parses unquoted hex such as
// 0xaaa as an integer, so non-string items are rejected rather than reformatted.
func getStringSlice(v *viper.Viper, key string) ([]string, error) {
	if !v.IsSet(key) {
		return nil, nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed), nil
	case string:
		return splitAndClean(typed), nil
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s: item %v is not a string, quote hex values", key, item)
			}
			items = append(items, str)
		}
		return cleanStrings(items), nil
	default:
		return nil, fmt.Errorf("%s: unsupported value type %T", key, val)
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
