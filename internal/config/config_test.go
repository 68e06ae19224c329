package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Feed != FeedNATS || cfg.FanoutLimit != 16 || cfg.HTTPAddr != ":8080" {
		t.Fatalf("defaults mismatch: %+v", cfg)
	}
	if cfg.SendTimeout != 10*time.Second || cfg.ActionTimeout != 30*time.Second {
		t.Fatalf("timeout defaults mismatch: %v %v", cfg.SendTimeout, cfg.ActionTimeout)
	}
	if cfg.PGDSN != "" {
		t.Fatalf("pg dsn should default to empty, got %q", cfg.PGDSN)
	}
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notifier.yaml")
	content := []byte("feed: chain\nrpc: http://localhost:8545\naddress:\n  - \"0xaaa\"\n  - \" 0xbbb \"\nsend-timeout: 3s\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("NOTIFIER_FANOUT_LIMIT", "4")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("http-addr", ":8080", "")
	if err := flags.Parse([]string{"--http-addr", ":9090"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Feed != FeedChain || cfg.RPCURL != "http://localhost:8545" {
		t.Fatalf("file values mismatch: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Addresses, []string{"0xaaa", "0xbbb"}) {
		t.Fatalf("addresses mismatch: %v", cfg.Addresses)
	}
	if cfg.SendTimeout != 3*time.Second {
		t.Fatalf("send timeout mismatch: %v", cfg.SendTimeout)
	}
	if cfg.FanoutLimit != 4 {
		t.Fatalf("env override mismatch: %d", cfg.FanoutLimit)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("flag override mismatch: %s", cfg.HTTPAddr)
	}
}

func TestLoadRejectsUnquotedHexAddress(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifier.yaml")
	content := []byte("feed: file\naddress:\n  - 0xaaa\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := Load(path, nil)
	if err == nil || !strings.Contains(err.Error(), "quote hex values") {
		t.Fatalf("expected unquoted address error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"nats ok", Config{Feed: FeedNATS, NATSSubject: "events", FanoutLimit: 1}, false},
		{"chain without rpc", Config{Feed: FeedChain, BatchSize: 10, FanoutLimit: 1}, true},
		{"chain ok", Config{Feed: FeedChain, RPCURL: "http://rpc", BatchSize: 10, FanoutLimit: 1}, false},
		{"file ok", Config{Feed: FeedFile, FanoutLimit: 1}, false},
		{"unknown feed", Config{Feed: "kafka", FanoutLimit: 1}, true},
		{"zero fanout", Config{Feed: FeedFile}, true},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		if (err != nil) != tc.wantErr {
			t.Fatalf("%s: err=%v wantErr=%v", tc.name, err, tc.wantErr)
		}
	}
}
