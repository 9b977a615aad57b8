package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" || cfg.HTTP.ShutdownTimeout != 10*time.Second {
		t.Fatalf("unexpected http config %+v", cfg.HTTP)
	}
	if cfg.Poll.MaxAttempts != 20 || cfg.Poll.Initial != 3*time.Second || cfg.Poll.Multiplier != 1.5 {
		t.Fatalf("unexpected poll policy %+v", cfg.Poll)
	}
	if cfg.Remote.Paths.Token == "" || cfg.Remote.Paths.BountyStatus == "" {
		t.Fatalf("expected remote paths filled, got %+v", cfg.Remote.Paths)
	}
	if len(cfg.Kafka.Brokers) != 1 || cfg.Kafka.Topic != "xlgw.purchase.events" {
		t.Fatalf("unexpected kafka config %+v", cfg.Kafka)
	}
	if cfg.Audit.BatchWait != 2*time.Second || cfg.Audit.RetryMax != time.Minute {
		t.Fatalf("unexpected audit config %+v", cfg.Audit)
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "rate_limit:\n  limit: 5\nremote:\n  api_base_url: \"http://127.0.0.1:9999\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("XLGW_HTTP_ADDR", ":9090")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RateLimit.Limit != 5 || cfg.RateLimit.Window != time.Minute {
		t.Fatalf("expected merged rate limit, got %+v", cfg.RateLimit)
	}
	if cfg.Remote.APIBaseURL != "http://127.0.0.1:9999" {
		t.Fatalf("expected file override, got %q", cfg.Remote.APIBaseURL)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Fatalf("expected env override, got %q", cfg.HTTP.Addr)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected an error for a missing config file")
	}
}
