package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing-is-not-searched.yaml"))
	if err == nil {
		t.Fatalf("expected error for explicit missing file, got config %+v", cfg)
	}

	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load with no file: %v", err)
	}
	if cfg.Cache.DefaultTTLSeconds != 86400 {
		t.Errorf("default ttl = %d, want 86400", cfg.Cache.DefaultTTLSeconds)
	}
	if cfg.Recommend.PerPage != 50 {
		t.Errorf("per page = %d, want 50", cfg.Recommend.PerPage)
	}
	if cfg.Upstream.MaxAttempts != 1 {
		t.Errorf("max attempts = %d, want 1", cfg.Upstream.MaxAttempts)
	}
	if cfg.Refresher.StartupRetryDelay != 10*time.Second {
		t.Errorf("startup retry delay = %v, want 10s", cfg.Refresher.StartupRetryDelay)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
api:
  addr: ":9090"
storage:
  type: sqlite
  sqlite_path: /tmp/test.db
refresher:
  enabled: true
  interval: 5m
  sources:
    - url: https://example.com/list.txt
      type: text
      enabled: true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MQA_STORAGE_TYPE", "memory")
	t.Setenv("MQA_LOGGING_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.Addr != ":9090" {
		t.Errorf("addr = %q, want :9090", cfg.API.Addr)
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("storage type = %q, want env override memory", cfg.Storage.Type)
	}
	if cfg.Storage.SQLitePath != "/tmp/test.db" {
		t.Errorf("sqlite path = %q", cfg.Storage.SQLitePath)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Refresher.Interval != 5*time.Minute {
		t.Errorf("refresher interval = %v, want 5m", cfg.Refresher.Interval)
	}
	if len(cfg.Refresher.Sources) != 1 || cfg.Refresher.Sources[0].Type != "text" {
		t.Errorf("sources = %+v", cfg.Refresher.Sources)
	}
	// Untouched defaults survive the file layer.
	if cfg.Cache.DefaultTTLSeconds != 86400 {
		t.Errorf("default ttl = %d, want 86400", cfg.Cache.DefaultTTLSeconds)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"bad storage", func(c *Config) { c.Storage.Type = "file" }, false},
		{"empty endpoint", func(c *Config) { c.Upstream.Endpoint = "" }, false},
		{"bad scheme", func(c *Config) { c.Upstream.ProxyScheme = "ftp" }, false},
		{"zero attempts", func(c *Config) { c.Upstream.MaxAttempts = 0 }, false},
		{"zero per page", func(c *Config) { c.Recommend.PerPage = 0 }, false},
		{"zero default ttl", func(c *Config) { c.Cache.DefaultTTLSeconds = 0 }, false},
		{"negative default ttl", func(c *Config) { c.Cache.DefaultTTLSeconds = -1 }, false},
		{"bad source type", func(c *Config) {
			c.Refresher.Sources = []Source{{URL: "x", Type: "json"}}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestEnvTransform(t *testing.T) {
	tests := map[string]string{
		"MQA_STORAGE_REDIS_ADDR":        "storage.redis_addr",
		"MQA_CACHE_DEFAULT_TTL_SECONDS": "cache.default_ttl_seconds",
		"MQA_API_ADDR":                  "api.addr",
	}
	for in, want := range tests {
		if got := envTransform(in); got != want {
			t.Errorf("envTransform(%q) = %q, want %q", in, got, want)
		}
	}
}
