package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment variables that override file settings.
// MQA_STORAGE_REDIS_ADDR -> storage.redis_addr
const EnvPrefix = "MQA_"

// DefaultConfigPaths are searched in order when no explicit path is given.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"config.json",
	"/etc/media-query-api/config.yaml",
}

type Config struct {
	API       APIConfig       `koanf:"api"`
	Upstream  UpstreamConfig  `koanf:"upstream"`
	Storage   StorageConfig   `koanf:"storage"`
	Cache     CacheConfig     `koanf:"cache"`
	Recommend RecommendConfig `koanf:"recommend"`
	Refresher RefresherConfig `koanf:"refresher"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Logging   LoggingConfig   `koanf:"logging"`
}

type APIConfig struct {
	Addr               string `koanf:"addr"`
	APIKeyEnv          string `koanf:"api_key_env"`
	RateLimitPerMinute int    `koanf:"rate_limit_per_minute"`
	EnableAPIKeyAuth   bool   `koanf:"enable_api_key_auth"`
	EnableIPRateLimit  bool   `koanf:"enable_ip_rate_limit"`
}

type UpstreamConfig struct {
	Endpoint string `koanf:"endpoint"`
	// ProxyScheme is used for pool entries stored as bare host:port.
	ProxyScheme   string        `koanf:"proxy_scheme"`
	MaxAttempts   int           `koanf:"max_attempts"`
	RetryInterval time.Duration `koanf:"retry_interval"`
}

type StorageConfig struct {
	Type          string `koanf:"type"` // "redis", "sqlite", "memory"
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	SQLitePath    string `koanf:"sqlite_path"`
	ProxySetKey   string `koanf:"proxy_set_key"`
	CachePrefix   string `koanf:"cache_prefix"`
}

type CacheConfig struct {
	DefaultTTLSeconds int64 `koanf:"default_ttl_seconds"`
}

type RecommendConfig struct {
	PerPage int `koanf:"per_page"`
}

type RefresherConfig struct {
	Enabled               bool          `koanf:"enabled"`
	Interval              time.Duration `koanf:"interval"`
	Sources               []Source      `koanf:"sources"`
	UserAgent             string        `koanf:"user_agent"`
	EnableFastFilter      bool          `koanf:"enable_fast_filter"`
	FastFilterTimeoutMs   int           `koanf:"fast_filter_timeout_ms"`
	FastFilterConcurrency int           `koanf:"fast_filter_concurrency"`
	StartupAttempts       int           `koanf:"startup_attempts"`
	StartupRetryDelay     time.Duration `koanf:"startup_retry_delay"`
}

type Source struct {
	URL     string `koanf:"url"`
	Type    string `koanf:"type"` // "text" or "html"
	Enabled bool   `koanf:"enabled"`
}

type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Endpoint  string `koanf:"endpoint"`
	Namespace string `koanf:"namespace"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		API: APIConfig{
			Addr:               ":8080",
			APIKeyEnv:          "MQA_API_KEY",
			RateLimitPerMinute: 1200,
		},
		Upstream: UpstreamConfig{
			Endpoint:      "https://graphql.anilist.co",
			ProxyScheme:   "http",
			MaxAttempts:   1,
			RetryInterval: 250 * time.Millisecond,
		},
		Storage: StorageConfig{
			Type:        "redis",
			RedisAddr:   "127.0.0.1:6379",
			SQLitePath:  "/data/media-query-api.db",
			ProxySetKey: "proxies",
		},
		Cache: CacheConfig{
			DefaultTTLSeconds: 86400,
		},
		Recommend: RecommendConfig{
			PerPage: 50,
		},
		Refresher: RefresherConfig{
			Enabled:               false,
			Interval:              30 * time.Minute,
			UserAgent:             "media-query-api/1.0",
			FastFilterTimeoutMs:   3000,
			FastFilterConcurrency: 500,
			StartupAttempts:       10,
			StartupRetryDelay:     10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Endpoint:  "/metrics",
			Namespace: "mediaquery",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load layers defaults, the config file (if any) and MQA_* environment
// variables, in that order of increasing priority. An empty path searches
// DefaultConfigPaths; a missing file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// envTransform maps MQA_SECTION_SOME_KEY to section.some_key.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	section, rest, ok := strings.Cut(key, "_")
	if !ok {
		return key
	}
	return section + "." + rest
}

func findConfigFile() string {
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Storage.Type != "redis" && c.Storage.Type != "sqlite" && c.Storage.Type != "memory" {
		return fmt.Errorf("storage type must be 'redis', 'sqlite', or 'memory'")
	}
	if c.Storage.ProxySetKey == "" {
		return fmt.Errorf("storage proxy_set_key must not be empty")
	}
	if c.Upstream.Endpoint == "" {
		return fmt.Errorf("upstream endpoint must not be empty")
	}
	if c.Upstream.ProxyScheme != "http" && c.Upstream.ProxyScheme != "https" && c.Upstream.ProxyScheme != "socks5" {
		return fmt.Errorf("upstream proxy_scheme must be 'http', 'https', or 'socks5'")
	}
	if c.Upstream.MaxAttempts < 1 {
		return fmt.Errorf("upstream max_attempts must be at least 1")
	}
	if c.Recommend.PerPage < 1 {
		return fmt.Errorf("recommend per_page must be positive")
	}
	if c.Cache.DefaultTTLSeconds < 1 {
		return fmt.Errorf("cache default_ttl_seconds must be positive")
	}
	if c.Refresher.Enabled && c.Refresher.Interval <= 0 {
		return fmt.Errorf("refresher interval must be positive")
	}
	for _, src := range c.Refresher.Sources {
		if src.Type != "" && src.Type != "text" && src.Type != "html" {
			return fmt.Errorf("refresher source %s: type must be 'text' or 'html'", src.URL)
		}
	}
	return nil
}
