package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/jmehdipour/xl-gateway/internal/purchase"
	"github.com/jmehdipour/xl-gateway/internal/remote"
	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// EnvPrefix scopes every environment override, e.g. XLGW_REMOTE_API_BASE_URL.
const EnvPrefix = "XLGW"

// ---- Root ----

type Config struct {
	HTTP       HTTPConfig          `mapstructure:"http"`
	Log        LogConfig           `mapstructure:"log"`
	Remote     RemoteConfig        `mapstructure:"remote"`
	MySQL      DatabaseConfig      `mapstructure:"mysql"`
	ClickHouse DatabaseConfig      `mapstructure:"clickhouse"`
	Redis      RedisConfig         `mapstructure:"redis"`
	Kafka      KafkaConfig         `mapstructure:"kafka"`
	RateLimit  RateLimitConfig     `mapstructure:"rate_limit"`
	Poll       purchase.PollPolicy `mapstructure:"poll"`
	Audit      AuditConfig         `mapstructure:"audit"`
}

// ---- Leaf structs ----

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	BodyLimit       string        `mapstructure:"body_limit"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type RemoteConfig struct {
	CIAMBaseURL  string        `mapstructure:"ciam_base_url"`
	APIBaseURL   string        `mapstructure:"api_base_url"`
	BasicAuth    string        `mapstructure:"basic_auth"`
	UserAgent    string        `mapstructure:"user_agent"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	Breaker      BreakerConfig `mapstructure:"breaker"`
	Paths        remote.Paths  `mapstructure:"paths"`
}

type BreakerConfig struct {
	FailThreshold int           `mapstructure:"fail_threshold"`
	OpenFor       time.Duration `mapstructure:"open_for"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	PoolSize    int           `mapstructure:"pool_size"`
}

type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	Topic          string   `mapstructure:"topic"`
	GroupID        string   `mapstructure:"group_id"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
}

type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Limit   int           `mapstructure:"limit"`
	Window  time.Duration `mapstructure:"window"`
}

type AuditConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	BatchSize int           `mapstructure:"batch_size"`
	BatchWait time.Duration `mapstructure:"batch_wait"`
	RetryMax  time.Duration `mapstructure:"retry_max"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies
// env overrides (XLGW_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, fmt.Errorf("read defaults: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return Config{}, fmt.Errorf("merge %s: %w", path, err)
		}
	}

	// env override (XLGW_*), nested keys joined with "_"
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Remote.Paths = cfg.Remote.Paths.WithDefaults()

	return cfg, nil
}
