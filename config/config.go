package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Lease     LeaseConfig     `mapstructure:"lease"`
	Cursor    CursorConfig    `mapstructure:"cursor"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Chains    []ChainConfig   `mapstructure:"chains"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// SyncConfig tunes the orchestrator.
type SyncConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	Workers         int           `mapstructure:"workers"`
	MaxAdapterCalls int           `mapstructure:"max_adapter_calls"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"`
	UnitTimeout     time.Duration `mapstructure:"unit_timeout"`
	RetryAttempts   int           `mapstructure:"retry_attempts"`
	RetryBaseDelay  time.Duration `mapstructure:"retry_base_delay"`
	MaxBackoff      time.Duration `mapstructure:"max_backoff"`
	HistoryTTL      time.Duration `mapstructure:"history_ttl"`
	BitcoinNetwork  string        `mapstructure:"bitcoin_network"`
}

// ScoringConfig holds anomaly score weights. They must sum to 1.
type ScoringConfig struct {
	TrailingWindow     int     `mapstructure:"trailing_window"`
	AmountWeight       float64 `mapstructure:"amount_weight"`
	CounterpartyWeight float64 `mapstructure:"counterparty_weight"`
	MethodWeight       float64 `mapstructure:"method_weight"`
}

// LeaseConfig selects the per-unit lease backend: "redis" or "local".
type LeaseConfig struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
	Prefix  string        `mapstructure:"prefix"`
}

// CursorConfig selects the cursor backend: "postgres" or "pebble".
type CursorConfig struct {
	Backend   string `mapstructure:"backend"`
	PebbleDir string `mapstructure:"pebble_dir"`
}

// NotifyConfig configures alert delivery. SendTimeout bounds each sink
// without a budget of its own; the webhook derives its budget from
// Webhook.Timeout (per attempt) and its retry table.
type NotifyConfig struct {
	QueueSize   int           `mapstructure:"queue_size"`
	Workers     int           `mapstructure:"workers"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
	Log         bool          `mapstructure:"log"`
	Webhook     WebhookConfig `mapstructure:"webhook"`
	Kafka       KafkaConfig   `mapstructure:"kafka"`
}

type WebhookConfig struct {
	URL     string        `mapstructure:"url"`
	Secret  string        `mapstructure:"secret"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// RateLimitConfig sets the per-client query budget per minute. Triggers get
// a tenth of it.
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Limit   int  `mapstructure:"limit"`
}

// ChainConfig points one chain at an indexer endpoint.
type ChainConfig struct {
	Name     string        `mapstructure:"name"`
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
	PageSize int           `mapstructure:"page_size"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// Load reads configuration from an optional .env file, a config file and
// environment variables. Environment variables override file values.
// Prefix: WRM_. Nested keys use underscore: WRM_DATABASE_HOST, WRM_SYNC_WORKERS.
func Load(path string) (*Config, error) {
	envFile := os.Getenv("WRM_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("WRM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "wallet_monitor")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("sync.interval", "30s")
	v.SetDefault("sync.workers", 8)
	v.SetDefault("sync.max_adapter_calls", 4)
	v.SetDefault("sync.fetch_timeout", "15s")
	v.SetDefault("sync.unit_timeout", "2m")
	v.SetDefault("sync.retry_attempts", 3)
	v.SetDefault("sync.retry_base_delay", "500ms")
	v.SetDefault("sync.max_backoff", "10m")
	v.SetDefault("sync.history_ttl", "10m")
	v.SetDefault("sync.bitcoin_network", "mainnet")

	v.SetDefault("scoring.trailing_window", 20)
	v.SetDefault("scoring.amount_weight", 0.5)
	v.SetDefault("scoring.counterparty_weight", 0.3)
	v.SetDefault("scoring.method_weight", 0.2)

	v.SetDefault("lease.backend", "redis")
	v.SetDefault("lease.ttl", "3m")
	v.SetDefault("lease.prefix", "wrm:lease:")

	v.SetDefault("cursor.backend", "postgres")
	v.SetDefault("cursor.pebble_dir", "./data/cursors")

	v.SetDefault("notify.queue_size", 1024)
	v.SetDefault("notify.workers", 2)
	v.SetDefault("notify.send_timeout", "10s")
	v.SetDefault("notify.log", true)
	v.SetDefault("notify.webhook.timeout", "10s")
	v.SetDefault("notify.kafka.topic", "wallet-alerts")

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.limit", 120)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "wallet_monitor")
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Sync.Workers <= 0 {
		return fmt.Errorf("sync.workers must be positive, got %d", c.Sync.Workers)
	}
	if c.Sync.MaxAdapterCalls <= 0 {
		return fmt.Errorf("sync.max_adapter_calls must be positive, got %d", c.Sync.MaxAdapterCalls)
	}
	if c.Sync.Interval <= 0 {
		return errors.New("sync.interval must be positive")
	}
	if c.Sync.UnitTimeout <= 0 {
		return errors.New("sync.unit_timeout must be positive")
	}
	// A lease that expires mid-run lets a second instance start the same unit.
	if c.Lease.TTL <= c.Sync.UnitTimeout {
		return fmt.Errorf("lease.ttl (%s) must exceed sync.unit_timeout (%s)", c.Lease.TTL, c.Sync.UnitTimeout)
	}
	switch c.Lease.Backend {
	case "redis":
		if !c.Redis.Enabled {
			return errors.New("lease.backend=redis requires redis.enabled")
		}
	case "local":
	default:
		return fmt.Errorf("unknown lease.backend %q", c.Lease.Backend)
	}
	switch c.Cursor.Backend {
	case "postgres":
	case "pebble":
		if c.Cursor.PebbleDir == "" {
			return errors.New("cursor.pebble_dir is required for the pebble backend")
		}
	default:
		return fmt.Errorf("unknown cursor.backend %q", c.Cursor.Backend)
	}
	sum := c.Scoring.AmountWeight + c.Scoring.CounterpartyWeight + c.Scoring.MethodWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("scoring weights must sum to 1, got %.3f", sum)
	}
	for _, ch := range c.Chains {
		if ch.Name == "" || ch.Endpoint == "" {
			return fmt.Errorf("chain entries need name and endpoint: %+v", ch)
		}
	}
	return nil
}
