package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds the configuration shared by the API server and the worker.
type Config struct {
	Server ServerConfig
	Broker BrokerConfig
	Store  StoreConfig
	Worker WorkerConfig
	Events EventsConfig
	Log    LogConfig
}

type ServerConfig struct {
	Port         int           `mapstructure:"API_PORT"`
	ReadTimeout  time.Duration `mapstructure:"API_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"API_WRITE_TIMEOUT"`
	RateLimit    int           `mapstructure:"API_RATE_LIMIT"`
	MaxBodyBytes int64         `mapstructure:"API_MAX_BODY_BYTES"`
	GinMode      string        `mapstructure:"GIN_MODE"`
}

type BrokerConfig struct {
	Host                 string        `mapstructure:"BROKER_HOST"`
	Port                 int           `mapstructure:"BROKER_PORT"`
	Password             string        `mapstructure:"BROKER_PASSWORD"`
	DB                   int           `mapstructure:"BROKER_DB"`
	MaxReconnectAttempts int           `mapstructure:"BROKER_MAX_RECONNECT_ATTEMPTS"`
	KeyPrefix            string        `mapstructure:"BROKER_KEY_PREFIX"`
	TTR                  time.Duration `mapstructure:"BROKER_TTR"`
	PollInterval         time.Duration `mapstructure:"BROKER_POLL_INTERVAL"`
	OpTimeout            time.Duration `mapstructure:"BROKER_OP_TIMEOUT"`
}

// Addr returns host:port of the broker.
func (b BrokerConfig) Addr() string {
	return net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

type StoreConfig struct {
	URL        string        `mapstructure:"STORE_URL"`
	Database   string        `mapstructure:"STORE_DATABASE"`
	Collection string        `mapstructure:"STORE_COLLECTION"`
	ResultTTL  time.Duration `mapstructure:"STORE_RESULT_TTL"`
}

type WorkerConfig struct {
	Concurrency   int           `mapstructure:"WORKER_CONCURRENCY"`
	MetricsPort   int           `mapstructure:"WORKER_METRICS_PORT"`
	MinDelay      time.Duration `mapstructure:"WORKER_MIN_DELAY"`
	MaxDelay      time.Duration `mapstructure:"WORKER_MAX_DELAY"`
	HashAlgorithm string        `mapstructure:"WORKER_HASH_ALGORITHM"`
}

type EventsConfig struct {
	AMQPURL  string `mapstructure:"EVENTS_AMQP_URL"`
	Exchange string `mapstructure:"EVENTS_EXCHANGE"`
}

// Enabled reports whether completion events should be published.
func (e EventsConfig) Enabled() bool {
	return e.AMQPURL != ""
}

type LogConfig struct {
	Level string `mapstructure:"LOG_LEVEL"`
}

// aliases maps a config key to the legacy environment variables that may also set it.
var aliases = map[string][]string{
	"BROKER_HOST": {"BEANSTALK_HOST"},
	"BROKER_PORT": {"BEANSTALK_PORT"},
	"STORE_URL":   {"MONGO_URL"},
}

// Load reads configuration from environment variables and an optional .env file.
// Unset variables fall back to their defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	// Set defaults
	v.SetDefault("API_PORT", 8080)
	v.SetDefault("API_READ_TIMEOUT", "10s")
	v.SetDefault("API_WRITE_TIMEOUT", "30s")
	v.SetDefault("API_RATE_LIMIT", 600)
	v.SetDefault("API_MAX_BODY_BYTES", 1<<20)
	v.SetDefault("GIN_MODE", "release")
	v.SetDefault("BROKER_HOST", "127.0.0.1")
	v.SetDefault("BROKER_PORT", 6379)
	v.SetDefault("BROKER_PASSWORD", "")
	v.SetDefault("BROKER_DB", 0)
	v.SetDefault("BROKER_MAX_RECONNECT_ATTEMPTS", 10)
	v.SetDefault("BROKER_KEY_PREFIX", "dw:")
	v.SetDefault("BROKER_TTR", "60s")
	v.SetDefault("BROKER_POLL_INTERVAL", "250ms")
	v.SetDefault("BROKER_OP_TIMEOUT", "5s")
	v.SetDefault("STORE_URL", "mongodb://127.0.0.1:27017")
	v.SetDefault("STORE_DATABASE", "jobs")
	v.SetDefault("STORE_COLLECTION", "completed")
	v.SetDefault("STORE_RESULT_TTL", "0s")
	v.SetDefault("WORKER_CONCURRENCY", 1)
	v.SetDefault("WORKER_METRICS_PORT", 9090)
	v.SetDefault("WORKER_MIN_DELAY", "1s")
	v.SetDefault("WORKER_MAX_DELAY", "5s")
	v.SetDefault("WORKER_HASH_ALGORITHM", "md5")
	v.SetDefault("EVENTS_AMQP_URL", "")
	v.SetDefault("EVENTS_EXCHANGE", "distributed-workers.events")
	v.SetDefault("LOG_LEVEL", "info")

	for key, legacy := range aliases {
		if err := v.BindEnv(append([]string{key, key}, legacy...)...); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	// Attempt to read .env file (non-fatal if missing)
	_ = v.ReadInConfig()

	cfg := &Config{}
	cfg.Server.Port = v.GetInt("API_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("API_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("API_WRITE_TIMEOUT")
	cfg.Server.RateLimit = v.GetInt("API_RATE_LIMIT")
	cfg.Server.MaxBodyBytes = v.GetInt64("API_MAX_BODY_BYTES")
	cfg.Server.GinMode = v.GetString("GIN_MODE")
	cfg.Broker.Host = v.GetString("BROKER_HOST")
	cfg.Broker.Port = v.GetInt("BROKER_PORT")
	cfg.Broker.Password = v.GetString("BROKER_PASSWORD")
	cfg.Broker.DB = v.GetInt("BROKER_DB")
	cfg.Broker.MaxReconnectAttempts = v.GetInt("BROKER_MAX_RECONNECT_ATTEMPTS")
	cfg.Broker.KeyPrefix = v.GetString("BROKER_KEY_PREFIX")
	cfg.Broker.TTR = v.GetDuration("BROKER_TTR")
	cfg.Broker.PollInterval = v.GetDuration("BROKER_POLL_INTERVAL")
	cfg.Broker.OpTimeout = v.GetDuration("BROKER_OP_TIMEOUT")
	cfg.Store.URL = v.GetString("STORE_URL")
	cfg.Store.Database = v.GetString("STORE_DATABASE")
	cfg.Store.Collection = v.GetString("STORE_COLLECTION")
	cfg.Store.ResultTTL = v.GetDuration("STORE_RESULT_TTL")
	cfg.Worker.Concurrency = v.GetInt("WORKER_CONCURRENCY")
	cfg.Worker.MetricsPort = v.GetInt("WORKER_METRICS_PORT")
	cfg.Worker.MinDelay = v.GetDuration("WORKER_MIN_DELAY")
	cfg.Worker.MaxDelay = v.GetDuration("WORKER_MAX_DELAY")
	cfg.Worker.HashAlgorithm = strings.ToLower(v.GetString("WORKER_HASH_ALGORITHM"))
	cfg.Events.AMQPURL = v.GetString("EVENTS_AMQP_URL")
	cfg.Events.Exchange = v.GetString("EVENTS_EXCHANGE")
	cfg.Log.Level = v.GetString("LOG_LEVEL")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Broker.TTR < time.Second {
		return fmt.Errorf("config: BROKER_TTR must be at least 1s, got %s", c.Broker.TTR)
	}
	if c.Broker.PollInterval <= 0 {
		return fmt.Errorf("config: BROKER_POLL_INTERVAL must be positive")
	}
	if c.Broker.MaxReconnectAttempts < 0 {
		return fmt.Errorf("config: BROKER_MAX_RECONNECT_ATTEMPTS must not be negative")
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("config: WORKER_CONCURRENCY must be at least 1, got %d", c.Worker.Concurrency)
	}
	if c.Worker.MinDelay < 0 || c.Worker.MaxDelay < c.Worker.MinDelay {
		return fmt.Errorf("config: invalid worker delay range [%s, %s]", c.Worker.MinDelay, c.Worker.MaxDelay)
	}
	return nil
}

// Fields returns the effective configuration as log fields with credentials redacted.
func (c *Config) Fields() []zap.Field {
	return []zap.Field{
		zap.Int("api_port", c.Server.Port),
		zap.Int("api_rate_limit", c.Server.RateLimit),
		zap.String("broker_addr", c.Broker.Addr()),
		zap.Int("broker_db", c.Broker.DB),
		zap.Int("broker_max_reconnect_attempts", c.Broker.MaxReconnectAttempts),
		zap.String("broker_key_prefix", c.Broker.KeyPrefix),
		zap.Duration("broker_ttr", c.Broker.TTR),
		zap.Duration("broker_poll_interval", c.Broker.PollInterval),
		zap.String("store_url", redactURL(c.Store.URL)),
		zap.String("store_database", c.Store.Database),
		zap.String("store_collection", c.Store.Collection),
		zap.Duration("store_result_ttl", c.Store.ResultTTL),
		zap.Int("worker_concurrency", c.Worker.Concurrency),
		zap.Duration("worker_min_delay", c.Worker.MinDelay),
		zap.Duration("worker_max_delay", c.Worker.MaxDelay),
		zap.String("worker_hash_algorithm", c.Worker.HashAlgorithm),
		zap.String("events_amqp_url", redactURL(c.Events.AMQPURL)),
		zap.String("log_level", c.Log.Level),
	}
}

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}
