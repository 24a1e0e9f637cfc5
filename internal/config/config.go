package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Upstream   UpstreamConfig   `mapstructure:"upstream"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Ingestion  IngestionConfig  `mapstructure:"ingestion"`
	Writer     WriterConfig     `mapstructure:"writer"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type UpstreamConfig struct {
	// IngestHost is the Sentry ingest target. A bare host gets https.
	IngestHost string        `mapstructure:"ingest_host"`
	Timeout    time.Duration `mapstructure:"timeout"`

	// TrustedIPHeaders are consulted in order to resolve the caller IP.
	TrustedIPHeaders []string `mapstructure:"trusted_ip_headers"`
}

// ClickHouseConfig is optional: when credentials are absent, rows are
// dropped with a warning instead of inserted.
type ClickHouseConfig struct {
	Host     string        `mapstructure:"host"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Database string        `mapstructure:"database"`
	Table    string        `mapstructure:"table"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

type IngestionConfig struct {
	RateLimitEnabled  bool          `mapstructure:"rate_limit_enabled"`
	RateLimitRequests int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
	MaxInFlightTasks  int           `mapstructure:"max_in_flight_tasks"`
	DrainTimeout      time.Duration `mapstructure:"drain_timeout"`
}

type WriterConfig struct {
	BatchSize int           `mapstructure:"batch_size"`
	MaxWait   time.Duration `mapstructure:"max_wait"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8787)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("upstream.ingest_host", "sentry.example.com")
	v.SetDefault("upstream.timeout", "30s")
	v.SetDefault("upstream.trusted_ip_headers", []string{"CF-Connecting-IP", "X-Forwarded-For"})
	v.SetDefault("clickhouse.host", "")
	v.SetDefault("clickhouse.username", "")
	v.SetDefault("clickhouse.password", "")
	v.SetDefault("clickhouse.database", "")
	v.SetDefault("clickhouse.table", "app_logs")
	v.SetDefault("clickhouse.timeout", "60s")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379")
	v.SetDefault("ingestion.rate_limit_enabled", false)
	v.SetDefault("ingestion.rate_limit_requests", 10000)
	v.SetDefault("ingestion.rate_limit_window", "1m")
	v.SetDefault("ingestion.max_in_flight_tasks", 256)
	v.SetDefault("ingestion.drain_timeout", "30s")
	v.SetDefault("writer.batch_size", 500)
	v.SetDefault("writer.max_wait", "5s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/sentry-relay")
	}

	// Environment variables override
	v.SetEnvPrefix("RELAY")
	v.AutomaticEnv()

	// Read config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
