// Package config loads workbench settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings.
type Config struct {
	Upstream  UpstreamConfig
	PriceFeed PriceFeedConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Kafka     KafkaConfig

	HTTPAddr string
	LogLevel string

	QuoteTick          time.Duration
	StatusPollInterval time.Duration
	LedgerPageSize     int
}

// UpstreamConfig configures the custody API client.
type UpstreamConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RPS        float64
	MaxRetries int
}

// PriceFeedConfig configures the last-price websocket feed.
type PriceFeedConfig struct {
	URL     string
	Markets []string
}

// RedisConfig configures the collections cache. An empty Addr selects the
// in-process backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// StorageConfig configures the audit journal.
type StorageConfig struct {
	PostgresDSN   string
	ClickhouseDSN string
	UseMemory     bool
}

// KafkaConfig configures the notification sink. An empty Broker disables it.
type KafkaConfig struct {
	Broker string
	Topic  string
}

// Load reads .env (if present) and the environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Upstream: UpstreamConfig{
			BaseURL:    getEnv("UPSTREAM_BASE_URL", "http://localhost:8081/api/v1"),
			APIKey:     getEnv("UPSTREAM_API_KEY", ""),
			Timeout:    getEnvDuration("UPSTREAM_TIMEOUT", 30*time.Second),
			RPS:        getEnvFloat("UPSTREAM_RPS", 10),
			MaxRetries: getEnvInt("UPSTREAM_MAX_RETRIES", 3),
		},
		PriceFeed: PriceFeedConfig{
			URL:     getEnv("PRICE_FEED_URL", ""),
			Markets: getEnvList("PRICE_FEED_MARKETS", []string{"BTC-USD", "ETH-USD", "SOL-USD"}),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      getEnvDuration("CACHE_TTL", time.Minute),
		},
		Storage: StorageConfig{
			PostgresDSN:   getEnv("POSTGRES_DSN", "postgres://localhost:5432/workbench?sslmode=disable"),
			ClickhouseDSN: getEnv("CLICKHOUSE_DSN", "clickhouse://localhost:9000/workbench"),
			UseMemory:     getEnvBool("USE_MEMORY", true),
		},
		Kafka: KafkaConfig{
			Broker: getEnv("KAFKA_BROKER", ""),
			Topic:  getEnv("KAFKA_TOPIC", "workbench.notices"),
		},
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		QuoteTick:          getEnvDuration("QUOTE_TICK", time.Second),
		StatusPollInterval: getEnvDuration("STATUS_POLL_INTERVAL", 5*time.Second),
		LedgerPageSize:     getEnvInt("LEDGER_PAGE_SIZE", 20),
	}
}

// Validate checks required settings.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		errs = append(errs, errors.New("UPSTREAM_BASE_URL is required"))
	}
	if c.Upstream.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("UPSTREAM_TIMEOUT must be positive, got %s", c.Upstream.Timeout))
	}
	if c.Upstream.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("UPSTREAM_MAX_RETRIES must be >= 0, got %d", c.Upstream.MaxRetries))
	}
	if c.QuoteTick <= 0 {
		errs = append(errs, fmt.Errorf("QUOTE_TICK must be positive, got %s", c.QuoteTick))
	}
	if c.StatusPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("STATUS_POLL_INTERVAL must be positive, got %s", c.StatusPollInterval))
	}
	if c.LedgerPageSize <= 0 {
		errs = append(errs, fmt.Errorf("LEDGER_PAGE_SIZE must be positive, got %d", c.LedgerPageSize))
	}
	if !c.Storage.UseMemory && c.Storage.PostgresDSN == "" {
		errs = append(errs, errors.New("POSTGRES_DSN is required when USE_MEMORY=false"))
	}
	return errors.Join(errs...)
}

// getEnv returns the environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvDuration accepts Go durations ("5s") or whole seconds ("5").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvList splits a comma-separated value, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	valueStr, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
