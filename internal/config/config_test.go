package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"QUOTE_TICK", "STATUS_POLL_INTERVAL", "LEDGER_PAGE_SIZE", "UPSTREAM_MAX_RETRIES", "UPSTREAM_TIMEOUT"} {
		t.Setenv(key, "")
	}
	t.Setenv("UPSTREAM_BASE_URL", "http://localhost:8081/api/v1")
	t.Setenv("USE_MEMORY", "true")

	cfg := Load()

	assert.Equal(t, time.Second, cfg.QuoteTick)
	assert.Equal(t, 5*time.Second, cfg.StatusPollInterval)
	assert.Equal(t, 20, cfg.LedgerPageSize)
	assert.Equal(t, 3, cfg.Upstream.MaxRetries)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("UPSTREAM_BASE_URL", "https://custody.example.com/api")
	t.Setenv("UPSTREAM_RPS", "2.5")
	t.Setenv("QUOTE_TICK", "500ms")
	t.Setenv("STATUS_POLL_INTERVAL", "7")
	t.Setenv("USE_MEMORY", "false")
	t.Setenv("PRICE_FEED_MARKETS", "btc-usd, ,eth-usd")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := Load()

	assert.Equal(t, "https://custody.example.com/api", cfg.Upstream.BaseURL)
	assert.Equal(t, 2.5, cfg.Upstream.RPS)
	assert.Equal(t, 500*time.Millisecond, cfg.QuoteTick)
	assert.Equal(t, 7*time.Second, cfg.StatusPollInterval)
	assert.False(t, cfg.Storage.UseMemory)
	assert.Equal(t, []string{"btc-usd", "eth-usd"}, cfg.PriceFeed.Markets)
	assert.Equal(t, 0, cfg.Redis.DB)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		description string
		mutate      func(*Config)
		wantErr     string
	}{
		{
			description: "empty base url",
			mutate:      func(c *Config) { c.Upstream.BaseURL = " " },
			wantErr:     "UPSTREAM_BASE_URL",
		},
		{
			description: "zero quote tick",
			mutate:      func(c *Config) { c.QuoteTick = 0 },
			wantErr:     "QUOTE_TICK",
		},
		{
			description: "negative poll interval",
			mutate:      func(c *Config) { c.StatusPollInterval = -time.Second },
			wantErr:     "STATUS_POLL_INTERVAL",
		},
		{
			description: "zero page size",
			mutate:      func(c *Config) { c.LedgerPageSize = 0 },
			wantErr:     "LEDGER_PAGE_SIZE",
		},
		{
			description: "postgres required without memory",
			mutate: func(c *Config) {
				c.Storage.UseMemory = false
				c.Storage.PostgresDSN = ""
			},
			wantErr: "POSTGRES_DSN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
