package pricefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func testConfig() *Config {
	return &Config{
		ReconnectDelay:    10 * time.Millisecond,
		MaxReconnectDelay: 50 * time.Millisecond,
		PingInterval:      time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      time.Second,
	}
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func writeJSON(t *testing.T, c *websocket.Conn, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Errorf("marshal: %v", err)
		return
	}
	if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Errorf("write: %v", err)
	}
}

func TestFeed_SubscribesAndRecordsTrades(t *testing.T) {
	subscribed := make(chan subscribeRequest, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer c.Close()

		_, msg, err := c.ReadMessage()
		if err != nil {
			return
		}
		var req subscribeRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			t.Errorf("unmarshal subscribe: %v", err)
			return
		}
		subscribed <- req

		writeJSON(t, c, map[string]string{"type": "heartbeat"})
		writeJSON(t, c, map[string]string{"type": "trade", "market": "BTC-USD", "price": "not-a-number"})
		writeJSON(t, c, map[string]string{"type": "trade", "market": "btc-usd", "price": "64000.50"})
		writeJSON(t, c, map[string]string{"type": "ticker", "market": "ETH-USD", "price": "3000"})

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	feed, err := Dial(context.Background(), wsURL(server), []string{"btc-usd", " eth-usd ", ""}, testConfig(), zerolog.Nop())
	require.NoError(t, err)
	defer feed.Close()

	select {
	case req := <-subscribed:
		assert.Equal(t, "subscribe", req.Type)
		assert.Equal(t, []string{"BTC-USD", "ETH-USD"}, req.Markets)
	case <-time.After(2 * time.Second):
		t.Fatal("no subscribe request")
	}

	require.Eventually(t, func() bool {
		_, ok := feed.LastPrice("ETH-USD")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	btc, ok := feed.LastPrice("BTC-USD")
	require.True(t, ok)
	assert.True(t, btc.Equal(decimal.RequireFromString("64000.50")))
	assert.Len(t, feed.Snapshot(), 2)
}

func TestFeed_ReconnectsAndResubscribes(t *testing.T) {
	var connections atomic.Int32
	var mu sync.Mutex
	var subscribes int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		n := connections.Add(1)

		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
		mu.Lock()
		subscribes++
		mu.Unlock()

		if n == 1 {
			writeJSON(t, c, map[string]string{"type": "trade", "market": "BTC-USD", "price": "100"})
			// Drop the first connection.
			return
		}
		writeJSON(t, c, map[string]string{"type": "trade", "market": "BTC-USD", "price": "200"})
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	feed, err := Dial(context.Background(), wsURL(server), []string{"BTC-USD"}, testConfig(), zerolog.Nop())
	require.NoError(t, err)
	defer feed.Close()

	require.Eventually(t, func() bool {
		p, ok := feed.LastPrice("BTC-USD")
		return ok && p.Equal(decimal.NewFromInt(200))
	}, 3*time.Second, 5*time.Millisecond)

	assert.GreaterOrEqual(t, connections.Load(), int32(2))
	mu.Lock()
	assert.GreaterOrEqual(t, subscribes, 2)
	mu.Unlock()
}

func TestFeed_DialFailure(t *testing.T) {
	_, err := Dial(context.Background(), "ws://127.0.0.1:1", nil, testConfig(), zerolog.Nop())
	assert.Error(t, err)
}

func TestFeed_CloseIsIdempotent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	feed, err := Dial(context.Background(), wsURL(server), nil, testConfig(), zerolog.Nop())
	require.NoError(t, err)

	assert.NoError(t, feed.Close())
	assert.NoError(t, feed.Close())
}

func TestPrices_IgnoresOlderUpdates(t *testing.T) {
	p := NewPrices()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	p.Set("btc-usd", decimal.NewFromInt(2), now)
	p.Set("BTC-USD", decimal.NewFromInt(1), now.Add(-time.Second))

	got, ok := p.LastPrice("BTC-USD")
	require.True(t, ok)
	assert.True(t, got.Equal(decimal.NewFromInt(2)))

	_, ok = p.LastPrice("ETH-USD")
	assert.False(t, ok)
}
