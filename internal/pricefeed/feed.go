// Package pricefeed keeps the last traded price per market from a websocket
// trade stream. It backs the MARKET estimated total and ledger usd values.
package pricefeed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"custody-workbench/internal/observability"
)

// Config configures feed connection behavior.
type Config struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultConfig returns default feed configuration.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// Feed subscribes to trades for a set of markets and records the last price.
type Feed struct {
	*Prices

	endpoint string
	markets  []string
	config   Config
	logger   zerolog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	done chan struct{}
	wg   sync.WaitGroup
}

// Dial connects to endpoint, subscribes to markets and starts the read and
// ping loops.
func Dial(ctx context.Context, endpoint string, markets []string, config *Config, logger zerolog.Logger) (*Feed, error) {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}

	norm := make([]string, 0, len(markets))
	for _, m := range markets {
		if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
			norm = append(norm, m)
		}
	}

	f := &Feed{
		Prices:   NewPrices(),
		endpoint: endpoint,
		markets:  norm,
		config:   cfg,
		logger:   logger.With().Str("component", "pricefeed").Logger(),
		done:     make(chan struct{}),
	}

	if err := f.connect(ctx); err != nil {
		return nil, err
	}

	f.wg.Add(1)
	go f.readLoop()

	f.wg.Add(1)
	go f.pingLoop()

	return f, nil
}

// connect dials and sends the subscription.
func (f *Feed) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, f.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	if err := f.subscribe(conn); err != nil {
		conn.Close()
		return err
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()
	return nil
}

func (f *Feed) subscribe(conn *websocket.Conn) error {
	if len(f.markets) == 0 {
		return nil
	}
	payload, err := json.Marshal(subscribeRequest{Type: "subscribe", Markets: f.markets})
	if err != nil {
		return fmt.Errorf("encode subscribe: %w", err)
	}
	conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("write subscribe: %w", err)
	}
	return nil
}

// Close closes the connection and waits for the loops to exit.
func (f *Feed) Close() error {
	if f.closed.Swap(true) {
		return nil
	}

	close(f.done)

	f.connMu.Lock()
	if f.conn != nil {
		f.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		f.conn.Close()
	}
	f.connMu.Unlock()

	f.wg.Wait()
	return nil
}

// readLoop reads messages and reconnects with exponential backoff on error.
func (f *Feed) readLoop() {
	defer f.wg.Done()

	for !f.closed.Load() {
		f.connMu.Lock()
		conn := f.conn
		f.connMu.Unlock()

		conn.SetReadDeadline(time.Now().Add(f.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if f.closed.Load() {
				return
			}
			f.logger.Warn().Err(err).Msg("price feed read failed, reconnecting")
			if !f.reconnect() {
				return
			}
			continue
		}

		f.handleMessage(message)
	}
}

// reconnect replaces the connection, retrying until it succeeds or the feed
// is closed. It reports whether a new connection is in place.
func (f *Feed) reconnect() bool {
	f.connMu.Lock()
	if f.conn != nil {
		f.conn.Close()
	}
	f.connMu.Unlock()

	delay := f.config.ReconnectDelay
	for {
		select {
		case <-f.done:
			return false
		case <-time.After(delay):
		}

		observability.RecordFeedReconnect()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := f.connect(ctx)
		cancel()
		if err == nil {
			if f.closed.Load() {
				f.connMu.Lock()
				f.conn.Close()
				f.connMu.Unlock()
				return false
			}
			f.logger.Info().Msg("price feed reconnected")
			return true
		}

		f.logger.Warn().Err(err).Dur("delay", delay).Msg("price feed reconnect failed")
		delay *= 2
		if delay > f.config.MaxReconnectDelay {
			delay = f.config.MaxReconnectDelay
		}
	}
}

// handleMessage records trade and ticker prices. Other messages are ignored.
func (f *Feed) handleMessage(message []byte) {
	var msg tradeMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		f.logger.Debug().Err(err).Msg("ignoring undecodable message")
		return
	}

	switch msg.Type {
	case "trade", "ticker":
	case "error":
		f.logger.Warn().Str("message", msg.Message).Msg("price feed error")
		return
	default:
		return
	}

	price, err := decimal.NewFromString(msg.Price)
	if err != nil || !price.IsPositive() || msg.Market == "" {
		f.logger.Debug().Str("market", msg.Market).Str("price", msg.Price).Msg("ignoring invalid price")
		return
	}

	at := msg.Time
	if at.IsZero() {
		at = time.Now()
	}
	f.Set(msg.Market, price, at)
	observability.RecordPriceUpdate()
}

// pingLoop sends periodic ping frames to keep connection alive.
func (f *Feed) pingLoop() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			f.connMu.Lock()
			if f.conn != nil {
				f.conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
				if err := f.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					f.logger.Debug().Err(err).Msg("ping failed")
				}
			}
			f.connMu.Unlock()
		}
	}
}

// Wire messages

type subscribeRequest struct {
	Type    string   `json:"type"`
	Markets []string `json:"markets"`
}

type tradeMessage struct {
	Type    string    `json:"type"`
	Market  string    `json:"market"`
	Price   string    `json:"price"`
	Time    time.Time `json:"time"`
	Message string    `json:"message,omitempty"`
}
