package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"custody-workbench/internal/domain"
	"custody-workbench/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
	DefaultRPS         = 10.0
	DefaultBurst       = 10
)

// Client implements API over HTTP/JSON.
// Only GET requests are retried; mutating calls are attempted exactly once.
type Client struct {
	baseURL     string
	client      *http.Client
	apiKey      string
	limiter     *rate.Limiter
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	logger      zerolog.Logger
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts for reads.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the client logger.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger.With().Str("component", "upstream").Logger()
	}
}

// NewClient creates a new upstream API client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: DefaultTimeout},
		limiter:     rate.NewLimiter(rate.Limit(DefaultRPS), DefaultBurst),
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time interface check.
var _ API = (*Client)(nil)

// call performs one API request. route is the metrics label for the path.
func (c *Client) call(ctx context.Context, method, route, path string, query url.Values, payload, result interface{}) error {
	start := time.Now()
	err := c.do(ctx, method, path, query, payload, result)
	observability.RecordUpstreamRequest(method, route, time.Since(start).Seconds(), err)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", method).Str("route", route).Msg("upstream request failed")
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload, result interface{}) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	retries := 0
	if method == http.MethodGet {
		retries = c.maxRetries
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			apiErr := newAPIError(resp.StatusCode, respBody)
			if retryable(resp.StatusCode) {
				lastErr = apiErr
				continue
			}
			return apiErr
		}

		if result != nil && len(bytes.TrimSpace(respBody)) > 0 {
			if err := json.Unmarshal(respBody, result); err != nil {
				return fmt.Errorf("unmarshal response: %w", err)
			}
		}
		return nil
	}

	if retries == 0 {
		return lastErr
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// GetQuote requests a time-bounded price quote.
func (c *Client) GetQuote(ctx context.Context, req QuoteRequest) (*domain.Quote, error) {
	query := url.Values{}
	query.Set("market", req.Market)
	query.Set("side", req.Side.String())
	query.Set("amount", req.Amount.String())

	var q domain.Quote
	if err := c.call(ctx, http.MethodGet, "/quotes", "/quotes", query, nil, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// ExecuteQuote executes a previously issued quote by id.
func (c *Client) ExecuteQuote(ctx context.Context, quoteID string) (*domain.Execution, error) {
	payload := map[string]string{"quote_id": quoteID}

	var exec domain.Execution
	if err := c.call(ctx, http.MethodPost, "/quote-executions", "/quote-executions", nil, payload, &exec); err != nil {
		return nil, err
	}
	if exec.QuoteID == "" {
		exec.QuoteID = quoteID
	}
	return &exec, nil
}

// CreateOrder submits a market, limit or stop order.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*domain.Order, error) {
	var order domain.Order
	if err := c.call(ctx, http.MethodPost, "/orders", "/orders", nil, req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders returns the account's orders.
func (c *Client) ListOrders(ctx context.Context) ([]domain.Order, error) {
	var orders []domain.Order
	if err := c.call(ctx, http.MethodGet, "/orders", "/orders", nil, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// CancelOrder cancels an open order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	query := url.Values{}
	query.Set("id", orderID)
	return c.call(ctx, http.MethodDelete, "/orders", "/orders", query, nil, nil)
}

// CreateCryptoWithdrawal withdraws to an on-chain destination.
func (c *Client) CreateCryptoWithdrawal(ctx context.Context, req CryptoWithdrawalRequest) (*domain.Transfer, error) {
	var t domain.Transfer
	if err := c.call(ctx, http.MethodPost, "/crypto-withdrawals", "/crypto-withdrawals", nil, req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateFiatWithdrawal withdraws to a linked fiat account.
func (c *Client) CreateFiatWithdrawal(ctx context.Context, req FiatWithdrawalRequest) (*domain.Transfer, error) {
	var t domain.Transfer
	if err := c.call(ctx, http.MethodPost, "/fiat-withdrawals", "/fiat-withdrawals", nil, req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTransfers returns transfers, optionally filtered by type.
func (c *Client) ListTransfers(ctx context.Context, q TransferQuery) ([]domain.Transfer, error) {
	query := url.Values{}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Type != "" {
		query.Set("type", q.Type)
	}

	var transfers []domain.Transfer
	if err := c.call(ctx, http.MethodGet, "/transfers", "/transfers", query, nil, &transfers); err != nil {
		return nil, err
	}
	return transfers, nil
}

// GetTransfer looks up one transfer's current state.
func (c *Client) GetTransfer(ctx context.Context, transferID string) (*domain.Transfer, error) {
	var t domain.Transfer
	path := "/transfers/" + url.PathEscape(transferID)
	if err := c.call(ctx, http.MethodGet, "/transfers/{id}", path, nil, nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListConversions returns stablecoin conversions.
func (c *Client) ListConversions(ctx context.Context) ([]domain.Conversion, error) {
	var conversions []domain.Conversion
	if err := c.call(ctx, http.MethodGet, "/stablecoin-conversions", "/stablecoin-conversions", nil, nil, &conversions); err != nil {
		return nil, err
	}
	return conversions, nil
}

// ListExecutions returns quote executions.
func (c *Client) ListExecutions(ctx context.Context) ([]domain.Execution, error) {
	var executions []domain.Execution
	if err := c.call(ctx, http.MethodGet, "/quote-executions", "/quote-executions", nil, nil, &executions); err != nil {
		return nil, err
	}
	return executions, nil
}
