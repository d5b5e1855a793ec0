// Package quote holds a session's time-bounded price quote and runs its
// countdown. A quote is dropped when it expires, when it is executed, or when
// any of the inputs it was issued for change.
package quote

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"custody-workbench/internal/clock"
	"custody-workbench/internal/domain"
	"custody-workbench/internal/observability"
	"custody-workbench/internal/upstream"
	"custody-workbench/internal/validation"
)

const (
	// DefaultTick is the countdown resolution.
	DefaultTick = time.Second

	// DefaultFetchTimeout bounds a renewal fetch started by the countdown.
	DefaultFetchTimeout = 10 * time.Second
)

var (
	// ErrQuoteUnavailable is returned when the upstream could not price the request.
	ErrQuoteUnavailable = errors.New("QUOTE_UNAVAILABLE")

	// ErrInvalidAmount is returned when the amount is not a positive number.
	// No request is issued.
	ErrInvalidAmount = errors.New("amount must be a positive number")

	// ErrInvalidInput is returned when market or side is missing or unknown.
	ErrInvalidInput = errors.New("invalid quote inputs")

	// ErrSuperseded is returned when a fetch completed after its inputs
	// changed or the manager was closed. Its result is discarded.
	ErrSuperseded = errors.New("quote request superseded")
)

// Fetcher requests quotes from the upstream.
type Fetcher interface {
	GetQuote(ctx context.Context, req upstream.QuoteRequest) (*domain.Quote, error)
}

// Holder mirrors the active quote, typically the owning session.
type Holder interface {
	ReplaceQuote(q *domain.Quote)
}

// Inputs are the raw values a quote is keyed on, as entered.
type Inputs struct {
	Market string      `json:"market"`
	Side   domain.Side `json:"side"`
	Amount string      `json:"amount"`
}

func (in Inputs) normalize() Inputs {
	return Inputs{
		Market: strings.ToUpper(strings.TrimSpace(in.Market)),
		Side:   domain.Side(strings.ToUpper(strings.TrimSpace(string(in.Side)))),
		Amount: strings.TrimSpace(in.Amount),
	}
}

// request converts the inputs to a fetch request.
func (in Inputs) request() (upstream.QuoteRequest, error) {
	amount, ok := validation.ParsePositive(in.Amount)
	if !ok {
		return upstream.QuoteRequest{}, ErrInvalidAmount
	}
	if in.Market == "" || !in.Side.IsValid() {
		return upstream.QuoteRequest{}, ErrInvalidInput
	}
	return upstream.QuoteRequest{Market: in.Market, Side: in.Side, Amount: amount}, nil
}

// State is a snapshot of the manager.
type State struct {
	Inputs    Inputs        `json:"inputs"`
	Quote     *domain.Quote `json:"quote,omitempty"`
	Remaining int           `json:"remaining"`
	Expiries  int           `json:"expiries"`
}

// Manager owns at most one quote and its countdown timer.
type Manager struct {
	fetcher      Fetcher
	holder       Holder
	clock        clock.Clock
	tick         time.Duration
	fetchTimeout time.Duration
	logger       zerolog.Logger

	mu        sync.Mutex
	inputs    Inputs
	quote     *domain.Quote
	remaining int
	timer     clock.Timer
	gen       uint64
	expiries  int
	closed    bool
}

// Option configures Manager.
type Option func(*Manager)

// WithHolder mirrors the active quote into h.
func WithHolder(h Holder) Option {
	return func(m *Manager) {
		m.holder = h
	}
}

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithTick sets the countdown interval. Non-positive values keep the default.
func WithTick(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.tick = d
		}
	}
}

// WithFetchTimeout bounds renewal fetches.
func WithFetchTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.fetchTimeout = d
	}
}

// WithLogger sets the manager logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger.With().Str("component", "quote").Logger()
	}
}

// NewManager creates a quote manager.
func NewManager(fetcher Fetcher, opts ...Option) *Manager {
	m := &Manager{
		fetcher:      fetcher,
		clock:        clock.New(),
		tick:         DefaultTick,
		fetchTimeout: DefaultFetchTimeout,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetInputs records the current inputs. Any change to market, side or amount
// discards the held quote. It reports whether the inputs changed.
func (m *Manager) SetInputs(in Inputs) bool {
	in = in.normalize()

	m.mu.Lock()
	defer m.mu.Unlock()

	if in == m.inputs {
		return false
	}
	m.inputs = in
	m.gen++
	if m.quote != nil {
		m.logger.Debug().Str("quote_id", m.quote.ID).Msg("inputs changed, quote discarded")
		m.clearLocked()
	}
	return true
}

// RequestQuote sets the inputs and fetches a quote for them.
func (m *Manager) RequestQuote(ctx context.Context, market string, side domain.Side, amount string) (*domain.Quote, error) {
	m.SetInputs(Inputs{Market: market, Side: side, Amount: amount})

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrSuperseded
	}
	req, err := m.inputs.request()
	gen := m.gen
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return m.fetch(ctx, gen, req)
}

func (m *Manager) fetch(ctx context.Context, gen uint64, req upstream.QuoteRequest) (*domain.Quote, error) {
	q, err := m.fetcher.GetQuote(ctx, req)
	observability.RecordQuoteRequest(err)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || gen != m.gen {
		return nil, ErrSuperseded
	}
	if err != nil {
		m.logger.Warn().Err(err).Str("market", req.Market).Str("side", req.Side.String()).Msg("quote fetch failed")
		return nil, ErrQuoteUnavailable
	}

	remaining := q.Remaining(m.clock.Now())
	if remaining == 0 {
		m.logger.Warn().Str("quote_id", q.ID).Time("expires_at", q.ExpiresAt).Msg("quote already expired")
		return nil, ErrQuoteUnavailable
	}

	m.clearLocked()
	cp := *q
	m.quote = &cp
	m.remaining = remaining
	m.timer = m.clock.Every(m.tick, m.onTick)
	observability.QuoteCountdownStarted()
	if m.holder != nil {
		m.holder.ReplaceQuote(&cp)
	}

	m.logger.Debug().
		Str("quote_id", cp.ID).
		Str("price", cp.Price.String()).
		Int("remaining", remaining).
		Msg("quote received")

	out := cp
	return &out, nil
}

func (m *Manager) onTick() {
	m.mu.Lock()
	if m.quote == nil {
		m.mu.Unlock()
		return
	}

	r := m.quote.Remaining(m.clock.Now())
	if r < m.remaining {
		m.remaining = r
	}
	if m.remaining > 0 {
		m.mu.Unlock()
		return
	}

	m.logger.Debug().Str("quote_id", m.quote.ID).Msg("quote expired")
	m.clearLocked()
	m.expiries++
	observability.RecordQuoteExpired()

	req, err := m.inputs.request()
	gen := m.gen
	closed := m.closed
	m.mu.Unlock()

	if err != nil || closed {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.fetchTimeout)
	defer cancel()
	if _, err := m.fetch(ctx, gen, req); err != nil && !errors.Is(err, ErrSuperseded) {
		m.logger.Warn().Err(err).Msg("quote renewal failed")
	}
}

// clearLocked drops the quote and releases its timer. Caller holds mu.
func (m *Manager) clearLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
		observability.QuoteCountdownStopped()
	}
	if m.quote != nil && m.holder != nil {
		m.holder.ReplaceQuote(nil)
	}
	m.quote = nil
	m.remaining = 0
}

// State returns a snapshot.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := State{
		Inputs:    m.inputs,
		Remaining: m.remaining,
		Expiries:  m.expiries,
	}
	if m.quote != nil {
		q := *m.quote
		s.Quote = &q
	}
	return s
}

// Active returns the held quote while it has validity left.
func (m *Manager) Active() (*domain.Quote, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.quote == nil || m.remaining == 0 || m.quote.Remaining(m.clock.Now()) == 0 {
		return nil, false
	}
	q := *m.quote
	return &q, true
}

// Matches reports whether the active quote was issued for market, side and amount.
func (m *Manager) Matches(market string, side domain.Side, amount decimal.Decimal) bool {
	q, ok := m.Active()
	return ok && q.Matches(market, side, amount)
}

// Consume drops the quote with the given id after it was executed.
// It reports whether that quote was held.
func (m *Manager) Consume(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.quote == nil || m.quote.ID != id {
		return false
	}
	m.clearLocked()
	return true
}

// Close stops the countdown and discards the quote. In-flight fetches
// complete but their results are dropped. Safe to call more than once.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	m.gen++
	m.clearLocked()
}
