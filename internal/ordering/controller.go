// Package ordering validates and submits orders for one session in one of
// four modes: quote execution, market, limit and stop.
package ordering

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"custody-workbench/internal/clock"
	"custody-workbench/internal/collections"
	"custody-workbench/internal/domain"
	"custody-workbench/internal/notify"
	"custody-workbench/internal/observability"
	"custody-workbench/internal/upstream"
	"custody-workbench/internal/validation"
)

var (
	// ErrInvalidOrder is returned when the fields fail the mode's rules.
	// No request is issued.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrNoActiveQuote is returned in QUOTE mode when no unexpired quote
	// matches the submitted market, side and amount.
	ErrNoActiveQuote = errors.New("no active quote")

	// ErrSubmitInFlight is returned while a previous submission is pending.
	ErrSubmitInFlight = errors.New("submission in flight")
)

// API is the upstream surface used for orders.
type API interface {
	CreateOrder(ctx context.Context, req upstream.OrderRequest) (*domain.Order, error)
	ExecuteQuote(ctx context.Context, quoteID string) (*domain.Execution, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// QuoteSource exposes the session's active quote.
type QuoteSource interface {
	Active() (*domain.Quote, bool)
	Consume(id string) bool
}

// PriceSource returns the last traded price of a market.
type PriceSource interface {
	LastPrice(market string) (decimal.Decimal, bool)
}

// SubmissionRecorder journals mutating calls.
type SubmissionRecorder interface {
	RecordSubmission(ctx context.Context, s domain.Submission)
}

// Fields are the order inputs as entered.
type Fields struct {
	Market      string `json:"market" form:"market"`
	Side        string `json:"side" form:"side"`
	Amount      string `json:"amount" form:"amount"`
	Price       string `json:"price,omitempty" form:"price"`
	StopPrice   string `json:"stop_price,omitempty" form:"stop_price"`
	TimeInForce string `json:"time_in_force,omitempty" form:"time_in_force"`
}

func (f Fields) normalize() Fields {
	return Fields{
		Market:      strings.ToUpper(strings.TrimSpace(f.Market)),
		Side:        strings.ToUpper(strings.TrimSpace(f.Side)),
		Amount:      strings.TrimSpace(f.Amount),
		Price:       strings.TrimSpace(f.Price),
		StopPrice:   strings.TrimSpace(f.StopPrice),
		TimeInForce: strings.ToUpper(strings.TrimSpace(f.TimeInForce)),
	}
}

// rule binds one field to a validator tag.
type rule struct {
	name string
	get  func(Fields) string
	tag  string
}

var (
	ruleMarket    = rule{"market", func(f Fields) string { return f.Market }, "required"}
	ruleSide      = rule{"side", func(f Fields) string { return f.Side }, "required,oneof=BUY SELL"}
	ruleAmount    = rule{"amount", func(f Fields) string { return f.Amount }, validation.TagPositiveDecimal}
	rulePrice     = rule{"price", func(f Fields) string { return f.Price }, validation.TagPositiveDecimal}
	ruleStopPrice = rule{"stop_price", func(f Fields) string { return f.StopPrice }, validation.TagPositiveDecimal}
	ruleTIF       = rule{"time_in_force", func(f Fields) string { return f.TimeInForce }, "omitempty,oneof=GTC IOC FOK POST_ONLY"}
)

// modeRules lists the field rules per mode. QUOTE additionally needs an
// active quote, checked separately.
var modeRules = map[domain.OrderType][]rule{
	domain.OrderTypeQuote:  {ruleMarket, ruleSide, ruleAmount},
	domain.OrderTypeMarket: {ruleMarket, ruleSide, ruleAmount},
	domain.OrderTypeLimit:  {ruleMarket, ruleSide, ruleAmount, rulePrice, ruleTIF},
	domain.OrderTypeStop:   {ruleMarket, ruleSide, ruleAmount, rulePrice, ruleStopPrice, ruleTIF},
}

// Check is the pre-submission view of an order.
type Check struct {
	Mode      domain.OrderType `json:"mode"`
	CanSubmit bool             `json:"can_submit"`
	Invalid   []string         `json:"invalid,omitempty"`
	NoQuote   bool             `json:"no_quote,omitempty"`
	// EstimatedTotal is display-only and empty when it cannot be computed.
	EstimatedTotal string `json:"estimated_total,omitempty"`
}

// Result is the upstream acknowledgement of a submission. Exactly one of
// Order and Execution is set.
type Result struct {
	Mode      domain.OrderType  `json:"mode"`
	Order     *domain.Order     `json:"order,omitempty"`
	Execution *domain.Execution `json:"execution,omitempty"`
}

// Controller validates and submits orders for one session and keeps its draft.
type Controller struct {
	sessionID string
	api       API
	quotes    QuoteSource
	prices    PriceSource
	cache     collections.Invalidator
	notifier  notify.Notifier
	journal   SubmissionRecorder
	validate  *validator.Validate
	clock     clock.Clock
	logger    zerolog.Logger

	mu         sync.Mutex
	mode       domain.OrderType
	draft      Fields
	submitting bool
}

// Option configures Controller.
type Option func(*Controller)

// WithQuotes sets the quote source used by QUOTE mode.
func WithQuotes(q QuoteSource) Option {
	return func(c *Controller) {
		c.quotes = q
	}
}

// WithPrices sets the last-price source used for the MARKET estimate.
func WithPrices(p PriceSource) Option {
	return func(c *Controller) {
		c.prices = p
	}
}

// WithNotifier sets the notification sink.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Controller) {
		c.notifier = n
	}
}

// WithJournal sets the submission journal.
func WithJournal(j SubmissionRecorder) Option {
	return func(c *Controller) {
		c.journal = j
	}
}

// WithClock sets the clock used to stamp notices.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) {
		c.clock = clk
	}
}

// WithLogger sets the controller logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger.With().Str("component", "ordering").Logger()
	}
}

// NewController creates a controller for the given session.
func NewController(sessionID string, api API, cache collections.Invalidator, opts ...Option) *Controller {
	c := &Controller{
		sessionID: sessionID,
		api:       api,
		cache:     cache,
		notifier:  notify.Nop,
		validate:  validation.New(),
		clock:     clock.New(),
		logger:    zerolog.Nop(),
		mode:      domain.OrderTypeMarket,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetDraft replaces the draft mode and fields.
func (c *Controller) SetDraft(mode domain.OrderType, f Fields) {
	c.mu.Lock()
	c.mode = mode
	c.draft = f
	c.mu.Unlock()
}

// Draft returns the draft mode and fields.
func (c *Controller) Draft() (domain.OrderType, Fields) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode, c.draft
}

// invalid returns the names of fields that fail the mode's rules.
func (c *Controller) invalid(mode domain.OrderType, f Fields) ([]string, error) {
	rules, ok := modeRules[mode]
	if !ok {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidOrder, mode)
	}
	var bad []string
	for _, r := range rules {
		if err := c.validate.Var(r.get(f), r.tag); err != nil {
			bad = append(bad, r.name)
		}
	}
	return bad, nil
}

// activeQuote returns the active quote when it was issued for f.
func (c *Controller) activeQuote(f Fields) (*domain.Quote, bool) {
	if c.quotes == nil {
		return nil, false
	}
	q, ok := c.quotes.Active()
	if !ok {
		return nil, false
	}
	amount, ok := validation.ParsePositive(f.Amount)
	if !ok || !q.Matches(f.Market, domain.Side(f.Side), amount) {
		return nil, false
	}
	return q, true
}

// Validate checks mode and fields without submitting.
func (c *Controller) Validate(mode domain.OrderType, f Fields) error {
	f = f.normalize()
	bad, err := c.invalid(mode, f)
	if err != nil {
		return err
	}
	if len(bad) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidOrder, strings.Join(bad, ", "))
	}
	if mode == domain.OrderTypeQuote {
		if _, ok := c.activeQuote(f); !ok {
			return ErrNoActiveQuote
		}
	}
	return nil
}

// CanSubmit reports whether the order may be offered for confirmation.
func (c *Controller) CanSubmit(mode domain.OrderType, f Fields) bool {
	return c.Validate(mode, f) == nil
}

// Check evaluates mode and fields for display.
func (c *Controller) Check(mode domain.OrderType, f Fields) Check {
	f = f.normalize()
	out := Check{Mode: mode}

	bad, err := c.invalid(mode, f)
	if err != nil {
		out.Invalid = []string{"mode"}
		return out
	}
	out.Invalid = bad
	if mode == domain.OrderTypeQuote {
		_, ok := c.activeQuote(f)
		out.NoQuote = !ok
	}
	out.CanSubmit = len(bad) == 0 && !out.NoQuote

	if total, ok := c.EstimatedTotal(mode, f); ok {
		out.EstimatedTotal = total.StringFixed(2)
	}
	return out
}

// EstimatedTotal returns amount times the reference price of the mode: the
// last traded price for MARKET, the limit price for LIMIT and STOP, and the
// quoted price for QUOTE. It is for display only.
func (c *Controller) EstimatedTotal(mode domain.OrderType, f Fields) (decimal.Decimal, bool) {
	f = f.normalize()
	amount, ok := validation.ParsePositive(f.Amount)
	if !ok {
		return decimal.Zero, false
	}

	var price decimal.Decimal
	switch mode {
	case domain.OrderTypeMarket:
		if c.prices == nil {
			return decimal.Zero, false
		}
		if price, ok = c.prices.LastPrice(f.Market); !ok {
			return decimal.Zero, false
		}
	case domain.OrderTypeLimit, domain.OrderTypeStop:
		if price, ok = validation.ParsePositive(f.Price); !ok {
			return decimal.Zero, false
		}
	case domain.OrderTypeQuote:
		q, ok := c.activeQuote(f)
		if !ok {
			return decimal.Zero, false
		}
		price = q.Price
	default:
		return decimal.Zero, false
	}
	return amount.Mul(price), true
}

// Submit validates and submits an order. QUOTE mode executes the active
// quote by id; the other modes create an order. On success the draft's
// amount and prices are cleared; on failure the draft is kept.
func (c *Controller) Submit(ctx context.Context, mode domain.OrderType, f Fields) (*Result, error) {
	c.mu.Lock()
	if c.submitting {
		c.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	c.mode = mode
	c.draft = f
	c.mu.Unlock()

	f = f.normalize()
	if err := c.Validate(mode, f); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.submitting {
		c.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	c.submitting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.submitting = false
		c.mu.Unlock()
	}()

	var (
		res *Result
		err error
	)
	if mode == domain.OrderTypeQuote {
		res, err = c.executeQuote(ctx, f)
	} else {
		res, err = c.createOrder(ctx, mode, f)
	}
	observability.RecordOrderSubmission(mode.String(), err)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.draft.Amount = ""
	c.draft.Price = ""
	c.draft.StopPrice = ""
	c.mu.Unlock()

	c.cache.Invalidate(ctx, collections.KindOrders, collections.KindExecutions)
	return res, nil
}

func (c *Controller) executeQuote(ctx context.Context, f Fields) (*Result, error) {
	q, ok := c.activeQuote(f)
	if !ok {
		return nil, ErrNoActiveQuote
	}

	exec, err := c.api.ExecuteQuote(ctx, q.ID)
	sub := domain.Submission{
		Kind:   domain.SubmissionQuoteExecution,
		Market: f.Market,
		Side:   f.Side,
		Amount: f.Amount,
	}
	if err != nil {
		c.fail(ctx, notify.TopicQuote, sub, err)
		return nil, err
	}

	c.quotes.Consume(q.ID)
	sub.UpstreamID = exec.ID
	c.succeed(ctx, notify.TopicQuote, sub,
		fmt.Sprintf("Executed %s %s %s at %s", f.Side, f.Amount, f.Market, q.Price.String()))
	return &Result{Mode: domain.OrderTypeQuote, Execution: exec}, nil
}

func (c *Controller) createOrder(ctx context.Context, mode domain.OrderType, f Fields) (*Result, error) {
	amount, _ := validation.ParsePositive(f.Amount)
	req := upstream.OrderRequest{
		Market: f.Market,
		Side:   domain.Side(f.Side),
		Amount: amount,
		Type:   mode,
	}
	if mode.RequiresPrice() {
		price, _ := validation.ParsePositive(f.Price)
		req.Price = &price
		req.TimeInForce = domain.TimeInForce(f.TimeInForce)
		if req.TimeInForce == "" {
			req.TimeInForce = domain.TimeInForceGTC
		}
	}
	if mode == domain.OrderTypeStop {
		stop, _ := validation.ParsePositive(f.StopPrice)
		req.StopPrice = &stop
	}

	order, err := c.api.CreateOrder(ctx, req)
	sub := domain.Submission{
		Kind:   domain.SubmissionOrder,
		Market: f.Market,
		Side:   f.Side,
		Amount: f.Amount,
	}
	if err != nil {
		c.fail(ctx, notify.TopicOrder, sub, err)
		return nil, err
	}

	sub.UpstreamID = order.ID
	c.succeed(ctx, notify.TopicOrder, sub,
		fmt.Sprintf("%s order placed: %s %s %s", mode, f.Side, f.Amount, f.Market))
	return &Result{Mode: mode, Order: order}, nil
}

// Cancel cancels an order and invalidates the orders collection on success.
func (c *Controller) Cancel(ctx context.Context, orderID string) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return fmt.Errorf("%w: order id required", ErrInvalidOrder)
	}

	err := c.api.CancelOrder(ctx, orderID)
	observability.RecordOrderCancel(err)

	sub := domain.Submission{Kind: domain.SubmissionCancel, UpstreamID: orderID}
	if err != nil {
		c.fail(ctx, notify.TopicCancel, sub, err)
		return err
	}

	c.cache.Invalidate(ctx, collections.KindOrders)
	c.succeed(ctx, notify.TopicCancel, sub, "Order cancelled")
	return nil
}

func (c *Controller) succeed(ctx context.Context, topic string, sub domain.Submission, msg string) {
	sub.SessionID = c.sessionID
	sub.Outcome = domain.OutcomeSucceeded
	c.record(ctx, sub)

	c.logger.Info().
		Str("kind", sub.Kind.String()).
		Str("upstream_id", sub.UpstreamID).
		Msg("submission succeeded")
	c.notifier.Notify(ctx, notify.Notice{
		SessionID: c.sessionID,
		Level:     notify.LevelSuccess,
		Topic:     topic,
		Message:   msg,
		Ref:       sub.UpstreamID,
		At:        c.clock.Now(),
	})
}

func (c *Controller) fail(ctx context.Context, topic string, sub domain.Submission, err error) {
	sub.SessionID = c.sessionID
	sub.Outcome = domain.OutcomeFailed
	sub.Message = upstream.Message(err)
	c.record(ctx, sub)

	c.logger.Warn().Err(err).Str("kind", sub.Kind.String()).Msg("submission failed")
	c.notifier.Notify(ctx, notify.Notice{
		SessionID: c.sessionID,
		Level:     notify.LevelError,
		Topic:     topic,
		Message:   sub.Message,
		Ref:       sub.UpstreamID,
		At:        c.clock.Now(),
	})
}

func (c *Controller) record(ctx context.Context, sub domain.Submission) {
	if c.journal != nil {
		c.journal.RecordSubmission(ctx, sub)
	}
}
