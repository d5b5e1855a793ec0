package ordering

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"custody-workbench/internal/clock"
	"custody-workbench/internal/collections"
	"custody-workbench/internal/domain"
	"custody-workbench/internal/notify"
	"custody-workbench/internal/upstream"
)

// Mock implementations
type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) CreateOrder(ctx context.Context, req upstream.OrderRequest) (*domain.Order, error) {
	args := m.Called(ctx, req)
	o, _ := args.Get(0).(*domain.Order)
	return o, args.Error(1)
}

func (m *MockAPI) ExecuteQuote(ctx context.Context, quoteID string) (*domain.Execution, error) {
	args := m.Called(ctx, quoteID)
	e, _ := args.Get(0).(*domain.Execution)
	return e, args.Error(1)
}

func (m *MockAPI) CancelOrder(ctx context.Context, orderID string) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

type MockQuoteSource struct {
	mock.Mock
}

func (m *MockQuoteSource) Active() (*domain.Quote, bool) {
	args := m.Called()
	q, _ := args.Get(0).(*domain.Quote)
	return q, args.Bool(1)
}

func (m *MockQuoteSource) Consume(id string) bool {
	args := m.Called(id)
	return args.Bool(0)
}

type fixedPrices map[string]decimal.Decimal

func (p fixedPrices) LastPrice(market string) (decimal.Decimal, bool) {
	d, ok := p[market]
	return d, ok
}

type invalidations struct {
	kinds []collections.Kind
}

func (i *invalidations) Invalidate(_ context.Context, kinds ...collections.Kind) {
	i.kinds = append(i.kinds, kinds...)
}

type journalSpy struct {
	subs []domain.Submission
}

func (j *journalSpy) RecordSubmission(_ context.Context, s domain.Submission) {
	j.subs = append(j.subs, s)
}

type fixture struct {
	api     *MockAPI
	quotes  *MockQuoteSource
	inv     *invalidations
	rec     *notify.Recorder
	journal *journalSpy
	ctrl    *Controller
}

func newFixture() *fixture {
	fx := &fixture{
		api:     &MockAPI{},
		quotes:  &MockQuoteSource{},
		inv:     &invalidations{},
		rec:     notify.NewRecorder(0),
		journal: &journalSpy{},
	}
	fx.ctrl = NewController("s1", fx.api, fx.inv,
		WithQuotes(fx.quotes),
		WithPrices(fixedPrices{"BTC-USD": decimal.RequireFromString("64000")}),
		WithNotifier(fx.rec),
		WithJournal(fx.journal),
		WithClock(clock.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))),
	)
	return fx
}

func activeQuote() *domain.Quote {
	return &domain.Quote{
		ID:        "q1",
		Market:    "BTC-USD",
		Side:      domain.SideBuy,
		Amount:    decimal.RequireFromString("0.5"),
		Price:     decimal.RequireFromString("67525.00"),
		ExpiresAt: time.Date(2024, 5, 1, 12, 0, 30, 0, time.UTC),
	}
}

func TestController_CanSubmitPriceModes(t *testing.T) {
	fx := newFixture()
	base := Fields{Market: "BTC-USD", Side: "BUY"}

	tests := []struct {
		description string
		mode        domain.OrderType
		amount      string
		price       string
		stop        string
		want        bool
	}{
		{"limit valid", domain.OrderTypeLimit, "0.5", "65000", "", true},
		{"limit zero amount", domain.OrderTypeLimit, "0", "65000", "", false},
		{"limit missing price", domain.OrderTypeLimit, "0.5", "", "", false},
		{"limit negative price", domain.OrderTypeLimit, "0.5", "-1", "", false},
		{"limit non-numeric price", domain.OrderTypeLimit, "0.5", "abc", "", false},
		{"stop valid", domain.OrderTypeStop, "1", "65000", "64000", true},
		{"stop missing stop price", domain.OrderTypeStop, "1", "65000", "", false},
		{"stop zero stop price", domain.OrderTypeStop, "1", "65000", "0", false},
		{"stop missing price", domain.OrderTypeStop, "1", "", "64000", false},
		{"market valid", domain.OrderTypeMarket, "2", "", "", true},
		{"market zero amount", domain.OrderTypeMarket, "0", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			f := base
			f.Amount, f.Price, f.StopPrice = tt.amount, tt.price, tt.stop
			assert.Equal(t, tt.want, fx.ctrl.CanSubmit(tt.mode, f))
		})
	}
}

func TestController_SideAndTimeInForceRules(t *testing.T) {
	fx := newFixture()

	assert.False(t, fx.ctrl.CanSubmit(domain.OrderTypeMarket, Fields{Market: "BTC-USD", Amount: "1"}))
	assert.False(t, fx.ctrl.CanSubmit(domain.OrderTypeMarket, Fields{Market: "BTC-USD", Side: "HOLD", Amount: "1"}))
	assert.True(t, fx.ctrl.CanSubmit(domain.OrderTypeMarket, Fields{Market: "btc-usd", Side: "sell", Amount: "1"}))

	limit := Fields{Market: "BTC-USD", Side: "BUY", Amount: "1", Price: "1", TimeInForce: "GTD"}
	err := fx.ctrl.Validate(domain.OrderTypeLimit, limit)
	require.ErrorIs(t, err, ErrInvalidOrder)
	assert.Contains(t, err.Error(), "time_in_force")

	limit.TimeInForce = "ioc"
	assert.NoError(t, fx.ctrl.Validate(domain.OrderTypeLimit, limit))

	assert.ErrorIs(t, fx.ctrl.Validate("ICEBERG", limit), ErrInvalidOrder)
}

func TestController_QuoteModeNeedsMatchingQuote(t *testing.T) {
	fx := newFixture()
	f := Fields{Market: "BTC-USD", Side: "BUY", Amount: "0.5"}

	fx.quotes.On("Active").Return(nil, false).Once()
	assert.ErrorIs(t, fx.ctrl.Validate(domain.OrderTypeQuote, f), ErrNoActiveQuote)

	fx.quotes.On("Active").Return(activeQuote(), true)
	assert.NoError(t, fx.ctrl.Validate(domain.OrderTypeQuote, f))

	f.Amount = "0.6"
	assert.ErrorIs(t, fx.ctrl.Validate(domain.OrderTypeQuote, f), ErrNoActiveQuote)
}

// LIMIT amount=0.5 price=65000 displays 32500.00.
func TestController_EstimatedTotalLimit(t *testing.T) {
	fx := newFixture()

	check := fx.ctrl.Check(domain.OrderTypeLimit, Fields{Market: "BTC-USD", Side: "BUY", Amount: "0.5", Price: "65000"})

	assert.True(t, check.CanSubmit)
	assert.Equal(t, "32500.00", check.EstimatedTotal)
}

func TestController_EstimatedTotal(t *testing.T) {
	fx := newFixture()
	fx.quotes.On("Active").Return(activeQuote(), true)

	tests := []struct {
		description string
		mode        domain.OrderType
		fields      Fields
		want        string
		ok          bool
	}{
		{"market uses last price", domain.OrderTypeMarket, Fields{Market: "BTC-USD", Amount: "0.5"}, "32000", true},
		{"market without price", domain.OrderTypeMarket, Fields{Market: "DOGE-USD", Amount: "10"}, "", false},
		{"stop uses limit price", domain.OrderTypeStop, Fields{Amount: "2", Price: "100", StopPrice: "90"}, "200", true},
		{"quote uses quoted price", domain.OrderTypeQuote, Fields{Market: "BTC-USD", Side: "BUY", Amount: "0.5"}, "33762.5", true},
		{"no amount", domain.OrderTypeLimit, Fields{Price: "100"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			got, ok := fx.ctrl.EstimatedTotal(tt.mode, tt.fields)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
			}
		})
	}
}

func TestController_SubmitLimit(t *testing.T) {
	fx := newFixture()
	price := decimal.RequireFromString("65000")
	fx.api.On("CreateOrder", mock.Anything, upstream.OrderRequest{
		Market:      "BTC-USD",
		Side:        domain.SideBuy,
		Amount:      decimal.RequireFromString("0.5"),
		Type:        domain.OrderTypeLimit,
		Price:       &price,
		TimeInForce: domain.TimeInForceGTC,
	}).Return(&domain.Order{ID: "o1", Status: domain.OrderStatusOpen}, nil).Once()

	res, err := fx.ctrl.Submit(context.Background(), domain.OrderTypeLimit,
		Fields{Market: "BTC-USD", Side: "BUY", Amount: "0.5", Price: "65000"})
	require.NoError(t, err)
	require.NotNil(t, res.Order)
	assert.Equal(t, "o1", res.Order.ID)
	fx.api.AssertExpectations(t)

	assert.Equal(t, []collections.Kind{collections.KindOrders, collections.KindExecutions}, fx.inv.kinds)

	mode, draft := fx.ctrl.Draft()
	assert.Equal(t, domain.OrderTypeLimit, mode)
	assert.Equal(t, Fields{Market: "BTC-USD", Side: "BUY"}, draft)

	notices := fx.rec.Notices("s1")
	require.Len(t, notices, 1)
	assert.Equal(t, notify.LevelSuccess, notices[0].Level)
	assert.Equal(t, "o1", notices[0].Ref)

	require.Len(t, fx.journal.subs, 1)
	assert.Equal(t, domain.OutcomeSucceeded, fx.journal.subs[0].Outcome)
	assert.Equal(t, "s1", fx.journal.subs[0].SessionID)
}

func TestController_SubmitStopCarriesBothPrices(t *testing.T) {
	fx := newFixture()
	fx.api.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req upstream.OrderRequest) bool {
		return req.Type == domain.OrderTypeStop &&
			req.Price != nil && req.Price.Equal(decimal.NewFromInt(60000)) &&
			req.StopPrice != nil && req.StopPrice.Equal(decimal.NewFromInt(61000)) &&
			req.TimeInForce == domain.TimeInForceFOK
	})).Return(&domain.Order{ID: "o2"}, nil).Once()

	_, err := fx.ctrl.Submit(context.Background(), domain.OrderTypeStop,
		Fields{Market: "BTC-USD", Side: "SELL", Amount: "1", Price: "60000", StopPrice: "61000", TimeInForce: "FOK"})
	require.NoError(t, err)
	fx.api.AssertExpectations(t)
}

func TestController_SubmitMarketOmitsPrice(t *testing.T) {
	fx := newFixture()
	fx.api.On("CreateOrder", mock.Anything, mock.MatchedBy(func(req upstream.OrderRequest) bool {
		return req.Type == domain.OrderTypeMarket && req.Price == nil && req.StopPrice == nil && req.TimeInForce == ""
	})).Return(&domain.Order{ID: "o3"}, nil).Once()

	_, err := fx.ctrl.Submit(context.Background(), domain.OrderTypeMarket,
		Fields{Market: "BTC-USD", Side: "BUY", Amount: "1", Price: "123"})
	require.NoError(t, err)
	fx.api.AssertExpectations(t)
}

func TestController_SubmitInvalidNeverCallsUpstream(t *testing.T) {
	fx := newFixture()

	_, err := fx.ctrl.Submit(context.Background(), domain.OrderTypeLimit,
		Fields{Market: "BTC-USD", Side: "BUY", Amount: "0.5"})
	require.ErrorIs(t, err, ErrInvalidOrder)

	fx.api.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
	assert.Empty(t, fx.inv.kinds)
	assert.Empty(t, fx.rec.Notices("s1"))
}

func TestController_SubmitFailurePreservesDraft(t *testing.T) {
	fx := newFixture()
	fx.api.On("CreateOrder", mock.Anything, mock.Anything).
		Return(nil, &upstream.APIError{StatusCode: 400, Message: "Insufficient balance"}).Once()

	fields := Fields{Market: "BTC-USD", Side: "BUY", Amount: "0.5", Price: "65000"}
	_, err := fx.ctrl.Submit(context.Background(), domain.OrderTypeLimit, fields)
	require.Error(t, err)
	assert.Equal(t, "Insufficient balance", err.Error())

	_, draft := fx.ctrl.Draft()
	assert.Equal(t, fields, draft)
	assert.Empty(t, fx.inv.kinds)

	notices := fx.rec.Notices("s1")
	require.Len(t, notices, 1)
	assert.Equal(t, notify.LevelError, notices[0].Level)
	assert.Equal(t, "Insufficient balance", notices[0].Message)

	require.Len(t, fx.journal.subs, 1)
	assert.Equal(t, domain.OutcomeFailed, fx.journal.subs[0].Outcome)
	assert.Equal(t, "Insufficient balance", fx.journal.subs[0].Message)

	// No automatic retry.
	fx.api.AssertNumberOfCalls(t, "CreateOrder", 1)
}

func TestController_SubmitQuoteExecutesByID(t *testing.T) {
	fx := newFixture()
	fx.quotes.On("Active").Return(activeQuote(), true)
	fx.quotes.On("Consume", "q1").Return(true).Once()
	fx.api.On("ExecuteQuote", mock.Anything, "q1").
		Return(&domain.Execution{ID: "e1", QuoteID: "q1", Status: "FILLED"}, nil).Once()

	res, err := fx.ctrl.Submit(context.Background(), domain.OrderTypeQuote,
		Fields{Market: "BTC-USD", Side: "BUY", Amount: "0.5", Price: "1"})
	require.NoError(t, err)
	require.NotNil(t, res.Execution)
	assert.Equal(t, "e1", res.Execution.ID)

	fx.api.AssertExpectations(t)
	fx.quotes.AssertExpectations(t)
	fx.api.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
	assert.Equal(t, []collections.Kind{collections.KindOrders, collections.KindExecutions}, fx.inv.kinds)
	assert.Equal(t, domain.SubmissionQuoteExecution, fx.journal.subs[0].Kind)
}

func TestController_SubmitQuoteFailureKeepsQuote(t *testing.T) {
	fx := newFixture()
	fx.quotes.On("Active").Return(activeQuote(), true)
	fx.api.On("ExecuteQuote", mock.Anything, "q1").
		Return(nil, &upstream.APIError{StatusCode: 409, Message: "Quote expired"}).Once()

	_, err := fx.ctrl.Submit(context.Background(), domain.OrderTypeQuote,
		Fields{Market: "BTC-USD", Side: "BUY", Amount: "0.5"})
	require.Error(t, err)

	fx.quotes.AssertNotCalled(t, "Consume", mock.Anything)
	assert.Equal(t, "Quote expired", fx.rec.Notices("s1")[0].Message)
}

func TestController_Cancel(t *testing.T) {
	fx := newFixture()
	fx.api.On("CancelOrder", mock.Anything, "o1").Return(nil).Once()

	require.NoError(t, fx.ctrl.Cancel(context.Background(), "o1"))
	assert.Equal(t, []collections.Kind{collections.KindOrders}, fx.inv.kinds)
	assert.Equal(t, domain.SubmissionCancel, fx.journal.subs[0].Kind)
	assert.Equal(t, "o1", fx.journal.subs[0].UpstreamID)

	assert.ErrorIs(t, fx.ctrl.Cancel(context.Background(), " "), ErrInvalidOrder)
	fx.api.AssertNumberOfCalls(t, "CancelOrder", 1)
}

func TestController_CancelFailure(t *testing.T) {
	fx := newFixture()
	fx.api.On("CancelOrder", mock.Anything, "o1").
		Return(&upstream.APIError{StatusCode: 404, Message: "Order not found"}).Once()

	err := fx.ctrl.Cancel(context.Background(), "o1")
	require.Error(t, err)
	assert.Empty(t, fx.inv.kinds)
	assert.Equal(t, notify.LevelError, fx.rec.Notices("s1")[0].Level)
}
