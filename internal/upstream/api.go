// Package upstream is the HTTP client for the custody/exchange API.
package upstream

import (
	"context"

	"github.com/shopspring/decimal"

	"custody-workbench/internal/domain"
)

// API defines the upstream custody/exchange surface the workbench drives.
type API interface {
	// GetQuote requests a time-bounded price quote.
	GetQuote(ctx context.Context, req QuoteRequest) (*domain.Quote, error)

	// ExecuteQuote executes a previously issued quote by id.
	ExecuteQuote(ctx context.Context, quoteID string) (*domain.Execution, error)

	// CreateOrder submits a market, limit or stop order.
	CreateOrder(ctx context.Context, req OrderRequest) (*domain.Order, error)

	// ListOrders returns the account's orders.
	ListOrders(ctx context.Context) ([]domain.Order, error)

	// CancelOrder cancels an open order.
	CancelOrder(ctx context.Context, orderID string) error

	// CreateCryptoWithdrawal withdraws to an on-chain destination.
	CreateCryptoWithdrawal(ctx context.Context, req CryptoWithdrawalRequest) (*domain.Transfer, error)

	// CreateFiatWithdrawal withdraws to a linked fiat account.
	CreateFiatWithdrawal(ctx context.Context, req FiatWithdrawalRequest) (*domain.Transfer, error)

	// ListTransfers returns transfers, optionally filtered by type.
	ListTransfers(ctx context.Context, q TransferQuery) ([]domain.Transfer, error)

	// GetTransfer looks up one transfer's current state.
	GetTransfer(ctx context.Context, transferID string) (*domain.Transfer, error)

	// ListConversions returns stablecoin conversions.
	ListConversions(ctx context.Context) ([]domain.Conversion, error)

	// ListExecutions returns quote executions.
	ListExecutions(ctx context.Context) ([]domain.Execution, error)
}

// QuoteRequest keys a quote fetch.
type QuoteRequest struct {
	Market string
	Side   domain.Side
	Amount decimal.Decimal
}

// OrderRequest is the POST /orders payload.
type OrderRequest struct {
	Market      string             `json:"market"`
	Side        domain.Side        `json:"side"`
	Amount      decimal.Decimal    `json:"amount"`
	Type        domain.OrderType   `json:"type"`
	Price       *decimal.Decimal   `json:"price,omitempty"`
	StopPrice   *decimal.Decimal   `json:"stop_price,omitempty"`
	TimeInForce domain.TimeInForce `json:"time_in_force,omitempty"`
}

// CryptoWithdrawalRequest is the POST /crypto-withdrawals payload.
type CryptoWithdrawalRequest struct {
	Asset       string          `json:"asset"`
	Amount      decimal.Decimal `json:"amount"`
	Destination string          `json:"destination"`
	Network     string          `json:"network,omitempty"`
}

// FiatWithdrawalRequest is the POST /fiat-withdrawals payload.
type FiatWithdrawalRequest struct {
	Asset         string          `json:"asset"`
	Amount        decimal.Decimal `json:"amount"`
	FiatAccountID string          `json:"fiat_account_id"`
}

// TransferQuery filters GET /transfers.
type TransferQuery struct {
	Limit int    // 0 means server default
	Type  string // empty means all types
}
