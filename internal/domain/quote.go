package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a time-bounded, price-guaranteed offer for a fixed amount.
// ExpiresAt is fixed at creation; it is never extended.
type Quote struct {
	ID        string          `json:"id"`
	Market    string          `json:"market"`
	Side      Side            `json:"side"`
	Amount    decimal.Decimal `json:"amount"`
	Price     decimal.Decimal `json:"price"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Remaining returns whole seconds of validity left at now, never negative.
func (q Quote) Remaining(now time.Time) int {
	d := q.ExpiresAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}

// Matches reports whether the quote was issued for the given inputs.
func (q Quote) Matches(market string, side Side, amount decimal.Decimal) bool {
	return q.Market == market && q.Side == side && q.Amount.Equal(amount)
}

// Execution is the upstream acknowledgement of a quote execution.
type Execution struct {
	ID        string    `json:"id"`
	QuoteID   string    `json:"quote_id,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}
