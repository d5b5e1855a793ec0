package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderType is the execution mode of an order.
type OrderType string

const (
	OrderTypeQuote  OrderType = "QUOTE"
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeStop   OrderType = "STOP"
)

// String returns the string representation of OrderType.
func (t OrderType) String() string {
	return string(t)
}

// IsValid checks if the order type is a valid value.
func (t OrderType) IsValid() bool {
	switch t {
	case OrderTypeQuote, OrderTypeMarket, OrderTypeLimit, OrderTypeStop:
		return true
	}
	return false
}

// RequiresPrice reports whether the type carries a limit price.
func (t OrderType) RequiresPrice() bool {
	return t == OrderTypeLimit || t == OrderTypeStop
}

// OrderStatus is reported by the upstream system and never computed locally.
type OrderStatus string

const (
	OrderStatusOpen            OrderStatus = "OPEN"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCancelled       OrderStatus = "CANCELLED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// String returns the string representation of OrderStatus.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid checks if the status is a valid value.
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusOpen, OrderStatusPartiallyFilled, OrderStatusFilled,
		OrderStatusCancelled, OrderStatusExpired:
		return true
	}
	return false
}

// HasFills reports whether the order executed at least partially.
func (s OrderStatus) HasFills() bool {
	return s == OrderStatusFilled || s == OrderStatusPartiallyFilled
}

// TimeInForce controls how long a resting order stays on the book.
type TimeInForce string

const (
	TimeInForceGTC      TimeInForce = "GTC"
	TimeInForceIOC      TimeInForce = "IOC"
	TimeInForceFOK      TimeInForce = "FOK"
	TimeInForcePostOnly TimeInForce = "POST_ONLY"
)

// String returns the string representation of TimeInForce.
func (t TimeInForce) String() string {
	return string(t)
}

// IsValid checks if the time in force is a valid value.
func (t TimeInForce) IsValid() bool {
	switch t {
	case TimeInForceGTC, TimeInForceIOC, TimeInForceFOK, TimeInForcePostOnly:
		return true
	}
	return false
}

// Order is a user-submitted instruction as reported by the upstream system.
type Order struct {
	ID          string           `json:"id"`
	Market      string           `json:"market"`
	Side        Side             `json:"side"`
	Type        OrderType        `json:"type"`
	Amount      decimal.Decimal  `json:"amount"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	StopPrice   *decimal.Decimal `json:"stop_price,omitempty"`
	TimeInForce TimeInForce      `json:"time_in_force,omitempty"`
	Status      OrderStatus      `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   *time.Time       `json:"updated_at,omitempty"`
}

// BaseAsset returns the base asset of a BASE-QUOTE market symbol.
func BaseAsset(market string) string {
	base, _, _ := strings.Cut(market, "-")
	return strings.ToUpper(base)
}

// QuoteAsset returns the quote asset of a BASE-QUOTE market symbol, or "".
func QuoteAsset(market string) string {
	_, quote, ok := strings.Cut(market, "-")
	if !ok {
		return ""
	}
	return strings.ToUpper(quote)
}
