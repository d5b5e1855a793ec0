package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the canonical ledger category.
type TransactionType string

const (
	TransactionDeposit    TransactionType = "deposit"
	TransactionWithdrawal TransactionType = "withdrawal"
	TransactionTrade      TransactionType = "trade"
	TransactionConversion TransactionType = "conversion"
	TransactionTransfer   TransactionType = "transfer"
)

// String returns the string representation of TransactionType.
func (t TransactionType) String() string {
	return string(t)
}

// FlowDirection is the canonical direction of value relative to the account.
type FlowDirection string

const (
	FlowIn      FlowDirection = "in"
	FlowOut     FlowDirection = "out"
	FlowNeutral FlowDirection = "neutral"
)

// String returns the string representation of FlowDirection.
func (d FlowDirection) String() string {
	return string(d)
}

// RecordKind tags which source collection a canonical transaction came from.
type RecordKind string

const (
	RecordTransfer   RecordKind = "transfer"
	RecordOrder      RecordKind = "order"
	RecordConversion RecordKind = "conversion"
)

// Detail is one ordered key/value pair shown with a transaction.
type Detail struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Transaction is the read-only canonical ledger record.
// Exactly one of Transfer, Order, Conversion is set, matching Kind.
type Transaction struct {
	ID        string          `json:"id"`
	Type      TransactionType `json:"type"`
	Asset     string          `json:"asset"`
	Amount    decimal.Decimal `json:"amount"`
	USDValue  decimal.Decimal `json:"usdValue"`
	Status    string          `json:"status"`
	Date      time.Time       `json:"date"`
	Direction FlowDirection   `json:"direction"`
	Details   []Detail        `json:"details"`

	Kind       RecordKind  `json:"kind"`
	Transfer   *Transfer   `json:"transfer,omitempty"`
	Order      *Order      `json:"order,omitempty"`
	Conversion *Conversion `json:"conversion,omitempty"`
}

// SourceID returns the id of the source record the transaction traces to.
func (t Transaction) SourceID() string {
	switch t.Kind {
	case RecordTransfer:
		if t.Transfer != nil {
			return t.Transfer.ID
		}
	case RecordOrder:
		if t.Order != nil {
			return t.Order.ID
		}
	case RecordConversion:
		if t.Conversion != nil {
			return t.Conversion.ID
		}
	}
	return ""
}
