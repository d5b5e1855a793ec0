package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferDirection is the movement direction reported for a transfer.
type TransferDirection string

const (
	DirectionCredit TransferDirection = "CREDIT"
	DirectionDebit  TransferDirection = "DEBIT"
	DirectionIn     TransferDirection = "IN"
	DirectionOut    TransferDirection = "OUT"
)

// String returns the string representation of TransferDirection.
func (d TransferDirection) String() string {
	return string(d)
}

// IsValid checks if the direction is a valid value.
func (d TransferDirection) IsValid() bool {
	switch d {
	case DirectionCredit, DirectionDebit, DirectionIn, DirectionOut:
		return true
	}
	return false
}

// TransferStatus is the lifecycle state of a transfer or withdrawal.
type TransferStatus string

const (
	TransferStatusPending    TransferStatus = "PENDING"
	TransferStatusProcessing TransferStatus = "PROCESSING"
	TransferStatusCompleted  TransferStatus = "COMPLETED"
	TransferStatusFailed     TransferStatus = "FAILED"
	TransferStatusCancelled  TransferStatus = "CANCELLED"
)

// String returns the string representation of TransferStatus.
func (s TransferStatus) String() string {
	return string(s)
}

// IsValid checks if the status is a valid value.
func (s TransferStatus) IsValid() bool {
	switch s {
	case TransferStatusPending, TransferStatusProcessing, TransferStatusCompleted,
		TransferStatusFailed, TransferStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is expected.
func (s TransferStatus) IsTerminal() bool {
	return s == TransferStatusCompleted || s == TransferStatusFailed || s == TransferStatusCancelled
}

// Transfer is a movement of value into or out of the account.
// Type is the upstream free-text kind (e.g. "crypto_withdrawal") and may be empty.
type Transfer struct {
	ID                 string            `json:"id"`
	Asset              string            `json:"asset"`
	Amount             decimal.Decimal   `json:"amount"`
	Direction          TransferDirection `json:"direction"`
	Type               string            `json:"type,omitempty"`
	Status             TransferStatus    `json:"status"`
	DestinationAddress string            `json:"destination_address,omitempty"`
	Fee                *decimal.Decimal  `json:"fee,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          *time.Time        `json:"updated_at,omitempty"`
}
