package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Conversion is an exchange between two assets within the same account.
type Conversion struct {
	ID          string          `json:"id"`
	SourceAsset string          `json:"source_asset"`
	TargetAsset string          `json:"target_asset"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}
