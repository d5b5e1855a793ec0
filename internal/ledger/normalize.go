// Package ledger merges transfers, orders and conversions into one canonical
// transaction view and filters, pages and exports it.
package ledger

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"custody-workbench/internal/domain"
)

// DateLayout is the ISO-8601 instant format used for dates in details and export.
const DateLayout = "2006-01-02T15:04:05.000Z"

// PriceSource returns the last traded price of a market such as "ETH-USD".
type PriceSource interface {
	LastPrice(market string) (decimal.Decimal, bool)
}

// usdPegged are valued 1:1 in USD.
var usdPegged = map[string]bool{
	"USD":  true,
	"USDC": true,
	"USDT": true,
}

// Normalizer maps source records to canonical transactions.
type Normalizer struct {
	prices PriceSource
}

// NewNormalizer creates a normalizer. prices may be nil, in which case only
// USD-pegged assets and USD-quoted trades get a usd value.
func NewNormalizer(prices PriceSource) *Normalizer {
	return &Normalizer{prices: prices}
}

// Normalize merges the three collections without usd pricing of
// non-pegged assets. See Normalizer.Normalize.
func Normalize(transfers []domain.Transfer, orders []domain.Order, conversions []domain.Conversion) []domain.Transaction {
	return NewNormalizer(nil).Normalize(transfers, orders, conversions)
}

// Normalize merges the three collections into transactions sorted by date
// descending. Orders without fills are excluded.
func (n *Normalizer) Normalize(transfers []domain.Transfer, orders []domain.Order, conversions []domain.Conversion) []domain.Transaction {
	out := make([]domain.Transaction, 0, len(transfers)+len(orders)+len(conversions))

	for i := range transfers {
		out = append(out, n.fromTransfer(transfers[i]))
	}
	for i := range orders {
		if !orders[i].Status.HasFills() {
			continue
		}
		out = append(out, n.fromOrder(orders[i]))
	}
	for i := range conversions {
		out = append(out, n.fromConversion(conversions[i]))
	}

	Sort(out)
	return out
}

// Sort orders transactions by date descending, then id ascending.
func Sort(txs []domain.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if txs[i].Date.Equal(txs[j].Date) {
			return txs[i].ID < txs[j].ID
		}
		return txs[i].Date.After(txs[j].Date)
	})
}

// TransferType classifies a transfer. The direction enum decides; the free
// text type is consulted only when direction is empty or unrecognised.
func TransferType(t domain.Transfer) domain.TransactionType {
	switch t.Direction {
	case domain.DirectionCredit, domain.DirectionIn:
		return domain.TransactionDeposit
	case domain.DirectionDebit, domain.DirectionOut:
		return domain.TransactionWithdrawal
	}

	kind := strings.ToLower(t.Type)
	switch {
	case strings.Contains(kind, "deposit"):
		return domain.TransactionDeposit
	case strings.Contains(kind, "withdraw"):
		return domain.TransactionWithdrawal
	}
	return domain.TransactionTransfer
}

func directionOf(typ domain.TransactionType) domain.FlowDirection {
	switch typ {
	case domain.TransactionDeposit:
		return domain.FlowIn
	case domain.TransactionWithdrawal:
		return domain.FlowOut
	}
	return domain.FlowNeutral
}

func (n *Normalizer) fromTransfer(t domain.Transfer) domain.Transaction {
	typ := TransferType(t)
	asset := strings.ToUpper(t.Asset)
	src := t

	return domain.Transaction{
		ID:        t.ID,
		Type:      typ,
		Asset:     asset,
		Amount:    t.Amount,
		USDValue:  n.usdValue(asset, t.Amount),
		Status:    t.Status.String(),
		Date:      t.CreatedAt,
		Direction: directionOf(typ),
		Details:   transferDetails(t),
		Kind:      domain.RecordTransfer,
		Transfer:  &src,
	}
}

func (n *Normalizer) fromOrder(o domain.Order) domain.Transaction {
	asset := domain.BaseAsset(o.Market)
	dir := domain.FlowIn
	if o.Side == domain.SideSell {
		dir = domain.FlowOut
	}

	var usd decimal.Decimal
	if usdPegged[domain.QuoteAsset(o.Market)] && o.Price != nil {
		usd = o.Amount.Mul(*o.Price)
	} else {
		usd = n.usdValue(asset, o.Amount)
	}
	src := o

	return domain.Transaction{
		ID:        o.ID,
		Type:      domain.TransactionTrade,
		Asset:     asset,
		Amount:    o.Amount,
		USDValue:  usd,
		Status:    o.Status.String(),
		Date:      o.CreatedAt,
		Direction: dir,
		Details:   orderDetails(o),
		Kind:      domain.RecordOrder,
		Order:     &src,
	}
}

func (n *Normalizer) fromConversion(c domain.Conversion) domain.Transaction {
	asset := strings.ToUpper(c.SourceAsset)
	src := c

	return domain.Transaction{
		ID:         c.ID,
		Type:       domain.TransactionConversion,
		Asset:      asset,
		Amount:     c.Amount,
		USDValue:   n.usdValue(asset, c.Amount),
		Status:     c.Status,
		Date:       c.CreatedAt,
		Direction:  domain.FlowNeutral,
		Details:    conversionDetails(c),
		Kind:       domain.RecordConversion,
		Conversion: &src,
	}
}

func (n *Normalizer) usdValue(asset string, amount decimal.Decimal) decimal.Decimal {
	if usdPegged[asset] {
		return amount
	}
	if n.prices != nil {
		if p, ok := n.prices.LastPrice(asset + "-USD"); ok {
			return amount.Mul(p)
		}
	}
	return decimal.Zero
}

// details appends non-empty pairs in order.
type details []domain.Detail

func (d details) add(key, value string) details {
	if value == "" {
		return d
	}
	return append(d, domain.Detail{Key: key, Value: value})
}

func decimalString(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func timeString(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(DateLayout)
}

func transferDetails(t domain.Transfer) []domain.Detail {
	return details(nil).
		add("Direction", t.Direction.String()).
		add("Destination", t.DestinationAddress).
		add("Fee", decimalString(t.Fee)).
		add("Updated", timeString(t.UpdatedAt))
}

func orderDetails(o domain.Order) []domain.Detail {
	return details(nil).
		add("Market", o.Market).
		add("Side", o.Side.String()).
		add("Order Type", o.Type.String()).
		add("Price", decimalString(o.Price)).
		add("Stop Price", decimalString(o.StopPrice)).
		add("Time in Force", o.TimeInForce.String())
}

func conversionDetails(c domain.Conversion) []domain.Detail {
	return details(nil).
		add("From", strings.ToUpper(c.SourceAsset)).
		add("To", strings.ToUpper(c.TargetAsset))
}
