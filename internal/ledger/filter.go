package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"custody-workbench/internal/domain"
)

// ErrInvalidFilter is returned for an unknown tab or malformed date.
var ErrInvalidFilter = errors.New("invalid filter")

// Tab is a ledger category selector.
type Tab string

const (
	TabAll         Tab = "all"
	TabDeposits    Tab = "deposits"
	TabWithdrawals Tab = "withdrawals"
	TabTrades      Tab = "trades"
	TabConversions Tab = "conversions"
	TabTransfers   Tab = "transfers"
)

// String returns the string representation of Tab.
func (t Tab) String() string {
	return string(t)
}

// IsValid checks if the tab is a valid value.
func (t Tab) IsValid() bool {
	_, ok := tabTypes[t]
	return ok || t == TabAll
}

// tabTypes is the allow-list of transaction types per tab. TabAll is absent:
// it admits everything.
var tabTypes = map[Tab]domain.TransactionType{
	TabDeposits:    domain.TransactionDeposit,
	TabWithdrawals: domain.TransactionWithdrawal,
	TabTrades:      domain.TransactionTrade,
	TabConversions: domain.TransactionConversion,
	TabTransfers:   domain.TransactionTransfer,
}

// ParseTab parses a tab name. Empty means TabAll.
func ParseTab(s string) (Tab, error) {
	t := Tab(strings.ToLower(strings.TrimSpace(s)))
	if t == "" {
		return TabAll, nil
	}
	if !t.IsValid() {
		return "", fmt.Errorf("%w: unknown tab %q", ErrInvalidFilter, s)
	}
	return t, nil
}

// Filter narrows a ledger. Zero From or To leaves that side of the range open.
type Filter struct {
	Tab   Tab
	From  time.Time
	To    time.Time
	Query string
}

// Apply runs the type, date range and search stages in that order.
// The input order is preserved.
func Apply(txs []domain.Transaction, f Filter) []domain.Transaction {
	query := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]domain.Transaction, 0, len(txs))

	for _, tx := range txs {
		if !matchesTab(tx, f.Tab) {
			continue
		}
		if !inRange(tx.Date, f.From, f.To) {
			continue
		}
		if query != "" && !matchesQuery(tx, query) {
			continue
		}
		out = append(out, tx)
	}
	return out
}

func matchesTab(tx domain.Transaction, tab Tab) bool {
	if tab == "" || tab == TabAll {
		return true
	}
	typ, ok := tabTypes[tab]
	return ok && tx.Type == typ
}

// inRange is inclusive on both ends.
func inRange(d, from, to time.Time) bool {
	if !from.IsZero() && d.Before(from) {
		return false
	}
	if !to.IsZero() && d.After(to) {
		return false
	}
	return true
}

// matchesQuery is a case-insensitive substring search over id, asset, type,
// status and amount. query must already be lower case.
func matchesQuery(tx domain.Transaction, query string) bool {
	fields := [...]string{
		tx.ID,
		tx.Asset,
		tx.Type.String(),
		tx.Status,
		tx.Amount.String(),
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), query) {
			return true
		}
	}
	return false
}

// ParseDate parses a range bound given as RFC 3339 or as a plain date.
// A plain date used as the upper bound covers the whole day.
func ParseDate(s string, upper bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", ErrInvalidFilter, s)
	}
	if upper {
		d = d.Add(24*time.Hour - time.Nanosecond)
	}
	return d, nil
}
