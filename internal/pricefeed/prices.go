package pricefeed

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the last traded price of one market.
type Quote struct {
	Market string          `json:"market"`
	Price  decimal.Decimal `json:"price"`
	At     time.Time       `json:"at"`
}

// Prices is a concurrency-safe last-price table keyed by upper-case market.
type Prices struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

// NewPrices creates an empty table.
func NewPrices() *Prices {
	return &Prices{quotes: make(map[string]Quote)}
}

// Set records a price. Older timestamps than the stored one are ignored.
func (p *Prices) Set(market string, price decimal.Decimal, at time.Time) {
	market = strings.ToUpper(market)

	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.quotes[market]; ok && at.Before(cur.At) {
		return
	}
	p.quotes[market] = Quote{Market: market, Price: price, At: at}
}

// LastPrice returns the last traded price of market.
func (p *Prices) LastPrice(market string) (decimal.Decimal, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	q, ok := p.quotes[strings.ToUpper(market)]
	return q.Price, ok
}

// Snapshot returns all prices sorted by market.
func (p *Prices) Snapshot() []Quote {
	p.mu.RLock()
	out := make([]Quote, 0, len(p.quotes))
	for _, q := range p.quotes {
		out = append(out, q)
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Market < out[j].Market })
	return out
}
