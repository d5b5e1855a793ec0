package ledger

import (
	"sync"

	"custody-workbench/internal/domain"
)

// DefaultPageSize is the number of rows each "show more" adds.
const DefaultPageSize = 20

// Paginator shows a growing prefix of a result set. It never refetches.
type Paginator struct {
	mu    sync.Mutex
	size  int
	shown int
}

// NewPaginator creates a paginator showing one page. size <= 0 uses DefaultPageSize.
func NewPaginator(size int) *Paginator {
	if size <= 0 {
		size = DefaultPageSize
	}
	return &Paginator{size: size, shown: size}
}

// Visible returns the shown prefix of txs.
func (p *Paginator) Visible(txs []domain.Transaction) []domain.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Prefix(txs, p.shown)
}

// HasMore reports whether rows of a total-sized result are hidden.
func (p *Paginator) HasMore(total int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return total > p.shown
}

// More extends the prefix by one page.
func (p *Paginator) More() {
	p.mu.Lock()
	p.shown += p.size
	p.mu.Unlock()
}

// Reset returns to the first page, e.g. after the filter changed.
func (p *Paginator) Reset() {
	p.mu.Lock()
	p.shown = p.size
	p.mu.Unlock()
}

// Prefix returns at most n leading transactions.
func Prefix(txs []domain.Transaction, n int) []domain.Transaction {
	if n < 0 {
		n = 0
	}
	if n > len(txs) {
		n = len(txs)
	}
	return txs[:n]
}
