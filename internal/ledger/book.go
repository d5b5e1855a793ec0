package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"custody-workbench/internal/clock"
	"custody-workbench/internal/collections"
	"custody-workbench/internal/domain"
	"custody-workbench/internal/observability"
)

// Collections provides the three source collections.
type Collections interface {
	Transfers(ctx context.Context) ([]domain.Transfer, error)
	Orders(ctx context.Context) ([]domain.Order, error)
	Conversions(ctx context.Context) ([]domain.Conversion, error)
}

// Subscriber announces invalidated collection kinds.
type Subscriber interface {
	Subscribe(fn func(collections.Kind)) func()
}

// Book is the derived ledger view. It recomputes the merged transactions
// whenever one of the source collections is invalidated.
type Book struct {
	source     Collections
	normalizer *Normalizer
	clock      clock.Clock
	logger     zerolog.Logger

	mu          sync.Mutex
	view        []domain.Transaction
	fresh       bool
	version     uint64
	unsubscribe func()
}

// BookOption configures Book.
type BookOption func(*Book)

// WithPrices values non-pegged assets from the last traded price.
func WithPrices(p PriceSource) BookOption {
	return func(b *Book) {
		b.normalizer = NewNormalizer(p)
	}
}

// WithClock sets the clock used to date exports.
func WithClock(c clock.Clock) BookOption {
	return func(b *Book) {
		b.clock = c
	}
}

// WithLogger sets the book logger.
func WithLogger(logger zerolog.Logger) BookOption {
	return func(b *Book) {
		b.logger = logger.With().Str("component", "ledger").Logger()
	}
}

// NewBook creates a ledger view over source. When source also implements
// Subscriber the view is marked stale on every relevant invalidation.
func NewBook(source Collections, opts ...BookOption) *Book {
	b := &Book{
		source:     source,
		normalizer: NewNormalizer(nil),
		clock:      clock.New(),
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if sub, ok := source.(Subscriber); ok {
		b.unsubscribe = sub.Subscribe(b.onInvalidate)
	}
	return b
}

func (b *Book) onInvalidate(kind collections.Kind) {
	switch kind {
	case collections.KindTransfers, collections.KindOrders, collections.KindConversions:
	default:
		return
	}
	b.mu.Lock()
	b.fresh = false
	b.version++
	b.mu.Unlock()
}

// Refresh marks the view stale so the next read refetches.
func (b *Book) Refresh() {
	b.onInvalidate(collections.KindTransfers)
}

// Transactions returns the merged view sorted by date descending. When a
// source fetch fails the previous view, possibly empty, is returned with the error.
func (b *Book) Transactions(ctx context.Context) ([]domain.Transaction, error) {
	b.mu.Lock()
	if b.fresh {
		out := cloneView(b.view)
		b.mu.Unlock()
		return out, nil
	}
	version := b.version
	b.mu.Unlock()

	txs, err := b.load(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.logger.Warn().Err(err).Msg("ledger refresh failed, serving previous view")
		return cloneView(b.view), err
	}
	if version == b.version {
		b.view = txs
		b.fresh = true
	}
	return cloneView(txs), nil
}

func (b *Book) load(ctx context.Context) ([]domain.Transaction, error) {
	transfers, err := b.source.Transfers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load transfers: %w", err)
	}
	orders, err := b.source.Orders(ctx)
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}
	conversions, err := b.source.Conversions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load conversions: %w", err)
	}
	return b.normalizer.Normalize(transfers, orders, conversions), nil
}

// Query returns the filtered view.
func (b *Book) Query(ctx context.Context, f Filter) ([]domain.Transaction, error) {
	txs, err := b.Transactions(ctx)
	return Apply(txs, f), err
}

// Export renders the filtered view as CSV and names the file after today's date.
func (b *Book) Export(ctx context.Context, f Filter) (string, string, error) {
	txs, err := b.Query(ctx, f)
	if err != nil {
		observability.RecordLedgerExport(err)
		return "", "", err
	}
	data, err := ToCSV(txs)
	observability.RecordLedgerExport(err)
	if err != nil {
		return "", "", err
	}

	b.logger.Info().Int("rows", len(txs)).Str("tab", f.Tab.String()).Msg("ledger exported")
	return ExportFilename(b.clock.Now()), data, nil
}

// Close stops listening for invalidations.
func (b *Book) Close() {
	b.mu.Lock()
	unsub := b.unsubscribe
	b.unsubscribe = nil
	b.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// cloneView copies the slice header array so callers cannot reorder the cache.
func cloneView(txs []domain.Transaction) []domain.Transaction {
	out := make([]domain.Transaction, len(txs))
	copy(out, txs)
	return out
}
