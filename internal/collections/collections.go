// Package collections is the shared cache of upstream source collections.
// Each collection is a single entry keyed by resource kind. Mutations are
// never applied locally: a successful mutating call invalidates the affected
// kinds and the next read refetches.
package collections

import (
	"context"
	"fmt"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"custody-workbench/internal/domain"
	"custody-workbench/internal/observability"
	"custody-workbench/internal/upstream"
)

// Kind identifies a source collection.
type Kind string

const (
	KindTransfers   Kind = "transfers"
	KindOrders      Kind = "orders"
	KindConversions Kind = "conversions"
	KindExecutions  Kind = "executions"
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	return string(k)
}

// DefaultTransferLimit bounds the transfers fetch.
const DefaultTransferLimit = 100

// Source is the upstream read surface the cache fills from.
type Source interface {
	ListTransfers(ctx context.Context, q upstream.TransferQuery) ([]domain.Transfer, error)
	ListOrders(ctx context.Context) ([]domain.Order, error)
	ListConversions(ctx context.Context) ([]domain.Conversion, error)
	ListExecutions(ctx context.Context) ([]domain.Execution, error)
}

// Invalidator is implemented by Cache; mutating components depend on it.
type Invalidator interface {
	Invalidate(ctx context.Context, kinds ...Kind)
}

// Cache serves the source collections through a Backend.
type Cache struct {
	source        Source
	backend       Backend
	transferLimit int
	logger        zerolog.Logger

	mu          sync.Mutex
	generations map[Kind]uint64
	nextSubID   int
	subscribers map[int]func(Kind)
}

// Option configures Cache.
type Option func(*Cache)

// WithTransferLimit sets the limit passed to the transfers fetch.
func WithTransferLimit(n int) Option {
	return func(c *Cache) {
		c.transferLimit = n
	}
}

// WithLogger sets the cache logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger.With().Str("component", "collections").Logger()
	}
}

// New creates a cache over source. A nil backend uses an unbounded MemoryBackend.
func New(source Source, backend Backend, opts ...Option) *Cache {
	if backend == nil {
		backend = NewMemoryBackend(0, nil)
	}
	c := &Cache{
		source:        source,
		backend:       backend,
		transferLimit: DefaultTransferLimit,
		logger:        zerolog.Nop(),
		generations:   make(map[Kind]uint64),
		subscribers:   make(map[int]func(Kind)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transfers returns the transfers collection.
func (c *Cache) Transfers(ctx context.Context) ([]domain.Transfer, error) {
	return load(ctx, c, KindTransfers, func(ctx context.Context) ([]domain.Transfer, error) {
		return c.source.ListTransfers(ctx, upstream.TransferQuery{Limit: c.transferLimit})
	})
}

// Orders returns the orders collection.
func (c *Cache) Orders(ctx context.Context) ([]domain.Order, error) {
	return load(ctx, c, KindOrders, c.source.ListOrders)
}

// Conversions returns the conversions collection.
func (c *Cache) Conversions(ctx context.Context) ([]domain.Conversion, error) {
	return load(ctx, c, KindConversions, c.source.ListConversions)
}

// Executions returns the quote executions collection.
func (c *Cache) Executions(ctx context.Context) ([]domain.Execution, error) {
	return load(ctx, c, KindExecutions, c.source.ListExecutions)
}

// Invalidate drops the given kinds and notifies subscribers.
// Backend failures are logged; the next read still refetches once the entry expires.
func (c *Cache) Invalidate(ctx context.Context, kinds ...Kind) {
	if len(kinds) == 0 {
		return
	}

	c.mu.Lock()
	for _, k := range kinds {
		c.generations[k]++
	}
	c.mu.Unlock()

	if err := c.backend.Delete(ctx, kinds...); err != nil {
		c.logger.Error().Err(err).Msg("invalidate collections")
	}

	c.mu.Lock()
	subs := make([]func(Kind), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, k := range kinds {
		observability.RecordCacheEvent(k.String(), "invalidate")
		for _, fn := range subs {
			fn(k)
		}
	}
}

// Subscribe registers fn to be called with each invalidated kind.
// The returned func removes the subscription.
func (c *Cache) Subscribe(fn func(Kind)) func() {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

func (c *Cache) generation(kind Kind) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[kind]
}

// load serves kind from the backend or fetches it. A fetch that overlaps an
// Invalidate of the same kind is returned to the caller but never cached.
func load[T any](ctx context.Context, c *Cache, kind Kind, fetch func(context.Context) ([]T, error)) ([]T, error) {
	payload, ok, err := c.backend.Get(ctx, kind)
	if err != nil {
		c.logger.Warn().Err(err).Str("kind", kind.String()).Msg("cache read failed, refetching")
	}
	if ok {
		var items []T
		if err := json.Unmarshal(payload, &items); err == nil {
			observability.RecordCacheEvent(kind.String(), "hit")
			return items, nil
		}
		c.logger.Warn().Str("kind", kind.String()).Msg("discarding undecodable cache entry")
	}
	observability.RecordCacheEvent(kind.String(), "miss")

	gen := c.generation(kind)
	items, err := fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", kind, err)
	}

	if c.generation(kind) != gen {
		c.logger.Debug().Str("kind", kind.String()).Msg("invalidated during fetch, not caching")
		return items, nil
	}

	encoded, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	if err := c.backend.Set(ctx, kind, encoded); err != nil {
		c.logger.Warn().Err(err).Str("kind", kind.String()).Msg("cache write failed")
	}
	// An Invalidate between the check and Set must still win.
	if c.generation(kind) != gen {
		if err := c.backend.Delete(ctx, kind); err != nil {
			c.logger.Error().Err(err).Str("kind", kind.String()).Msg("drop stale collection")
		}
	}
	return items, nil
}
