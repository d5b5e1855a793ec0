package collections

import (
	"context"
	"sync"
	"time"
)

// Backend stores one encoded payload per collection kind.
type Backend interface {
	// Get returns the payload for kind; ok is false on a miss.
	Get(ctx context.Context, kind Kind) (payload []byte, ok bool, err error)

	// Set stores the payload for kind.
	Set(ctx context.Context, kind Kind, payload []byte) error

	// Delete drops the given kinds.
	Delete(ctx context.Context, kinds ...Kind) error
}

// MemoryBackend is an in-process Backend.
// A zero ttl keeps entries until they are deleted.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[Kind]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	payload  []byte
	storedAt time.Time
}

// NewMemoryBackend creates an in-memory backend.
func NewMemoryBackend(ttl time.Duration, now func() time.Time) *MemoryBackend {
	if now == nil {
		now = time.Now
	}
	return &MemoryBackend{
		entries: make(map[Kind]memoryEntry),
		ttl:     ttl,
		now:     now,
	}
}

// Get implements Backend.
func (b *MemoryBackend) Get(_ context.Context, kind Kind) ([]byte, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.entries[kind]
	if !ok {
		return nil, false, nil
	}
	if b.ttl > 0 && b.now().Sub(e.storedAt) >= b.ttl {
		return nil, false, nil
	}
	out := make([]byte, len(e.payload))
	copy(out, e.payload)
	return out, true, nil
}

// Set implements Backend.
func (b *MemoryBackend) Set(_ context.Context, kind Kind, payload []byte) error {
	stored := make([]byte, len(payload))
	copy(stored, payload)

	b.mu.Lock()
	b.entries[kind] = memoryEntry{payload: stored, storedAt: b.now()}
	b.mu.Unlock()
	return nil
}

// Delete implements Backend.
func (b *MemoryBackend) Delete(_ context.Context, kinds ...Kind) error {
	b.mu.Lock()
	for _, k := range kinds {
		delete(b.entries, k)
	}
	b.mu.Unlock()
	return nil
}
