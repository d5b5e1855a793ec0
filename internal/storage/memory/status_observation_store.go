package memory

import (
	"context"
	"sort"
	"sync"

	"custody-workbench/internal/domain"
	"custody-workbench/internal/storage"
)

type observationKey struct {
	transferID string
	poll       int
}

// StatusObservationStore is an in-memory implementation of storage.StatusObservationStore.
type StatusObservationStore struct {
	mu   sync.RWMutex
	data map[observationKey]*domain.StatusObservation
}

// NewStatusObservationStore creates a new in-memory observation store.
func NewStatusObservationStore() *StatusObservationStore {
	return &StatusObservationStore{
		data: make(map[observationKey]*domain.StatusObservation),
	}
}

// Insert adds a new observation. Returns ErrDuplicateKey if (transfer_id, poll) exists.
func (s *StatusObservationStore) Insert(_ context.Context, o *domain.StatusObservation) error {
	if o == nil || o.TransferID == "" || o.Poll <= 0 {
		return storage.ErrInvalidInput
	}

	k := observationKey{o.TransferID, o.Poll}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[k]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *o
	s.data[k] = &cp
	return nil
}

// GetByTransferID retrieves all observations for a transfer, ordered by poll ASC.
func (s *StatusObservationStore) GetByTransferID(_ context.Context, transferID string) ([]*domain.StatusObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.StatusObservation
	for k, o := range s.data {
		if k.transferID == transferID {
			cp := *o
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Poll < result[j].Poll
	})

	return result, nil
}

var _ storage.StatusObservationStore = (*StatusObservationStore)(nil)
