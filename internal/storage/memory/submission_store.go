package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"custody-workbench/internal/domain"
	"custody-workbench/internal/storage"
)

// SubmissionStore is an in-memory implementation of storage.SubmissionStore.
type SubmissionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Submission // keyed by id
}

// NewSubmissionStore creates a new in-memory submission store.
func NewSubmissionStore() *SubmissionStore {
	return &SubmissionStore{
		data: make(map[string]*domain.Submission),
	}
}

// Insert adds a new submission. Returns ErrDuplicateKey if id exists.
func (s *SubmissionStore) Insert(_ context.Context, sub *domain.Submission) error {
	if sub == nil || sub.ID == "" || sub.Kind == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[sub.ID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *sub
	s.data[sub.ID] = &cp
	return nil
}

// GetByID retrieves a submission by its ID. Returns ErrNotFound if not exists.
func (s *SubmissionStore) GetByID(_ context.Context, id string) (*domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	cp := *sub
	return &cp, nil
}

// GetBySession retrieves all submissions of a session, ordered by created_at ASC.
func (s *SubmissionStore) GetBySession(_ context.Context, sessionID string) ([]*domain.Submission, error) {
	return s.collect(func(sub *domain.Submission) bool {
		return sub.SessionID == sessionID
	}), nil
}

// GetByTimeRange retrieves submissions created within [start, end] (inclusive).
func (s *SubmissionStore) GetByTimeRange(_ context.Context, start, end time.Time) ([]*domain.Submission, error) {
	return s.collect(func(sub *domain.Submission) bool {
		return !sub.CreatedAt.Before(start) && !sub.CreatedAt.After(end)
	}), nil
}

func (s *SubmissionStore) collect(keep func(*domain.Submission) bool) []*domain.Submission {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Submission
	for _, sub := range s.data {
		if keep(sub) {
			cp := *sub
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	return result
}

var _ storage.SubmissionStore = (*SubmissionStore)(nil)
