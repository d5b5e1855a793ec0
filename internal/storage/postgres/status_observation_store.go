package postgres

import (
	"context"
	"fmt"
	"time"

	"custody-workbench/internal/domain"
	"custody-workbench/internal/storage"
)

// StatusObservationStore implements storage.StatusObservationStore using PostgreSQL.
type StatusObservationStore struct {
	pool *Pool
}

// NewStatusObservationStore creates a new StatusObservationStore.
func NewStatusObservationStore(pool *Pool) *StatusObservationStore {
	return &StatusObservationStore{pool: pool}
}

// Compile-time interface check.
var _ storage.StatusObservationStore = (*StatusObservationStore)(nil)

// Insert adds a new observation. Returns ErrDuplicateKey if (transfer_id, poll) exists.
func (s *StatusObservationStore) Insert(ctx context.Context, o *domain.StatusObservation) (err error) {
	if o == nil || o.TransferID == "" || o.Poll <= 0 {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("insert_status_observation", start, err) }(time.Now())

	query := `
		INSERT INTO status_observations (transfer_id, poll, status, observed_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err = s.pool.Exec(ctx, query, o.TransferID, o.Poll, string(o.Status), o.ObservedAt)
	if err != nil {
		if duplicate(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert status observation: %w", err)
	}
	return nil
}

// GetByTransferID retrieves all observations for a transfer, ordered by poll ASC.
func (s *StatusObservationStore) GetByTransferID(ctx context.Context, transferID string) (_ []*domain.StatusObservation, err error) {
	defer func(start time.Time) { observe("list_status_observations", start, err) }(time.Now())

	query := `
		SELECT transfer_id, poll, status, observed_at
		FROM status_observations
		WHERE transfer_id = $1
		ORDER BY poll ASC
	`

	rows, err := s.pool.Query(ctx, query, transferID)
	if err != nil {
		return nil, fmt.Errorf("query status observations: %w", err)
	}
	defer rows.Close()

	var result []*domain.StatusObservation
	for rows.Next() {
		var o domain.StatusObservation
		var status string
		if err := rows.Scan(&o.TransferID, &o.Poll, &status, &o.ObservedAt); err != nil {
			return nil, fmt.Errorf("scan status observation: %w", err)
		}
		o.Status = domain.TransferStatus(status)
		result = append(result, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status observations: %w", err)
	}
	return result, nil
}
