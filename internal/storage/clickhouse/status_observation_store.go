package clickhouse

import (
	"context"
	"fmt"
	"time"

	"custody-workbench/internal/domain"
	"custody-workbench/internal/storage"
)

// StatusObservationStore implements storage.StatusObservationStore using ClickHouse.
// MergeTree does not enforce keys, so duplicates are checked before insert.
type StatusObservationStore struct {
	conn *Conn
}

// NewStatusObservationStore creates a new StatusObservationStore.
func NewStatusObservationStore(conn *Conn) *StatusObservationStore {
	return &StatusObservationStore{conn: conn}
}

// Compile-time interface check.
var _ storage.StatusObservationStore = (*StatusObservationStore)(nil)

// Insert adds a new observation. Returns ErrDuplicateKey if (transfer_id, poll) exists.
func (s *StatusObservationStore) Insert(ctx context.Context, o *domain.StatusObservation) (err error) {
	if o == nil || o.TransferID == "" || o.Poll <= 0 {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("insert_status_observation", start, err) }(time.Now())

	exists, err := s.exists(ctx, o.TransferID, o.Poll)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO status_observations (transfer_id, poll, status, observed_at)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	if err := batch.Append(o.TransferID, uint32(o.Poll), string(o.Status), o.ObservedAt.UTC()); err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByTransferID retrieves all observations for a transfer, ordered by poll ASC.
func (s *StatusObservationStore) GetByTransferID(ctx context.Context, transferID string) (_ []*domain.StatusObservation, err error) {
	defer func(start time.Time) { observe("list_status_observations", start, err) }(time.Now())

	query := `
		SELECT transfer_id, poll, status, observed_at
		FROM status_observations
		WHERE transfer_id = ?
		ORDER BY poll ASC
	`

	rows, err := s.conn.Query(ctx, query, transferID)
	if err != nil {
		return nil, fmt.Errorf("query by transfer id: %w", err)
	}
	defer rows.Close()

	var result []*domain.StatusObservation
	for rows.Next() {
		var o domain.StatusObservation
		var poll uint32
		var status string

		if err := rows.Scan(&o.TransferID, &poll, &status, &o.ObservedAt); err != nil {
			return nil, fmt.Errorf("scan status observation row: %w", err)
		}

		o.Poll = int(poll)
		o.Status = domain.TransferStatus(status)
		result = append(result, &o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status observation rows: %w", err)
	}
	return result, nil
}

func (s *StatusObservationStore) exists(ctx context.Context, transferID string, poll int) (bool, error) {
	query := `
		SELECT count(*) FROM status_observations
		WHERE transfer_id = ? AND poll = ?
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, transferID, uint32(poll)).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}
