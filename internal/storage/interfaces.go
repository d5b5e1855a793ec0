package storage

import (
	"context"
	"time"

	"custody-workbench/internal/domain"
)

// SubmissionStore provides access to the submissions audit journal.
type SubmissionStore interface {
	// Insert adds a new submission. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, s *domain.Submission) error

	// GetByID retrieves a submission by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Submission, error)

	// GetBySession retrieves all submissions of a session, ordered by created_at ASC.
	GetBySession(ctx context.Context, sessionID string) ([]*domain.Submission, error)

	// GetByTimeRange retrieves submissions created within [start, end] (inclusive), ordered by created_at ASC.
	GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.Submission, error)
}

// StatusObservationStore provides access to the transfer status timeline.
type StatusObservationStore interface {
	// Insert adds a new observation. Returns ErrDuplicateKey if (transfer_id, poll) exists.
	Insert(ctx context.Context, o *domain.StatusObservation) error

	// GetByTransferID retrieves all observations for a transfer, ordered by poll ASC.
	GetByTransferID(ctx context.Context, transferID string) ([]*domain.StatusObservation, error)
}
