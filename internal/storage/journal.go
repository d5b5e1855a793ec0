package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"custody-workbench/internal/domain"
)

// Journal records submission attempts and status observations.
// Store failures are logged and never returned: the audit trail must not
// fail the user action it describes. Either store may be nil.
type Journal struct {
	submissions  SubmissionStore
	observations StatusObservationStore
	now          func() time.Time
	logger       zerolog.Logger
}

// NewJournal creates a journal over the given stores.
func NewJournal(submissions SubmissionStore, observations StatusObservationStore, logger zerolog.Logger) *Journal {
	return &Journal{
		submissions:  submissions,
		observations: observations,
		now:          time.Now,
		logger:       logger.With().Str("component", "journal").Logger(),
	}
}

// RecordSubmission stores one submission attempt, assigning id and time when unset.
func (j *Journal) RecordSubmission(ctx context.Context, s domain.Submission) {
	if j == nil || j.submissions == nil {
		return
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = j.now()
	}
	if err := j.submissions.Insert(ctx, &s); err != nil {
		j.logger.Error().Err(err).
			Str("kind", s.Kind.String()).
			Str("upstream_id", s.UpstreamID).
			Msg("journal submission")
	}
}

// RecordObservation stores one successful status poll.
func (j *Journal) RecordObservation(ctx context.Context, o domain.StatusObservation) {
	if j == nil || j.observations == nil {
		return
	}
	if o.ObservedAt.IsZero() {
		o.ObservedAt = j.now()
	}
	if err := j.observations.Insert(ctx, &o); err != nil {
		j.logger.Error().Err(err).
			Str("transfer_id", o.TransferID).
			Int("poll", o.Poll).
			Msg("journal status observation")
	}
}
