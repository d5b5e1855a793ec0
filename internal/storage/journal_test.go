package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custody-workbench/internal/domain"
	"custody-workbench/internal/storage"
	"custody-workbench/internal/storage/memory"
)

type failingSubmissions struct {
	storage.SubmissionStore
}

func (failingSubmissions) Insert(context.Context, *domain.Submission) error {
	return errors.New("disk full")
}

func TestJournal_AssignsIDAndTime(t *testing.T) {
	subs := memory.NewSubmissionStore()
	j := storage.NewJournal(subs, nil, zerolog.Nop())
	ctx := context.Background()

	j.RecordSubmission(ctx, domain.Submission{
		SessionID: "s1",
		Kind:      domain.SubmissionOrder,
		Outcome:   domain.OutcomeSucceeded,
	})

	got, err := subs.GetBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.NotEmpty(t, got[0].ID)
	assert.False(t, got[0].CreatedAt.IsZero())
}

func TestJournal_StoreFailureIsSwallowed(t *testing.T) {
	j := storage.NewJournal(failingSubmissions{}, nil, zerolog.Nop())

	assert.NotPanics(t, func() {
		j.RecordSubmission(context.Background(), domain.Submission{Kind: domain.SubmissionCancel})
		j.RecordObservation(context.Background(), domain.StatusObservation{TransferID: "t1", Poll: 1})
	})
}

func TestJournal_NilIsNoop(t *testing.T) {
	var j *storage.Journal

	assert.NotPanics(t, func() {
		j.RecordSubmission(context.Background(), domain.Submission{})
		j.RecordObservation(context.Background(), domain.StatusObservation{})
	})
}

func TestJournal_RecordObservation(t *testing.T) {
	obs := memory.NewStatusObservationStore()
	j := storage.NewJournal(nil, obs, zerolog.Nop())
	ctx := context.Background()

	j.RecordObservation(ctx, domain.StatusObservation{TransferID: "t1", Status: domain.TransferStatusPending, Poll: 1})

	got, err := obs.GetByTransferID(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].ObservedAt.IsZero())
}
