package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custody-workbench/internal/domain"
	"custody-workbench/internal/storage"
)

func TestSubmissionStore_InsertAndQuery(t *testing.T) {
	pool := newJournalPool(t)

	ctx := context.Background()
	store := NewSubmissionStore(pool)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	subs := []*domain.Submission{
		{ID: "sub-2", SessionID: "s1", Kind: domain.SubmissionQuoteExecution, Market: "BTC-USD", Side: "BUY", Amount: "0.5", UpstreamID: "e1", Outcome: domain.OutcomeSucceeded, CreatedAt: base.Add(time.Minute)},
		{ID: "sub-1", SessionID: "s1", Kind: domain.SubmissionOrder, Market: "BTC-USD", Side: "SELL", Amount: "1", Outcome: domain.OutcomeFailed, Message: "Insufficient balance", CreatedAt: base},
		{ID: "sub-3", SessionID: "s2", Kind: domain.SubmissionCryptoWithdraw, Market: "ETH", Amount: "2", UpstreamID: "t1", Outcome: domain.OutcomeSucceeded, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, s := range subs {
		require.NoError(t, store.Insert(ctx, s))
	}

	got, err := store.GetByID(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionOrder, got.Kind)
	assert.Equal(t, "Insufficient balance", got.Message)
	assert.True(t, got.CreatedAt.Equal(base))

	bySession, err := store.GetBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, bySession, 2)
	assert.Equal(t, "sub-1", bySession[0].ID)
	assert.Equal(t, "sub-2", bySession[1].ID)

	byTime, err := store.GetByTimeRange(ctx, base.Add(time.Minute), base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Len(t, byTime, 2)

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, store.Insert(ctx, subs[0]), storage.ErrDuplicateKey)
}

func TestStatusObservationStore_Timeline(t *testing.T) {
	pool := newJournalPool(t)

	ctx := context.Background()
	store := NewStatusObservationStore(pool)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	statuses := []domain.TransferStatus{
		domain.TransferStatusPending,
		domain.TransferStatusProcessing,
		domain.TransferStatusCompleted,
	}
	for i, st := range statuses {
		require.NoError(t, store.Insert(ctx, &domain.StatusObservation{
			TransferID: "t1",
			Status:     st,
			Poll:       i + 1,
			ObservedAt: base.Add(time.Duration(i*5) * time.Second),
		}))
	}

	got, err := store.GetByTransferID(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, o := range got {
		assert.Equal(t, i+1, o.Poll)
		assert.Equal(t, statuses[i], o.Status)
	}

	err = store.Insert(ctx, &domain.StatusObservation{TransferID: "t1", Status: domain.TransferStatusCompleted, Poll: 3, ObservedAt: base})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}
