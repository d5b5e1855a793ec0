package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"custody-workbench/internal/domain"
	"custody-workbench/internal/storage"
)

func TestStatusObservationStore_OrderedByPoll(t *testing.T) {
	store := NewStatusObservationStore()
	ctx := context.Background()

	statuses := []domain.TransferStatus{
		domain.TransferStatusCompleted,
		domain.TransferStatusPending,
		domain.TransferStatusProcessing,
	}
	for i, poll := range []int{3, 1, 2} {
		err := store.Insert(ctx, &domain.StatusObservation{
			TransferID: "t1",
			Status:     statuses[i],
			Poll:       poll,
			ObservedAt: time.Unix(int64(poll*5), 0),
		})
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got, err := store.GetByTransferID(ctx, "t1")
	if err != nil {
		t.Fatalf("GetByTransferID failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 observations, got %d", len(got))
	}

	want := []domain.TransferStatus{
		domain.TransferStatusPending,
		domain.TransferStatusProcessing,
		domain.TransferStatusCompleted,
	}
	for i, o := range got {
		if o.Status != want[i] {
			t.Errorf("poll %d: got %s, want %s", o.Poll, o.Status, want[i])
		}
	}
}

func TestStatusObservationStore_DuplicatePoll(t *testing.T) {
	store := NewStatusObservationStore()
	ctx := context.Background()

	o := &domain.StatusObservation{TransferID: "t1", Status: domain.TransferStatusPending, Poll: 1}
	if err := store.Insert(ctx, o); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	if err := store.Insert(ctx, o); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	if err := store.Insert(ctx, &domain.StatusObservation{TransferID: "t1"}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for poll 0, got %v", err)
	}
}
