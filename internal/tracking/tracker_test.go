package tracking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custody-workbench/internal/clock"
	"custody-workbench/internal/collections"
	"custody-workbench/internal/domain"
	"custody-workbench/internal/notify"
)

// scriptedLookup returns one scripted result per call and repeats the last.
type scriptedLookup struct {
	mu      sync.Mutex
	results []lookupResult
	calls   int
	// during runs inside GetTransfer.
	during func()
}

type lookupResult struct {
	status domain.TransferStatus
	err    error
}

func (l *scriptedLookup) GetTransfer(_ context.Context, id string) (*domain.Transfer, error) {
	l.mu.Lock()
	i := l.calls
	if i >= len(l.results) {
		i = len(l.results) - 1
	}
	l.calls++
	r := l.results[i]
	during := l.during
	l.mu.Unlock()

	if during != nil {
		during()
	}
	if r.err != nil {
		return nil, r.err
	}
	return &domain.Transfer{ID: id, Status: r.status}, nil
}

func (l *scriptedLookup) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

type invalidations struct {
	kinds []collections.Kind
}

func (i *invalidations) Invalidate(_ context.Context, kinds ...collections.Kind) {
	i.kinds = append(i.kinds, kinds...)
}

type observationSpy struct {
	obs []domain.StatusObservation
}

func (s *observationSpy) RecordObservation(_ context.Context, o domain.StatusObservation) {
	s.obs = append(s.obs, o)
}

func ok(s domain.TransferStatus) lookupResult { return lookupResult{status: s} }

func newTestTracker(lookup Lookup, opts ...Option) (*Tracker, *clock.Fake) {
	clk := clock.NewFake(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	return NewTracker(lookup, append([]Option{WithClock(clk)}, opts...)...), clk
}

func drain(ch <-chan Update) []Update {
	var out []Update
	for u := range ch {
		out = append(out, u)
	}
	return out
}

// A withdrawal returns {t1, PENDING}; polls return PENDING, PROCESSING,
// COMPLETED. Polling stops after the third poll.
func TestTracker_StopsOnTerminalStatus(t *testing.T) {
	lookup := &scriptedLookup{results: []lookupResult{
		ok(domain.TransferStatusPending),
		ok(domain.TransferStatusProcessing),
		ok(domain.TransferStatusCompleted),
	}}
	inv := &invalidations{}
	rec := notify.NewRecorder(0)
	journal := &observationSpy{}
	tracker, clk := newTestTracker(lookup,
		WithInvalidator(inv), WithNotifier(rec), WithJournal(journal))

	tr, err := tracker.Track("s1", "t1", domain.TransferStatusPending)
	require.NoError(t, err)
	assert.Equal(t, 1, clk.Active())

	clk.Advance(5 * time.Second)
	assert.Equal(t, domain.TransferStatusPending, tr.Status())
	clk.Advance(5 * time.Second)
	assert.Equal(t, domain.TransferStatusProcessing, tr.Status())
	clk.Advance(5 * time.Second)
	assert.Equal(t, domain.TransferStatusCompleted, tr.Status())

	clk.Advance(time.Minute)
	assert.Equal(t, 3, lookup.Calls())
	assert.Equal(t, 3, tr.Polls())
	assert.True(t, tr.Done())
	assert.True(t, tr.Terminal())
	assert.Equal(t, 0, clk.Active())
	assert.Equal(t, 0, tracker.Active())

	updates := drain(tr.Updates())
	require.Len(t, updates, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{updates[0].Poll, updates[1].Poll, updates[2].Poll})
	assert.Equal(t, domain.TransferStatusCompleted, updates[2].Status)

	p := tr.Progress()
	assert.True(t, p.Complete())
	assert.Empty(t, p.Banner)

	assert.Equal(t, []collections.Kind{collections.KindTransfers}, inv.kinds)
	notices := rec.Notices("s1")
	require.Len(t, notices, 1)
	assert.Equal(t, notify.LevelSuccess, notices[0].Level)
	assert.Equal(t, "t1", notices[0].Ref)

	require.Len(t, journal.obs, 3)
	assert.Equal(t, 3, journal.obs[2].Poll)
}

func TestTracker_PollErrorIsNoUpdate(t *testing.T) {
	lookup := &scriptedLookup{results: []lookupResult{
		ok(domain.TransferStatusProcessing),
		{err: errors.New("timeout")},
		ok(domain.TransferStatusFailed),
	}}
	rec := notify.NewRecorder(0)
	tracker, clk := newTestTracker(lookup, WithNotifier(rec))

	tr, err := tracker.Track("s1", "t1", "")
	require.NoError(t, err)

	clk.Advance(5 * time.Second)
	clk.Advance(5 * time.Second)
	assert.Equal(t, domain.TransferStatusProcessing, tr.Status())
	assert.False(t, tr.Done())

	clk.Advance(5 * time.Second)
	assert.Equal(t, domain.TransferStatusFailed, tr.Status())
	assert.True(t, tr.Done())

	updates := drain(tr.Updates())
	require.Len(t, updates, 2)
	assert.Equal(t, 3, updates[1].Poll)

	p := tr.Progress()
	assert.Empty(t, p.Steps)
	assert.Equal(t, "Transfer failed", p.Banner)
	assert.Equal(t, notify.LevelError, rec.Notices("s1")[0].Level)
}

func TestTracker_NoAttemptLimit(t *testing.T) {
	lookup := &scriptedLookup{results: []lookupResult{ok(domain.TransferStatusPending)}}
	tracker, clk := newTestTracker(lookup, WithStuckWarnEvery(10))

	tr, err := tracker.Track("s1", "t1", domain.TransferStatusPending)
	require.NoError(t, err)

	clk.Advance(10 * time.Minute)

	assert.Equal(t, 120, tr.Polls())
	assert.False(t, tr.Done())
	assert.Equal(t, 1, clk.Active())

	tr.Stop()
	tr.Stop()
	assert.Equal(t, 0, clk.Active())
	assert.Equal(t, 0, tracker.Active())
	assert.False(t, tr.Terminal())
}

func TestTracker_NonPositiveIntervalKeepsDefault(t *testing.T) {
	lookup := &scriptedLookup{results: []lookupResult{ok(domain.TransferStatusPending)}}
	tracker, clk := newTestTracker(lookup, WithInterval(0))

	tr, err := tracker.Track("s1", "t1", domain.TransferStatusPending)
	require.NoError(t, err)
	defer tr.Stop()

	clk.Advance(DefaultInterval - time.Millisecond)
	assert.Equal(t, 0, lookup.Calls())
	clk.Advance(time.Millisecond)
	assert.Equal(t, 1, lookup.Calls())
}

func TestTracker_TeardownDiscardsInFlightResult(t *testing.T) {
	lookup := &scriptedLookup{results: []lookupResult{ok(domain.TransferStatusCompleted)}}
	rec := notify.NewRecorder(0)
	tracker, clk := newTestTracker(lookup, WithNotifier(rec))

	tr, err := tracker.Track("s1", "t1", domain.TransferStatusPending)
	require.NoError(t, err)
	lookup.during = tracker.Close

	clk.Advance(5 * time.Second)

	assert.Equal(t, domain.TransferStatusPending, tr.Status())
	assert.True(t, tr.Done())
	assert.False(t, tr.Terminal())
	assert.Empty(t, drain(tr.Updates()))
	assert.Empty(t, rec.Notices("s1"))
	assert.Equal(t, 0, clk.Active())

	_, err = tracker.Track("s1", "t2", domain.TransferStatusPending)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestTracker_TerminalInitialStatus(t *testing.T) {
	lookup := &scriptedLookup{results: []lookupResult{ok(domain.TransferStatusPending)}}
	tracker, clk := newTestTracker(lookup)

	tr, err := tracker.Track("s1", "t1", domain.TransferStatusCompleted)
	require.NoError(t, err)

	assert.True(t, tr.Done())
	assert.Equal(t, 0, clk.Active())
	assert.Equal(t, 0, lookup.Calls())
	assert.Len(t, drain(tr.Updates()), 1)
}

func TestTracker_EmptyID(t *testing.T) {
	tracker, _ := newTestTracker(&scriptedLookup{})

	_, err := tracker.Track("s1", " ", "")
	assert.ErrorIs(t, err, ErrEmptyID)
}

func TestProgress(t *testing.T) {
	tests := []struct {
		description string
		status      domain.TransferStatus
		filled      []bool
		banner      string
	}{
		{"pending", domain.TransferStatusPending, []bool{true, false, false}, ""},
		{"processing", domain.TransferStatusProcessing, []bool{true, true, false}, ""},
		{"completed", domain.TransferStatusCompleted, []bool{true, true, true}, ""},
		{"unknown", "", []bool{false, false, false}, ""},
		{"failed", domain.TransferStatusFailed, nil, "Transfer failed"},
		{"cancelled", domain.TransferStatusCancelled, nil, "Transfer cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			p := NewProgress(tt.status)
			assert.Equal(t, tt.banner, p.Banner)
			if tt.filled == nil {
				assert.Empty(t, p.Steps)
				return
			}
			require.Len(t, p.Steps, 3)
			for i, want := range tt.filled {
				assert.Equal(t, want, p.Steps[i].Filled, "step %d", i)
			}
		})
	}
}
