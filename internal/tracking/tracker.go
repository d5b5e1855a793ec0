// Package tracking polls the upstream for the lifecycle state of submitted
// transfers and withdrawals until they reach a terminal status.
package tracking

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"custody-workbench/internal/clock"
	"custody-workbench/internal/collections"
	"custody-workbench/internal/domain"
	"custody-workbench/internal/notify"
	"custody-workbench/internal/observability"
)

const (
	// DefaultInterval is the fixed poll interval.
	DefaultInterval = 5 * time.Second

	// DefaultPollTimeout bounds a single status lookup.
	DefaultPollTimeout = 10 * time.Second

	// DefaultStuckWarnEvery logs a warning after this many polls without a
	// terminal status, and again at every multiple.
	DefaultStuckWarnEvery = 60

	updateBuffer = 16
)

var (
	// ErrEmptyID is returned when tracking is requested without a transfer id.
	ErrEmptyID = errors.New("transfer id required")

	// ErrClosed is returned by Track after Close.
	ErrClosed = errors.New("tracker closed")
)

// Lookup fetches one transfer's current state.
type Lookup interface {
	GetTransfer(ctx context.Context, transferID string) (*domain.Transfer, error)
}

// ObservationRecorder journals successful polls.
type ObservationRecorder interface {
	RecordObservation(ctx context.Context, o domain.StatusObservation)
}

// Update is one observed status.
type Update struct {
	TransferID string                `json:"transfer_id"`
	Status     domain.TransferStatus `json:"status"`
	Poll       int                   `json:"poll"`
	At         time.Time             `json:"at"`
}

// Tracker starts and owns status trackings.
type Tracker struct {
	lookup      Lookup
	clock       clock.Clock
	interval    time.Duration
	pollTimeout time.Duration
	warnEvery   int
	cache       collections.Invalidator
	notifier    notify.Notifier
	journal     ObservationRecorder
	logger      zerolog.Logger

	mu     sync.Mutex
	active map[*Tracking]struct{}
	closed bool
}

// Option configures Tracker.
type Option func(*Tracker)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(t *Tracker) {
		t.clock = c
	}
}

// WithInterval sets the poll interval. Non-positive values keep the default.
func WithInterval(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.interval = d
		}
	}
}

// WithPollTimeout bounds each status lookup.
func WithPollTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		t.pollTimeout = d
	}
}

// WithStuckWarnEvery sets how many non-terminal polls pass between warnings.
func WithStuckWarnEvery(n int) Option {
	return func(t *Tracker) {
		t.warnEvery = n
	}
}

// WithInvalidator refreshes the transfers collection on terminal status.
func WithInvalidator(inv collections.Invalidator) Option {
	return func(t *Tracker) {
		t.cache = inv
	}
}

// WithNotifier sets the notification sink.
func WithNotifier(n notify.Notifier) Option {
	return func(t *Tracker) {
		t.notifier = n
	}
}

// WithJournal records every successful poll.
func WithJournal(j ObservationRecorder) Option {
	return func(t *Tracker) {
		t.journal = j
	}
}

// WithLogger sets the tracker logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger.With().Str("component", "tracking").Logger()
	}
}

// NewTracker creates a tracker.
func NewTracker(lookup Lookup, opts ...Option) *Tracker {
	t := &Tracker{
		lookup:      lookup,
		clock:       clock.New(),
		interval:    DefaultInterval,
		pollTimeout: DefaultPollTimeout,
		warnEvery:   DefaultStuckWarnEvery,
		notifier:    notify.Nop,
		logger:      zerolog.Nop(),
		active:      make(map[*Tracking]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track starts polling transferID. initial is the status returned by the
// submission, if any; a terminal initial status finishes immediately.
func (t *Tracker) Track(sessionID, transferID string, initial domain.TransferStatus) (*Tracking, error) {
	transferID = strings.TrimSpace(transferID)
	if transferID == "" {
		return nil, ErrEmptyID
	}

	tr := &Tracking{
		tracker:    t,
		sessionID:  sessionID,
		transferID: transferID,
		status:     initial,
		updates:    make(chan Update, updateBuffer),
		started:    t.clock.Now(),
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	t.active[tr] = struct{}{}
	t.mu.Unlock()

	observability.TrackerStarted()
	t.logger.Debug().Str("transfer_id", transferID).Str("status", initial.String()).Msg("tracking started")

	if initial.IsTerminal() {
		tr.finish(initial, true)
		return tr, nil
	}

	tr.mu.Lock()
	if !tr.done {
		tr.timer = t.clock.Every(t.interval, tr.poll)
	}
	tr.mu.Unlock()
	return tr, nil
}

// Active returns the number of running trackings.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// Close stops every running tracking.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	list := make([]*Tracking, 0, len(t.active))
	for tr := range t.active {
		list = append(list, tr)
	}
	t.mu.Unlock()

	for _, tr := range list {
		tr.Stop()
	}
}

func (t *Tracker) release(tr *Tracking) {
	t.mu.Lock()
	delete(t.active, tr)
	t.mu.Unlock()
	observability.TrackerStopped()
}

// Tracking is one transfer being polled.
type Tracking struct {
	tracker    *Tracker
	sessionID  string
	transferID string
	updates    chan Update
	started    time.Time

	mu       sync.Mutex
	status   domain.TransferStatus
	polls    int
	inFlight bool
	timer    clock.Timer
	done     bool
	terminal bool
}

// TransferID returns the tracked transfer id.
func (tr *Tracking) TransferID() string {
	return tr.transferID
}

// Updates delivers each observed status. It is closed when tracking ends.
// Updates are dropped when the buffer is full; Status always has the latest.
func (tr *Tracking) Updates() <-chan Update {
	return tr.updates
}

// Status returns the latest observed status.
func (tr *Tracking) Status() domain.TransferStatus {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.status
}

// Polls returns the number of status lookups issued.
func (tr *Tracking) Polls() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.polls
}

// Done reports whether polling has ended.
func (tr *Tracking) Done() bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.done
}

// Terminal reports whether polling ended on a terminal status.
func (tr *Tracking) Terminal() bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.terminal
}

// Progress renders the current status.
func (tr *Tracking) Progress() Progress {
	return NewProgress(tr.Status())
}

// Stop ends polling without a terminal status. Safe to call more than once.
func (tr *Tracking) Stop() {
	tr.mu.Lock()
	if tr.done {
		tr.mu.Unlock()
		return
	}
	tr.done = true
	tr.stopTimerLocked()
	close(tr.updates)
	tr.mu.Unlock()

	tr.tracker.release(tr)
	tr.tracker.logger.Debug().Str("transfer_id", tr.transferID).Msg("tracking stopped")
}

func (tr *Tracking) stopTimerLocked() {
	if tr.timer != nil {
		tr.timer.Stop()
		tr.timer = nil
	}
}

func (tr *Tracking) poll() {
	t := tr.tracker

	tr.mu.Lock()
	if tr.done || tr.inFlight {
		tr.mu.Unlock()
		return
	}
	tr.inFlight = true
	tr.polls++
	n := tr.polls
	tr.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), t.pollTimeout)
	defer cancel()
	transfer, err := t.lookup.GetTransfer(ctx, tr.transferID)
	observability.RecordStatusPoll(err)

	tr.mu.Lock()
	tr.inFlight = false
	if tr.done {
		// Torn down while the lookup was pending.
		tr.mu.Unlock()
		return
	}
	if err != nil {
		tr.mu.Unlock()
		t.logger.Warn().Err(err).Str("transfer_id", tr.transferID).Int("poll", n).Msg("status poll failed")
		tr.warnIfStuck(n)
		return
	}

	now := t.clock.Now()
	tr.status = transfer.Status
	u := Update{TransferID: tr.transferID, Status: transfer.Status, Poll: n, At: now}
	select {
	case tr.updates <- u:
	default:
	}
	tr.mu.Unlock()

	if t.journal != nil {
		t.journal.RecordObservation(ctx, domain.StatusObservation{
			TransferID: tr.transferID,
			Status:     transfer.Status,
			Poll:       n,
			ObservedAt: now,
		})
	}

	if transfer.Status.IsTerminal() {
		tr.finish(transfer.Status, false)
		return
	}
	tr.warnIfStuck(n)
}

func (tr *Tracking) warnIfStuck(n int) {
	t := tr.tracker
	if t.warnEvery > 0 && n%t.warnEvery == 0 {
		t.logger.Warn().
			Str("transfer_id", tr.transferID).
			Str("status", tr.Status().String()).
			Int("polls", n).
			Dur("elapsed", t.clock.Now().Sub(tr.started)).
			Msg("transfer has not reached a terminal status")
	}
}

// finish ends tracking on a terminal status.
func (tr *Tracking) finish(status domain.TransferStatus, initial bool) {
	t := tr.tracker

	tr.mu.Lock()
	if tr.done {
		tr.mu.Unlock()
		return
	}
	tr.done = true
	tr.terminal = true
	tr.status = status
	tr.stopTimerLocked()
	if initial {
		select {
		case tr.updates <- Update{TransferID: tr.transferID, Status: status, At: t.clock.Now()}:
		default:
		}
	}
	close(tr.updates)
	polls := tr.polls
	tr.mu.Unlock()

	t.release(tr)
	observability.RecordTerminalStatus(status.String())

	ctx := context.Background()
	if t.cache != nil {
		t.cache.Invalidate(ctx, collections.KindTransfers)
	}

	level := notify.LevelSuccess
	if status != domain.TransferStatusCompleted {
		level = notify.LevelError
	}
	t.notifier.Notify(ctx, notify.Notice{
		SessionID: tr.sessionID,
		Level:     level,
		Topic:     notify.TopicTransfer,
		Message:   terminalMessage(status),
		Ref:       tr.transferID,
		At:        t.clock.Now(),
	})

	t.logger.Info().
		Str("transfer_id", tr.transferID).
		Str("status", status.String()).
		Int("polls", polls).
		Msg("transfer reached terminal status")
}

func terminalMessage(status domain.TransferStatus) string {
	switch status {
	case domain.TransferStatusCompleted:
		return "Transfer completed"
	case domain.TransferStatusCancelled:
		return "Transfer cancelled"
	default:
		return "Transfer failed"
	}
}
