// Package withdrawal submits crypto and fiat withdrawals. The returned
// Transfer id is what the caller hands to the status tracker.
package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"custody-workbench/internal/address"
	"custody-workbench/internal/clock"
	"custody-workbench/internal/collections"
	"custody-workbench/internal/domain"
	"custody-workbench/internal/notify"
	"custody-workbench/internal/observability"
	"custody-workbench/internal/upstream"
	"custody-workbench/internal/validation"
)

// ErrInvalidWithdrawal is returned when a form fails local validation.
// No request is issued.
var ErrInvalidWithdrawal = errors.New("invalid withdrawal")

// API is the upstream surface used for withdrawals.
type API interface {
	CreateCryptoWithdrawal(ctx context.Context, req upstream.CryptoWithdrawalRequest) (*domain.Transfer, error)
	CreateFiatWithdrawal(ctx context.Context, req upstream.FiatWithdrawalRequest) (*domain.Transfer, error)
}

// SubmissionRecorder journals mutating calls.
type SubmissionRecorder interface {
	RecordSubmission(ctx context.Context, s domain.Submission)
}

// CryptoForm is an on-chain withdrawal as entered.
type CryptoForm struct {
	Asset       string `json:"asset" validate:"required"`
	Amount      string `json:"amount" validate:"posdecimal"`
	Destination string `json:"destination" validate:"required"`
	Network     string `json:"network"`
}

// FiatForm is a withdrawal to a linked fiat account as entered.
type FiatForm struct {
	Asset         string `json:"asset" validate:"required"`
	Amount        string `json:"amount" validate:"posdecimal"`
	FiatAccountID string `json:"fiat_account_id" validate:"required"`
}

// Service submits withdrawals.
type Service struct {
	api      API
	cache    collections.Invalidator
	notifier notify.Notifier
	journal  SubmissionRecorder
	validate *validator.Validate
	clock    clock.Clock
	logger   zerolog.Logger
}

// Option configures Service.
type Option func(*Service)

// WithNotifier sets the notification sink.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithJournal sets the submission journal.
func WithJournal(j SubmissionRecorder) Option {
	return func(s *Service) {
		s.journal = j
	}
}

// WithClock sets the clock used to stamp notices.
func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// WithLogger sets the service logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger.With().Str("component", "withdrawal").Logger()
	}
}

// NewService creates a withdrawal service.
func NewService(api API, cache collections.Invalidator, opts ...Option) *Service {
	s := &Service{
		api:      api,
		cache:    cache,
		notifier: notify.Nop,
		validate: validation.New(),
		clock:    clock.New(),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckCrypto validates a crypto form without submitting it.
func (s *Service) CheckCrypto(form CryptoForm) error {
	if err := s.validate.Struct(form); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidWithdrawal, validation.FieldError(err))
	}
	network := form.Network
	if network == "" {
		network = address.NetworkForAsset(form.Asset)
	}
	if err := address.Validate(network, strings.TrimSpace(form.Destination)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWithdrawal, err)
	}
	return nil
}

// CheckFiat validates a fiat form without submitting it.
func (s *Service) CheckFiat(form FiatForm) error {
	if err := s.validate.Struct(form); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidWithdrawal, validation.FieldError(err))
	}
	return nil
}

// Crypto submits an on-chain withdrawal.
func (s *Service) Crypto(ctx context.Context, sessionID string, form CryptoForm) (*domain.Transfer, error) {
	if err := s.CheckCrypto(form); err != nil {
		return nil, err
	}
	amount, _ := validation.ParsePositive(form.Amount)

	req := upstream.CryptoWithdrawalRequest{
		Asset:       strings.ToUpper(form.Asset),
		Amount:      amount,
		Destination: strings.TrimSpace(form.Destination),
		Network:     form.Network,
	}
	t, err := s.api.CreateCryptoWithdrawal(ctx, req)
	s.finish(ctx, sessionID, domain.SubmissionCryptoWithdraw, req.Asset, form.Amount, t, err)
	return t, err
}

// Fiat submits a withdrawal to a linked fiat account.
func (s *Service) Fiat(ctx context.Context, sessionID string, form FiatForm) (*domain.Transfer, error) {
	if err := s.CheckFiat(form); err != nil {
		return nil, err
	}
	amount, _ := validation.ParsePositive(form.Amount)

	req := upstream.FiatWithdrawalRequest{
		Asset:         strings.ToUpper(form.Asset),
		Amount:        amount,
		FiatAccountID: form.FiatAccountID,
	}
	t, err := s.api.CreateFiatWithdrawal(ctx, req)
	s.finish(ctx, sessionID, domain.SubmissionFiatWithdrawal, req.Asset, form.Amount, t, err)
	return t, err
}

func (s *Service) finish(ctx context.Context, sessionID string, kind domain.SubmissionKind, asset, amount string, t *domain.Transfer, err error) {
	observability.RecordWithdrawal(kind.String(), err)

	sub := domain.Submission{
		SessionID: sessionID,
		Kind:      kind,
		Market:    asset,
		Amount:    amount,
	}
	notice := notify.Notice{SessionID: sessionID, Topic: notify.TopicWithdrawal, At: s.clock.Now()}

	if err != nil {
		sub.Outcome = domain.OutcomeFailed
		sub.Message = upstream.Message(err)
		notice.Level = notify.LevelError
		notice.Message = sub.Message
		s.logger.Warn().Err(err).Str("kind", kind.String()).Msg("withdrawal failed")
	} else {
		sub.Outcome = domain.OutcomeSucceeded
		sub.UpstreamID = t.ID
		notice.Level = notify.LevelSuccess
		notice.Message = fmt.Sprintf("Withdrawal of %s %s submitted", amount, asset)
		notice.Ref = t.ID
		s.cache.Invalidate(ctx, collections.KindTransfers)
	}

	if s.journal != nil {
		s.journal.RecordSubmission(ctx, sub)
	}
	s.notifier.Notify(ctx, notice)
}
