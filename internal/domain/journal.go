package domain

import "time"

// SubmissionKind identifies the mutating call recorded in the journal.
type SubmissionKind string

const (
	SubmissionOrder          SubmissionKind = "ORDER"
	SubmissionQuoteExecution SubmissionKind = "QUOTE_EXECUTION"
	SubmissionCancel         SubmissionKind = "CANCEL"
	SubmissionCryptoWithdraw SubmissionKind = "CRYPTO_WITHDRAWAL"
	SubmissionFiatWithdrawal SubmissionKind = "FIAT_WITHDRAWAL"
)

// String returns the string representation of SubmissionKind.
func (k SubmissionKind) String() string {
	return string(k)
}

// Outcome values for Submission.Outcome.
const (
	OutcomeSucceeded = "SUCCEEDED"
	OutcomeFailed    = "FAILED"
)

// Submission is an audit record of one mutating upstream call.
type Submission struct {
	ID         string         // journal id (uuid)
	SessionID  string         // owning session, may be empty for CLI use
	Kind       SubmissionKind // what was attempted
	Market     string         // market or asset
	Side       string         // BUY/SELL, empty for withdrawals
	Amount     string         // as entered, decimal string
	UpstreamID string         // order/execution/transfer id when known
	Outcome    string         // SUCCEEDED | FAILED
	Message    string         // upstream error message on failure
	CreatedAt  time.Time
}

// StatusObservation is one successful status poll of a tracked transfer.
type StatusObservation struct {
	TransferID string
	Status     TransferStatus
	Poll       int // 1-based poll sequence number
	ObservedAt time.Time
}
