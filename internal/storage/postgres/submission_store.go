package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"custody-workbench/internal/domain"
	"custody-workbench/internal/storage"
)

// SubmissionStore implements storage.SubmissionStore using PostgreSQL.
type SubmissionStore struct {
	pool *Pool
}

// NewSubmissionStore creates a new SubmissionStore.
func NewSubmissionStore(pool *Pool) *SubmissionStore {
	return &SubmissionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SubmissionStore = (*SubmissionStore)(nil)

const submissionColumns = `
	id, session_id, kind, market, side, amount,
	upstream_id, outcome, message, created_at
`

// Insert adds a new submission. Returns ErrDuplicateKey if id exists.
func (s *SubmissionStore) Insert(ctx context.Context, sub *domain.Submission) (err error) {
	if sub == nil || sub.ID == "" || sub.Kind == "" {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("insert_submission", start, err) }(time.Now())

	query := `
		INSERT INTO submissions (` + submissionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = s.pool.Exec(ctx, query,
		sub.ID, sub.SessionID, string(sub.Kind), sub.Market, sub.Side, sub.Amount,
		sub.UpstreamID, sub.Outcome, sub.Message, sub.CreatedAt,
	)
	if err != nil {
		if duplicate(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// GetByID retrieves a submission by its ID. Returns ErrNotFound if not exists.
func (s *SubmissionStore) GetByID(ctx context.Context, id string) (_ *domain.Submission, err error) {
	defer func(start time.Time) { observe("get_submission", start, err) }(time.Now())

	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`

	sub, err := scanSubmission(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if noRows(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get submission by id: %w", err)
	}
	return sub, nil
}

// GetBySession retrieves all submissions of a session, ordered by created_at ASC.
func (s *SubmissionStore) GetBySession(ctx context.Context, sessionID string) (_ []*domain.Submission, err error) {
	defer func(start time.Time) { observe("list_submissions_by_session", start, err) }(time.Now())

	query := `
		SELECT ` + submissionColumns + `
		FROM submissions
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query submissions by session: %w", err)
	}
	defer rows.Close()

	return scanSubmissions(rows)
}

// GetByTimeRange retrieves submissions created within [start, end] (inclusive).
func (s *SubmissionStore) GetByTimeRange(ctx context.Context, start, end time.Time) (_ []*domain.Submission, err error) {
	defer func(began time.Time) { observe("list_submissions_by_time", began, err) }(time.Now())

	query := `
		SELECT ` + submissionColumns + `
		FROM submissions
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query submissions by time range: %w", err)
	}
	defer rows.Close()

	return scanSubmissions(rows)
}

func scanSubmission(row pgx.Row) (*domain.Submission, error) {
	var sub domain.Submission
	var kind string
	err := row.Scan(
		&sub.ID, &sub.SessionID, &kind, &sub.Market, &sub.Side, &sub.Amount,
		&sub.UpstreamID, &sub.Outcome, &sub.Message, &sub.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.Kind = domain.SubmissionKind(kind)
	return &sub, nil
}

func scanSubmissions(rows pgx.Rows) ([]*domain.Submission, error) {
	var result []*domain.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		result = append(result, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return result, nil
}
