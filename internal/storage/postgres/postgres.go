// Package postgres stores the submission journal and status observations in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"custody-workbench/internal/observability"
)

const (
	// applicationName tags journal connections in pg_stat_activity.
	applicationName = "custody-workbench"

	minJournalConns  = 2
	maxJournalConns  = 8
	journalIdleLimit = 5 * time.Minute
	pingTimeout      = 5 * time.Second

	codeUniqueViolation = "23505"
)

// Pool is the journal connection pool.
type Pool struct {
	*pgxpool.Pool
}

// NewPool connects to dsn and verifies the connection. Pool limits from the
// DSN are kept when they are within the journal's bounds.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns < minJournalConns || cfg.MaxConns > maxJournalConns {
		cfg.MaxConns = maxJournalConns
	}
	cfg.MaxConnIdleTime = journalIdleLimit
	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Pool{Pool: pool}, nil
}

// Close releases every connection.
func (p *Pool) Close() {
	p.Pool.Close()
}

// duplicate reports a primary-key collision on an append-only table.
func duplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

func noRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// observe records latency for one journal query. A missing row is a result,
// not a failure.
func observe(operation string, start time.Time, err error) {
	if noRows(err) {
		err = nil
	}
	observability.RecordDBQuery("postgres", operation, time.Since(start).Seconds(), err)
}
