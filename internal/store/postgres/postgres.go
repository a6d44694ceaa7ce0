// Package postgres provides a PostgreSQL-backed [store.Store].
//
// All workers share one submissions table; ClaimNext uses
// FOR UPDATE SKIP LOCKED so concurrent workers on separate processes never
// claim the same submission. [Migrate] runs automatically on [New] and is
// idempotent, so it is safe on every application start.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/cadence/internal/score"
	"github.com/MrWong99/cadence/internal/store"
)

var _ store.Store = (*Store)(nil)

const ddlSubmissions = `
CREATE TABLE IF NOT EXISTS submissions (
    id          UUID         PRIMARY KEY DEFAULT gen_random_uuid(),
    task_id     TEXT         NOT NULL DEFAULT '',
    reader_id   TEXT         NOT NULL DEFAULT '',
    audio_path  TEXT         NOT NULL,
    script      TEXT         NOT NULL,
    language    TEXT         NOT NULL DEFAULT '',
    engine      TEXT         NOT NULL DEFAULT '',
    status      TEXT         NOT NULL DEFAULT 'queued',
    result      JSONB,
    error       TEXT         NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_submissions_status_created
    ON submissions (status, created_at);

CREATE INDEX IF NOT EXISTS idx_submissions_created
    ON submissions (created_at DESC);
`

const submissionColumns = `id, task_id, reader_id, audio_path, script, language,
	engine, status, result, error, created_at, updated_at`

// Store is a PostgreSQL-backed submission store. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database at dsn, verifies the connection, and runs
// [Migrate].
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Migrate ensures the submissions table and its indexes exist. It is
// idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlSubmissions); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Create implements [store.Store].
func (s *Store) Create(ctx context.Context, sub *store.Submission) error {
	const q = `
		INSERT INTO submissions (task_id, reader_id, audio_path, script, language, engine)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, status, created_at, updated_at`

	err := s.pool.QueryRow(ctx, q,
		sub.TaskID,
		sub.ReaderID,
		sub.AudioPath,
		sub.Script,
		sub.Language,
		sub.Engine,
	).Scan(&sub.ID, &sub.Status, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres store: create: %w", err)
	}
	return nil
}

// Get implements [store.Store].
func (s *Store) Get(ctx context.Context, id string) (*store.Submission, error) {
	q := "SELECT " + submissionColumns + " FROM submissions WHERE id = $1"

	sub, err := scanSubmission(s.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: get: %w", err)
	}
	return sub, nil
}

// ClaimNext implements [store.Store]. SKIP LOCKED makes concurrent claims
// from separate workers pick distinct rows instead of blocking.
func (s *Store) ClaimNext(ctx context.Context) (*store.Submission, error) {
	q := `
		UPDATE submissions
		SET    status = 'processing', updated_at = now()
		WHERE  id = (
		    SELECT id FROM submissions
		    WHERE  status = 'queued'
		    ORDER  BY created_at
		    LIMIT  1
		    FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + submissionColumns

	sub, err := scanSubmission(s.pool.QueryRow(ctx, q))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNoneQueued
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: claim next: %w", err)
	}
	return sub, nil
}

// Complete implements [store.Store].
func (s *Store) Complete(ctx context.Context, id string, result *score.Result) error {
	doc, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("postgres store: encode result: %w", err)
	}

	const q = `
		UPDATE submissions
		SET    status = 'completed', result = $2, error = '', updated_at = now()
		WHERE  id = $1`

	tag, err := s.pool.Exec(ctx, q, id, doc)
	if err != nil {
		return fmt.Errorf("postgres store: complete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Fail implements [store.Store].
func (s *Store) Fail(ctx context.Context, id string, errMsg string, res *score.Result) error {
	var doc []byte
	if res != nil {
		var err error
		if doc, err = json.Marshal(res); err != nil {
			return fmt.Errorf("postgres store: encode failure result: %w", err)
		}
	}

	const q = `
		UPDATE submissions
		SET    status = 'failed', error = $2, result = COALESCE($3, result),
		       updated_at = now()
		WHERE  id = $1`

	tag, err := s.pool.Exec(ctx, q, id, errMsg, doc)
	if err != nil {
		return fmt.Errorf("postgres store: fail: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// RecoverStale implements [store.Store].
func (s *Store) RecoverStale(ctx context.Context) (int, error) {
	const q = `
		UPDATE submissions
		SET    status = 'failed', error = 'recovered after unclean shutdown', updated_at = now()
		WHERE  status = 'processing'`

	tag, err := s.pool.Exec(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("postgres store: recover stale: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ListRecent implements [store.Store].
func (s *Store) ListRecent(ctx context.Context, limit int) ([]*store.Submission, error) {
	q := "SELECT " + submissionColumns + " FROM submissions ORDER BY created_at DESC"
	args := []any{}
	if limit > 0 {
		q += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list recent: %w", err)
	}
	subs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*store.Submission, error) {
		return scanSubmission(row)
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan rows: %w", err)
	}
	if subs == nil {
		subs = []*store.Submission{}
	}
	return subs, nil
}

// scanSubmission reads one submissions row in submissionColumns order.
func scanSubmission(row pgx.Row) (*store.Submission, error) {
	var (
		sub store.Submission
		doc []byte
	)
	if err := row.Scan(
		&sub.ID,
		&sub.TaskID,
		&sub.ReaderID,
		&sub.AudioPath,
		&sub.Script,
		&sub.Language,
		&sub.Engine,
		&sub.Status,
		&doc,
		&sub.Error,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(doc) > 0 {
		sub.Result = new(score.Result)
		if err := json.Unmarshal(doc, sub.Result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
	}
	return &sub, nil
}
