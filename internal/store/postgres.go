// internal/store/postgres.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS applications (
    id            TEXT PRIMARY KEY,
    job_url       TEXT NOT NULL,
    company       TEXT NOT NULL DEFAULT '',
    position      TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL,
    fields_filled INTEGER NOT NULL DEFAULT 0,
    total_fields  INTEGER NOT NULL DEFAULT 0,
    errors        JSONB NOT NULL DEFAULT '[]',
    started_at    TIMESTAMPTZ NOT NULL,
    finished_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS applications_finished_at_idx ON applications (finished_at DESC);
CREATE TABLE IF NOT EXISTS submission_attempts (
    application_id TEXT NOT NULL REFERENCES applications (id) ON DELETE CASCADE,
    attempt_index  INTEGER NOT NULL,
    clicked        BOOLEAN NOT NULL,
    success        BOOLEAN NOT NULL,
    errors         JSONB NOT NULL DEFAULT '[]',
    PRIMARY KEY (application_id, attempt_index)
);
CREATE TABLE IF NOT EXISTS postings (
    url         TEXT PRIMARY KEY,
    company     TEXT NOT NULL DEFAULT '',
    position    TEXT NOT NULL DEFAULT '',
    markdown    TEXT NOT NULL DEFAULT '',
    captured_at TIMESTAMPTZ NOT NULL,
    search      TSVECTOR GENERATED ALWAYS AS (
        setweight(to_tsvector('english', company || ' ' || position), 'A') ||
        setweight(to_tsvector('english', markdown), 'B')
    ) STORED
);
CREATE INDEX IF NOT EXISTS postings_search_idx ON postings USING GIN (search);
`

const (
	sqlUpsertApplication = `
        INSERT INTO applications (id, job_url, company, position, status, fields_filled, total_fields, errors, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (id) DO UPDATE SET
            status = EXCLUDED.status,
            fields_filled = EXCLUDED.fields_filled,
            total_fields = EXCLUDED.total_fields,
            errors = EXCLUDED.errors,
            finished_at = EXCLUDED.finished_at;
    `
	sqlDeleteAttempts = `DELETE FROM submission_attempts WHERE application_id = $1;`

	sqlSelectApplication = `
        SELECT id, job_url, company, position, status, fields_filled, total_fields, errors, started_at, finished_at
        FROM applications WHERE id = $1;
    `
	sqlListApplications = `
        SELECT id, job_url, company, position, status, fields_filled, total_fields, errors, started_at, finished_at
        FROM applications ORDER BY finished_at DESC LIMIT $1;
    `
	sqlSelectAttempts = `
        SELECT attempt_index, clicked, success, errors
        FROM submission_attempts WHERE application_id = $1 ORDER BY attempt_index;
    `
	sqlUpsertPosting = `
        INSERT INTO postings (url, company, position, markdown, captured_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (url) DO UPDATE SET
            company = EXCLUDED.company,
            position = EXCLUDED.position,
            markdown = EXCLUDED.markdown,
            captured_at = EXCLUDED.captured_at;
    `
	sqlQueryPostings = `
        SELECT url, company, position, markdown, captured_at, ts_rank(search, q) AS score
        FROM postings, to_tsquery('english', $1) AS q
        WHERE search @@ q
        ORDER BY score DESC, captured_at DESC
        LIMIT $2;
    `
)

var attemptColumns = []string{"application_id", "attempt_index", "clicked", "success", "errors"}

// Postgres stores run history in PostgreSQL and ranks postings with full text search.
type Postgres struct {
	pool DBPool
	log  *zap.Logger
}

// NewPostgres creates a new store instance and verifies the connection.
func NewPostgres(ctx context.Context, pool DBPool, logger *zap.Logger) (*Postgres, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Migrate creates the tables and indexes when they are missing.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to apply postgres schema: %w", err)
	}
	return nil
}

// SaveApplication upserts the run and replaces its attempts in one transaction.
func (s *Postgres) SaveApplication(ctx context.Context, rec schemas.ApplicationRecord) error {
	errs, err := marshalErrors(rec.Errors)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction.", zap.Error(rollbackErr))
		}
	}()

	if _, err := tx.Exec(ctx, sqlUpsertApplication,
		rec.ID, rec.JobURL, rec.Company, rec.Position, string(rec.Status),
		rec.FieldsFilled, rec.TotalFields, errs,
		rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to upsert application: %w", err)
	}
	if _, err := tx.Exec(ctx, sqlDeleteAttempts, rec.ID); err != nil {
		return fmt.Errorf("failed to clear attempts: %w", err)
	}
	if len(rec.Attempts) > 0 {
		if err := s.copyAttempts(ctx, tx, rec.ID, rec.Attempts); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Application saved.", zap.String("id", rec.ID), zap.String("status", string(rec.Status)))
	return nil
}

func (s *Postgres) copyAttempts(ctx context.Context, tx pgx.Tx, id string, attempts []schemas.SubmissionAttempt) error {
	rows := make([][]any, len(attempts))
	for i, a := range attempts {
		errs, err := marshalErrors(a.Errors)
		if err != nil {
			return err
		}
		rows[i] = []any{id, a.Index, a.Clicked, a.Success, errs}
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"submission_attempts"}, attemptColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy attempts: %w", err)
	}
	if int(copyCount) != len(attempts) {
		return fmt.Errorf("mismatch in copied attempts count: expected %d, got %d", len(attempts), copyCount)
	}
	return nil
}

func (s *Postgres) GetApplication(ctx context.Context, id string) (*schemas.ApplicationRecord, error) {
	rows, err := s.pool.Query(ctx, sqlSelectApplication, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query application: %w", err)
	}
	recs, err := pgx.CollectRows(rows, scanApplication)
	if err != nil {
		return nil, fmt.Errorf("failed to scan application: %w", err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec := recs[0]

	rows, err = s.pool.Query(ctx, sqlSelectAttempts, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	rec.Attempts, err = pgx.CollectRows(rows, scanAttempt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan attempts: %w", err)
	}
	return &rec, nil
}

// ListApplications returns the newest runs without their attempts.
func (s *Postgres) ListApplications(ctx context.Context, limit int) ([]schemas.ApplicationRecord, error) {
	rows, err := s.pool.Query(ctx, sqlListApplications, normalizeLimit(limit, 20))
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	recs, err := pgx.CollectRows(rows, scanApplication)
	if err != nil {
		return nil, fmt.Errorf("failed to scan applications: %w", err)
	}
	return recs, nil
}

func (s *Postgres) Index(ctx context.Context, p schemas.Posting) error {
	if _, err := s.pool.Exec(ctx, sqlUpsertPosting, p.URL, p.Company, p.Position, p.Markdown, p.CapturedAt.UTC()); err != nil {
		return fmt.Errorf("failed to index posting: %w", err)
	}
	return nil
}

// Query ranks postings that share any term with text.
func (s *Postgres) Query(ctx context.Context, text string, limit int) ([]schemas.SearchResult, error) {
	terms := searchTerms(text)
	if len(terms) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, sqlQueryPostings, strings.Join(terms, " | "), normalizeLimit(limit, 10))
	if err != nil {
		return nil, fmt.Errorf("failed to query postings: %w", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (schemas.SearchResult, error) {
		var r schemas.SearchResult
		err := row.Scan(&r.Posting.URL, &r.Posting.Company, &r.Posting.Position, &r.Posting.Markdown,
			&r.Posting.CapturedAt, &r.Score)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan postings: %w", err)
	}
	return results, nil
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func scanApplication(row pgx.CollectableRow) (schemas.ApplicationRecord, error) {
	var (
		rec    schemas.ApplicationRecord
		status string
		errs   []byte
	)
	if err := row.Scan(&rec.ID, &rec.JobURL, &rec.Company, &rec.Position, &status,
		&rec.FieldsFilled, &rec.TotalFields, &errs, &rec.StartedAt, &rec.FinishedAt); err != nil {
		return rec, err
	}
	rec.Status = schemas.ApplicationStatus(status)
	var err error
	rec.Errors, err = unmarshalErrors(errs)
	return rec, err
}

func scanAttempt(row pgx.CollectableRow) (schemas.SubmissionAttempt, error) {
	var (
		a    schemas.SubmissionAttempt
		errs []byte
	)
	if err := row.Scan(&a.Index, &a.Clicked, &a.Success, &errs); err != nil {
		return a, err
	}
	var err error
	a.Errors, err = unmarshalErrors(errs)
	return a, err
}

// marshalErrors encodes a message list for a JSON column, never as null.
func marshalErrors(errs []string) ([]byte, error) {
	if errs == nil {
		errs = []string{}
	}
	b, err := json.Marshal(errs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode errors: %w", err)
	}
	return b, nil
}

func unmarshalErrors(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var errs []string
	if err := json.Unmarshal(raw, &errs); err != nil {
		return nil, fmt.Errorf("failed to decode errors: %w", err)
	}
	if len(errs) == 0 {
		return nil, nil
	}
	return errs, nil
}
