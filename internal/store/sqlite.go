package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

const memoryDSN = ":memory:"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS applications (
    id            TEXT PRIMARY KEY,
    job_url       TEXT NOT NULL,
    company       TEXT NOT NULL DEFAULT '',
    position      TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL,
    fields_filled INTEGER NOT NULL DEFAULT 0,
    total_fields  INTEGER NOT NULL DEFAULT 0,
    errors        TEXT NOT NULL DEFAULT '[]',
    attempts      TEXT NOT NULL DEFAULT '[]',
    started_at    INTEGER NOT NULL,
    finished_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_applications_finished ON applications(finished_at DESC);

CREATE TABLE IF NOT EXISTS postings (
    url         TEXT PRIMARY KEY,
    company     TEXT NOT NULL DEFAULT '',
    position    TEXT NOT NULL DEFAULT '',
    markdown    TEXT NOT NULL DEFAULT '',
    captured_at INTEGER NOT NULL
);

CREATE VIRTUAL TABLE IF NOT EXISTS postings_fts USING fts5(
    url UNINDEXED,
    company,
    position,
    markdown,
    tokenize='porter unicode61'
);
`

// SQLite is the single-file backend used for local runs.
type SQLite struct {
	db  *sql.DB
	log *zap.Logger
}

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema. ":memory:" gives a private in-process database.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLite, error) {
	if path == "" {
		path = memoryDSN
	}
	dsn := path
	if path != memoryDSN {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(10000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if path == memoryDSN {
		// Every new connection to :memory: would be a separate empty database.
		db.SetMaxOpenConns(1)
	}

	s := &SQLite{db: db, log: logger.Named("store")}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to apply sqlite schema: %w", err)
	}
	return nil
}

func (s *SQLite) SaveApplication(ctx context.Context, rec schemas.ApplicationRecord) error {
	errs, err := marshalErrors(rec.Errors)
	if err != nil {
		return err
	}
	attempts := rec.Attempts
	if attempts == nil {
		attempts = []schemas.SubmissionAttempt{}
	}
	attemptsJSON, err := json.Marshal(attempts)
	if err != nil {
		return fmt.Errorf("failed to encode attempts: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO applications (id, job_url, company, position, status, fields_filled, total_fields, errors, attempts, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			fields_filled = excluded.fields_filled,
			total_fields = excluded.total_fields,
			errors = excluded.errors,
			attempts = excluded.attempts,
			finished_at = excluded.finished_at`,
		rec.ID, rec.JobURL, rec.Company, rec.Position, string(rec.Status),
		rec.FieldsFilled, rec.TotalFields, string(errs), string(attemptsJSON),
		rec.StartedAt.UnixMilli(), rec.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save application: %w", err)
	}
	s.log.Debug("Application saved.", zap.String("id", rec.ID), zap.String("status", string(rec.Status)))
	return nil
}

func (s *SQLite) GetApplication(ctx context.Context, id string) (*schemas.ApplicationRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, job_url, company, position, status, fields_filled, total_fields, errors, attempts, started_at, finished_at
		FROM applications WHERE id = ?`, id)
	rec, err := scanSQLiteApplication(row, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load application: %w", err)
	}
	return &rec, nil
}

func (s *SQLite) ListApplications(ctx context.Context, limit int) ([]schemas.ApplicationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_url, company, position, status, fields_filled, total_fields, errors, attempts, started_at, finished_at
		FROM applications ORDER BY finished_at DESC LIMIT ?`, normalizeLimit(limit, 20))
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var recs []schemas.ApplicationRecord
	for rows.Next() {
		rec, err := scanSQLiteApplication(rows, false)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Index upserts the posting and replaces its full text entry.
func (s *SQLite) Index(ctx context.Context, p schemas.Posting) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO postings (url, company, position, markdown, captured_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			company = excluded.company,
			position = excluded.position,
			markdown = excluded.markdown,
			captured_at = excluded.captured_at`,
		p.URL, p.Company, p.Position, p.Markdown, p.CapturedAt.UnixMilli()); err != nil {
		return fmt.Errorf("failed to index posting: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM postings_fts WHERE url = ?`, p.URL); err != nil {
		return fmt.Errorf("failed to clear posting text: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO postings_fts (url, company, position, markdown) VALUES (?, ?, ?, ?)`,
		p.URL, p.Company, p.Position, p.Markdown); err != nil {
		return fmt.Errorf("failed to index posting text: %w", err)
	}
	return tx.Commit()
}

// Query ranks postings matching any term of text. bm25 is negated so that a
// higher score is a better match, as with the postgres backend.
func (s *SQLite) Query(ctx context.Context, text string, limit int) ([]schemas.SearchResult, error) {
	terms := searchTerms(text)
	if len(terms) == 0 {
		return nil, nil
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"`
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.url, p.company, p.position, p.markdown, p.captured_at, -bm25(postings_fts, 0, 4.0, 4.0, 1.0) AS score
		FROM postings_fts f
		JOIN postings p ON p.url = f.url
		WHERE postings_fts MATCH ?
		ORDER BY score DESC, p.captured_at DESC
		LIMIT ?`, strings.Join(quoted, " OR "), normalizeLimit(limit, 10))
	if err != nil {
		return nil, fmt.Errorf("failed to query postings: %w", err)
	}
	defer rows.Close()

	var results []schemas.SearchResult
	for rows.Next() {
		var (
			r        schemas.SearchResult
			captured int64
		)
		if err := rows.Scan(&r.Posting.URL, &r.Posting.Company, &r.Posting.Position, &r.Posting.Markdown,
			&captured, &r.Score); err != nil {
			return nil, fmt.Errorf("failed to scan posting: %w", err)
		}
		r.Posting.CapturedAt = time.UnixMilli(captured).UTC()
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteApplication(row rowScanner, withAttempts bool) (schemas.ApplicationRecord, error) {
	var (
		rec               schemas.ApplicationRecord
		status            string
		errs, attempts    string
		started, finished int64
	)
	if err := row.Scan(&rec.ID, &rec.JobURL, &rec.Company, &rec.Position, &status,
		&rec.FieldsFilled, &rec.TotalFields, &errs, &attempts, &started, &finished); err != nil {
		return rec, err
	}
	rec.Status = schemas.ApplicationStatus(status)
	rec.StartedAt = time.UnixMilli(started).UTC()
	rec.FinishedAt = time.UnixMilli(finished).UTC()

	var err error
	if rec.Errors, err = unmarshalErrors([]byte(errs)); err != nil {
		return rec, err
	}
	if withAttempts {
		var list []schemas.SubmissionAttempt
		if err := json.Unmarshal([]byte(attempts), &list); err != nil {
			return rec, fmt.Errorf("failed to decode attempts: %w", err)
		}
		if len(list) > 0 {
			rec.Attempts = list
		}
	}
	return rec, nil
}
