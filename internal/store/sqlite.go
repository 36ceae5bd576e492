package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/osint-investigator/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Each job is one
// JSON document row.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer connection serializes read-modify-write transactions.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS search_jobs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	doc          TEXT NOT NULL,
	created_at   INTEGER NOT NULL,
	completed_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_search_jobs_status ON search_jobs(status);
CREATE INDEX IF NOT EXISTS idx_search_jobs_completed_at ON search_jobs(completed_at);
`

// Migrate creates the jobs table.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, job *model.SearchJob) error {
	doc, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal job")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO search_jobs (id, status, doc, created_at, completed_at) VALUES (?, ?, ?, ?, ?)`,
		job.ID, string(job.Status), string(doc), job.CreatedAt.UTC().UnixNano(), unixNanos(completedAt(job)),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrExists
		}
		return eris.Wrapf(err, "sqlite: insert job %s", job.ID)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.SearchJob, error) {
	return scanJob(s.db.QueryRowContext(ctx, `SELECT doc FROM search_jobs WHERE id = ?`, id), id)
}

func (s *SQLiteStore) Update(ctx context.Context, id string, fn UpdateFunc) (*model.SearchJob, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	job, err := scanJob(tx.QueryRowContext(ctx, `SELECT doc FROM search_jobs WHERE id = ?`, id), id)
	if err != nil {
		return nil, err
	}
	if err := fn(job); err != nil {
		return nil, err
	}
	job.ID = id

	doc, err := json.Marshal(job)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal job")
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE search_jobs SET status = ?, doc = ?, completed_at = ? WHERE id = ?`,
		string(job.Status), string(doc), unixNanos(completedAt(job)), id,
	); err != nil {
		return nil, eris.Wrapf(err, "sqlite: update job %s", id)
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit")
	}
	return job, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM search_jobs WHERE id = ?`, id)
	return eris.Wrapf(err, "sqlite: delete job %s", id)
}

func (s *SQLiteStore) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM search_jobs WHERE completed_at IS NOT NULL AND completed_at < ?`,
		cutoff.UTC().UnixNano(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete finished jobs")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) CountByStatus(ctx context.Context, status model.JobStatus) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM search_jobs WHERE status = ?`, string(status)).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count jobs")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanJob(row scannable, id string) (*model.SearchJob, error) {
	var doc string
	err := row.Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: scan job %s", id)
	}
	var job model.SearchJob
	if err := json.Unmarshal([]byte(doc), &job); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal job")
	}
	return &job, nil
}

func unixNanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}
