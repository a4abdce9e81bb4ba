package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS job_records (
    job_id       TEXT PRIMARY KEY,
    media_path   TEXT NOT NULL,
    language     TEXT NOT NULL,
    status       TEXT NOT NULL,
    progress     REAL NOT NULL DEFAULT 0,
    message      TEXT NOT NULL DEFAULT '',
    result       TEXT NOT NULL DEFAULT '',
    transcript   TEXT NOT NULL DEFAULT '',
    error        TEXT NOT NULL DEFAULT '',
    started_at   TEXT NOT NULL,
    updated_at   TEXT NOT NULL,
    completed_at TEXT,
    expires_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_job_records_status ON job_records(status);
CREATE INDEX IF NOT EXISTS idx_job_records_expires ON job_records(expires_at);
`

// SQLiteStore is the durable job store. Records survive process restarts;
// the TTL is enforced on read and expired rows are purged on write.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// OpenSQLite initializes or connects to the job database at dir/jobs.db.
func OpenSQLite(dir string, ttl time.Duration) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create job store directory: %w", err)
	}

	dbPath := filepath.Join(dir, "jobs.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db, ttl: ttl, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Put(ctx context.Context, rec *Record) error {
	if rec == nil {
		return errors.New("record is nil")
	}

	now := s.now().UTC()
	// Opportunistic reclamation keeps the table bounded.
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM job_records WHERE expires_at <= ?`, formatTime(now)); err != nil {
		return fmt.Errorf("purge expired records: %w", err)
	}

	expiresAt := rec.StartedAt.UTC().Add(s.ttl)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_records (
            job_id, media_path, language, status, progress, message,
            result, transcript, error, started_at, updated_at, completed_at, expires_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(job_id) DO UPDATE SET
            status = excluded.status,
            progress = excluded.progress,
            message = excluded.message,
            result = excluded.result,
            transcript = excluded.transcript,
            error = excluded.error,
            updated_at = excluded.updated_at,
            completed_at = excluded.completed_at`,
		rec.ID,
		rec.MediaPath,
		rec.Language,
		string(rec.Status),
		rec.Progress,
		rec.Message,
		rec.Result,
		rec.Transcript,
		rec.Error,
		formatTime(rec.StartedAt),
		formatTime(rec.UpdatedAt),
		formatTimePtr(rec.CompletedAt),
		formatTime(expiresAt),
	)
	if err != nil {
		return fmt.Errorf("put job %s: %w", rec.ID, err)
	}
	return nil
}

const recordColumns = `job_id, media_path, language, status, progress, message,
    result, transcript, error, started_at, updated_at, completed_at`

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM job_records WHERE job_id = ? AND expires_at > ?`,
		id, formatTime(s.now().UTC()))

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return rec, nil
}

func (s *SQLiteStore) ListActive(ctx context.Context) (map[string]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM job_records
         WHERE status IN (?, ?) AND expires_at > ?
         ORDER BY started_at`,
		string(StatusQueued), string(StatusProcessing), formatTime(s.now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("list active jobs: %w", err)
	}
	defer rows.Close()

	active := make(map[string]*Record)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job record: %w", err)
		}
		active[rec.ID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job records: %w", err)
	}
	return active, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM job_records WHERE job_id = ?`, id); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec         Record
		status      string
		startedAt   string
		updatedAt   string
		completedAt sql.NullString
	)
	if err := row.Scan(
		&rec.ID, &rec.MediaPath, &rec.Language, &status, &rec.Progress,
		&rec.Message, &rec.Result, &rec.Transcript, &rec.Error, &startedAt, &updatedAt, &completedAt,
	); err != nil {
		return nil, err
	}

	rec.Status = Status(status)

	var err error
	if rec.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if completedAt.Valid {
		completed, err := parseTime(completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		rec.CompletedAt = &completed
	}
	return &rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}
