// Package sqlite implements the session repository on an embedded SQLite
// database. The store is opened in WAL mode with foreign keys enforced
// and a busy timeout, so short-lived concurrent connections don't fail
// immediately on contention.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/fsaudit/fsaudit/internal/types"
)

// busyTimeoutMs is how long a connection waits on a locked database
// before giving up.
const busyTimeoutMs = 5000

// SQLiteStorage implements the storage.Storage interface using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// New opens (creating if necessary) the session store at path.
func New(path string) (*SQLiteStorage, error) {
	dsn := path
	if path == ":memory:" {
		dsn = fmt.Sprintf(":memory:?_foreign_keys=ON&_busy_timeout=%d", busyTimeoutMs)
	} else {
		// Ensure directory exists
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=%d", path, busyTimeoutMs)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise get its own empty
		// in-memory database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// StartRun inserts a RUNNING run row and returns its identifier. IDs come
// from a collision-resistant generator, not a counter, so concurrent
// starts never collide.
func (s *SQLiteStorage) StartRun(ctx context.Context, root string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, root, started_at, status)
		VALUES (?, ?, ?, ?)
	`, id, root, time.Now().UTC(), types.StatusRunning)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

// SaveFindings inserts all findings in one batched, parameter-bound
// statement. Never string-interpolated: path and message carry file
// content influenced by whoever wrote the audited tree.
func (s *SQLiteStorage) SaveFindings(ctx context.Context, runID string, findings []types.Finding) error {
	if len(findings) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(findings))
	args := make([]interface{}, 0, len(findings)*5)
	for _, f := range findings {
		placeholders = append(placeholders, "(?, ?, ?, ?, ?)")
		args = append(args, runID, f.Path, f.Rule, string(f.Severity), f.Message)
	}

	query := fmt.Sprintf(`
		INSERT INTO findings (run_id, path, rule, severity, message)
		VALUES %s
	`, strings.Join(placeholders, ", "))

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert findings: %w", err)
	}
	return nil
}

// EndRun records the terminal status and finish time for a run.
func (s *SQLiteStorage) EndRun(ctx context.Context, runID string, status types.RunStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid run status: %s", status)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, finished_at = ?
		WHERE id = ?
	`, status, time.Now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("failed to end run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID. Returns nil if the run doesn't exist.
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*types.AuditRun, error) {
	var run types.AuditRun
	var finishedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT id, root, started_at, finished_at, status
		FROM runs
		WHERE id = ?
	`, id).Scan(&run.ID, &run.Root, &run.StartedAt, &finishedAt, &run.Status)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return &run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]*types.AuditRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, root, started_at, finished_at, status
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*types.AuditRun
	for rows.Next() {
		var run types.AuditRun
		var finishedAt sql.NullTime
		if err := rows.Scan(&run.ID, &run.Root, &run.StartedAt, &finishedAt, &run.Status); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if finishedAt.Valid {
			run.FinishedAt = &finishedAt.Time
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// GetFindings returns a run's findings in insertion order.
func (s *SQLiteStorage) GetFindings(ctx context.Context, runID string) ([]types.Finding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, rule, severity, message
		FROM findings
		WHERE run_id = ?
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get findings: %w", err)
	}
	defer rows.Close()

	var findings []types.Finding
	for rows.Next() {
		var f types.Finding
		if err := rows.Scan(&f.Path, &f.Rule, &f.Severity, &f.Message); err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
