// Package registry provides the SQLite-backed process registry: the
// single source of truth for which workflow owns which running runner.
package registry

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/merfantz/runnerd/internal/core"
	_ "modernc.org/sqlite"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

// SQLiteStore implements core.ProcessStore with SQLite storage.
type SQLiteStore struct {
	dbPath string
	db     *sql.DB
	mu     sync.RWMutex
}

// NewSQLiteStore opens (creating if needed) the registry database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	s := &SQLiteStore{dbPath: dbPath}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating registry directory: %w", err)
	}

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s.db = db

	if err := s.migrate(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("running migrations: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// migrate runs pending migrations.
func (s *SQLiteStore) migrate() error {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		// Table doesn't exist yet, run initial migration
		version = 0
	}

	if version < 1 {
		if _, err := s.db.Exec(migrationV1); err != nil {
			return fmt.Errorf("applying migration v1: %w", err)
		}
	}

	return nil
}

// Insert persists a new process record. The partial unique index on
// (workflow_id, status=active) turns a concurrent double activation
// into a conflict error instead of a second active row.
func (s *SQLiteStore) Insert(ctx context.Context, rec *core.ProcessRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var startedAt interface{}
	if !rec.ProcessStartedAt.IsZero() {
		startedAt = rec.ProcessStartedAt.UnixMilli()
	}
	var tempPath interface{}
	if rec.TempFilePath != "" {
		tempPath = rec.TempFilePath
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO process_records
			(id, workflow_id, port, pid, status, temp_file_path, process_started_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.WorkflowID, rec.Port, rec.PID, string(rec.Status),
		tempPath, startedAt, rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrConflict(core.CodeRunnerActive,
				fmt.Sprintf("workflow %s already has an active runner", rec.WorkflowID)).WithCause(err)
		}
		return core.ErrState(core.CodeStoreFailure, "inserting process record").WithCause(err)
	}
	return nil
}

// Get returns a record by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*core.ProcessRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound("process record", id)
	}
	return rec, err
}

// ActiveByWorkflow returns the single active record for a workflow, or
// nil when none exists.
func (s *SQLiteStore) ActiveByWorkflow(ctx context.Context, workflowID string) (*core.ProcessRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		selectColumns+` WHERE workflow_id = ? AND status = 'active'`, workflowID)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// ListActive returns all active records.
func (s *SQLiteStore) ListActive(ctx context.Context) ([]*core.ProcessRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		selectColumns+` WHERE status = 'active' ORDER BY port ASC`)
	if err != nil {
		return nil, core.ErrState(core.CodeStoreFailure, "listing active records").WithCause(err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// List returns all records, newest first. Inactive history is kept as
// an audit trail and never physically deleted.
func (s *SQLiteStore) List(ctx context.Context) ([]*core.ProcessRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		selectColumns+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, core.ErrState(core.CodeStoreFailure, "listing records").WithCause(err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// MarkInactive flips a record to inactive. Marking an already inactive
// record is a no-op, so termination paths may call it repeatedly.
func (s *SQLiteStore) MarkInactive(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE process_records SET status = 'inactive' WHERE id = ?`, id)
	if err != nil {
		return core.ErrState(core.CodeStoreFailure, "marking record inactive").WithCause(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return core.ErrState(core.CodeStoreFailure, "marking record inactive").WithCause(err)
	}
	if affected == 0 {
		return core.ErrNotFound("process record", id)
	}
	return nil
}

const selectColumns = `
	SELECT id, workflow_id, port, pid, status, temp_file_path, process_started_at, created_at
	FROM process_records`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*core.ProcessRecord, error) {
	var (
		rec       core.ProcessRecord
		status    string
		tempPath  sql.NullString
		startedAt sql.NullInt64
		createdAt string
	)
	err := row.Scan(&rec.ID, &rec.WorkflowID, &rec.Port, &rec.PID,
		&status, &tempPath, &startedAt, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, core.ErrState(core.CodeStoreFailure, "scanning process record").WithCause(err)
	}

	rec.Status = core.ProcessStatus(status)
	if tempPath.Valid {
		rec.TempFilePath = tempPath.String
	}
	if startedAt.Valid {
		rec.ProcessStartedAt = time.UnixMilli(startedAt.Int64)
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, core.ErrState(core.CodeStoreFailure, "parsing created_at").WithCause(err)
	}
	rec.CreatedAt = ts

	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]*core.ProcessRecord, error) {
	var records []*core.ProcessRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, core.ErrState(core.CodeStoreFailure, "iterating records").WithCause(err)
	}
	return records, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
