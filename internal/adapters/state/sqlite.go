// Package state persists finished runs for later inspection. The SQLite
// backend is the default; a JSON directory backend covers environments
// where a database file is unwelcome.
package state

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/codecouncil-ai/codecouncil/internal/core"
	_ "modernc.org/sqlite"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

// SQLiteRunStore implements core.RunStore with SQLite storage.
type SQLiteRunStore struct {
	dbPath string
	db     *sql.DB
	mu     sync.RWMutex
}

// NewSQLiteRunStore opens (and if needed creates) the run database at
// dbPath, with WAL mode for concurrent readers.
func NewSQLiteRunStore(dbPath string) (*SQLiteRunStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &SQLiteRunStore{dbPath: dbPath, db: db}
	if err := s.migrate(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("running migrations: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteRunStore) migrate() error {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		version = 0
	}
	if version < 1 {
		if _, err := s.db.Exec(migrationV1); err != nil {
			return core.ErrState(core.CodeStoreMigration, "applying migration v1").WithCause(err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteRunStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveRun upserts the full result payload plus its listing columns.
func (s *SQLiteRunStore) SaveRun(ctx context.Context, result *core.TeamAnalysisResult) error {
	if result == nil || result.RunID == "" {
		return core.ErrValidation(core.CodeInvalidConfig, "cannot save a run without an ID")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}
	sum := sha256.Sum256(payload)
	checksum := hex.EncodeToString(sum[:])
	summary := summarize(result)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, started_at, completed_at, objective, file_count,
			finding_count, status, payload, checksum
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			objective = excluded.objective,
			file_count = excluded.file_count,
			finding_count = excluded.finding_count,
			status = excluded.status,
			payload = excluded.payload,
			checksum = excluded.checksum
	`,
		string(result.RunID), result.StartedAt, result.CompletedAt,
		summary.Objective, summary.FileCount, summary.FindingCount,
		summary.Status, string(payload), checksum,
	)
	if err != nil {
		return fmt.Errorf("upserting run: %w", err)
	}
	return tx.Commit()
}

// GetRun loads one stored run and verifies its payload checksum.
func (s *SQLiteRunStore) GetRun(ctx context.Context, id core.RunID) (*core.TeamAnalysisResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload, checksum string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload, checksum FROM runs WHERE id = ?", string(id),
	).Scan(&payload, &checksum)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound("run", string(id))
	}
	if err != nil {
		return nil, fmt.Errorf("loading run: %w", err)
	}

	sum := sha256.Sum256([]byte(payload))
	if hex.EncodeToString(sum[:]) != checksum {
		return nil, core.ErrState(core.CodeStoreCorrupted,
			fmt.Sprintf("run %s payload does not match its checksum", id))
	}
	var result core.TeamAnalysisResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, core.ErrState(core.CodeStoreCorrupted,
			fmt.Sprintf("run %s payload is not valid JSON", id)).WithCause(err)
	}
	return &result, nil
}

// ListRuns returns the newest runs first. A non-positive limit lists all.
func (s *SQLiteRunStore) ListRuns(ctx context.Context, limit int) ([]core.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, objective, file_count, finding_count, status
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var summaries []core.RunSummary
	for rows.Next() {
		var sm core.RunSummary
		var id string
		if err := rows.Scan(&id, &sm.StartedAt, &sm.Objective, &sm.FileCount, &sm.FindingCount, &sm.Status); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		sm.ID = core.RunID(id)
		summaries = append(summaries, sm)
	}
	return summaries, rows.Err()
}

// PruneRuns deletes runs beyond the newest keep and older than maxAge.
// Either bound may be zero to disable it. Returns the number deleted.
func (s *SQLiteRunStore) PruneRuns(ctx context.Context, keep int, maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	if keep > 0 {
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM runs WHERE id NOT IN (
				SELECT id FROM runs ORDER BY started_at DESC LIMIT ?
			)
		`, keep)
		if err != nil {
			return deleted, fmt.Errorf("pruning by count: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			deleted += int(n)
		}
	}
	if maxAge > 0 {
		cutoff := time.Now().Add(-maxAge)
		res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE started_at < ?", cutoff)
		if err != nil {
			return deleted, fmt.Errorf("pruning by age: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			deleted += int(n)
		}
	}
	return deleted, nil
}

// summarize derives the listing row from a full result.
func summarize(result *core.TeamAnalysisResult) core.RunSummary {
	failed := 0
	for _, fa := range result.Files {
		if fa.Status == core.FileFailed {
			failed++
		}
	}
	status := "completed"
	switch {
	case len(result.Files) == 0:
		status = "empty"
	case failed == len(result.Files):
		status = "failed"
	case failed > 0:
		status = "partial"
	}
	return core.RunSummary{
		ID:           result.RunID,
		StartedAt:    result.StartedAt,
		Objective:    result.Objective,
		FileCount:    len(result.Files),
		FindingCount: len(result.Consensus),
		Status:       status,
	}
}
