package state

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/codecouncil-ai/codecouncil/internal/core"
)

// JSONRunStore implements core.RunStore with one JSON file per run under a
// directory. Writes are atomic, so a crash never leaves a torn run behind.
type JSONRunStore struct {
	dir string
}

// runEnvelope wraps a stored result with integrity metadata.
type runEnvelope struct {
	Version  int                      `json:"version"`
	Checksum string                   `json:"checksum"`
	SavedAt  time.Time                `json:"saved_at"`
	Result   *core.TeamAnalysisResult `json:"result"`
}

// NewJSONRunStore creates the store directory if needed.
func NewJSONRunStore(dir string) (*JSONRunStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return &JSONRunStore{dir: dir}, nil
}

func (s *JSONRunStore) runPath(id core.RunID) string {
	return filepath.Join(s.dir, string(id)+".json")
}

// SaveRun writes the run envelope atomically.
func (s *JSONRunStore) SaveRun(_ context.Context, result *core.TeamAnalysisResult) error {
	if result == nil || result.RunID == "" {
		return core.ErrValidation(core.CodeInvalidConfig, "cannot save a run without an ID")
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}
	sum := sha256.Sum256(payload)
	envelope := runEnvelope{
		Version:  1,
		Checksum: hex.EncodeToString(sum[:]),
		SavedAt:  time.Now(),
		Result:   result,
	}
	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}
	return atomicWriteFile(s.runPath(result.RunID), data, 0o644)
}

// GetRun loads one run and verifies the checksum of its result payload.
func (s *JSONRunStore) GetRun(_ context.Context, id core.RunID) (*core.TeamAnalysisResult, error) {
	envelope, err := s.readEnvelope(s.runPath(id))
	if os.IsNotExist(err) {
		return nil, core.ErrNotFound("run", string(id))
	}
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(envelope.Result)
	if err != nil {
		return nil, core.ErrState(core.CodeStoreCorrupted,
			fmt.Sprintf("run %s payload cannot be re-encoded", id)).WithCause(err)
	}
	sum := sha256.Sum256(payload)
	if hex.EncodeToString(sum[:]) != envelope.Checksum {
		return nil, core.ErrState(core.CodeStoreCorrupted,
			fmt.Sprintf("run %s payload does not match its checksum", id))
	}
	return envelope.Result, nil
}

func (s *JSONRunStore) readEnvelope(path string) (*runEnvelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var envelope runEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, core.ErrState(core.CodeStoreCorrupted,
			fmt.Sprintf("%s is not a valid run envelope", filepath.Base(path))).WithCause(err)
	}
	if envelope.Result == nil {
		return nil, core.ErrState(core.CodeStoreCorrupted,
			fmt.Sprintf("%s carries no result", filepath.Base(path)))
	}
	return &envelope, nil
}

// ListRuns scans the directory and returns the newest runs first. A
// non-positive limit lists all. Files that fail to parse are skipped
// rather than failing the listing.
func (s *JSONRunStore) ListRuns(_ context.Context, limit int) ([]core.RunSummary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading store directory: %w", err)
	}

	var summaries []core.RunSummary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		envelope, err := s.readEnvelope(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		summaries = append(summaries, summarize(envelope.Result))
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].StartedAt.After(summaries[j].StartedAt)
	})
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

// PruneRuns removes run files beyond the newest keep and older than maxAge.
func (s *JSONRunStore) PruneRuns(ctx context.Context, keep int, maxAge time.Duration) (int, error) {
	summaries, err := s.ListRuns(ctx, 0)
	if err != nil {
		return 0, err
	}
	cutoff := time.Time{}
	if maxAge > 0 {
		cutoff = time.Now().Add(-maxAge)
	}

	deleted := 0
	for i, sm := range summaries {
		drop := false
		if keep > 0 && i >= keep {
			drop = true
		}
		if !cutoff.IsZero() && sm.StartedAt.Before(cutoff) {
			drop = true
		}
		if !drop {
			continue
		}
		if err := os.Remove(s.runPath(sm.ID)); err != nil && !os.IsNotExist(err) {
			return deleted, fmt.Errorf("removing run %s: %w", sm.ID, err)
		}
		deleted++
	}
	return deleted, nil
}

// Close is a no-op for the file-backed store.
func (s *JSONRunStore) Close() error { return nil }
