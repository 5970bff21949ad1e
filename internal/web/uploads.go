package web

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codecouncil-ai/codecouncil/internal/core"
)

const (
	uploadTTL        = time.Hour
	maxUploadsHeld   = 100
	defaultUploadCap = 32 << 20 // 32 MiB
)

// uploadRegistry holds uploaded file sets in memory until they are analyzed
// or expire. Uploads are single-tenant scratch space, not durable storage.
type uploadRegistry struct {
	mu      sync.Mutex
	entries map[string]uploadEntry
	clock   core.Clock
}

type uploadEntry struct {
	files     []core.FileUnit
	createdAt time.Time
}

func newUploadRegistry(clock core.Clock) *uploadRegistry {
	return &uploadRegistry{
		entries: make(map[string]uploadEntry),
		clock:   clock,
	}
}

// add stores the file set and returns its upload ID.
func (u *uploadRegistry) add(files []core.FileUnit) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.sweepLocked()
	if len(u.entries) >= maxUploadsHeld {
		return "", core.ErrExecution(core.CodeBatchFailed, "too many pending uploads, retry later")
	}
	id := uuid.New().String()
	u.entries[id] = uploadEntry{files: files, createdAt: u.clock.Now()}
	return id, nil
}

// take returns and removes the upload. The second return is false when the
// ID is unknown or expired.
func (u *uploadRegistry) take(id string) ([]core.FileUnit, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.sweepLocked()
	entry, ok := u.entries[id]
	if !ok {
		return nil, false
	}
	delete(u.entries, id)
	return entry.files, true
}

func (u *uploadRegistry) sweepLocked() {
	cutoff := u.clock.Now().Add(-uploadTTL)
	for id, entry := range u.entries {
		if entry.createdAt.Before(cutoff) {
			delete(u.entries, id)
		}
	}
}
