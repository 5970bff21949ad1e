package state

import (
	"strings"

	"github.com/codecouncil-ai/codecouncil/internal/core"
)

// NewRunStore selects a backend by path shape: a .db path opens SQLite,
// anything else is treated as a directory for the JSON backend.
func NewRunStore(path string) (core.RunStore, error) {
	if strings.HasSuffix(path, ".db") || strings.HasSuffix(path, ".sqlite") {
		return NewSQLiteRunStore(path)
	}
	return NewJSONRunStore(path)
}
