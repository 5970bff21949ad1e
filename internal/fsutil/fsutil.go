// Package fsutil holds the scoped file reads the scanner relies on. Opening
// a root at the file's directory keeps symlinked or traversal paths from
// escaping the tree under review.
package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ReadFileScoped reads path through a root opened at its directory, so the
// read cannot follow the path outside that directory.
func ReadFileScoped(path string) ([]byte, error) {
	return ReadFileScopedLimit(path, 0)
}

// ReadFileScopedLimit is ReadFileScoped with a byte cap. When limit is
// positive and the file holds more than limit bytes the read fails instead
// of truncating, so a file growing between stat and read never slips an
// oversized payload through.
func ReadFileScopedLimit(path string, limit int64) ([]byte, error) {
	cleaned := filepath.Clean(path)
	base := filepath.Base(cleaned)
	if base == "" || base == "." || base == string(filepath.Separator) {
		return nil, fmt.Errorf("invalid file path: %q", path)
	}

	root, err := os.OpenRoot(filepath.Dir(cleaned))
	if err != nil {
		return nil, err
	}
	defer root.Close()

	file, err := root.Open(base)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if limit <= 0 {
		return io.ReadAll(file)
	}
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%s exceeds %d byte limit", base, limit)
	}
	return data, nil
}
