package fsutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestReadFileScoped(t *testing.T) {
	path := writeTemp(t, "a.py", "import os\n")

	data, err := ReadFileScoped(path)
	if err != nil {
		t.Fatalf("ReadFileScoped: %v", err)
	}
	if string(data) != "import os\n" {
		t.Errorf("content = %q", string(data))
	}
}

func TestReadFileScopedRejectsInvalidPath(t *testing.T) {
	for _, p := range []string{"", ".", string(filepath.Separator)} {
		if _, err := ReadFileScoped(p); err == nil {
			t.Errorf("expected error for %q", p)
		}
	}
}

func TestReadFileScopedMissingFile(t *testing.T) {
	if _, err := ReadFileScoped(filepath.Join(t.TempDir(), "missing.py")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := ReadFileScoped(filepath.Join(t.TempDir(), "nodir", "f.py")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestReadFileScopedUnnormalizedPath(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "f.cs"), []byte("class F {}"), 0o600); err != nil {
		t.Fatal(err)
	}

	data, err := ReadFileScoped(filepath.Join(dir, ".", "f.cs"))
	if err != nil {
		t.Fatalf("ReadFileScoped: %v", err)
	}
	if string(data) != "class F {}" {
		t.Errorf("content = %q", string(data))
	}
}

func TestReadFileScopedDirectory(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "pkg")
	if err := os.MkdirAll(sub, 0o750); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFileScoped(sub); err == nil {
		t.Error("expected error reading a directory")
	}
}

func TestReadFileScopedLimit(t *testing.T) {
	path := writeTemp(t, "big.py", strings.Repeat("x", 100))

	data, err := ReadFileScopedLimit(path, 100)
	if err != nil {
		t.Fatalf("read at limit: %v", err)
	}
	if len(data) != 100 {
		t.Errorf("len = %d", len(data))
	}

	if _, err := ReadFileScopedLimit(path, 99); err == nil {
		t.Error("expected error past the limit")
	}

	data, err = ReadFileScopedLimit(path, 0)
	if err != nil || len(data) != 100 {
		t.Errorf("zero limit should read fully, got %d bytes, err %v", len(data), err)
	}
}
