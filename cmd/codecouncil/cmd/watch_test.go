package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
)

func TestRelevantChange(t *testing.T) {
	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"write", fsnotify.Event{Name: "src/billing.py", Op: fsnotify.Write}, true},
		{"create", fsnotify.Event{Name: "src/new.go", Op: fsnotify.Create}, true},
		{"remove", fsnotify.Event{Name: "src/old.cs", Op: fsnotify.Remove}, true},
		{"chmod only", fsnotify.Event{Name: "src/billing.py", Op: fsnotify.Chmod}, false},
		{"hidden file", fsnotify.Event{Name: "src/.billing.py.swp", Op: fsnotify.Write}, false},
		{"editor backup", fsnotify.Event{Name: "src/billing.py~", Op: fsnotify.Write}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := relevantChange(tt.event); got != tt.want {
				t.Errorf("relevantChange(%v) = %v, want %v", tt.event, got, tt.want)
			}
		})
	}
}

func TestAddWatchTreeSkipsHiddenDirs(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"src", "src/auth", ".git", ".git/objects"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		t.Fatalf("creating watcher: %v", err)
	}
	defer watcher.Close()

	if err := addWatchTree(watcher, root); err != nil {
		t.Fatalf("addWatchTree: %v", err)
	}

	watched := map[string]bool{}
	for _, path := range watcher.WatchList() {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		watched[rel] = true
	}
	for _, want := range []string{".", "src", filepath.Join("src", "auth")} {
		if !watched[want] {
			t.Errorf("%s not watched; watch list %v", want, watched)
		}
	}
	if watched[".git"] || watched[filepath.Join(".git", "objects")] {
		t.Errorf("hidden dirs should be skipped; watch list %v", watched)
	}
}

func TestAddWatchTreeSingleFile(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "main.py")
	if err := os.WriteFile(file, []byte("pass\n"), 0o600); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		t.Fatalf("creating watcher: %v", err)
	}
	defer watcher.Close()

	if err := addWatchTree(watcher, file); err != nil {
		t.Fatalf("addWatchTree: %v", err)
	}
	list := watcher.WatchList()
	if len(list) != 1 || list[0] != root {
		t.Errorf("watch list = %v, want just the parent dir", list)
	}
}
