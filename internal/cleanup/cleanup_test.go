package cleanup

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func TestRunRemovesOnlyStaleBrowserDirs(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-time.Hour)

	mk := func(name string, modTime time.Time, isDir bool) string {
		path := filepath.Join(dir, name)
		if isDir {
			if err := os.Mkdir(path, 0o755); err != nil {
				t.Fatalf("mkdir: %v", err)
			}
		} else if err := os.WriteFile(path, nil, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := os.Chtimes(path, modTime, modTime); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
		return path
	}

	staleChrome := mk(".org.chromium.Chromium.abc", old, true)
	staleLighthouse := mk("lighthouse.12345", old, true)
	fresh := mk(".org.chromium.Chromium.new", time.Now(), true)
	other := mk("unrelated", old, true)
	file := mk("lighthouse.log", old, false)

	removed := New(dir, 5*time.Minute, log.New(io.Discard)).Run()
	if removed != 2 {
		t.Fatalf("expected 2 removed got %d", removed)
	}

	for _, gone := range []string{staleChrome, staleLighthouse} {
		if _, err := os.Stat(gone); !os.IsNotExist(err) {
			t.Fatalf("expected %s removed", gone)
		}
	}
	for _, kept := range []string{fresh, other, file} {
		if _, err := os.Stat(kept); err != nil {
			t.Fatalf("expected %s kept: %v", kept, err)
		}
	}
}

func TestStartStopsWithContext(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	New(dir, time.Minute, log.New(io.Discard)).Start(ctx, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	cancel()
}

func TestRunMissingDir(t *testing.T) {
	if n := New(filepath.Join(t.TempDir(), "missing"), 0, log.New(io.Discard)).Run(); n != 0 {
		t.Fatalf("expected 0 got %d", n)
	}
}
