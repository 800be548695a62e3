package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_DetectsFileCreation(t *testing.T) {
	dir := t.TempDir()

	w, err := New("repo1", dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)

	path := filepath.Join(dir, "new.txt")
	if err := os.WriteFile(path, []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-w.Raw():
			if ev.SrcPath == path {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for creation event")
		}
	}
}

func TestWatcher_IgnoresGitDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".git", "refs"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	w, err := New("repo1", dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, ".git", "refs", "HEAD_LOCK"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case ev := <-w.Raw():
		t.Fatalf("expected no event for .git internals, got %+v", ev)
	case <-time.After(300 * time.Millisecond):
		// expected: nothing surfaced
	}
}

func TestWatcher_HonorsGitignore(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("*.log\n"), 0o644); err != nil {
		t.Fatalf("write gitignore: %v", err)
	}

	w, err := New("repo1", dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "debug.log"), []byte("noise"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case ev := <-w.Raw():
		t.Fatalf("expected ignored .log file to be filtered, got %+v", ev)
	case <-time.After(300 * time.Millisecond):
		// expected
	}
}
