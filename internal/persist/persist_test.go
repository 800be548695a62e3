package persist

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSharedState_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	original := NewSharedState(now)
	original.State.Paused = true
	reason := "manual pause for release"
	original.State.PauseReason = &reason
	original.State.Repositories["repo1"] = RepoState{
		Paused:        false,
		RuleOverrides: map[string]any{"count": float64(25)},
	}

	if err := SaveShared(dir, original); err != nil {
		t.Fatalf("SaveShared: %v", err)
	}

	loaded, err := LoadShared(dir)
	if err != nil {
		t.Fatalf("LoadShared: %v", err)
	}

	roundTripped, err := json.Marshal(loaded)
	if err != nil {
		t.Fatalf("marshal loaded: %v", err)
	}
	originalJSON, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal original: %v", err)
	}

	if string(roundTripped) != string(originalJSON) {
		t.Fatalf("round trip mismatch:\noriginal: %s\nloaded:   %s", originalJSON, roundTripped)
	}
}

func TestLoadShared_MissingFileReturnsFreshState(t *testing.T) {
	dir := t.TempDir()

	s, err := LoadShared(dir)
	if err != nil {
		t.Fatalf("LoadShared: %v", err)
	}
	if s.State.Paused {
		t.Fatal("expected fresh state to be unpaused")
	}
	if s.Metadata.Version != schemaVersion {
		t.Fatalf("expected version %q, got %q", schemaVersion, s.Metadata.Version)
	}
	if s.State.Repositories == nil {
		t.Fatal("expected non-nil repositories map on fresh state")
	}
}

func TestLocalState_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	original := NewLocalState(now, 4242)
	pausedBy := "jane"
	original.State.PausedBy = &pausedBy
	original.Metadata.LocalOverrides["debounce_ms"] = float64(500)

	if err := SaveLocal(dir, original); err != nil {
		t.Fatalf("SaveLocal: %v", err)
	}

	loaded, err := LoadLocal(dir, 9999)
	if err != nil {
		t.Fatalf("LoadLocal: %v", err)
	}
	if loaded.Metadata.PID != 4242 {
		t.Fatalf("expected loaded PID to reflect the saved document (4242), got %d", loaded.Metadata.PID)
	}
	if *loaded.State.PausedBy != "jane" {
		t.Fatalf("expected paused_by to round-trip, got %v", loaded.State.PausedBy)
	}
}

func TestLoadLocal_MissingFileUsesCallerPID(t *testing.T) {
	dir := t.TempDir()

	s, err := LoadLocal(dir, 777)
	if err != nil {
		t.Fatalf("LoadLocal: %v", err)
	}
	if s.Metadata.PID != 777 {
		t.Fatalf("expected fresh local state to carry the caller's PID, got %d", s.Metadata.PID)
	}
}

func TestValidate_RejectsMissingStateOrMetadata(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"not an object", `[1,2,3]`},
		{"missing state", `{"metadata":{"version":"2.0.0"}}`},
		{"state not object", `{"state":1,"metadata":{"version":"2.0.0"}}`},
		{"missing metadata", `{"state":{}}`},
		{"metadata not object", `{"state":{},"metadata":1}`},
		{"missing version", `{"state":{},"metadata":{}}`},
		{"version not a string", `{"state":{},"metadata":{"version":2}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := Validate([]byte(tc.doc)); err == nil {
				t.Fatalf("expected validation error for %s", tc.name)
			}
		})
	}
}

func TestValidate_AcceptsMinimalDocument(t *testing.T) {
	if err := Validate([]byte(`{"state":{},"metadata":{"version":"2.0.0"}}`)); err != nil {
		t.Fatalf("expected minimal valid document to pass, got %v", err)
	}
}

func TestSaveShared_WritesAtomically(t *testing.T) {
	dir := t.TempDir()

	s := NewSharedState(time.Now().UTC())
	if err := SaveShared(dir, s); err != nil {
		t.Fatalf("SaveShared: %v", err)
	}

	entries, err := os.ReadDir(Dir(dir))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != sharedFileName {
		t.Fatalf("expected only %q in state dir after save, got %v", sharedFileName, entries)
	}

	if _, err := os.Stat(filepath.Join(Dir(dir), sharedFileName)); err != nil {
		t.Fatalf("expected final shared state file to exist: %v", err)
	}
}
