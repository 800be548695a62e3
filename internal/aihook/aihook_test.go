package aihook

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type fakeHook struct {
	vetoed  bool
	message string
}

func (f *fakeHook) Name() string { return "fake" }

func (f *fakeHook) ReviewChanges(ctx context.Context, diff string) (*ReviewResult, error) {
	if f.vetoed {
		return &ReviewResult{Veto: true, Reason: "diff touches a secret"}, nil
	}
	return &ReviewResult{Veto: false}, nil
}

func (f *fakeHook) GenerateCommitMessage(ctx context.Context, diff string) (string, error) {
	return f.message, nil
}

func TestNoop_NeverVetoes(t *testing.T) {
	h := Disabled()

	result, err := h.ReviewChanges(context.Background(), "diff")
	if err != nil {
		t.Fatalf("ReviewChanges: %v", err)
	}
	if result.Veto {
		t.Fatal("expected disabled hook to never veto")
	}

	msg, err := h.GenerateCommitMessage(context.Background(), "diff")
	if err != nil {
		t.Fatalf("GenerateCommitMessage: %v", err)
	}
	if msg != "" {
		t.Fatalf("expected empty message from disabled hook, got %q", msg)
	}
}

func TestManager_ReviewChanges_PropagatesVeto(t *testing.T) {
	m := NewManager(&fakeHook{vetoed: true}, 10, time.Minute, time.Second)

	result, err := m.ReviewChanges(context.Background(), "diff")
	if err != nil {
		t.Fatalf("ReviewChanges: %v", err)
	}
	if !result.Veto {
		t.Fatal("expected veto to propagate from wrapped hook")
	}
	if result.Reason == "" {
		t.Fatal("expected a non-empty veto reason")
	}
}

func TestManager_GenerateCommitMessage_ReturnsHookMessage(t *testing.T) {
	m := NewManager(&fakeHook{message: "feat: add retry logic"}, 10, time.Minute, time.Second)

	msg, err := m.GenerateCommitMessage(context.Background(), "diff")
	if err != nil {
		t.Fatalf("GenerateCommitMessage: %v", err)
	}
	if msg != "feat: add retry logic" {
		t.Fatalf("unexpected message: %q", msg)
	}
}

func TestManager_EnforcesRateLimit(t *testing.T) {
	m := NewManager(&fakeHook{}, 1, time.Hour, time.Second)

	if _, err := m.ReviewChanges(context.Background(), "diff"); err != nil {
		t.Fatalf("first call should succeed: %v", err)
	}

	if _, err := m.ReviewChanges(context.Background(), "diff"); err == nil {
		t.Fatal("expected second call within the window to be rate limited")
	}
}

func TestNewManager_NilHookFallsBackToDisabled(t *testing.T) {
	m := NewManager(nil, 10, time.Minute, time.Second)
	if m.Name() != "disabled" {
		t.Fatalf("expected nil hook to fall back to disabled, got %q", m.Name())
	}
}

func TestRateLimiter_RefillsAfterWindow(t *testing.T) {
	r := NewRateLimiter(1, 20*time.Millisecond)

	if !r.Allow() {
		t.Fatal("expected first call to be allowed")
	}
	if r.Allow() {
		t.Fatal("expected second call before refill to be denied")
	}

	time.Sleep(30 * time.Millisecond)

	if !r.Allow() {
		t.Fatal("expected call after window to be allowed again")
	}
}

func TestRunTests_ReportsSuccessAndFailure(t *testing.T) {
	dir := t.TempDir()

	result, err := RunTests(context.Background(), dir, "exit 0", 2*time.Second)
	if err != nil {
		t.Fatalf("RunTests: %v", err)
	}
	if !result.Passed {
		t.Fatal("expected exit 0 to be reported as passed")
	}

	result, err = RunTests(context.Background(), dir, "exit 1", 2*time.Second)
	if err != nil {
		t.Fatalf("RunTests: %v", err)
	}
	if result.Passed {
		t.Fatal("expected exit 1 to be reported as failed")
	}
	if result.ExitCode != 1 {
		t.Fatalf("expected exit code 1, got %d", result.ExitCode)
	}
}

func TestRunTests_RunsInWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}

	result, err := RunTests(context.Background(), dir, "test -f marker.txt", 2*time.Second)
	if err != nil {
		t.Fatalf("RunTests: %v", err)
	}
	if !result.Passed {
		t.Fatalf("expected command to find marker.txt in working dir, output: %s", result.Output)
	}
}

func TestRunTests_TimesOut(t *testing.T) {
	dir := t.TempDir()

	_, err := RunTests(context.Background(), dir, "sleep 5", 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestRunTests_RequiresCommand(t *testing.T) {
	dir := t.TempDir()
	if _, err := RunTests(context.Background(), dir, "", time.Second); err == nil {
		t.Fatal("expected error for empty command")
	}
}
