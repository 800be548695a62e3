package processor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/AutumnsGrove/supsrc/internal/buffer"
	"github.com/AutumnsGrove/supsrc/internal/config"
	"github.com/AutumnsGrove/supsrc/internal/gitengine"
	"github.com/AutumnsGrove/supsrc/internal/output"
	"github.com/AutumnsGrove/supsrc/internal/reposvc/breaker"
	"github.com/AutumnsGrove/supsrc/internal/reposvc/rules"
	"github.com/AutumnsGrove/supsrc/internal/reposvc/state"
	"github.com/AutumnsGrove/supsrc/internal/workflow"
)

func createTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("init repo: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("# hello\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := wt.Add("README.md"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := wt.Commit("initial commit", &git.CommitOptions{
		Author: &object.Signature{Name: "Test User", Email: "test@example.com", When: time.Now()},
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return dir
}

func testProcessor(t *testing.T) *Processor {
	t.Helper()
	executor := &workflow.Executor{
		Engine:                  gitengine.New(gitengine.Identity{Name: "supsrc", Email: "supsrc@localhost"}),
		Breaker:                 breaker.New(config.BreakerConfig{}),
		Pool:                    gitengine.NewPool(2),
		Sink:                    output.NewStderrSink(output.LevelError),
		LargeFileThresholdBytes: 1_000_000,
	}
	return New(executor, executor.Breaker, executor.Sink, nil)
}

func testDeps(dir string, rule rules.Rule) RepoDeps {
	return RepoDeps{
		Settings: config.RepoSettings{
			Path:    dir,
			Enabled: true,
			Repository: config.EngineSettings{
				Type:                  "git",
				CommitMessageTemplate: "Auto-save: {{change_summary}}",
				Remote:                "origin",
				Branch:                "master",
			},
		},
		Rule:       rule,
		WorkingDir: dir,
		Identity:   gitengine.Identity{Name: "supsrc", Email: "supsrc@localhost"},
	}
}

func TestProcessor_SaveCountRuleTriggersCommit(t *testing.T) {
	dir := createTestRepo(t)
	if err := os.WriteFile(filepath.Join(dir, "new.txt"), []byte("hi\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	p := testProcessor(t)
	p.AddRepo("demo", testDeps(dir, rules.SaveCountRule{Count: 2}))
	defer func() {
		_ = p.Shutdown(context.Background())
	}()

	p.Ingest(buffer.BufferedEvent{RepoID: "demo", Path: "new.txt", Timestamp: time.Now()})
	p.Ingest(buffer.BufferedEvent{RepoID: "demo", Path: "new.txt", Timestamp: time.Now()})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := p.Snapshot(context.Background(), "demo")
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if snap.LastCommit.ShortHash != "" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected a commit after reaching the configured save-count threshold")
}

func TestProcessor_IngestDropsUnknownRepo(t *testing.T) {
	p := testProcessor(t)
	defer func() {
		_ = p.Shutdown(context.Background())
	}()

	p.Ingest(buffer.BufferedEvent{RepoID: "ghost", Path: "x.txt", Timestamp: time.Now()})
}

func TestProcessor_AcknowledgeSucceedsOnIdleRepo(t *testing.T) {
	dir := createTestRepo(t)

	p := testProcessor(t)
	p.AddRepo("demo", testDeps(dir, rules.ManualRule{}))
	defer func() {
		_ = p.Shutdown(context.Background())
	}()

	snap, err := p.Snapshot(context.Background(), "demo")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Status != state.Idle {
		t.Fatalf("expected a fresh repo to start IDLE, got %s", snap.Status)
	}

	if err := p.Acknowledge(context.Background(), "demo"); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
}

func TestProcessor_PauseResume(t *testing.T) {
	dir := createTestRepo(t)

	p := testProcessor(t)
	p.AddRepo("demo", testDeps(dir, rules.ManualRule{}))
	defer func() {
		_ = p.Shutdown(context.Background())
	}()

	if err := p.Pause(context.Background(), "demo"); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	snap, err := p.Snapshot(context.Background(), "demo")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !snap.IsPaused {
		t.Fatal("expected repo to be paused")
	}

	if err := p.Resume(context.Background(), "demo"); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	snap, err = p.Snapshot(context.Background(), "demo")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.IsPaused {
		t.Fatal("expected repo to be resumed")
	}
}

func TestProcessor_UpdateRepoSwapsDepsWithoutResettingState(t *testing.T) {
	dir := createTestRepo(t)

	p := testProcessor(t)
	p.AddRepo("demo", testDeps(dir, rules.SaveCountRule{Count: 5}))
	defer func() {
		_ = p.Shutdown(context.Background())
	}()

	p.Ingest(buffer.BufferedEvent{RepoID: "demo", Path: "a.txt", Timestamp: time.Now()})

	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, err := p.Snapshot(context.Background(), "demo")
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if snap.SaveCount >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expected save_count to reach 1 before the update")
		}
		time.Sleep(10 * time.Millisecond)
	}

	newDeps := testDeps(dir, rules.SaveCountRule{Count: 1})
	newDeps.Settings.Repository.CommitMessageTemplate = "Updated: {{change_summary}}"
	if err := p.UpdateRepo(context.Background(), "demo", newDeps); err != nil {
		t.Fatalf("UpdateRepo: %v", err)
	}

	snap, err := p.Snapshot(context.Background(), "demo")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.SaveCount < 1 {
		t.Fatalf("expected save_count to survive an in-place settings update, got %d", snap.SaveCount)
	}

	if err := p.UpdateRepo(context.Background(), "ghost", newDeps); err == nil {
		t.Fatal("expected ErrUnknownRepo for an unknown repository")
	}
}

func TestProcessor_UnknownRepoCommandsError(t *testing.T) {
	p := testProcessor(t)
	defer func() {
		_ = p.Shutdown(context.Background())
	}()

	if err := p.Pause(context.Background(), "ghost"); err == nil {
		t.Fatal("expected ErrUnknownRepo")
	}
	if _, err := p.Snapshot(context.Background(), "ghost"); err == nil {
		t.Fatal("expected ErrUnknownRepo")
	}
}

func TestProcessor_RemoveRepoStopsWorker(t *testing.T) {
	dir := createTestRepo(t)

	p := testProcessor(t)
	p.AddRepo("demo", testDeps(dir, rules.ManualRule{}))
	p.RemoveRepo("demo")

	if err := p.Pause(context.Background(), "demo"); err == nil {
		t.Fatal("expected removed repo to be unknown")
	}
	_ = p.Shutdown(context.Background())
}
