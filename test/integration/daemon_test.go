// Package integration exercises the daemon end to end: a real fsnotify
// watcher over a real git.PlainInit working tree, through the event
// buffer and processor, into an actual commit — the save-count scenario
// from the design's worked example (two saves trip a count=2 rule).
package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/AutumnsGrove/supsrc/internal/config"
	"github.com/AutumnsGrove/supsrc/internal/orchestrator"
	"github.com/AutumnsGrove/supsrc/internal/reposvc/state"
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

// headCount returns the number of commits reachable from HEAD.
func headCount(t *testing.T, dir string) int {
	t.Helper()
	repo, err := git.PlainOpen(dir)
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	ref, err := repo.Head()
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	n := 0
	if err := iter.ForEach(func(*object.Commit) error { n++; return nil }); err != nil {
		t.Fatalf("log iterate: %v", err)
	}
	return n
}

// waitForStatus polls the orchestrator until repoID reports one of want,
// failing the test if that never happens within the deadline. Real
// fsnotify delivery and debounce timers make this the only reliable way
// to observe a state transition from outside the daemon.
func waitForStatus(t *testing.T, o *orchestrator.Orchestrator, repoID string, want ...state.Status) state.Repo {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	var last state.Repo
	for time.Now().Before(deadline) {
		snap := o.Status(context.Background())
		r, ok := snap[repoID]
		if ok {
			last = r
			for _, w := range want {
				if r.Status == w {
					return r
				}
			}
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("repo %s never reached status in %v, last seen: %+v", repoID, want, last)
	return last
}

// TestDaemon_SaveCountRuleCommitsAfterTwoChanges is Scenario 1 of the
// design's worked examples: a save_count{count=2} rule with auto-push
// off. Two file writes to the watched tree should accumulate through
// the buffer, fire the rule after the second, drive the repository
// through the documented CHANGED -> ... -> IDLE cycle, and leave exactly
// one new commit with the change counters zeroed.
func TestDaemon_SaveCountRuleCommitsAfterTwoChanges(t *testing.T) {
	dir := createTestRepo(t)
	before := headCount(t, dir)

	cfg := config.DefaultConfig()
	cfg.Global.EventBufferingEnabled = true // coalesce each write's create+modify notifications into one buffered event
	cfg.Repositories["demo"] = config.RepoSettings{
		Path:    dir,
		Enabled: true,
		Rule:    config.RuleSettings{Type: "save_count", Count: 2},
		Repository: config.EngineSettings{
			Type:                  "git",
			AutoPush:              false,
			Branch:                "master",
			CommitMessageTemplate: "Auto-save: {{change_summary}}",
			Remote:                "origin",
		},
	}

	o := orchestrator.New(cfg, orchestrator.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := o.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = o.Shutdown(context.Background()) }()

	// First save alone must not cross the count=2 threshold.
	write(t, dir, "one.txt", "first save\n")
	time.Sleep(200 * time.Millisecond)
	if snap := o.Status(context.Background())["demo"]; snap.LastCommit.ShortHash != "" {
		t.Fatalf("expected no commit after a single save, got %+v", snap.LastCommit)
	}

	// Second save crosses the count=2 threshold and should drive a full
	// commit cycle back to IDLE.
	write(t, dir, "two.txt", "second save\n")
	r := waitForStatus(t, o, "demo", state.Idle, state.Error, state.ConflictDetected)
	if r.Status != state.Idle {
		t.Fatalf("expected IDLE after the save-count rule fired, got %s (last commit %+v)", r.Status, r.LastCommit)
	}

	if r.Counters != (state.ChangeCounters{}) {
		t.Fatalf("expected change counters zeroed after the commit cycle, got %+v", r.Counters)
	}
	if r.LastCommit.ShortHash == "" {
		t.Fatal("expected a recorded commit hash after the save-count rule fired")
	}

	after := headCount(t, dir)
	if after != before+1 {
		t.Fatalf("expected exactly one new commit, repo had %d before and %d after", before, after)
	}
}

func write(t *testing.T, dir, name, contents string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}
