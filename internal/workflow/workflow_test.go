package workflow

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/AutumnsGrove/supsrc/internal/config"
	"github.com/AutumnsGrove/supsrc/internal/gitengine"
	"github.com/AutumnsGrove/supsrc/internal/output"
	"github.com/AutumnsGrove/supsrc/internal/reposvc/breaker"
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

func testExecutor() *Executor {
	return &Executor{
		Engine:                  gitengine.New(gitengine.Identity{Name: "supsrc", Email: "supsrc@localhost"}),
		Breaker:                 breaker.New(config.BreakerConfig{}),
		Pool:                    gitengine.NewPool(2),
		Sink:                    output.NewStderrSink(output.LevelError),
		LargeFileThresholdBytes: 1_000_000,
	}
}

func testRepoContext(id, dir string) *RepoContext {
	return &RepoContext{
		Repo:       state.NewRepo(id, time.Now()),
		WorkingDir: dir,
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
	}
}

func TestRun_CommitsNewFile(t *testing.T) {
	dir := createTestRepo(t)
	if err := os.WriteFile(filepath.Join(dir, "new.txt"), []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	x := testExecutor()
	rc := testRepoContext("demo", dir)
	rc.Repo.Status = state.Changed

	var events []string
	x.OnEvent = func(repoID, kind, detail string) { events = append(events, kind) }

	if err := x.Run(context.Background(), rc); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if rc.Repo.Status != state.Idle {
		t.Fatalf("expected IDLE after a successful cycle, got %s", rc.Repo.Status)
	}
	if rc.Repo.LastCommit.ShortHash == "" {
		t.Fatal("expected a recorded commit hash")
	}
	if rc.Repo.Counters != (state.ChangeCounters{}) {
		t.Fatalf("expected counters zeroed post-cycle (P4), got %+v", rc.Repo.Counters)
	}
	found := false
	for _, e := range events {
		if e == "commit_made" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a commit_made event, got %v", events)
	}
}

func TestRun_CleanTreeDetectsExternalCommit(t *testing.T) {
	dir := createTestRepo(t)

	x := testExecutor()
	rc := testRepoContext("demo", dir)
	rc.Repo.Status = state.Changed

	if err := x.Run(context.Background(), rc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rc.Repo.Status != state.ExternalCommitDetected {
		t.Fatalf("expected EXTERNAL_COMMIT_DETECTED on a clean tree, got %s", rc.Repo.Status)
	}
}

func TestRun_GuardSkipsFrozenRepo(t *testing.T) {
	dir := createTestRepo(t)

	x := testExecutor()
	rc := testRepoContext("demo", dir)
	rc.Repo.Status = state.Changed
	rc.Repo.IsFrozen = true

	if err := x.Run(context.Background(), rc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rc.Repo.Status != state.Changed {
		t.Fatalf("expected guard to leave status untouched, got %s", rc.Repo.Status)
	}
}

func TestRun_GuardSkipsBlockingStatus(t *testing.T) {
	dir := createTestRepo(t)

	x := testExecutor()
	rc := testRepoContext("demo", dir)
	rc.Repo.Status = state.BulkChangePaused

	if err := x.Run(context.Background(), rc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rc.Repo.Status != state.BulkChangePaused {
		t.Fatalf("expected breaker-blocked status untouched, got %s", rc.Repo.Status)
	}
}

func TestRun_PushSkippedWhenAutoPushDisabled(t *testing.T) {
	dir := createTestRepo(t)
	if err := os.WriteFile(filepath.Join(dir, "new.txt"), []byte("x\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	x := testExecutor()
	rc := testRepoContext("demo", dir)
	rc.Repo.Status = state.Changed
	rc.Settings.Repository.AutoPush = false

	if err := x.Run(context.Background(), rc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rc.Repo.Status != state.Idle {
		t.Fatalf("expected IDLE after skipped push, got %s", rc.Repo.Status)
	}
	if rc.Repo.Stats.Pushes != 0 {
		t.Fatalf("expected no push recorded, got %d", rc.Repo.Stats.Pushes)
	}
}

func TestRun_TimeoutWaitingForPoolSlotSurfacesAsError(t *testing.T) {
	dir := createTestRepo(t)
	if err := os.WriteFile(filepath.Join(dir, "new.txt"), []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	x := testExecutor()
	x.Pool = gitengine.NewPool(1)
	rc := testRepoContext("demo", dir)
	rc.Repo.Status = state.Changed

	// Occupy the pool's one slot for longer than the timeout below, so
	// Run's get_status step (§5: status timeout 30s, shortened here via
	// a short-lived context) must wait on ctx.Done() rather than ever
	// running its own Git call.
	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = x.Pool.Do(context.Background(), func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	defer close(release)
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := x.Run(ctx, rc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rc.Repo.Status != state.Error {
		t.Fatalf("expected a timed-out wait for a Git operation slot to surface as ERROR, got %s", rc.Repo.Status)
	}
}

func TestRun_FileWarningTripsBreakerBeforeStaging(t *testing.T) {
	dir := createTestRepo(t)
	large := make([]byte, 2_000_000)
	if err := os.WriteFile(filepath.Join(dir, "huge.bin"), large, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	x := testExecutor()
	x.LargeFileThresholdBytes = 1_000_000
	rc := testRepoContext("demo", dir)
	rc.Repo.Status = state.Changed

	if err := x.Run(context.Background(), rc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rc.Repo.Status != state.BulkChangePaused {
		t.Fatalf("expected BULK_CHANGE_PAUSED from file-warning detector, got %s", rc.Repo.Status)
	}
	if !rc.Repo.Breaker.Triggered {
		t.Fatal("expected breaker to be latched")
	}

	status, err := git.PlainOpen(dir)
	if err != nil {
		t.Fatalf("PlainOpen: %v", err)
	}
	wt, err := status.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	gs, err := wt.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if gs.IsClean() {
		t.Fatal("expected the huge file to remain unstaged per the preflight contract")
	}
}
