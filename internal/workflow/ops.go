package workflow

import (
	"context"
	"time"

	"github.com/AutumnsGrove/supsrc/internal/gitengine"
	"github.com/AutumnsGrove/supsrc/internal/reposvc/breaker"
)

// Each helper below routes its blocking Git call through the shared
// worker pool (§5: "all Git operations... offloaded to a bounded
// worker pool"), which caps how many Git operations run at once; the
// call itself runs on the caller's goroutine (internal/processor's
// repoWorker), which waits for it. Each helper also applies the
// per-operation timeout ceiling from §5's table via context.WithTimeout.
// That deadline bounds the wait for a pool slot and is handed to go-git
// only by push; the other operations run to completion once started.
const (
	statusTimeout           = 30 * time.Second
	stageTimeout            = 60 * time.Second
	commitTimeout           = 30 * time.Second
	pushTimeout             = 120 * time.Second
	upstreamConflictTimeout = 15 * time.Second
)

func (x *Executor) getStatus(ctx context.Context, rc *RepoContext) (*gitengine.StatusResult, error) {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()
	var result *gitengine.StatusResult
	err := x.Pool.Do(ctx, func(opCtx context.Context) error {
		r, err := x.Engine.GetStatus(opCtx, rc.WorkingDir, rc.Settings.Repository.Remote)
		result = r
		return err
	})
	return result, err
}

func (x *Executor) stage(ctx context.Context, rc *RepoContext, changedPaths []string) (*gitengine.StageResult, error) {
	ctx, cancel := context.WithTimeout(ctx, stageTimeout)
	defer cancel()
	var result *gitengine.StageResult
	err := x.Pool.Do(ctx, func(opCtx context.Context) error {
		r, err := x.Engine.StageChanges(opCtx, rc.WorkingDir, changedPaths)
		result = r
		return err
	})
	return result, err
}

func (x *Executor) commit(ctx context.Context, rc *RepoContext, message string, now time.Time) (*gitengine.CommitResult, error) {
	ctx, cancel := context.WithTimeout(ctx, commitTimeout)
	defer cancel()
	var result *gitengine.CommitResult
	err := x.Pool.Do(ctx, func(opCtx context.Context) error {
		r, err := x.Engine.PerformCommit(opCtx, rc.WorkingDir, message, now)
		result = r
		return err
	})
	return result, err
}

func (x *Executor) checkUpstreamConflicts(ctx context.Context, rc *RepoContext) (*gitengine.ConflictCheck, error) {
	ctx, cancel := context.WithTimeout(ctx, upstreamConflictTimeout)
	defer cancel()
	var result *gitengine.ConflictCheck
	err := x.Pool.Do(ctx, func(opCtx context.Context) error {
		r, err := x.Engine.CheckUpstreamConflicts(opCtx, rc.WorkingDir, rc.Settings.Repository.Remote, rc.Settings.Repository.Branch)
		result = r
		return err
	})
	return result, err
}

func (x *Executor) push(ctx context.Context, rc *RepoContext) (*gitengine.PushResult, error) {
	ctx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()
	var result *gitengine.PushResult
	err := x.Pool.Do(ctx, func(opCtx context.Context) error {
		r, err := x.Engine.PerformPush(opCtx, rc.WorkingDir, gitengine.PushOptions{
			AutoPush: rc.Settings.Repository.AutoPush,
			Remote:   rc.Settings.Repository.Remote,
			Branch:   rc.Settings.Repository.Branch,
		})
		result = r
		return err
	})
	return result, err
}

// analyzeWarnings runs the file-warning detector (§4.5) synchronously
// just before staging, via the Git engine's disk-read bridge.
func (x *Executor) analyzeWarnings(rc *RepoContext, changedPaths []string) ([]breaker.Warning, error) {
	statFn := x.Engine.FileStatFn(rc.WorkingDir)
	return x.Breaker.AnalyzeFiles(changedPaths, statFn, x.LargeFileThresholdBytes)
}
