// Package workflow implements C7, the single entry point that turns a
// repository's accumulated changes into a Git commit (and optional
// push): the nine-step ordered sequence of §4.7. It owns no state of
// its own - every mutation lands on the state.Repo the caller supplies.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/AutumnsGrove/supsrc/internal/aihook"
	"github.com/AutumnsGrove/supsrc/internal/config"
	"github.com/AutumnsGrove/supsrc/internal/gitengine"
	"github.com/AutumnsGrove/supsrc/internal/output"
	"github.com/AutumnsGrove/supsrc/internal/reposvc/breaker"
	"github.com/AutumnsGrove/supsrc/internal/reposvc/state"
)

// Clock abstracts time.Now so tests can fix the timestamps a workflow
// run observes.
type Clock func() time.Time

// EventFunc receives the workflow's user-facing notices (conflict
// detected, external commit detected, circuit breaker tripped, commit
// made). A nil EventFunc is a valid no-op.
type EventFunc func(repoID, kind, detail string)

// RepoContext bundles everything one execute_action_sequence call needs
// for a single repository. The caller (internal/processor) owns the
// Repo and Settings for the lifetime of the call; Executor never
// retains a reference across calls, matching the "Ownership" rule in
// §3.
type RepoContext struct {
	Repo       *state.Repo
	Settings   config.RepoSettings
	WorkingDir string
	Identity   gitengine.Identity
	Hook       aihook.Hook // nil is equivalent to aihook.Disabled()
}

// Executor runs the action workflow against the Git engine and circuit
// breaker shared across all repositories.
type Executor struct {
	Engine  *gitengine.Engine
	Breaker *breaker.Breaker
	Pool    *gitengine.Pool
	Sink    *output.Sink
	Clock   Clock
	OnEvent EventFunc

	// LargeFileThresholdBytes mirrors the global config value the
	// file-warning preflight needs; the breaker already owns the
	// bulk-change threshold itself.
	LargeFileThresholdBytes int64
}

// Run executes the nine ordered steps of §4.7 for rc. It returns an
// error only for conditions a caller should treat as unexpected
// (currently none - every documented failure is absorbed into a state
// transition, per the "ERROR is terminal for the cycle" policy); the
// return value exists so future callers can distinguish a completed
// run from one aborted by ctx cancellation.
func (x *Executor) Run(ctx context.Context, rc *RepoContext) error {
	repo := rc.Repo
	now := x.now()

	// Step 1: guard.
	if repo.IsFrozen || repo.IsPaused || repo.IsStopped || repo.Status.IsBlocking() {
		return nil
	}
	if repo.Status != state.Idle && repo.Status != state.Changed {
		return nil // already mid-cycle
	}

	if err := repo.Transition(state.Processing); err != nil {
		return nil // not a legal entry point right now; treat as guard failure
	}

	// Step 2: status.
	status, err := x.getStatus(ctx, rc)
	if err != nil {
		x.toError(repo, fmt.Sprintf("get_status: %v", err))
		return nil
	}
	if !status.Success {
		x.toError(repo, status.Message)
		return nil
	}
	if status.IsConflicted {
		x.Breaker.TriggerConflict(repo, "Merge conflicts detected")
		x.emit(rc, "conflict_detected", "Merge conflicts detected")
		return nil
	}
	if status.IsClean {
		_ = repo.Transition(state.ExternalCommitDetected)
		x.emit(rc, "external_commit_detected", "working tree is clean; an external process likely committed")
		// The delayed reset back to IDLE is the processor's timer to
		// schedule (it owns all per-repo timers); the workflow only
		// leaves the repo in EXTERNAL_COMMIT_DETECTED for it to observe.
		return nil
	}

	x.Breaker.ObserveBranch(repo, status.CurrentBranch)
	repo.Branch.UpstreamBranch = status.UpstreamBranch
	repo.Branch.HasUpstream = status.HasUpstream
	repo.Branch.CommitsAhead = status.CommitsAhead
	repo.Branch.CommitsBehind = status.CommitsBehind
	repo.Counters = state.ChangeCounters{
		TotalFiles:    status.TotalFiles,
		ChangedFiles:  status.ChangedFiles,
		AddedFiles:    status.AddedFiles,
		DeletedFiles:  status.DeletedFiles,
		ModifiedFiles: status.ModifiedFiles,
	}
	if repo.Status.IsBlocking() {
		// Branch-change detector may have just tripped BRANCH_CHANGE_ERROR.
		return nil
	}

	// Step 3: file-warning preflight.
	warnings, err := x.analyzeWarnings(rc, status.ChangedPaths)
	if err != nil {
		x.toError(repo, fmt.Sprintf("analyze_files_for_warnings: %v", err))
		return nil
	}
	if len(warnings) > 0 {
		x.Breaker.TriggerFileWarnings(repo, warnings)
		x.emit(rc, "circuit_breaker_triggered", repo.Breaker.Reason)
		return nil
	}

	// Step 4: stage.
	if err := repo.Transition(state.Staging); err != nil {
		x.toError(repo, err.Error())
		return nil
	}
	stageResult, err := x.stage(ctx, rc, status.ChangedPaths)
	if err != nil {
		x.toError(repo, fmt.Sprintf("stage_changes: %v", err))
		return nil
	}
	if !stageResult.Success {
		x.toError(repo, fmt.Sprintf("stage_changes: %s", stageResult.Message))
		return nil
	}

	// Step 5: optional LLM hook.
	template := rc.Settings.Repository.CommitMessageTemplate
	if rc.Settings.LLM != nil && rc.Settings.LLM.Enabled {
		hook := rc.Hook
		if hook == nil {
			hook = aihook.Disabled()
		}

		diff := changeSummaryDiff(status.Changes)

		if rc.Settings.LLM.ReviewChanges {
			result, err := hook.ReviewChanges(ctx, diff)
			if err != nil {
				x.toError(repo, fmt.Sprintf("review_changes: %v", err))
				return nil
			}
			if result.Veto {
				x.toError(repo, fmt.Sprintf("review_changes vetoed the commit: %s", result.Reason))
				return nil
			}
		}

		if rc.Settings.LLM.RunTests {
			timeout := time.Duration(rc.Settings.LLM.TestTimeoutSeconds) * time.Second
			if timeout <= 0 {
				timeout = 300 * time.Second
			}
			result, err := aihook.RunTests(ctx, rc.WorkingDir, rc.Settings.LLM.TestCommand, timeout)
			if err != nil {
				x.toError(repo, fmt.Sprintf("run_tests: %v", err))
				return nil
			}
			if !result.Passed {
				x.toError(repo, fmt.Sprintf("run_tests failed (exit %d): %s", result.ExitCode, firstLine(result.Output)))
				return nil
			}
		}

		if rc.Settings.LLM.GenerateCommitMessage {
			msg, err := hook.GenerateCommitMessage(ctx, diff)
			if err != nil {
				x.toError(repo, fmt.Sprintf("generate_commit_message: %v", err))
				return nil
			}
			if msg != "" {
				template = msg
			}
		}
	}

	// Step 6: commit.
	if err := repo.Transition(state.Committing); err != nil {
		x.toError(repo, err.Error())
		return nil
	}
	message := gitengine.RenderCommitMessage(template, status.Changes, now)
	commitResult, err := x.commit(ctx, rc, message, now)
	if err != nil {
		x.toError(repo, fmt.Sprintf("perform_commit: %v", err))
		return nil
	}
	if !commitResult.Success {
		x.toError(repo, fmt.Sprintf("perform_commit: %s", commitResult.Message))
		return nil
	}
	if commitResult.CommitHash == "" {
		// No-op: index had no diff against HEAD.
		repo.Counters.Zero()
		repo.ResetSaveCount()
		_ = repo.Transition(state.Idle)
		return nil
	}

	// Step 7: push preflight.
	conflictCheck, err := x.checkUpstreamConflicts(ctx, rc)
	if err != nil {
		x.toError(repo, fmt.Sprintf("check_upstream_conflicts: %v", err))
		return nil
	}
	if conflictCheck.Success && (conflictCheck.HasConflicts || conflictCheck.Diverged) {
		reason := "push preflight: diverged from upstream"
		if conflictCheck.HasConflicts {
			reason = fmt.Sprintf("push preflight: conflicts in %v", conflictCheck.ConflictFiles)
		}
		x.Breaker.TriggerConflict(repo, reason)
		x.emit(rc, "circuit_breaker_triggered", reason)
		return nil
	}

	// Step 8: push.
	if err := repo.Transition(state.Pushing); err != nil {
		x.toError(repo, err.Error())
		return nil
	}
	pushResult, err := x.push(ctx, rc)
	pushFailed := err != nil
	pushMessage := ""
	if err != nil {
		pushMessage = err.Error()
	} else {
		pushFailed = !pushResult.Success && !pushResult.Skipped
		pushMessage = pushResult.Message
	}
	if pushFailed {
		x.Sink.Warnf("repo %s: perform_push non-fatal failure: %s", repo.ID, pushMessage)
		repo.FinalizeCommit(shortHash(commitResult.CommitHash), firstLine(message), now)
		_ = repo.Transition(state.Idle)
		return nil
	}

	// Step 9: finalize.
	repo.FinalizeCommit(shortHash(commitResult.CommitHash), firstLine(message), now)
	if pushResult.Success && !pushResult.Skipped {
		repo.Stats.Pushes++
	}
	_ = repo.Transition(state.Idle)
	x.emit(rc, "commit_made", commitResult.CommitHash)
	return nil
}

func (x *Executor) now() time.Time {
	if x.Clock != nil {
		return x.Clock()
	}
	return time.Now().UTC()
}

func (x *Executor) emit(rc *RepoContext, kind, detail string) {
	if x.OnEvent != nil {
		x.OnEvent(rc.Repo.ID, kind, detail)
	}
}

func (x *Executor) toError(repo *state.Repo, message string) {
	if x.Sink != nil {
		x.Sink.Errorf("repo %s: %s", repo.ID, message)
	}
	_ = repo.Transition(state.Error)
}

func shortHash(hash string) string {
	if len(hash) <= 7 {
		return hash
	}
	return hash[:7]
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

func changeSummaryDiff(changes []gitengine.FileChange) string {
	return gitengine.SummarizeChanges(changes)
}
