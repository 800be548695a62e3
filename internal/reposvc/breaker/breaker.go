// Package breaker implements the three independent circuit-breaker
// detectors of §4.5: bulk-change, branch-change, and file-warning. All
// three share one latched flag per repository (state.BreakerState).
package breaker

import (
	"fmt"
	"time"

	"github.com/AutumnsGrove/supsrc/internal/config"
	"github.com/AutumnsGrove/supsrc/internal/reposvc/state"
)

// Warning describes one file flagged by the file-warning detector.
type Warning struct {
	Path   string
	Reason string // "large_file" or "binary"
}

// Breaker evaluates the three detectors for a single repository against
// its configured thresholds. It holds no repository state itself -
// everything it reads and writes lives on the state.Repo passed in,
// matching the "Ownership" rule that the event processor is the sole
// mutator of repository state.
type Breaker struct {
	cfg config.BreakerConfig
}

// New constructs a Breaker bound to cfg.
func New(cfg config.BreakerConfig) *Breaker {
	return &Breaker{cfg: cfg}
}

// CheckAutoRecovery clears an expired auto-recovery deadline before any
// other check runs, per §4.5 "Auto-recovery is checked first on every
// call". Returns true if a recovery occurred.
func (b *Breaker) CheckAutoRecovery(repo *state.Repo, now time.Time) bool {
	if !repo.Breaker.Triggered {
		return false
	}
	if repo.Breaker.AutoRecoverAt.IsZero() || now.Before(repo.Breaker.AutoRecoverAt) {
		return false
	}
	repo.Breaker.AutoRecoveries++
	repo.Breaker.Reset()
	repo.Status = state.Idle
	return true
}

// ShouldProcessEvent implements the gating contract of §4.5: events are
// dropped while BULK_CHANGE_PAUSED, BRANCH_CHANGE_ERROR, or
// CONFLICT_DETECTED; BRANCH_CHANGE_WARNING still processes.
func (b *Breaker) ShouldProcessEvent(repo *state.Repo, now time.Time) bool {
	b.CheckAutoRecovery(repo, now)
	return !repo.Status.IsBlocking()
}

// ObserveBulkChange runs the bulk-change detector for one buffered
// event's path. It implements the window-reset/insert/trigger sequence
// of §4.5 and the dual-accounting Open Question: BulkChangeCount
// increments on every call (including duplicate paths), while the
// trigger check uses the unique-file-set size.
func (b *Breaker) ObserveBulkChange(repo *state.Repo, path string, now time.Time) {
	if b.cfg.BulkChangeThreshold <= 0 {
		return // threshold of 0 disables the detector
	}

	windowMS := time.Duration(b.cfg.BulkChangeWindowMS) * time.Millisecond
	if repo.Breaker.BulkWindowStart.IsZero() || now.Sub(repo.Breaker.BulkWindowStart) > windowMS {
		repo.Breaker.BulkWindowStart = now
		repo.Breaker.BulkChangeFiles = nil
		repo.Breaker.BulkChangeCount = 0
	}

	repo.Breaker.BulkChangeCount++
	repo.Breaker.AddFileOnce(path)

	if len(repo.Breaker.BulkChangeFiles) >= b.cfg.BulkChangeThreshold {
		b.trigger(repo, state.BulkChangePaused, fmt.Sprintf(
			"bulk change detected: %d unique files >= threshold %d within %s",
			len(repo.Breaker.BulkChangeFiles), b.cfg.BulkChangeThreshold, windowMS))

		if b.cfg.AutoResumeAfterBulkPauseSecs > 0 {
			repo.Breaker.AutoRecoverAt = now.Add(time.Duration(b.cfg.AutoResumeAfterBulkPauseSecs) * time.Second)
		}
	}
}

// ObserveBranch runs the branch-change detector, called whenever Git
// status is refreshed with the current branch name.
func (b *Breaker) ObserveBranch(repo *state.Repo, currentBranch string) {
	if !b.cfg.BranchChangeDetectionEnabled {
		repo.Branch.CurrentBranch = currentBranch
		return
	}

	if repo.Branch.PreviousBranch == "" {
		// First observation seeds previous_branch and does not trigger.
		repo.Branch.PreviousBranch = currentBranch
		repo.Branch.CurrentBranch = currentBranch
		return
	}

	if currentBranch == repo.Branch.PreviousBranch {
		repo.Branch.CurrentBranch = currentBranch
		return
	}

	bulkCount := len(repo.Breaker.BulkChangeFiles)
	switch {
	case bulkCount >= b.cfg.BranchWithBulkChangeThreshold && b.cfg.BranchWithBulkChangeError:
		b.trigger(repo, state.BranchChangeError, fmt.Sprintf(
			"branch changed from %q to %q with %d pending bulk changes (threshold %d)",
			repo.Branch.PreviousBranch, currentBranch, bulkCount, b.cfg.BranchWithBulkChangeThreshold))
	case b.cfg.BranchChangeWarningEnabled:
		// Non-blocking: set status but events continue processing.
		repo.Breaker.Reason = fmt.Sprintf("branch changed from %q to %q", repo.Branch.PreviousBranch, currentBranch)
		_ = repo.Transition(state.BranchChangeWarning)
	}

	repo.Branch.PreviousBranch = currentBranch
	repo.Branch.CurrentBranch = currentBranch
}

// AnalyzeFiles runs the file-warning detector (§4.5) over the paths that
// would be staged. It is synchronous and performs the actual file reads;
// callers invoke it just before staging, per the action workflow's
// preflight step.
func (b *Breaker) AnalyzeFiles(paths []string, statFn func(string) (size int64, firstChunk []byte, err error), largeThreshold int64) ([]Warning, error) {
	if largeThreshold <= 0 {
		largeThreshold = 1_000_000
	}

	var warnings []Warning
	for _, p := range paths {
		size, chunk, err := statFn(p)
		if err != nil {
			return nil, fmt.Errorf("analyzing %s for warnings: %w", p, err)
		}
		if size > largeThreshold {
			warnings = append(warnings, Warning{Path: p, Reason: "large_file"})
			continue
		}
		if containsNUL(chunk) {
			warnings = append(warnings, Warning{Path: p, Reason: "binary"})
		}
	}
	return warnings, nil
}

// TriggerFileWarnings latches the breaker with BULK_CHANGE_PAUSED citing
// the offending paths, per §4.5's file-warning detector contract.
func (b *Breaker) TriggerFileWarnings(repo *state.Repo, warnings []Warning) {
	paths := make([]string, len(warnings))
	for i, w := range warnings {
		paths[i] = fmt.Sprintf("%s (%s)", w.Path, w.Reason)
		repo.Breaker.FileWarnings = append(repo.Breaker.FileWarnings, w.Path)
	}
	b.trigger(repo, state.BulkChangePaused, fmt.Sprintf("file warnings: %v", paths))
}

// TriggerConflict latches the breaker for a conflict/divergence
// situation detected at push preflight (§4.7 step 7). Unlike bulk-change
// or branch-change, this uses CONFLICT_DETECTED and freezes the repo.
func (b *Breaker) TriggerConflict(repo *state.Repo, reason string) {
	repo.Breaker.Triggered = true
	repo.Breaker.Reason = reason
	repo.IsFrozen = true
	repo.FreezeReason = reason
	_ = repo.Transition(state.ConflictDetected)
}

func (b *Breaker) trigger(repo *state.Repo, to state.Status, reason string) {
	repo.Breaker.Triggered = true
	repo.Breaker.Reason = reason
	_ = repo.Transition(to)
}

// Acknowledge clears the breaker (manual path, P7 idempotent) and
// returns the repository to IDLE. Calling it twice in a row is a no-op
// the second time.
func (b *Breaker) Acknowledge(repo *state.Repo) {
	if !repo.Breaker.Triggered && repo.Status != state.ConflictDetected {
		return
	}
	repo.Breaker.ManualRecoveries++
	repo.Breaker.Reset()
	repo.ResetSaveCount()
	repo.IsFrozen = false
	repo.FreezeReason = ""
	repo.Status = state.Idle
}

// RequireManualAcknowledgment reports the require_manual_acknowledgment
// config flag. No caller in this module reads it: setting the flag does
// not make the workflow or processor surface a TriggeredError, and the
// scheduled auto-recovery applies regardless of it.
func (b *Breaker) RequireManualAcknowledgment() bool {
	return b.cfg.RequireManualAcknowledgment
}

func containsNUL(chunk []byte) bool {
	for _, c := range chunk {
		if c == 0 {
			return true
		}
	}
	return false
}
