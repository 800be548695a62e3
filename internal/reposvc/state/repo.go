package state

import (
	"time"
)

// TimerHandle is an opaque, cancellable resource scoped to a repository.
// The processor stores the concrete *time.Timer behind this interface so
// state.Repo itself stays free of time-package control-flow details.
type TimerHandle interface {
	Stop() bool
}

// ChangeCounters tracks accumulated file-change accounting since the last
// commit (§3 "Change accounting").
type ChangeCounters struct {
	TotalFiles   int
	ChangedFiles int
	AddedFiles   int
	DeletedFiles int
	ModifiedFiles int
}

// Zero resets all counters to zero. Used when finalizing a successful
// action cycle (§4.7 step 9) and when a commit attempt is a no-op.
func (c *ChangeCounters) Zero() {
	*c = ChangeCounters{}
}

// LastCommit summarizes the most recently made commit for display.
type LastCommit struct {
	ShortHash string
	Summary   string
	Timestamp time.Time
}

// BranchTracking holds the repository's branch and upstream bookkeeping.
type BranchTracking struct {
	CurrentBranch  string
	PreviousBranch string
	UpstreamBranch string
	CommitsAhead   int
	CommitsBehind  int
	HasUpstream    bool
}

// SessionStats are observability counters, reset only at process start.
type SessionStats struct {
	StartedAt       time.Time
	Commits         int
	Pushes          int
	FilesCommitted  int
	EventsProcessed int
	// BlockedEvents counts events dropped by the circuit breaker's
	// should_process_event gate (§4.5 gating contract).
	BlockedEvents int
}

// BreakerState holds the circuit breaker's latched fields for one
// repository. Kept inline on Repo (rather than only inside the breaker
// package) because §3 specifies it as part of the repository state
// record; internal/reposvc/breaker.Breaker operates on this struct by
// reference.
type BreakerState struct {
	Triggered        bool
	Reason           string
	BulkWindowStart  time.Time
	BulkChangeCount  int // raw event count (Open Question: dual accounting)
	BulkChangeFiles  []string // ordered, duplicate-free set (I5, P8)
	FileWarnings     []string
	AutoRecoverAt    time.Time // zero means no scheduled auto-recovery
	ManualRecoveries int
	AutoRecoveries   int
}

// HasFile reports whether path is already recorded in BulkChangeFiles,
// enforcing I5/P8 at the call site.
func (b *BreakerState) HasFile(path string) bool {
	for _, p := range b.BulkChangeFiles {
		if p == path {
			return true
		}
	}
	return false
}

// AddFileOnce appends path to BulkChangeFiles only if absent.
func (b *BreakerState) AddFileOnce(path string) {
	if !b.HasFile(path) {
		b.BulkChangeFiles = append(b.BulkChangeFiles, path)
	}
}

// Reset clears all breaker fields back to their zero state, used by
// acknowledgment (manual or auto).
func (b *BreakerState) Reset() {
	b.Triggered = false
	b.Reason = ""
	b.BulkWindowStart = time.Time{}
	b.BulkChangeCount = 0
	b.BulkChangeFiles = nil
	b.FileWarnings = nil
	b.AutoRecoverAt = time.Time{}
}

// Repo is the mutable, per-repository record described in §3. It is
// owned exclusively by the event processor; the Git engine never holds
// a reference to one across calls (it receives EngineSnapshot values
// instead — see internal/gitengine).
type Repo struct {
	ID     string
	Status Status

	Counters           ChangeCounters
	LastCommittedAdded    int
	LastCommittedDeleted  int
	LastCommittedModified int
	LastCommittedChanged  int

	SaveCount int

	LastCommit LastCommit
	Branch     BranchTracking

	InactivityTimer    TimerHandle
	TimerTotalSeconds  int
	TimerStartTime     time.Time

	IsPaused     bool
	IsStopped    bool
	IsFrozen     bool
	FreezeReason string
	IsRefreshing bool

	Breaker BreakerState

	Stats SessionStats
}

// NewRepo constructs a fresh Repo in IDLE with session stats initialized
// to now. Callers supply `now` so tests stay deterministic.
func NewRepo(id string, now time.Time) *Repo {
	return &Repo{
		ID:     id,
		Status: Idle,
		Stats:  SessionStats{StartedAt: now},
	}
}

// Transition attempts to move the repository to `to`, enforcing the
// allow-list of §4.3. On success it updates r.Status and returns nil.
func (r *Repo) Transition(to Status) error {
	if !CanTransition(r.Status, to) {
		return ErrIllegalTransition{From: r.Status, To: to}
	}
	r.Status = to
	return nil
}

// RecordEvent applies the bookkeeping for a single incoming buffered
// event: increments save_count (I1), marks the repository CHANGED. It is
// the only path by which save_count increases.
func (r *Repo) RecordEvent() {
	r.SaveCount++
	r.Stats.EventsProcessed++
	// CHANGED is reachable from IDLE, CHANGED, ERROR and
	// BRANCH_CHANGE_WARNING per §4.3; from any other status the
	// transition is refused and the status is left as it is.
	_ = r.Transition(Changed)
}

// ResetSaveCount is the only path that zeroes SaveCount (I1): a
// successful commit cycle or an acknowledged circuit-breaker reset.
func (r *Repo) ResetSaveCount() {
	r.SaveCount = 0
}

// CancelInactivityTimer stops any armed timer and clears the handle. It
// is idempotent and safe to call when no timer is armed.
func (r *Repo) CancelInactivityTimer() {
	if r.InactivityTimer != nil {
		r.InactivityTimer.Stop()
		r.InactivityTimer = nil
	}
	r.TimerTotalSeconds = 0
	r.TimerStartTime = time.Time{}
}

// RemainingTimerSeconds reports how many seconds remain before the armed
// inactivity timer fires, for display purposes. Returns 0 if no timer is
// armed.
func (r *Repo) RemainingTimerSeconds(now time.Time) int {
	if r.InactivityTimer == nil || r.TimerStartTime.IsZero() {
		return 0
	}
	elapsed := now.Sub(r.TimerStartTime).Seconds()
	remaining := float64(r.TimerTotalSeconds) - elapsed
	if remaining < 0 {
		return 0
	}
	return int(remaining)
}

// FinalizeCommit preserves the pre-cycle counters into the
// last-committed snapshot and zeroes the live counters, per §4.7 step 9
// and property P4.
func (r *Repo) FinalizeCommit(shortHash, summary string, at time.Time) {
	r.LastCommittedAdded = r.Counters.AddedFiles
	r.LastCommittedDeleted = r.Counters.DeletedFiles
	r.LastCommittedModified = r.Counters.ModifiedFiles
	r.LastCommittedChanged = r.Counters.ChangedFiles

	r.Stats.FilesCommitted += r.Counters.ChangedFiles
	r.Counters.Zero()
	r.ResetSaveCount()

	r.LastCommit = LastCommit{ShortHash: shortHash, Summary: summary, Timestamp: at}
	r.Stats.Commits++
}
