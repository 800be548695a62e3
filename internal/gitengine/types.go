// Package gitengine implements C6: every read and write the daemon
// performs against a Git working tree. Operations are idempotent at the
// call boundary - no hidden retries - and take immutable configuration
// snapshots rather than holding references to mutable repository state
// (see "Ownership" in the design notes).
package gitengine

import "time"

// Reason classifies a Git operation failure for the workflow's failure
// policy (§7).
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonNotARepo       Reason = "not_a_repo"
	ReasonIndexLocked    Reason = "index_locked"
	ReasonNetwork        Reason = "network"
	ReasonNonFastForward Reason = "non_fast_forward"
	ReasonAuth           Reason = "auth"
	ReasonTimeout        Reason = "timeout"
	ReasonGeneric        Reason = "generic"
)

// OpError is the classified error type returned by engine operations.
type OpError struct {
	Op      string
	Reason  Reason
	Message string
	Cause   error
}

func (e *OpError) Error() string {
	if e.Cause != nil {
		return e.Op + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Op + ": " + e.Message
}

func (e *OpError) Unwrap() error { return e.Cause }

// Summary is the result of get_summary: a cheap, read-only snapshot of
// HEAD. UNBORN means the repository has no commits yet; ERROR means the
// ref could not be resolved.
type Summary struct {
	Success       bool
	HeadRef       string // branch name, or sentinel "UNBORN"/"ERROR"
	HeadHash      string
	MessageHead   string // first line of the HEAD commit message
	CommitTime    time.Time
	Message       string
}

const (
	HeadUnborn = "UNBORN"
	HeadError  = "ERROR"
)

// ChangeKind classifies one changed path for the commit-message
// change-summary template (§6): Added/Modified/Deleted/Renamed/
// TypeChanged.
type ChangeKind string

const (
	ChangeAdded      ChangeKind = "Added"
	ChangeModified   ChangeKind = "Modified"
	ChangeDeleted    ChangeKind = "Deleted"
	ChangeRenamed    ChangeKind = "Renamed"
	ChangeTypeChange ChangeKind = "TypeChanged"
)

// FileChange is one path with its classified change kind.
type FileChange struct {
	Path string
	Kind ChangeKind
}

// StatusResult is the result of get_status.
type StatusResult struct {
	Success bool
	Message string

	IsClean      bool
	IsConflicted bool

	IsMergeInProgress      bool
	IsRebaseInProgress     bool
	IsCherryPickInProgress bool
	IsRevertInProgress     bool

	TotalFiles    int
	ChangedFiles  int
	AddedFiles    int
	DeletedFiles  int
	ModifiedFiles int

	CurrentBranch string

	HasUpstream    bool
	UpstreamBranch string
	CommitsAhead   int
	CommitsBehind  int

	// ChangedPaths lists every path with a working-tree or index
	// difference, used by the file-warning preflight and by staging.
	ChangedPaths []string

	// Changes is ChangedPaths with each path's change kind classified,
	// the payload the commit-message template's {{change_summary}}
	// section grouping (§6) is built from.
	Changes []FileChange
}

// StageResult is the result of stage_changes.
type StageResult struct {
	Success      bool
	Message      string
	StagedPaths  []string
}

// CommitResult is the result of perform_commit. An empty CommitHash with
// Success true means the index had no diff against HEAD - a no-op, not
// a failure.
type CommitResult struct {
	Success    bool
	Message    string
	CommitHash string // empty when no-op
	Timestamp  time.Time
}

// PushResult is the result of perform_push.
type PushResult struct {
	Success bool
	Message string
	Skipped bool // auto_push disabled
	Reason  Reason
}

// ConflictCheck is the result of check_upstream_conflicts, the push
// preflight (§4.7 step 7). It never fetches.
type ConflictCheck struct {
	Success       bool
	Message       string
	HasConflicts  bool
	ConflictFiles []string
	Diverged      bool
	Ahead         int
	Behind        int
	HasUpstream   bool
}

// CommitLogEntry is one entry from get_commit_history.
type CommitLogEntry struct {
	ShortHash string
	FullHash  string
	Summary   string
	Author    string
	When      time.Time
}

// DetailedCommitLogEntry adds per-file stats to CommitLogEntry, the
// payload for get_detailed_commit_history.
type DetailedCommitLogEntry struct {
	CommitLogEntry
	FilesChanged []FileStat
}

// FileStat is a per-file line-change count, shared by history and diff
// helpers.
type FileStat struct {
	Path    string
	Added   int
	Removed int
}
