// Package state defines the per-repository mutable record (§3 of the
// design) and its state machine. A Repo is owned exclusively by the
// event processor; no other component retains a mutable reference to
// one (see "Ownership" in the design notes).
package state

import "fmt"

// Status is one of the exhaustive set of states a repository can occupy.
type Status int

const (
	Idle Status = iota
	Changed
	Processing
	Staging
	GeneratingCommit
	Committing
	Pushing
	Error
	ConflictDetected
	ExternalCommitDetected
	BulkChangePaused
	BranchChangeWarning
	BranchChangeError
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Changed:
		return "CHANGED"
	case Processing:
		return "PROCESSING"
	case Staging:
		return "STAGING"
	case GeneratingCommit:
		return "GENERATING_COMMIT"
	case Committing:
		return "COMMITTING"
	case Pushing:
		return "PUSHING"
	case Error:
		return "ERROR"
	case ConflictDetected:
		return "CONFLICT_DETECTED"
	case ExternalCommitDetected:
		return "EXTERNAL_COMMIT_DETECTED"
	case BulkChangePaused:
		return "BULK_CHANGE_PAUSED"
	case BranchChangeWarning:
		return "BRANCH_CHANGE_WARNING"
	case BranchChangeError:
		return "BRANCH_CHANGE_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Emoji returns a short glyph for TUI/console display. Display strings
// are always derived from Status, never persisted as state themselves.
func (s Status) Emoji() string {
	switch s {
	case Idle:
		return "💤"
	case Changed:
		return "✏️"
	case Processing, Staging, GeneratingCommit, Committing, Pushing:
		return "⚙️"
	case Error:
		return "❌"
	case ConflictDetected:
		return "⚔️"
	case ExternalCommitDetected:
		return "👤"
	case BulkChangePaused:
		return "⏸️"
	case BranchChangeWarning:
		return "⚠️"
	case BranchChangeError:
		return "🛑"
	default:
		return "?"
	}
}

// ErrIllegalTransition is returned by Transition when the requested move
// is not in the allowed table of §4.3.
type ErrIllegalTransition struct {
	From, To Status
}

func (e ErrIllegalTransition) Error() string {
	return fmt.Sprintf("illegal state transition: %s -> %s", e.From, e.To)
}

// transitions is the allow-list from §4.3. A status is always allowed to
// transition to itself to make idempotent re-entry (e.g. CHANGED ->
// CHANGED on repeated events) straightforward for callers.
var transitions = map[Status]map[Status]bool{
	Idle: {
		Idle: true, Changed: true, Processing: true,
		BulkChangePaused: true, BranchChangeWarning: true, BranchChangeError: true,
	},
	Changed: {
		Changed: true, Processing: true, ExternalCommitDetected: true,
		BulkChangePaused: true, BranchChangeWarning: true, BranchChangeError: true,
	},
	Processing: {
		Processing: true, Staging: true, Error: true, ConflictDetected: true,
		ExternalCommitDetected: true, BulkChangePaused: true, BranchChangeError: true,
	},
	Staging: {
		Staging: true, GeneratingCommit: true, Committing: true, Error: true,
		BulkChangePaused: true,
	},
	GeneratingCommit: {
		GeneratingCommit: true, Committing: true, Error: true,
	},
	Committing: {
		Committing: true, Pushing: true, Idle: true, Error: true,
		ConflictDetected: true, BulkChangePaused: true, BranchChangeError: true,
	},
	Pushing: {
		Pushing: true, Idle: true, Error: true,
	},
	Error: {
		Error: true, Idle: true, Changed: true,
	},
	ConflictDetected: {
		ConflictDetected: true, Idle: true,
	},
	ExternalCommitDetected: {
		ExternalCommitDetected: true, Idle: true,
	},
	BulkChangePaused: {
		BulkChangePaused: true, Idle: true,
	},
	BranchChangeWarning: {
		BranchChangeWarning: true, Idle: true, Changed: true, BranchChangeError: true,
	},
	BranchChangeError: {
		BranchChangeError: true, Idle: true,
	},
}

// CanTransition reports whether moving from `from` to `to` is permitted
// by the state machine in §4.3.
func CanTransition(from, to Status) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	return allowed[to]
}

// IsBlocking reports whether status is one of the circuit-breaker-blocked
// states where no action workflow may start (I3).
func (s Status) IsBlocking() bool {
	switch s {
	case BulkChangePaused, BranchChangeError, ConflictDetected:
		return true
	default:
		return false
	}
}
