// Package buffer implements C2: coalescing raw filesystem notifications
// into a small number of logical, Git-meaningful events within a sliding
// window, recognizing editor atomic-save sequences along the way.
package buffer

import (
	"regexp"
	"time"
)

// Mode selects how aggressively raw events are coalesced.
type Mode string

const (
	ModeOff    Mode = "off"
	ModeSimple Mode = "simple"
	ModeSmart  Mode = "smart"
)

// RawKind is the kind of a single filesystem notification.
type RawKind string

const (
	KindCreated  RawKind = "created"
	KindModified RawKind = "modified"
	KindDeleted  RawKind = "deleted"
	KindMoved    RawKind = "moved"
)

// RawEvent is one notification from the watcher (C1), already
// gitignore-filtered.
type RawEvent struct {
	RepoID      string
	Kind        RawKind
	SrcPath     string
	DestPath    string // set when Kind == KindMoved
	IsDirectory bool
	Timestamp   time.Time
}

// OperationType classifies a BufferedEvent.
type OperationType string

const (
	OperationSingle        OperationType = "single"
	OperationAtomicRewrite OperationType = "atomic_rewrite"
)

// BufferedEvent is C2's output: one logical change to a path, emitted
// after the coalescing window (and, for atomic rewrites, the completion
// of the rewrite sequence) settles.
type BufferedEvent struct {
	RepoID            string
	Path              string
	EventCount        int
	PrimaryChangeType RawKind
	OperationType     OperationType
	Timestamp         time.Time
}

var (
	tmpPattern     = regexp.MustCompile(`(\.[^/]+\.tmp\.[^/]+$|[^/]+\.tmp(\.[^/]+)?$|[^/]+~$)`)
	swapPattern    = regexp.MustCompile(`(^|/)\.[^/]+\.sw[px]$`)
)

// isTempName reports whether path matches one of the atomic-rewrite
// temp-file patterns documented in §4.2: `*.tmp`, `*.tmp.<suffix>`,
// `.<name>.tmp.<suffix>`, or `<name>~`.
func isTempName(path string) bool {
	return tmpPattern.MatchString(path)
}

// isSwapName reports whether path is an editor swap file (`.*.swp`,
// `.*.swx`) that smart mode swallows entirely.
func isSwapName(path string) bool {
	return swapPattern.MatchString(path)
}

// pendingKey groups raw events for coalescing: one timer per
// (repo, path).
type pendingKey struct {
	RepoID string
	Path   string
}

// pendingGroup accumulates raw events for one key until the window
// elapses or the group resolves into an emission.
type pendingGroup struct {
	events []RawEvent
	timer  *time.Timer
}
