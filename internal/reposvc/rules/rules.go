// Package rules implements the pure trigger predicates of §4.4. Rules
// have no side effects and perform no I/O; they only inspect a
// state.Repo snapshot and the current time.
package rules

import (
	"time"

	"github.com/AutumnsGrove/supsrc/internal/reposvc/state"
)

// Rule is the tagged-variant interface each configured trigger rule
// implements.
type Rule interface {
	// ShouldTrigger reports whether an action cycle should start right
	// now for repo. It never mutates repo and never performs I/O.
	ShouldTrigger(repo *state.Repo, now time.Time) bool

	// Describe returns a short human-readable label for display.
	Describe() string
}

// SaveCountRule fires once accumulated save_count reaches Count.
type SaveCountRule struct {
	Count uint
}

func (r SaveCountRule) ShouldTrigger(repo *state.Repo, _ time.Time) bool {
	return uint(repo.SaveCount) >= r.Count
}

func (r SaveCountRule) Describe() string {
	return "save-count"
}

// InactivityRule fires after Period elapses with no new events. As a
// synchronous predicate it always returns false: triggering for this
// rule is timer-driven (see internal/processor), not evaluated inline.
type InactivityRule struct {
	Period time.Duration
}

func (r InactivityRule) ShouldTrigger(_ *state.Repo, _ time.Time) bool {
	return false
}

func (r InactivityRule) Describe() string {
	return "inactivity"
}

// ManualRule never triggers automatically; the operator must invoke an
// action explicitly (out of scope for this package, see CLI surface).
type ManualRule struct{}

func (r ManualRule) ShouldTrigger(_ *state.Repo, _ time.Time) bool {
	return false
}

func (r ManualRule) Describe() string {
	return "manual"
}
