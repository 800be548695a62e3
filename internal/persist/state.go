// Package persist implements §6's persisted state file: one JSON
// document per repository under `<repo>/.supsrc/`, split into a shared
// part (synced state any collaborator may read) and a local part
// (machine-specific overrides, never synced). Writes are atomic:
// serialize to a temp file in the same directory, then rename over the
// target, the on-disk equivalent of the teacher's
// serialize-then-write `SkateClient` calls with the CLI round-trip
// replaced by a direct file write.
package persist

import "time"

const schemaVersion = "2.0.0"

// RepoState is the per-repository entry under `state.repositories` in
// the shared document.
type RepoState struct {
	Paused            bool           `json:"paused"`
	SaveCountDisabled bool           `json:"save_count_disabled"`
	InactivitySeconds *int           `json:"inactivity_seconds,omitempty"`
	RuleOverrides     map[string]any `json:"rule_overrides"`
}

// SharedStateBody is the `state` object of the shared document.
type SharedStateBody struct {
	Paused       bool                 `json:"paused"`
	PausedUntil  *time.Time           `json:"paused_until,omitempty"`
	PauseReason  *string              `json:"pause_reason,omitempty"`
	Repositories map[string]RepoState `json:"repositories"`
}

// SharedMetadata is the `metadata` object of the shared document.
type SharedMetadata struct {
	Version   string    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SharedState is the synced half of the persisted state file (§6).
type SharedState struct {
	State    SharedStateBody `json:"state"`
	Metadata SharedMetadata  `json:"metadata"`
}

// NewSharedState returns an empty, valid SharedState stamped with now.
func NewSharedState(now time.Time) *SharedState {
	return &SharedState{
		State: SharedStateBody{
			Repositories: make(map[string]RepoState),
		},
		Metadata: SharedMetadata{
			Version:   schemaVersion,
			UpdatedAt: now,
		},
	}
}

// LocalStateBody is the `state` object of the local document: the
// shared body plus the machine-local `paused_by` field.
type LocalStateBody struct {
	SharedStateBody
	PausedBy *string `json:"paused_by,omitempty"`
}

// LocalMetadata is the `metadata` object of the local document: the
// shared metadata plus process/override fields that never leave this
// machine.
type LocalMetadata struct {
	SharedMetadata
	PausedBy       *string        `json:"paused_by,omitempty"`
	PID            int            `json:"pid"`
	LocalOverrides map[string]any `json:"local_overrides"`
}

// LocalState is the machine-local half of the persisted state file
// (§6).
type LocalState struct {
	State    LocalStateBody `json:"state"`
	Metadata LocalMetadata  `json:"metadata"`
}

// NewLocalState returns an empty, valid LocalState stamped with now
// and the calling process's PID.
func NewLocalState(now time.Time, pid int) *LocalState {
	return &LocalState{
		State: LocalStateBody{
			SharedStateBody: SharedStateBody{
				Repositories: make(map[string]RepoState),
			},
		},
		Metadata: LocalMetadata{
			SharedMetadata: SharedMetadata{
				Version:   schemaVersion,
				UpdatedAt: now,
			},
			PID:            pid,
			LocalOverrides: make(map[string]any),
		},
	}
}
