package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// DirName is the per-repository subdirectory the state files live
	// under.
	DirName = ".supsrc"

	sharedFileName = "shared.json"
	localFileName  = "local.json"
)

// Dir returns the `.supsrc` directory for the repository rooted at
// repoRoot.
func Dir(repoRoot string) string {
	return filepath.Join(repoRoot, DirName)
}

// LoadShared reads and validates the shared state document for
// repoRoot. A missing file is not an error: callers get a fresh
// SharedState, matching the expected first-run experience.
func LoadShared(repoRoot string) (*SharedState, error) {
	path := filepath.Join(Dir(repoRoot), sharedFileName)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewSharedState(time.Now().UTC()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading shared state %s: %w", path, err)
	}

	if err := Validate(raw); err != nil {
		return nil, fmt.Errorf("shared state %s: %w", path, err)
	}

	var s SharedState
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parsing shared state %s: %w", path, err)
	}
	if s.State.Repositories == nil {
		s.State.Repositories = make(map[string]RepoState)
	}
	return &s, nil
}

// SaveShared atomically writes the shared state document for repoRoot.
func SaveShared(repoRoot string, s *SharedState) error {
	return writeAtomic(Dir(repoRoot), sharedFileName, s)
}

// LoadLocal reads and validates the local state document for repoRoot.
// A missing file is not an error: callers get a fresh LocalState
// stamped with the current process's PID.
func LoadLocal(repoRoot string, pid int) (*LocalState, error) {
	path := filepath.Join(Dir(repoRoot), localFileName)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewLocalState(time.Now().UTC(), pid), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading local state %s: %w", path, err)
	}

	if err := Validate(raw); err != nil {
		return nil, fmt.Errorf("local state %s: %w", path, err)
	}

	var s LocalState
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parsing local state %s: %w", path, err)
	}
	if s.State.Repositories == nil {
		s.State.Repositories = make(map[string]RepoState)
	}
	if s.Metadata.LocalOverrides == nil {
		s.Metadata.LocalOverrides = make(map[string]any)
	}
	return &s, nil
}

// SaveLocal atomically writes the local state document for repoRoot.
func SaveLocal(repoRoot string, s *LocalState) error {
	return writeAtomic(Dir(repoRoot), localFileName, s)
}

// Validate reports whether raw is a valid persisted state document per
// §6: the top level must be an object with an object `state` and an
// object `metadata` carrying a string `version`.
func Validate(raw []byte) error {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("not a JSON object: %w", err)
	}

	state, ok := doc["state"]
	if !ok {
		return fmt.Errorf("missing \"state\" field")
	}
	if _, ok := state.(map[string]any); !ok {
		return fmt.Errorf("\"state\" field is not an object")
	}

	metaRaw, ok := doc["metadata"]
	if !ok {
		return fmt.Errorf("missing \"metadata\" field")
	}
	meta, ok := metaRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("\"metadata\" field is not an object")
	}

	version, ok := meta["version"]
	if !ok {
		return fmt.Errorf("\"metadata.version\" is missing")
	}
	if _, ok := version.(string); !ok {
		return fmt.Errorf("\"metadata.version\" is not a string")
	}

	return nil
}

// writeAtomic marshals v and writes it to dir/name via a temp
// file in the same directory followed by a rename, so a reader never
// observes a partially written document - the local-disk equivalent of
// the teacher's Skate "set" call, which also treated the write as a
// single atomic key update.
func writeAtomic(dir, name string, v any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp state file: %w", err)
	}

	target := filepath.Join(dir, name)
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp state file into place: %w", err)
	}
	return nil
}
