package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AutumnsGrove/supsrc/internal/buffer"
)

// LostEvent is the terminal signal a Watcher emits on ErrClosed or
// path-removed detection, per §4.1's `WatcherLost{repo_id}`.
type LostEvent struct {
	RepoID string
	Reason string
}

// Watcher monitors one repository root for filesystem activity and
// forwards gitignore-filtered notifications as buffer.RawEvent values.
// fsnotify is non-recursive, so Watcher walks the tree at startup and
// adds a watch for every subdirectory, then extends that set as new
// directories are created - a generalization of the teacher's
// GitWatcher, which only ever watched two fixed paths
// (`.git/refs/heads`, `.git/HEAD`).
type Watcher struct {
	repoID string
	root   string
	ignore *IgnoreMatcher

	fsw *fsnotify.Watcher

	raw  chan buffer.RawEvent
	lost chan LostEvent

	mu      sync.Mutex
	running bool
}

// New constructs a Watcher for repoID rooted at root. It does not start
// monitoring - call Start.
func New(repoID, root string) (*Watcher, error) {
	return NewWithIgnoreGlobs(repoID, root, nil)
}

// NewWithIgnoreGlobs is New plus a set of additional doublestar ignore
// patterns layered on top of .gitignore (§4.1, SPEC_FULL's
// `extra_ignore_globs`).
func NewWithIgnoreGlobs(repoID, root string, extraIgnoreGlobs []string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating filesystem watcher for %s: %w", repoID, err)
	}

	return &Watcher{
		repoID: repoID,
		root:   root,
		ignore: NewIgnoreMatcherWithGlobs(root, extraIgnoreGlobs),
		fsw:    fsw,
		raw:    make(chan buffer.RawEvent, 256),
		lost:   make(chan LostEvent, 1),
	}, nil
}

// Raw returns the channel of gitignore-filtered raw events.
func (w *Watcher) Raw() <-chan buffer.RawEvent { return w.raw }

// Lost returns the channel the terminal WatcherLost signal arrives on.
func (w *Watcher) Lost() <-chan LostEvent { return w.lost }

// Start walks the repository tree, arms a watch on every non-ignored
// directory, and spawns the event-translation loop.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.ignore.walkIgnoreFiles(w.root)

	if err := w.addTree(w.root); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return fmt.Errorf("watching %s: %w", w.root, err)
	}

	go w.loop(ctx)
	return nil
}

// addTree recursively arms a watch on dir and every non-ignored
// subdirectory beneath it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // transient stat error: skip, don't abort the whole walk
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" && path != dir {
			return filepath.SkipDir
		}
		if path != dir && w.ignore.IsIgnored(path) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		w.fsw.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				w.emitLost("watcher closed")
				return
			}
			w.handleFSEvent(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				w.emitLost("watcher error channel closed")
				return
			}
			if os.IsNotExist(err) {
				w.emitLost(fmt.Sprintf("watched path removed: %v", err))
				return
			}
			// Transient error: survive and continue, per §4.1.
		}
	}
}

func (w *Watcher) handleFSEvent(ev fsnotify.Event) {
	if _, statErr := os.Stat(w.root); os.IsNotExist(statErr) {
		w.emitLost("repository root no longer exists")
		return
	}

	if w.ignore.IsIgnored(ev.Name) {
		return
	}

	info, statErr := os.Stat(ev.Name)
	isDir := statErr == nil && info.IsDir()

	if isDir && ev.Op&fsnotify.Create == fsnotify.Create {
		w.ignore.OnDirCreated(ev.Name)
		_ = w.addTree(ev.Name)
	}

	kind, ok := translateOp(ev.Op)
	if !ok {
		return
	}

	select {
	case w.raw <- buffer.RawEvent{
		RepoID:      w.repoID,
		Kind:        kind,
		SrcPath:     ev.Name,
		IsDirectory: isDir,
		Timestamp:   time.Now(),
	}:
	default:
		// Raw channel full: the buffer stage is falling behind. Drop
		// rather than block the fsnotify goroutine, matching the
		// teacher's drop-on-full channel discipline.
	}
}

func translateOp(op fsnotify.Op) (buffer.RawKind, bool) {
	switch {
	case op&fsnotify.Create == fsnotify.Create:
		return buffer.KindCreated, true
	case op&fsnotify.Write == fsnotify.Write:
		return buffer.KindModified, true
	case op&fsnotify.Remove == fsnotify.Remove:
		return buffer.KindDeleted, true
	case op&fsnotify.Rename == fsnotify.Rename:
		return buffer.KindMoved, true
	default:
		return "", false
	}
}

func (w *Watcher) emitLost(reason string) {
	select {
	case w.lost <- LostEvent{RepoID: w.repoID, Reason: reason}:
	default:
	}
}

// Stop closes the underlying fsnotify watcher, unblocking the
// translation loop.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	return w.fsw.Close()
}

// IsRunning reports whether the watcher's event-translation loop is
// active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
