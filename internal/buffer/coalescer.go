package buffer

import (
	"path/filepath"
	"sync"
	"time"
)

// Coalescer is C2. It owns one sliding window per coalescing key (the
// granularity depends on Mode) and emits BufferedEvent values onto Out.
// The mechanism generalizes the teacher's SessionTracker single ticker
// into N independently armed timers, one per key; each new event for a
// key stops that key's timer and arms a fresh time.AfterFunc.
type Coalescer struct {
	mode       Mode
	window     time.Duration
	quiescence time.Duration

	mu      sync.Mutex
	byPath  map[pendingKey]*pendingGroup
	byDir   map[pendingKey]*pendingGroup // smart mode only, keyed by (repo, dir)
	closed  bool

	out chan BufferedEvent
}

// Config configures a Coalescer. Zero-value Window/Quiescence fall back
// to the documented defaults (100ms / 150ms).
type Config struct {
	Mode       Mode
	Window     time.Duration
	Quiescence time.Duration
}

// New constructs a Coalescer. outCapacity bounds the emission channel;
// a full channel blocks the timer-firing goroutine, which is acceptable
// since the event processor (C8) is the sole, always-draining consumer.
func New(cfg Config, outCapacity int) *Coalescer {
	window := cfg.Window
	if window <= 0 {
		window = 100 * time.Millisecond
	}
	quiescence := cfg.Quiescence
	if quiescence <= 0 {
		quiescence = 150 * time.Millisecond
	}
	mode := cfg.Mode
	if mode == "" {
		mode = ModeSimple
	}

	return &Coalescer{
		mode:       mode,
		window:     window,
		quiescence: quiescence,
		byPath:     make(map[pendingKey]*pendingGroup),
		byDir:      make(map[pendingKey]*pendingGroup),
		out:        make(chan BufferedEvent, outCapacity),
	}
}

// Out returns the channel BufferedEvent values are emitted on.
func (c *Coalescer) Out() <-chan BufferedEvent {
	return c.out
}

// Ingest processes one raw filesystem notification.
func (c *Coalescer) Ingest(ev RawEvent) {
	switch c.mode {
	case ModeOff:
		c.emit(BufferedEvent{
			RepoID:            ev.RepoID,
			Path:              ev.SrcPath,
			EventCount:        1,
			PrimaryChangeType: ev.Kind,
			OperationType:     OperationSingle,
			Timestamp:         ev.Timestamp,
		})
	case ModeSmart:
		if isSwapName(ev.SrcPath) || (ev.Kind == KindMoved && isSwapName(ev.DestPath)) {
			return // swallowed entirely, per §4.2 pattern 3
		}
		c.ingestSmart(ev)
	default:
		c.ingestSimple(ev)
	}
}

func (c *Coalescer) ingestSimple(ev RawEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	key := pendingKey{RepoID: ev.RepoID, Path: ev.SrcPath}
	group, ok := c.byPath[key]
	if !ok {
		group = &pendingGroup{}
		c.byPath[key] = group
	}
	group.events = append(group.events, ev)

	if group.timer != nil {
		group.timer.Stop()
	}
	group.timer = time.AfterFunc(c.window, func() { c.flushPathKey(key) })
}

func (c *Coalescer) flushPathKey(key pendingKey) {
	c.mu.Lock()
	group, ok := c.byPath[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.byPath, key)
	c.mu.Unlock()

	if len(group.events) == 0 {
		return
	}
	c.emit(summarize(key.RepoID, key.Path, group.events, OperationSingle))
}

// ingestSmart groups events by directory so that atomic-rewrite
// sequences, which span a temp path and a distinct final path, can be
// correlated. Each append attempts to resolve a completed sequence
// immediately; anything left over rides the normal per-directory window.
func (c *Coalescer) ingestSmart(ev RawEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	dir := filepath.Dir(ev.SrcPath)
	if ev.Kind == KindMoved {
		dir = filepath.Dir(ev.DestPath)
	}
	key := pendingKey{RepoID: ev.RepoID, Path: dir}
	group, ok := c.byDir[key]
	if !ok {
		group = &pendingGroup{}
		c.byDir[key] = group
	}
	group.events = append(group.events, ev)

	resolved, remaining := resolveAtomicRewrites(group.events)
	group.events = remaining

	for _, be := range resolved {
		c.emitLocked(be)
	}

	if len(group.events) == 0 {
		if group.timer != nil {
			group.timer.Stop()
		}
		delete(c.byDir, key)
		return
	}

	if group.timer != nil {
		group.timer.Stop()
	}
	group.timer = time.AfterFunc(c.window, func() { c.flushDirKey(key) })
}

func (c *Coalescer) flushDirKey(key pendingKey) {
	c.mu.Lock()
	group, ok := c.byDir[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.byDir, key)
	c.mu.Unlock()

	// Window expired with an incomplete sequence: emit the remaining
	// events as individual per-path operations, per §4.2's emission
	// contract.
	byPath := make(map[string][]RawEvent)
	order := make([]string, 0, len(group.events))
	for _, ev := range group.events {
		p := ev.SrcPath
		if _, seen := byPath[p]; !seen {
			order = append(order, p)
		}
		byPath[p] = append(byPath[p], ev)
	}
	for _, p := range order {
		c.emit(summarize(key.RepoID, p, byPath[p], OperationSingle))
	}
}

// FlushAll forces emission of every pending group, for shutdown
// (`flush_all()` in §4.2). Incomplete atomic sequences are flushed as
// their constituent per-path operations, matching window-expiry
// behavior.
func (c *Coalescer) FlushAll() {
	c.mu.Lock()
	c.closed = true
	pathKeys := make([]pendingKey, 0, len(c.byPath))
	for k := range c.byPath {
		pathKeys = append(pathKeys, k)
	}
	dirKeys := make([]pendingKey, 0, len(c.byDir))
	for k := range c.byDir {
		dirKeys = append(dirKeys, k)
	}
	c.mu.Unlock()

	for _, k := range pathKeys {
		c.flushPathKey(k)
	}
	for _, k := range dirKeys {
		c.flushDirKey(k)
	}
}

func (c *Coalescer) emit(be BufferedEvent) {
	c.out <- be
}

func (c *Coalescer) emitLocked(be BufferedEvent) {
	// Called with c.mu held; the channel send itself never touches c.mu,
	// so this cannot deadlock against flushPathKey/flushDirKey.
	c.out <- be
}

func summarize(repoID, path string, events []RawEvent, op OperationType) BufferedEvent {
	latest := events[len(events)-1]
	return BufferedEvent{
		RepoID:            repoID,
		Path:              path,
		EventCount:        len(events),
		PrimaryChangeType: latest.Kind,
		OperationType:     op,
		Timestamp:         latest.Timestamp,
	}
}

// resolveAtomicRewrites scans events (already ordered by arrival, as
// accumulated in a single directory's pending group) for the two
// documented atomic-rewrite sequences and returns one BufferedEvent per
// completed sequence plus whatever events were not consumed by a match.
func resolveAtomicRewrites(events []RawEvent) (resolved []BufferedEvent, remaining []RawEvent) {
	consumed := make([]bool, len(events))

	for i, ev := range events {
		if consumed[i] || ev.Kind != KindMoved {
			continue
		}
		if !isTempName(ev.SrcPath) {
			continue
		}

		// Pattern 1: created(T) -> modified(T)* -> moved(T -> F). Pattern 2,
		// created(T) -> deleted(F) -> moved(T -> F), also resolves here:
		// its deleted(F) is consumed along with the modified(T) events.
		createIdx := -1
		for j := 0; j < i; j++ {
			if consumed[j] {
				continue
			}
			if events[j].SrcPath == ev.SrcPath && events[j].Kind == KindCreated {
				createIdx = j
			}
		}

		if createIdx >= 0 {
			consumed[createIdx] = true
			consumed[i] = true
			for j := createIdx + 1; j < i; j++ {
				if consumed[j] {
					continue
				}
				if (events[j].SrcPath == ev.SrcPath && events[j].Kind == KindModified) ||
					(events[j].SrcPath == ev.DestPath && events[j].Kind == KindDeleted) {
					consumed[j] = true
				}
			}
			resolved = append(resolved, BufferedEvent{
				RepoID:            ev.RepoID,
				Path:              ev.DestPath,
				EventCount:        1,
				PrimaryChangeType: KindModified,
				OperationType:     OperationAtomicRewrite,
				Timestamp:         ev.Timestamp,
			})
			continue
		}

		// Pattern 2 whose created(T) is not in this group:
		// deleted(F) -> moved(T -> F).
		deleteIdx := -1
		for j := 0; j < i; j++ {
			if consumed[j] {
				continue
			}
			if events[j].SrcPath == ev.DestPath && events[j].Kind == KindDeleted {
				deleteIdx = j
			}
		}
		if deleteIdx >= 0 {
			consumed[deleteIdx] = true
			consumed[i] = true
			resolved = append(resolved, BufferedEvent{
				RepoID:            ev.RepoID,
				Path:              ev.DestPath,
				EventCount:        1,
				PrimaryChangeType: KindModified,
				OperationType:     OperationAtomicRewrite,
				Timestamp:         ev.Timestamp,
			})
		}
	}

	for i, ev := range events {
		if !consumed[i] {
			remaining = append(remaining, ev)
		}
	}
	return resolved, remaining
}
