// Package processor implements C8, the single cooperative dispatcher
// that turns buffered filesystem events into repository-state mutations
// and, when a rule fires, launches the action workflow (C7).
//
// Each repository is owned by its own goroutine (a repoWorker), so that
// "work on one repo never delays another beyond queue pressure" (§4.8
// Isolation) holds without forcing every repository through one literal
// OS thread. Within a single repoWorker, mutation of its state.Repo is
// strictly serialized: events, timer fires, and operator commands all
// arrive on the same inbox channel and are handled one at a time, which
// is the Go-idiomatic equivalent of the source's single-threaded
// cooperative scheduler (§5) scoped to the granularity the spec itself
// says matters - per repository, not per process.
package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AutumnsGrove/supsrc/internal/aihook"
	"github.com/AutumnsGrove/supsrc/internal/buffer"
	"github.com/AutumnsGrove/supsrc/internal/config"
	"github.com/AutumnsGrove/supsrc/internal/gitengine"
	"github.com/AutumnsGrove/supsrc/internal/output"
	"github.com/AutumnsGrove/supsrc/internal/reposvc/breaker"
	"github.com/AutumnsGrove/supsrc/internal/reposvc/rules"
	"github.com/AutumnsGrove/supsrc/internal/reposvc/state"
	"github.com/AutumnsGrove/supsrc/internal/workflow"
)

// Clock abstracts time.Now so tests can control debounce/inactivity
// timing deterministically.
type Clock func() time.Time

// EventFunc receives processor- and workflow-level notices, the same
// sink the orchestrator wires into internal/notify for desktop alerts.
type EventFunc func(repoID, kind, detail string)

// ErrUnknownRepo is returned by operator commands (Acknowledge, Pause,
// Resume, ManualTrigger, Snapshot) naming a repository the processor
// does not own.
var ErrUnknownRepo = fmt.Errorf("unknown repository")

const (
	// defaultDebounceWindow is §4.8's debounce window for coalescing
	// repeated inactivity-timer (re)arm checks within a single repo.
	defaultDebounceWindow = 500 * time.Millisecond
	// defaultExternalResetDelay is §4.3's EXTERNAL_COMMIT_DETECTED ->
	// IDLE auto-clear delay.
	defaultExternalResetDelay = 2 * time.Second
)

// RepoDeps bundles the per-repository collaborators AddRepo needs:
// everything that varies by repository rather than being shared across
// the whole daemon.
type RepoDeps struct {
	Settings   config.RepoSettings
	Rule       rules.Rule
	WorkingDir string
	Identity   gitengine.Identity
	Hook       aihook.Hook
}

// Processor is C8. One Processor serves every repository the
// orchestrator currently watches; Breaker, Engine, and Pool are shared
// (they hold no mutable per-repo state themselves).
type Processor struct {
	executor *workflow.Executor
	brk      *breaker.Breaker
	sink     *output.Sink
	onEvent  EventFunc
	clock    Clock

	debounceWindow     time.Duration
	externalResetDelay time.Duration

	mu      sync.RWMutex
	workers map[string]*repoWorker

	wg sync.WaitGroup
}

// New constructs a Processor. executor and brk are shared across every
// repository the processor will own.
func New(executor *workflow.Executor, brk *breaker.Breaker, sink *output.Sink, onEvent EventFunc) *Processor {
	return &Processor{
		executor:           executor,
		brk:                brk,
		sink:               sink,
		onEvent:            onEvent,
		clock:              func() time.Time { return time.Now().UTC() },
		debounceWindow:     defaultDebounceWindow,
		externalResetDelay: defaultExternalResetDelay,
		workers:            make(map[string]*repoWorker),
	}
}

// SetClock overrides the processor's notion of now, for deterministic
// tests.
func (p *Processor) SetClock(c Clock) { p.clock = c }

// SetDebounceWindow overrides the default 500ms debounce window, for
// tests that want to observe rearm behavior without real sleeps.
func (p *Processor) SetDebounceWindow(d time.Duration) { p.debounceWindow = d }

func (p *Processor) now() time.Time { return p.clock() }

func (p *Processor) emit(repoID, kind, detail string) {
	if p.onEvent != nil {
		p.onEvent(repoID, kind, detail)
	}
}

// AddRepo starts a dedicated worker goroutine owning id's state.Repo.
// Safe to call concurrently with Ingest/commands for other repos; not
// safe to call twice for the same id without RemoveRepo in between.
func (p *Processor) AddRepo(id string, deps RepoDeps) {
	w := newRepoWorker(id, deps, p)

	p.mu.Lock()
	p.workers[id] = w
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		w.run()
	}()
}

// UpdateRepo swaps the running deps (settings, rule, identity, hook) a
// repository's worker uses for its next event or workflow run, without
// recreating its state.Repo - the in-place path §4.9 requires for any
// config change that isn't a path change, so save_count, change
// counters, branch tracking, and circuit-breaker state all survive the
// reload. Safe to call concurrently; it is serialized through the same
// inbox as events and operator commands. Unknown id is ErrUnknownRepo.
func (p *Processor) UpdateRepo(ctx context.Context, id string, deps RepoDeps) error {
	p.mu.RLock()
	w, ok := p.workers[id]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRepo, id)
	}
	done := make(chan struct{})
	w.send(workItem{kind: itemUpdateDeps, deps: deps, done: done})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RemoveRepo stops id's worker goroutine, cancelling any armed timers
// and in-flight workflow context. Safe to call on an unknown id (no-op).
func (p *Processor) RemoveRepo(id string) {
	p.mu.Lock()
	w, ok := p.workers[id]
	if ok {
		delete(p.workers, id)
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	w.stop()
}

// Ingest routes one buffered event to the owning repository's worker.
// Events for a repository the processor does not (or no longer) own are
// silently dropped, matching hot-reload's "removed repos -> drop state"
// contract.
func (p *Processor) Ingest(ev buffer.BufferedEvent) {
	p.mu.RLock()
	w, ok := p.workers[ev.RepoID]
	p.mu.RUnlock()
	if !ok {
		return
	}
	w.send(workItem{kind: itemEvent, event: ev})
}

// Acknowledge clears repoID's circuit breaker (manual path) and returns
// it to IDLE. Idempotent per P7.
func (p *Processor) Acknowledge(ctx context.Context, repoID string) error {
	return p.command(ctx, repoID, itemAck)
}

// Pause sets repoID's IsPaused flag so no further action cycles start
// until Resume is called.
func (p *Processor) Pause(ctx context.Context, repoID string) error {
	return p.command(ctx, repoID, itemPause)
}

// Resume clears repoID's IsPaused flag.
func (p *Processor) Resume(ctx context.Context, repoID string) error {
	return p.command(ctx, repoID, itemResume)
}

// ManualTrigger forces one action-cycle attempt for repoID regardless
// of its configured rule, the operator-invoked path ManualRule leaves
// to the CLI surface.
func (p *Processor) ManualTrigger(ctx context.Context, repoID string) error {
	return p.command(ctx, repoID, itemTrigger)
}

func (p *Processor) command(ctx context.Context, repoID string, kind itemKind) error {
	p.mu.RLock()
	w, ok := p.workers[repoID]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRepo, repoID)
	}
	done := make(chan struct{})
	w.send(workItem{kind: kind, done: done})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a point-in-time copy of repoID's state, safe to read
// concurrently with the worker's own mutation since the copy is taken
// inside the worker's single-owner goroutine.
func (p *Processor) Snapshot(ctx context.Context, repoID string) (state.Repo, error) {
	p.mu.RLock()
	w, ok := p.workers[repoID]
	p.mu.RUnlock()
	if !ok {
		return state.Repo{}, fmt.Errorf("%w: %s", ErrUnknownRepo, repoID)
	}

	result := make(chan state.Repo, 1)
	w.send(workItem{kind: itemSnapshot, snapshot: result})
	select {
	case r := <-result:
		return r, nil
	case <-ctx.Done():
		return state.Repo{}, ctx.Err()
	}
}

// SnapshotAll returns a copy of every repository's state, keyed by ID,
// for the TUI dashboard and `cb status`.
func (p *Processor) SnapshotAll(ctx context.Context) map[string]state.Repo {
	p.mu.RLock()
	ids := make([]string, 0, len(p.workers))
	for id := range p.workers {
		ids = append(ids, id)
	}
	p.mu.RUnlock()

	out := make(map[string]state.Repo, len(ids))
	for _, id := range ids {
		if snap, err := p.Snapshot(ctx, id); err == nil {
			out[id] = snap
		}
	}
	return out
}

// Shutdown stops every repository worker, draining in-flight work until
// ctx is done or every worker has exited.
func (p *Processor) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	workers := make([]*repoWorker, 0, len(p.workers))
	for id, w := range p.workers {
		workers = append(workers, w)
		delete(p.workers, id)
	}
	p.mu.Unlock()

	for _, w := range workers {
		w.stop()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
