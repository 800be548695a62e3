// Package orchestrator implements C9: the top-level daemon process.
// It owns the current configuration snapshot, starts one watcher and
// buffer per configured repository, wires their output into the
// shared event processor, and supervises hot-reload and graceful
// shutdown — the generalization of the teacher's WatcherManager
// (map+mutex of per-repo watchers) to the full repository set plus a
// processor this teacher never had.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AutumnsGrove/supsrc/internal/aihook"
	"github.com/AutumnsGrove/supsrc/internal/buffer"
	"github.com/AutumnsGrove/supsrc/internal/config"
	"github.com/AutumnsGrove/supsrc/internal/gitengine"
	"github.com/AutumnsGrove/supsrc/internal/notify"
	"github.com/AutumnsGrove/supsrc/internal/output"
	"github.com/AutumnsGrove/supsrc/internal/processor"
	"github.com/AutumnsGrove/supsrc/internal/reposvc/breaker"
	"github.com/AutumnsGrove/supsrc/internal/reposvc/rules"
	"github.com/AutumnsGrove/supsrc/internal/reposvc/state"
	"github.com/AutumnsGrove/supsrc/internal/watcher"
	"github.com/AutumnsGrove/supsrc/internal/workflow"
)

// repoRuntime bundles the running collaborators for one watched
// repository, so Stop/Reload can tear a single one down cleanly.
type repoRuntime struct {
	watcher   *watcher.Watcher
	coalescer *buffer.Coalescer
	cancel    context.CancelFunc
	settings  config.RepoSettings
}

// Orchestrator is C9. Exactly one exists per daemon process.
type Orchestrator struct {
	sink     *output.Sink
	notifier notify.Notifier
	hook     aihook.Hook
	tui      bool

	cfg atomic.Pointer[config.Config]

	breaker  *breaker.Breaker
	executor *workflow.Executor
	proc     *processor.Processor

	mu    sync.Mutex
	repos map[string]*repoRuntime
}

// Options configures an Orchestrator at construction time.
type Options struct {
	Sink     *output.Sink
	Notifier notify.Notifier // nil defaults to notify.Disabled()
	Hook     aihook.Hook     // nil defaults to aihook.Disabled(), per-repo LLM settings still gate use
	TUIMode  bool            // selects EventGroupingModeTUI over EventGroupingModeHeadless
}

// New constructs an Orchestrator from an already-loaded, validated cfg.
// It does not start anything — call Start.
func New(cfg *config.Config, opts Options) *Orchestrator {
	sink := opts.Sink
	if sink == nil {
		sink = output.NewStderrSink(output.LevelInfo)
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Disabled()
	}
	hook := opts.Hook
	if hook == nil {
		hook = aihook.Disabled()
	}

	brk := breaker.New(cfg.Global.CircuitBreaker)
	engine := gitengine.New(gitengine.Identity{Name: "supsrc", Email: "supsrc@localhost"})
	pool := gitengine.NewPool(4)

	o := &Orchestrator{
		sink:     sink,
		notifier: notifier,
		hook:     hook,
		tui:      opts.TUIMode,
		breaker:  brk,
		repos:    make(map[string]*repoRuntime),
	}
	o.cfg.Store(cfg)

	o.executor = &workflow.Executor{
		Engine:                  engine,
		Breaker:                 brk,
		Pool:                    pool,
		Sink:                    sink,
		LargeFileThresholdBytes: cfg.Global.LargeFileThresholdBytes,
	}
	o.executor.OnEvent = o.onWorkflowEvent

	o.proc = processor.New(o.executor, brk, sink, o.onWorkflowEvent)
	return o
}

// Config returns the currently active configuration snapshot.
func (o *Orchestrator) Config() *config.Config {
	return o.cfg.Load()
}

// onWorkflowEvent is shared by the workflow executor and the
// processor: both notify through the same desktop-notification and log
// path so an operator sees identical messages regardless of which
// layer raised them.
func (o *Orchestrator) onWorkflowEvent(repoID, kind, detail string) {
	o.sink.Infof("repo %s: %s: %s", repoID, kind, detail)

	switch kind {
	case "circuit_breaker_triggered", "conflict_detected", "commit_made":
		o.notifier.Notify(notify.Notice{
			RepoID:    repoID,
			Title:     fmt.Sprintf("supsrc: %s", kind),
			Body:      detail,
			Timestamp: time.Now(),
		})
	}
}

// Start brings up a watcher and buffer for every enabled repository in
// the active configuration, fanned out concurrently via errgroup so
// one slow repository root (a large initial .gitignore walk, say)
// cannot delay another's startup.
func (o *Orchestrator) Start(ctx context.Context) error {
	cfg := o.cfg.Load()
	o.applyDiscovery(cfg)

	g, gctx := errgroup.WithContext(ctx)
	for id, rs := range cfg.Repositories {
		id, rs := id, rs
		if !rs.Enabled {
			continue
		}
		g.Go(func() error {
			return o.addRepo(gctx, id, rs)
		})
	}
	return g.Wait()
}

func (o *Orchestrator) bufferMode() buffer.Mode {
	cfg := o.cfg.Load()
	if !cfg.Global.EventBufferingEnabled {
		return buffer.ModeOff
	}
	modeStr := cfg.Global.EventGroupingModeHeadless
	if o.tui {
		modeStr = cfg.Global.EventGroupingModeTUI
	}
	switch buffer.Mode(modeStr) {
	case buffer.ModeOff, buffer.ModeSmart:
		return buffer.Mode(modeStr)
	default:
		return buffer.ModeSimple
	}
}

func (o *Orchestrator) addRepo(parent context.Context, id string, rs config.RepoSettings) error {
	path, err := config.ExpandPath(rs.Path)
	if err != nil {
		return fmt.Errorf("repository %s: %w", id, err)
	}

	rule, err := ruleFromSettings(rs.Rule)
	if err != nil {
		return fmt.Errorf("repository %s: %w", id, err)
	}

	cfg := o.cfg.Load()

	w, err := watcher.NewWithIgnoreGlobs(id, path, cfg.Global.ExtraIgnoreGlobs)
	if err != nil {
		return fmt.Errorf("repository %s: %w", id, err)
	}

	windowMS := cfg.Global.EventBufferWindowMS
	coalescer := buffer.New(buffer.Config{
		Mode:   o.bufferMode(),
		Window: time.Duration(windowMS) * time.Millisecond,
	}, 256)

	repoCtx, cancel := context.WithCancel(parent)

	if err := w.Start(repoCtx); err != nil {
		cancel()
		return fmt.Errorf("repository %s: %w", id, err)
	}

	rt := &repoRuntime{watcher: w, coalescer: coalescer, cancel: cancel, settings: rs}

	o.mu.Lock()
	o.repos[id] = rt
	o.mu.Unlock()

	go o.pumpRaw(repoCtx, id, w, coalescer)
	go o.pumpBuffered(repoCtx, coalescer)
	go o.pumpLost(repoCtx, id, w)

	o.proc.AddRepo(id, processor.RepoDeps{
		Settings:   rs,
		Rule:       rule,
		WorkingDir: path,
		Identity:   gitengine.Identity{Name: "supsrc", Email: "supsrc@localhost"},
		Hook:       o.hook,
	})

	o.sink.Infof("repository %s: watching %s (rule=%s)", id, path, rule.Describe())
	return nil
}

func (o *Orchestrator) pumpRaw(ctx context.Context, id string, w *watcher.Watcher, c *buffer.Coalescer) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Raw():
			if !ok {
				return
			}
			c.Ingest(ev)
		}
	}
}

func (o *Orchestrator) pumpBuffered(ctx context.Context, c *buffer.Coalescer) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.Out():
			if !ok {
				return
			}
			o.proc.Ingest(ev)
		}
	}
}

func (o *Orchestrator) pumpLost(ctx context.Context, id string, w *watcher.Watcher) {
	select {
	case <-ctx.Done():
		return
	case lost, ok := <-w.Lost():
		if !ok {
			return
		}
		o.sink.Errorf("repository %s: watcher lost: %s", id, lost.Reason)
	}
}

// applyDiscovery expands cfg.Global.RepoDiscoveryGlobs and registers any
// working tree not already named (by path) under cfg.Repositories,
// mutating cfg in place before it is diffed or started from. Discovered
// repositories default to the manual rule with auto-push off, so they
// never autosave until an operator edits the config to opt them in.
func (o *Orchestrator) applyDiscovery(cfg *config.Config) {
	if len(cfg.Global.RepoDiscoveryGlobs) == 0 {
		return
	}

	found, err := config.DiscoverRepositories(cfg.Global.RepoDiscoveryGlobs)
	if err != nil {
		o.sink.Warnf("repo discovery: %v", err)
		return
	}

	known := make(map[string]bool, len(cfg.Repositories))
	for _, rs := range cfg.Repositories {
		if p, err := config.ExpandPath(rs.Path); err == nil {
			known[p] = true
		}
	}

	for _, path := range found {
		if known[path] {
			continue
		}
		id := filepath.Base(path)
		if _, taken := cfg.Repositories[id]; taken {
			// Two discovered trees sharing a basename (e.g. "api" under
			// two different parent dirs): fall back to an ID generated
			// from the path (a name-based UUID) rather than a counter, so
			// re-running discovery against a changed glob set never
			// reassigns an already-running repository's ID out from under it.
			id = fmt.Sprintf("%s-%s", id, uuid.NewSHA1(uuid.NameSpaceURL, []byte(path)).String()[:8])
		}
		cfg.Repositories[id] = config.RepoSettings{
			Path:    path,
			Enabled: true,
			Rule:    config.RuleSettings{Type: "manual"},
			Repository: config.EngineSettings{
				Type: "git",
			},
		}
		known[path] = true
		o.sink.Infof("repo discovery: auto-registered %s at %s", id, path)
	}
}

func ruleFromSettings(rs config.RuleSettings) (rules.Rule, error) {
	switch rs.Type {
	case "inactivity":
		period, err := rs.PeriodDuration()
		if err != nil {
			return nil, err
		}
		return rules.InactivityRule{Period: period}, nil
	case "save_count":
		return rules.SaveCountRule{Count: rs.Count}, nil
	case "manual":
		return rules.ManualRule{}, nil
	default:
		return nil, fmt.Errorf("unknown rule type %q", rs.Type)
	}
}

// Acknowledge, Pause, Resume, and ManualTrigger delegate directly to the
// shared processor; the orchestrator itself holds no per-repo state.

func (o *Orchestrator) Acknowledge(ctx context.Context, repoID string) error {
	return o.proc.Acknowledge(ctx, repoID)
}

func (o *Orchestrator) Pause(ctx context.Context, repoID string) error {
	return o.proc.Pause(ctx, repoID)
}

func (o *Orchestrator) Resume(ctx context.Context, repoID string) error {
	return o.proc.Resume(ctx, repoID)
}

func (o *Orchestrator) ManualTrigger(ctx context.Context, repoID string) error {
	return o.proc.ManualTrigger(ctx, repoID)
}

// Status returns a point-in-time snapshot of every watched
// repository's state, for `cb status` and the TUI dashboard.
func (o *Orchestrator) Status(ctx context.Context) map[string]state.Repo {
	return o.proc.SnapshotAll(ctx)
}
