package orchestrator

import (
	"context"
	"fmt"

	"github.com/AutumnsGrove/supsrc/internal/config"
	"github.com/AutumnsGrove/supsrc/internal/gitengine"
	"github.com/AutumnsGrove/supsrc/internal/processor"
)

// Reload re-reads the configuration document at path, diffs it
// against the active snapshot, and applies the minimum set of changes:
// removed repositories are stopped, added repositories are started,
// repositories whose path changed are restarted, and any other settings
// change is applied in place. Repositories not restarted keep running
// (and keep their accumulated state.Repo) across the reload.
func (o *Orchestrator) Reload(ctx context.Context, path string) error {
	next, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("reloading config: %w", err)
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("reloading config: %w", err)
	}

	prev := o.cfg.Load()
	o.applyDiscovery(next)
	o.cfg.Store(next)

	o.mu.Lock()
	running := make(map[string]config.RepoSettings, len(o.repos))
	for id, rt := range o.repos {
		running[id] = rt.settings
	}
	o.mu.Unlock()
	_ = prev

	for id, rt := range running {
		rs, stillConfigured := next.Repositories[id]
		if !stillConfigured || !rs.Enabled {
			o.stopRepo(id)
			continue
		}
		if sameRepoSettings(rt, rs) {
			continue
		}
		if changedPath(rt, rs) {
			// §4.9: a path change is treated as remove + add - the
			// working tree identity itself changed, so there is no
			// "in place" to update.
			o.stopRepo(id)
			if err := o.addRepo(ctx, id, rs); err != nil {
				o.sink.Errorf("reload: restarting repository %s: %v", id, err)
			}
			continue
		}
		// Any other settings change (rule, engine settings, LLM
		// settings) is applied in place: the running repository.Repo
		// keeps its save_count, change counters, branch tracking, and
		// circuit-breaker state, per §4.9's "no state loss unless path
		// changed".
		if err := o.updateRepo(ctx, id, rs); err != nil {
			o.sink.Errorf("reload: updating repository %s: %v", id, err)
		}
	}

	for id, rs := range next.Repositories {
		if !rs.Enabled {
			continue
		}
		if _, already := running[id]; already {
			continue
		}
		if err := o.addRepo(ctx, id, rs); err != nil {
			o.sink.Errorf("reload: starting repository %s: %v", id, err)
		}
	}

	return nil
}

// sameRepoSettings compares everything that matters for whether a
// running repository needs any reload action at all. config.RepoSettings
// carries *LLMSettings as a pointer (toml.Decode allocates a fresh one on
// every Load even when the document is byte-identical), so a plain `==`
// would force a pointless restart on every reload; compare the pointee
// instead.
func sameRepoSettings(a, b config.RepoSettings) bool {
	if a.Path != b.Path || a.Enabled != b.Enabled || a.Rule != b.Rule || a.Repository != b.Repository {
		return false
	}
	switch {
	case a.LLM == nil && b.LLM == nil:
		return true
	case a.LLM == nil || b.LLM == nil:
		return false
	default:
		return *a.LLM == *b.LLM
	}
}

// changedPath reports whether b names a different working tree than a,
// the one settings change §4.9 says must be treated as remove + add
// rather than an in-place update.
func changedPath(a config.RepoSettings, b config.RepoSettings) bool {
	ap, aerr := config.ExpandPath(a.Path)
	bp, berr := config.ExpandPath(b.Path)
	if aerr != nil || berr != nil {
		return a.Path != b.Path
	}
	return ap != bp
}

// updateRepo applies a non-path settings change to an already-running
// repository in place: it rebuilds the rule and pushes the new settings
// down to the repository's worker via Processor.UpdateRepo, without
// touching its watcher, coalescer, or accumulated state.Repo.
func (o *Orchestrator) updateRepo(ctx context.Context, id string, rs config.RepoSettings) error {
	rule, err := ruleFromSettings(rs.Rule)
	if err != nil {
		return fmt.Errorf("repository %s: %w", id, err)
	}

	o.mu.Lock()
	rt, ok := o.repos[id]
	if ok {
		rt.settings = rs
	}
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("repository %s: not running", id)
	}

	path, err := config.ExpandPath(rs.Path)
	if err != nil {
		return fmt.Errorf("repository %s: %w", id, err)
	}

	return o.proc.UpdateRepo(ctx, id, processor.RepoDeps{
		Settings:   rs,
		Rule:       rule,
		WorkingDir: path,
		Identity:   gitengine.Identity{Name: "supsrc", Email: "supsrc@localhost"},
		Hook:       o.hook,
	})
}

func (o *Orchestrator) stopRepo(id string) {
	o.mu.Lock()
	rt, ok := o.repos[id]
	if ok {
		delete(o.repos, id)
	}
	o.mu.Unlock()
	if !ok {
		return
	}

	rt.cancel()
	_ = rt.watcher.Stop()
	rt.coalescer.FlushAll()
	o.proc.RemoveRepo(id)
}

// Shutdown stops every running repository and drains the shared
// processor, bounded by ctx.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	ids := make([]string, 0, len(o.repos))
	for id := range o.repos {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	for _, id := range ids {
		o.stopRepo(id)
	}

	return o.proc.Shutdown(ctx)
}
