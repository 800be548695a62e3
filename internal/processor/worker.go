package processor

import (
	"context"
	"sync"
	"time"

	"github.com/AutumnsGrove/supsrc/internal/buffer"
	"github.com/AutumnsGrove/supsrc/internal/reposvc/rules"
	"github.com/AutumnsGrove/supsrc/internal/reposvc/state"
	"github.com/AutumnsGrove/supsrc/internal/workflow"
)

type itemKind int

const (
	itemEvent itemKind = iota
	itemDebounceFire
	itemInactivityFire
	itemExternalReset
	itemAck
	itemPause
	itemResume
	itemTrigger
	itemSnapshot
	itemUpdateDeps
)

// workItem is the single message type a repoWorker's inbox carries.
// Events, timer fires, and operator commands are all funneled through
// it so that everything touching one repository's state.Repo is
// strictly ordered within that repository's own goroutine.
type workItem struct {
	kind     itemKind
	event    buffer.BufferedEvent
	done     chan struct{}
	snapshot chan state.Repo
	deps     RepoDeps
}

// repoWorker owns one repository's state.Repo exclusively. No other
// goroutine ever reads or writes it, so repo itself needs no lock.
type repoWorker struct {
	id   string
	deps RepoDeps
	proc *Processor

	repo *state.Repo

	inbox   chan workItem
	stopCh  chan struct{}
	stopped sync.Once

	// ctx is cancelled by stop(), so an in-flight workflow run (and the
	// per-operation timeouts nested under it, see internal/workflow/ops.go)
	// unwinds at its nearest cooperative yield instead of outliving the
	// worker, per §5's cancellation rule.
	ctx    context.Context
	cancel context.CancelFunc

	debounceTimer   *time.Timer
	inactivityTimer *time.Timer
	externalTimer   *time.Timer

	// pendingInactivityPeriod is the InactivityRule period awaiting the
	// next debounce fire, set by armDebounce and consumed by
	// handleDebounceFire.
	pendingInactivityPeriod time.Duration
}

func newRepoWorker(id string, deps RepoDeps, proc *Processor) *repoWorker {
	ctx, cancel := context.WithCancel(context.Background())
	return &repoWorker{
		id:     id,
		deps:   deps,
		proc:   proc,
		repo:   state.NewRepo(id, proc.now()),
		inbox:  make(chan workItem, 64),
		stopCh: make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (w *repoWorker) send(item workItem) {
	select {
	case w.inbox <- item:
	case <-w.stopCh:
	}
}

func (w *repoWorker) stop() {
	w.stopped.Do(func() {
		close(w.stopCh)
		w.cancel()
	})
}

func (w *repoWorker) run() {
	defer w.cancelTimers()

	for {
		select {
		case item := <-w.inbox:
			w.handle(item)
		case <-w.stopCh:
			return
		}
	}
}

func (w *repoWorker) handle(item workItem) {
	switch item.kind {
	case itemEvent:
		w.handleEvent(item.event)
	case itemDebounceFire:
		w.handleDebounceFire()
	case itemInactivityFire:
		w.handleInactivityFire()
	case itemExternalReset:
		w.handleExternalReset()
	case itemAck:
		w.proc.brk.Acknowledge(w.repo)
		close(item.done)
	case itemPause:
		w.repo.IsPaused = true
		close(item.done)
	case itemResume:
		w.repo.IsPaused = false
		close(item.done)
	case itemTrigger:
		w.runWorkflow()
		close(item.done)
	case itemSnapshot:
		item.snapshot <- *w.repo
	case itemUpdateDeps:
		w.deps = item.deps
		close(item.done)
	}
}

// handleEvent applies one buffered event's bookkeeping (§4.5 gating,
// bulk-change detection, save-count accounting) and, depending on the
// configured rule, either evaluates the trigger immediately
// (SaveCountRule) or rearms the debounce timer that will in turn rearm
// the inactivity timer (InactivityRule).
func (w *repoWorker) handleEvent(ev buffer.BufferedEvent) {
	repo := w.repo
	now := w.proc.now()

	if repo.IsStopped {
		return
	}
	if !w.proc.brk.ShouldProcessEvent(repo, now) {
		repo.Stats.BlockedEvents++
		return
	}

	w.proc.brk.ObserveBulkChange(repo, ev.Path, now)
	if repo.Status.IsBlocking() {
		w.proc.emit(w.id, "circuit_breaker_triggered", repo.Breaker.Reason)
		return
	}

	repo.RecordEvent()

	switch r := w.deps.Rule.(type) {
	case rules.SaveCountRule:
		if r.ShouldTrigger(repo, now) {
			w.runWorkflow()
		}
	case rules.InactivityRule:
		w.armDebounce(r.Period)
	case rules.ManualRule:
		// No automatic trigger; an operator invokes the action directly.
	}
}

// armDebounce resets the debounce timer (default 500ms). Repeated
// events within the window each just reset this single timer; only its
// firing rearms the real inactivity timer, guaranteeing at most one
// inactivity-timer rearm per burst (P2).
func (w *repoWorker) armDebounce(period time.Duration) {
	w.pendingInactivityPeriod = period
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.proc.debounceWindow, func() {
		w.send(workItem{kind: itemDebounceFire})
	})
}

func (w *repoWorker) handleDebounceFire() {
	period := w.pendingInactivityPeriod
	if period <= 0 {
		return
	}
	if w.inactivityTimer != nil {
		w.inactivityTimer.Stop()
	}
	w.repo.TimerTotalSeconds = int(period.Seconds())
	w.repo.TimerStartTime = w.proc.now()
	w.inactivityTimer = time.AfterFunc(period, func() {
		w.send(workItem{kind: itemInactivityFire})
	})
}

func (w *repoWorker) handleInactivityFire() {
	repo := w.repo
	if repo.IsStopped || repo.IsPaused || repo.IsFrozen {
		return
	}
	if repo.SaveCount == 0 {
		return
	}
	if repo.Status != state.Idle && repo.Status != state.Changed {
		return
	}
	w.runWorkflow()
}

func (w *repoWorker) handleExternalReset() {
	if w.repo.Status == state.ExternalCommitDetected {
		_ = w.repo.Transition(state.Idle)
	}
}

// runWorkflow dispatches the action workflow synchronously within this
// worker's goroutine. Running it here, rather than handing it to a
// background goroutine, is what keeps repository-state mutation
// single-threaded per repository while other repositories' workers
// remain unaffected.
func (w *repoWorker) runWorkflow() {
	rc := &workflow.RepoContext{
		Repo:       w.repo,
		Settings:   w.deps.Settings,
		WorkingDir: w.deps.WorkingDir,
		Identity:   w.deps.Identity,
		Hook:       w.deps.Hook,
	}

	_ = w.proc.executor.Run(w.ctx, rc)

	if w.repo.Status == state.ExternalCommitDetected {
		if w.externalTimer != nil {
			w.externalTimer.Stop()
		}
		w.externalTimer = time.AfterFunc(w.proc.externalResetDelay, func() {
			w.send(workItem{kind: itemExternalReset})
		})
	}
}

func (w *repoWorker) cancelTimers() {
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	if w.inactivityTimer != nil {
		w.inactivityTimer.Stop()
	}
	if w.externalTimer != nil {
		w.externalTimer.Stop()
	}
}
