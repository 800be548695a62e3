package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/help"

	"github.com/AutumnsGrove/supsrc/internal/output"
	"github.com/AutumnsGrove/supsrc/internal/reposvc/state"
)

// Backend is the subset of *orchestrator.Orchestrator the dashboard
// needs. Defined here (rather than importing the orchestrator package
// directly) so the model can be driven by a fake in tests, matching the
// teacher's small-interface convention (internal/ai.AIProvider).
type Backend interface {
	Status(ctx context.Context) map[string]state.Repo
	Acknowledge(ctx context.Context, repoID string) error
	Pause(ctx context.Context, repoID string) error
	Resume(ctx context.Context, repoID string) error
	ManualTrigger(ctx context.Context, repoID string) error
}

const refreshInterval = time.Second

type tickMsg time.Time

type statusMsg struct {
	repos map[string]state.Repo
}

type actionDoneMsg struct {
	repoID string
	action string
	err    error
}

// Model is the bubbletea program root for `sui`. It holds no Git or
// breaker logic of its own — every command reaches through Backend to
// the already-running orchestrator, so the dashboard can never diverge
// from the daemon's actual state.Repo records.
type Model struct {
	backend Backend
	sink    *output.Sink
	keys    KeyMap
	help    help.Model

	width, height int

	ids      []string
	repos    map[string]state.Repo
	selected int

	lastAction string
	lastErr    error
}

// New constructs a dashboard Model bound to backend. sink may be nil.
func New(backend Backend, sink *output.Sink) Model {
	return Model{
		backend: backend,
		sink:    sink,
		keys:    DefaultKeyMap(),
		help:    help.New(),
		repos:   make(map[string]state.Repo),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refreshCmd(), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) refreshCmd() tea.Cmd {
	backend := m.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return statusMsg{repos: backend.Status(ctx)}
	}
}

func (m Model) runAction(action string, fn func(ctx context.Context, repoID string) error, repoID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return actionDoneMsg{repoID: repoID, action: action, err: fn(ctx, repoID)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.refreshCmd(), tickCmd())

	case statusMsg:
		m.repos = msg.repos
		m.ids = make([]string, 0, len(msg.repos))
		for id := range msg.repos {
			m.ids = append(m.ids, id)
		}
		sort.Strings(m.ids)
		if m.selected >= len(m.ids) {
			m.selected = len(m.ids) - 1
		}
		if m.selected < 0 {
			m.selected = 0
		}
		return m, nil

	case actionDoneMsg:
		m.lastAction = fmt.Sprintf("%s %s", msg.action, msg.repoID)
		m.lastErr = msg.err
		if m.sink != nil {
			if msg.err != nil {
				m.sink.Warnf("tui: %s failed: %v", m.lastAction, msg.err)
			} else {
				m.sink.Infof("tui: %s ok", m.lastAction)
			}
		}
		return m, m.refreshCmd()

	case tea.KeyMsg:
		switch {
		case keyMatches(msg, m.keys.Quit):
			return m, tea.Quit
		case keyMatches(msg, m.keys.Up):
			if m.selected > 0 {
				m.selected--
			}
			return m, nil
		case keyMatches(msg, m.keys.Down):
			if m.selected < len(m.ids)-1 {
				m.selected++
			}
			return m, nil
		case keyMatches(msg, m.keys.Ack):
			return m, m.dispatch("ack", m.backend.Acknowledge)
		case keyMatches(msg, m.keys.Pause):
			return m, m.dispatch("pause", m.backend.Pause)
		case keyMatches(msg, m.keys.Resume):
			return m, m.dispatch("resume", m.backend.Resume)
		case keyMatches(msg, m.keys.Manual):
			return m, m.dispatch("trigger", m.backend.ManualTrigger)
		}
	}
	return m, nil
}

func (m Model) dispatch(action string, fn func(ctx context.Context, repoID string) error) tea.Cmd {
	if len(m.ids) == 0 {
		return nil
	}
	return m.runAction(action, fn, m.ids[m.selected])
}

func keyMatches(msg tea.KeyMsg, b interface{ Keys() []string }) bool {
	for _, k := range b.Keys() {
		if msg.String() == k {
			return true
		}
	}
	return false
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("supsrc — watched repositories"))
	b.WriteString("\n\n")

	if len(m.ids) == 0 {
		b.WriteString(MutedStyle.Render("no repositories configured"))
		b.WriteString("\n")
	}

	for i, id := range m.ids {
		r := m.repos[id]
		row := formatRow(id, r)
		if i == m.selected {
			b.WriteString(SelectedRowStyle.Render("▸ " + row))
		} else {
			b.WriteString(UnselectedRowStyle.Render("  " + row))
		}
		b.WriteString("\n")
	}

	if len(m.ids) > 0 {
		b.WriteString("\n")
		b.WriteString(detailPane(m.ids[m.selected], m.repos[m.ids[m.selected]]))
	}

	if m.lastAction != "" {
		b.WriteString("\n")
		if m.lastErr != nil {
			b.WriteString(ErrorStyle.Render(fmt.Sprintf("%s: %v", m.lastAction, m.lastErr)))
		} else {
			b.WriteString(SuccessStyle.Render(m.lastAction + ": ok"))
		}
	}

	b.WriteString("\n\n")
	b.WriteString(HelpStyle.Render(m.help.View(m.keys)))
	return b.String()
}

func formatRow(id string, r state.Repo) string {
	style := statusStyle(r.Status.IsBlocking(), isActive(r.Status), r.Status == state.BranchChangeWarning)
	return fmt.Sprintf("%s %-20s %s  branch=%s  save_count=%d",
		r.Status.Emoji(), id, style.Render(r.Status.String()), r.Branch.CurrentBranch, r.SaveCount)
}

func isActive(s state.Status) bool {
	switch s {
	case state.Processing, state.Staging, state.GeneratingCommit, state.Committing, state.Pushing:
		return true
	default:
		return false
	}
}

func detailPane(id string, r state.Repo) string {
	var lines []string
	lines = append(lines, HeadingStyle.Render(id))
	lines = append(lines, fmt.Sprintf("changed=%d added=%d deleted=%d modified=%d",
		r.Counters.ChangedFiles, r.Counters.AddedFiles, r.Counters.DeletedFiles, r.Counters.ModifiedFiles))
	if r.LastCommit.ShortHash != "" {
		lines = append(lines, fmt.Sprintf("last commit %s: %s", r.LastCommit.ShortHash, r.LastCommit.Summary))
	}
	if r.Breaker.Triggered {
		lines = append(lines, ErrorStyle.Render("breaker: "+r.Breaker.Reason))
	}
	if r.IsFrozen {
		lines = append(lines, ErrorStyle.Render("frozen: "+r.FreezeReason))
	}
	if r.IsPaused {
		lines = append(lines, WarningStyle.Render("paused"))
	}
	return BoxStyle.Render(strings.Join(lines, "\n"))
}
