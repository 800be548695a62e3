package tui

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/AutumnsGrove/supsrc/internal/reposvc/state"
)

type fakeBackend struct {
	repos     map[string]state.Repo
	acked     []string
	paused    []string
	resumed   []string
	triggered []string
}

func (f *fakeBackend) Status(ctx context.Context) map[string]state.Repo { return f.repos }
func (f *fakeBackend) Acknowledge(ctx context.Context, id string) error {
	f.acked = append(f.acked, id)
	return nil
}
func (f *fakeBackend) Pause(ctx context.Context, id string) error {
	f.paused = append(f.paused, id)
	return nil
}
func (f *fakeBackend) Resume(ctx context.Context, id string) error {
	f.resumed = append(f.resumed, id)
	return nil
}
func (f *fakeBackend) ManualTrigger(ctx context.Context, id string) error {
	f.triggered = append(f.triggered, id)
	return nil
}

func newFixture() *fakeBackend {
	return &fakeBackend{
		repos: map[string]state.Repo{
			"alpha": {ID: "alpha", Status: state.Idle},
			"beta":  {ID: "beta", Status: state.BulkChangePaused, Breaker: state.BreakerState{Triggered: true, Reason: "too many files"}},
		},
	}
}

func TestModelRefreshPopulatesRepoList(t *testing.T) {
	backend := newFixture()
	m := New(backend, nil)

	updated, _ := m.Update(statusMsg{repos: backend.repos})
	mm := updated.(Model)

	require.Len(t, mm.ids, 2)
	require.Equal(t, "alpha", mm.ids[0])
	require.Equal(t, "beta", mm.ids[1])
}

func TestModelNavigationClampsAtBounds(t *testing.T) {
	backend := newFixture()
	m := New(backend, nil)
	updated, _ := m.Update(statusMsg{repos: backend.repos})
	mm := updated.(Model)

	updated, _ = mm.Update(tea.KeyMsg{Type: tea.KeyUp})
	mm = updated.(Model)
	require.Equal(t, 0, mm.selected)

	updated, _ = mm.Update(tea.KeyMsg{Type: tea.KeyDown})
	mm = updated.(Model)
	require.Equal(t, 1, mm.selected)

	updated, _ = mm.Update(tea.KeyMsg{Type: tea.KeyDown})
	mm = updated.(Model)
	require.Equal(t, 1, mm.selected)
}

func TestModelAckDispatchesToSelectedRepo(t *testing.T) {
	backend := newFixture()
	m := New(backend, nil)
	updated, _ := m.Update(statusMsg{repos: backend.repos})
	mm := updated.(Model)
	mm.selected = 1 // "beta"

	_, cmd := mm.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a")})
	require.NotNil(t, cmd)

	msg := cmd()
	done, ok := msg.(actionDoneMsg)
	require.True(t, ok)
	require.Equal(t, "beta", done.repoID)
	require.NoError(t, done.err)
	require.Contains(t, backend.acked, "beta")
}

func TestModelQuitReturnsQuitCmd(t *testing.T) {
	m := New(newFixture(), nil)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
}

func TestTickIntervalIsShortEnoughForADashboard(t *testing.T) {
	require.LessOrEqual(t, refreshInterval, 2*time.Second)
}
