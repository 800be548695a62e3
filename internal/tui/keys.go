package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines every keybinding the dashboard responds to. Trimmed
// down from the teacher's internal/ui.KeyMap (which carried separate
// bindings for five RPG screens) to the single repository-list screen
// this dashboard has.
type KeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Ack    key.Binding
	Pause  key.Binding
	Resume key.Binding
	Manual key.Binding
	Help   key.Binding
	Quit   key.Binding
}

// DefaultKeyMap returns the dashboard's bindings: arrow keys plus
// vim-style alternatives for navigation, mirroring the teacher's own
// convention in internal/ui/keys.go.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "select up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "select down"),
		),
		Ack: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "acknowledge breaker"),
		),
		Pause: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "pause"),
		),
		Resume: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "resume"),
		),
		Manual: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "trigger now"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp satisfies bubbles/help.KeyMap for the footer help line.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Ack, k.Pause, k.Resume, k.Manual, k.Help, k.Quit}
}

// FullHelp satisfies bubbles/help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
