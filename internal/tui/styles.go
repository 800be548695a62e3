// Package tui implements the `sui` dashboard: a bubbletea program that
// renders every watched repository's live state.Repo and lets an
// operator acknowledge circuit breakers, pause/resume, or fire a manual
// action cycle without leaving the terminal.
package tui

import "github.com/charmbracelet/lipgloss"

// Color palette, carried over from the teacher's internal/ui/styles.go
// (same light/dark-safe 256-color choices) with the RPG-specific hues
// (XP gold, quest blue, magic lavender) dropped — this dashboard has no
// use for them.
var (
	ColorPrimary   = lipgloss.Color("205") // Pink/Magenta - selection, titles
	ColorSecondary = lipgloss.Color("63")  // Purple - section headers
	ColorAccent    = lipgloss.Color("86")  // Cyan - borders, interactive hints

	ColorSuccess = lipgloss.Color("42")  // Green - IDLE, clean
	ColorWarning = lipgloss.Color("214") // Orange - warnings, non-blocking breaker state
	ColorError   = lipgloss.Color("196") // Red - blocking breaker state, ERROR
	ColorInfo    = lipgloss.Color("69")  // Blue - in-progress (PROCESSING..PUSHING)

	ColorDim    = lipgloss.Color("240") // Gray - inactive, help text
	ColorBright = lipgloss.Color("15")  // White - primary text
	ColorMuted  = lipgloss.Color("243") // Light gray - secondary text
)

var (
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary).Padding(0, 1)

	HeadingStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)

	TextStyle  = lipgloss.NewStyle().Foreground(ColorBright)
	DimStyle   = lipgloss.NewStyle().Foreground(ColorDim)
	MutedStyle = lipgloss.NewStyle().Foreground(ColorMuted)

	ErrorStyle   = lipgloss.NewStyle().Bold(true).Foreground(ColorError)
	WarningStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorWarning)
	SuccessStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorSuccess)
	InfoStyle    = lipgloss.NewStyle().Foreground(ColorInfo)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorAccent).
			Padding(1, 2)

	SelectedRowStyle   = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true).PaddingLeft(1)
	UnselectedRowStyle = lipgloss.NewStyle().Foreground(ColorBright).PaddingLeft(1)

	HelpStyle = lipgloss.NewStyle().Foreground(ColorDim)
)

// statusStyle returns the semantic color for a repository status, given
// as its blocking/warning/active flags, matching the same grouping the
// state machine itself uses (state.Status.IsBlocking, §4.3).
func statusStyle(blocking, active bool, warning bool) lipgloss.Style {
	switch {
	case blocking:
		return ErrorStyle
	case warning:
		return WarningStyle
	case active:
		return InfoStyle
	default:
		return SuccessStyle
	}
}
