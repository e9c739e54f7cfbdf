package ui

import "github.com/charmbracelet/lipgloss"

// ANSI 256 palette.
const (
	ColorAccent = "39"  // cyan-blue
	ColorMuted  = "245" // labels
	ColorFaint  = "238" // borders
	ColorGood   = "42"
	ColorWarn   = "214"
	ColorBad    = "196"
)

// Styles holds TUI styles.
type Styles struct {
	Title   lipgloss.Style
	Active  lipgloss.Style
	Done    lipgloss.Style
	Pending lipgloss.Style
	Label   lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Panel   lipgloss.Style
}

// DefaultStyles returns the colored theme.
func DefaultStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)),
		Active:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)),
		Done:    lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGood)),
		Pending: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorFaint)),
		Label:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorMuted)),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color(ColorWarn)),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color(ColorBad)),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorFaint)).
			Padding(0, 1),
	}
}

// NoColorStyles keeps layout but drops colors.
func NoColorStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		Title:   plain,
		Active:  plain,
		Done:    plain,
		Pending: plain,
		Label:   plain,
		Warning: plain,
		Error:   plain,
		Panel:   lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
	}
}
