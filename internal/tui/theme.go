package tui

import "github.com/charmbracelet/lipgloss"

// Theme holds the dashboard's lipgloss styles, mirroring the density of
// the teacher lineage's internal/ui.Theme.
type Theme struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Good     lipgloss.Style
	Bad      lipgloss.Style
	Error    lipgloss.Style
	Help     lipgloss.Style
	Box      lipgloss.Style
}

// DefaultTheme returns the dashboard's default styling.
func DefaultTheme() Theme {
	return Theme{
		Title: lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true),

		Subtitle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Bold(true),

		Good: lipgloss.NewStyle().Foreground(lipgloss.Color("76")),
		Bad:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),

		Error: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),

		Help: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true),

		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2),
	}
}
