package display

import "github.com/charmbracelet/lipgloss"

// Styles contains all styling for card rendering and the watch UI
type Styles struct {
	// Pane styles
	LogPane    lipgloss.Style
	ActionPane lipgloss.Style
	CardPane   lipgloss.Style

	// Card styles
	Title  lipgloss.Style
	Border lipgloss.Style
	Header lipgloss.Style
	Cell   lipgloss.Style
	Marked lipgloss.Style
	Last   lipgloss.Style
	Free   lipgloss.Style

	// Status styles
	Banner  lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
}

// DefaultStyles returns the standard palette.
func DefaultStyles() *Styles {
	cell := lipgloss.NewStyle().Width(4).Align(lipgloss.Center)

	return &Styles{
		LogPane: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#626262")).
			Padding(0, 1),
		ActionPane: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#04B575")).
			Padding(0, 1),
		CardPane: lipgloss.NewStyle().
			Padding(0, 1),

		Title: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1).
			Bold(true),
		Border: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")),
		Header: cell.
			Foreground(lipgloss.Color("#FFD700")).
			Bold(true),
		Cell: cell.
			Foreground(lipgloss.Color("#FAFAFA")),
		Marked: cell.
			Foreground(lipgloss.Color("#000000")).
			Background(lipgloss.Color("#96CEB4")).
			Bold(true),
		Last: cell.
			Foreground(lipgloss.Color("#000000")).
			Background(lipgloss.Color("#FFEAA7")).
			Bold(true),
		Free: cell.
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true),

		Banner: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#96CEB4")).
			Bold(true),
		Success: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#96CEB4")).
			Bold(true),
		Error: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true),
		Warning: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFEAA7")).
			Bold(true),
		Info: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")),
	}
}
