package tui

import "github.com/charmbracelet/lipgloss"

// Color palette (256-color).
var (
	clrBrand  = lipgloss.Color("214") // orange
	clrMuted  = lipgloss.Color("245") // gray
	clrSubtle = lipgloss.Color("242")
	clrGreen  = lipgloss.Color("114")
	clrRed    = lipgloss.Color("203")
	clrYellow = lipgloss.Color("220") // scores
)

var (
	brand  = lipgloss.NewStyle().Foreground(clrBrand).Bold(true)
	muted  = lipgloss.NewStyle().Foreground(clrMuted)
	subtle = lipgloss.NewStyle().Foreground(clrSubtle)
	green  = lipgloss.NewStyle().Foreground(clrGreen)
	red    = lipgloss.NewStyle().Foreground(clrRed)
	yellow = lipgloss.NewStyle().Foreground(clrYellow)
	frame  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(clrSubtle).Padding(0, 1)
)
