package tui

import "github.com/charmbracelet/lipgloss"

var (
	green  = lipgloss.Color("#25d366")
	teal   = lipgloss.Color("#128c7e")
	red    = lipgloss.Color("#ff5f5f")
	yellow = lipgloss.Color("#ffd166")
	muted  = lipgloss.Color("#6c7086")
)

type theme struct {
	header      lipgloss.Style
	statusOK    lipgloss.Style
	statusWait  lipgloss.Style
	statusError lipgloss.Style
	panel       lipgloss.Style
	panelTitle  lipgloss.Style
	sender      lipgloss.Style
	timestamp   lipgloss.Style
	code        lipgloss.Style
	help        lipgloss.Style
}

func newTheme() theme {
	return theme{
		header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#ffffff")).
			Background(teal).
			Padding(0, 1),
		statusOK:    lipgloss.NewStyle().Foreground(green).Bold(true),
		statusWait:  lipgloss.NewStyle().Foreground(yellow).Bold(true),
		statusError: lipgloss.NewStyle().Foreground(red).Bold(true),
		panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(teal).
			Padding(0, 1),
		panelTitle: lipgloss.NewStyle().Foreground(green).Bold(true),
		sender:     lipgloss.NewStyle().Foreground(green).Bold(true),
		timestamp:  lipgloss.NewStyle().Foreground(muted),
		code: lipgloss.NewStyle().
			Bold(true).
			Foreground(yellow).
			Padding(0, 2),
		help: lipgloss.NewStyle().Foreground(muted),
	}
}
