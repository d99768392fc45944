package tui

import "github.com/charmbracelet/lipgloss"

// Styles are package-level; lipgloss styles are values and safe to share.
var (
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("183"))

	Subtitle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	ActiveTab = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("183")).
			Underline(true)

	InactiveTab = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	Success = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	Error = lipgloss.NewStyle().
		Foreground(lipgloss.Color("204"))

	Processing = lipgloss.NewStyle().
			Foreground(lipgloss.Color("183"))

	Muted = lipgloss.NewStyle().
		Foreground(lipgloss.Color("245"))

	Banner = lipgloss.NewStyle().
		Foreground(lipgloss.Color("204")).
		Border(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("204")).
		Padding(0, 1)

	Caption = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(0, 1)

	Help = lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	Key = lipgloss.NewStyle().
		Foreground(lipgloss.Color("183")).
		Bold(true)
)
