package tui

import "github.com/charmbracelet/lipgloss"

var (
	// TitleStyle styles the heading above the progress bar.
	TitleStyle = lipgloss.NewStyle().Bold(true)

	// PhaseStyle styles the current phase message.
	PhaseStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))

	// SuccessStyle styles terminal success output.
	SuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))

	// ErrorStyle styles terminal failure output.
	ErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))

	// FaintStyle styles secondary detail such as paths.
	FaintStyle = lipgloss.NewStyle().Faint(true)
)
