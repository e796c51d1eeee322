package main

import "github.com/charmbracelet/lipgloss"

// Centralized style definitions for the TUI.
var (
	// Pane frames.
	paneStyle        = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8"))
	paneFocusedStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("6"))
	paneTitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))

	// Service list styles.
	serviceStyle = lipgloss.NewStyle()

	// Tree row styles.
	pathStyle     = lipgloss.NewStyle().Bold(true)
	ifaceStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("5")) // magenta
	groupStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8")) // gray
	methodStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6")) // cyan
	propertyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // green
	signalStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // yellow
	cursorStyle   = lipgloss.NewStyle().Reverse(true)

	// Fetch state styles.
	fetchingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	erroredStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // red

	// Call form styles.
	formTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	formLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	formErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	formValueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	popupStyle     = lipgloss.NewStyle().Border(lipgloss.ThickBorder()).BorderForeground(lipgloss.Color("6")).Padding(0, 1)

	// Activity log styles.
	logOkStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	logErrStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	logInfoStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	// General utility styles.
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)
