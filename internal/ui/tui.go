// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program for the status display
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Run starts the TUI
func Run(nodeName string) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(nodeName), tea.WithAltScreen())
	return p, nil
}
