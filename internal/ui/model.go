// ABOUTME: Bubbletea model for the node status display
// ABOUTME: Renders link, time sync, and beacon state from status messages
package ui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/finger563/esp-timing-tests/internal/link"
	"github.com/finger563/esp-timing-tests/internal/timesync"
)

// Model represents the TUI state
type Model struct {
	// Identity
	nodeName  string
	bootCount int

	// Link
	linkState link.State
	gateway   string
	address   string

	// Time sync
	syncStatus timesync.Status
	syncOffset time.Duration
	syncDelay  time.Duration

	// Beacon
	dest        string
	sent        int64
	failed      int64
	lastPayload string

	// Debug
	showDebug bool

	// Dimensions
	width  int
	height int
}

// NewModel creates the initial TUI state
func NewModel(nodeName string) Model {
	return Model{nodeName: nodeName}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderBeacon()

	if m.showDebug {
		s += m.renderDebug()
	}

	s += m.renderHelp()

	return s
}

// renderHeader renders link and sync status
func (m Model) renderHeader() string {
	linkText := m.linkState.String()
	if m.linkState == link.Connected {
		linkText = fmt.Sprintf("connected, address %s", m.address)
	}

	syncIcon := "✗"
	syncText := m.syncStatus.String()
	switch m.syncStatus {
	case timesync.Synced:
		syncIcon = "✓"
		syncText = fmt.Sprintf("synced (offset %+.1fms, delay %.1fms)",
			float64(m.syncOffset.Microseconds())/1000.0,
			float64(m.syncDelay.Microseconds())/1000.0)
	case timesync.TimedOut:
		syncIcon = "⚠"
		syncText = "timed out, broadcasting unsynced timestamps"
	}

	return fmt.Sprintf(`┌─ Timing Beacon ──────────────────────────────────────┐
│ Node:   %-45s │
│ Link:   %-45s │
│ Sync:   %s %-42s │
├──────────────────────────────────────────────────────┤
`, fmt.Sprintf("%s (boot #%d)", m.nodeName, m.bootCount), linkText, syncIcon, syncText)
}

// renderBeacon renders broadcast destination and counters
func (m Model) renderBeacon() string {
	s := fmt.Sprintf("│ Beacon: %-45s │\n", m.dest)
	s += fmt.Sprintf("│ Sent: %d  Failed: %d%-31s │\n", m.sent, m.failed, "")
	if m.lastPayload != "" {
		s += fmt.Sprintf("│ Last:   %-45s │\n", truncate(m.lastPayload, 45))
	}
	return s
}

// renderDebug renders debug information
func (m Model) renderDebug() string {
	return fmt.Sprintf(`│ DEBUG:                                               │
│   Gateway: %-41s │
│   Clock offset: %+dμs%-26s │
`, m.gateway, m.syncOffset.Microseconds(), "")
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return `│ d:Debug  q:Quit                                      │
└──────────────────────────────────────────────────────┘
`
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

// applyStatus updates model from a status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.LinkState != nil {
		m.linkState = *msg.LinkState
	}
	if msg.Gateway != "" {
		m.gateway = msg.Gateway
	}
	if msg.Address != "" {
		m.address = msg.Address
	}
	if msg.SyncStatus != nil {
		m.syncStatus = *msg.SyncStatus
		m.syncOffset = msg.SyncOffset
		m.syncDelay = msg.SyncDelay
	}
	if msg.Dest != "" {
		m.dest = msg.Dest
	}
	if msg.Sent != 0 || msg.Failed != 0 {
		m.sent = msg.Sent
		m.failed = msg.Failed
	}
	if msg.LastPayload != "" {
		m.lastPayload = msg.LastPayload
	}
	if msg.BootCount != 0 {
		m.bootCount = msg.BootCount
	}
}

// StatusMsg updates TUI state
type StatusMsg struct {
	LinkState   *link.State
	Gateway     string
	Address     string
	SyncStatus  *timesync.Status
	SyncOffset  time.Duration
	SyncDelay   time.Duration
	Dest        string
	Sent        int64
	Failed      int64
	LastPayload string
	BootCount   int
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}
