// ABOUTME: Bubbletea model for the monitor TUI
// ABOUTME: Defines clock display state and key-driven host commands
package ui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Resonate-Protocol/linkclock-go/internal/protocol"
	"github.com/Resonate-Protocol/linkclock-go/internal/sync"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const maxGrid = 32

// Model represents the TUI state
type Model struct {
	// Connection
	connected  bool
	serverName string

	// Sync
	syncOffset  int64
	syncRTT     int64
	syncQuality sync.Quality

	// Clock
	beat         float64
	phase        float64
	step         float64
	steps        int64
	stepsPerBeat float64
	latency      time.Duration

	// Session
	tempo         float64
	quantum       float64
	peers         int
	linkConnected bool

	lastError string

	showDebug bool
	control   *Control

	width  int
	height int
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
	case BeatMsg:
		m.beat = msg.Beat
		m.phase = msg.Phase
		m.latency = msg.Latency
	case StepMsg:
		m.step = msg.Step
		m.steps++
	case SessionMsg:
		m.tempo = msg.Tempo
		m.quantum = msg.Quantum
		m.peers = msg.Peers
		m.linkConnected = msg.Connected
	case ErrorMsg:
		m.lastError = msg.Message
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := m.renderHeader()
	s += m.renderClock()
	s += m.renderSession()

	if m.showDebug {
		s += m.renderDebug()
	}

	s += m.renderHelp()
	return s
}

// renderHeader renders connection and sync status
func (m Model) renderHeader() string {
	connStatus := "Disconnected"
	if m.connected {
		connStatus = fmt.Sprintf("Connected to %s", m.serverName)
	}

	syncIcon := "✗"
	syncText := "Lost"
	switch m.syncQuality {
	case sync.QualityGood:
		syncIcon = "✓"
		syncText = fmt.Sprintf("Synced (offset: %+.1fms, rtt: %.1fms)",
			float64(m.syncOffset)/1000.0, float64(m.syncRTT)/1000.0)
	case sync.QualityDegraded:
		syncIcon = "⚠"
		syncText = "Degraded"
	}

	return fmt.Sprintf(`┌─ Linkclock Monitor ──────────────────────────────────┐
│ Status: %-45s │
│ Sync:   %s %-42s │
├──────────────────────────────────────────────────────┤
`, truncate(connStatus, 45), syncIcon, truncate(syncText, 42))
}

// renderClock renders beat, phase and the step grid
func (m Model) renderClock() string {
	s := fmt.Sprintf("│ Beat:  %-46s │\n", fmt.Sprintf("%.3f", m.beat))
	s += fmt.Sprintf("│ Phase: [%s] %-26s │\n",
		renderBar(m.phase, m.quantum, 16), fmt.Sprintf("%.2f / %.0f", m.phase, m.quantum))
	s += fmt.Sprintf("│ Step:  %s │\n", pad(renderGrid(m.step, m.quantum, m.stepsPerBeat), 46))
	s += fmt.Sprintf("│ Steps: %-46s │\n",
		fmt.Sprintf("%d  (resolution %g/beat)", m.steps, m.stepsPerBeat))
	return s
}

// renderSession renders tempo, quantum and peers
func (m Model) renderSession() string {
	link := "alone"
	if m.linkConnected {
		link = "connected"
	}

	s := "├──────────────────────────────────────────────────────┤\n"
	s += fmt.Sprintf("│ Tempo: %-46s │\n", fmt.Sprintf("%.2f bpm", m.tempo))
	s += fmt.Sprintf("│ Link:  %-46s │\n", fmt.Sprintf("%s, %d peer(s), quantum %.0f", link, m.peers, m.quantum))
	if m.lastError != "" {
		s += fmt.Sprintf("│ Error: %-46s │\n", truncate(m.lastError, 46))
	}
	s += "│                                                      │\n"
	return s
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return `│ +/-:Tempo  [/]:Res  r:Reset  s:State  d:Debug  q:Quit │
└──────────────────────────────────────────────────────┘
`
}

// renderDebug renders debug information
func (m Model) renderDebug() string {
	return fmt.Sprintf(`│ DEBUG:                                               │
│   Clock Offset: %-37s │
│   Event Latency: %-36s │
`, fmt.Sprintf("%+dμs", m.syncOffset), m.latency.String())
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.control.quit()
		return m, tea.Quit
	case "+", "=":
		if m.tempo > 0 {
			m.control.send(protocol.CommandTempo, m.tempo+1)
		}
	case "-", "_":
		if m.tempo > 1 {
			m.control.send(protocol.CommandTempo, m.tempo-1)
		}
	case "]":
		m.stepsPerBeat++
		m.control.send(protocol.CommandResolution, m.stepsPerBeat)
	case "[":
		if m.stepsPerBeat > 1 {
			m.stepsPerBeat--
			m.control.send(protocol.CommandResolution, m.stepsPerBeat)
		}
	case "r":
		m.control.send(protocol.CommandReset)
	case "s":
		m.control.send(protocol.CommandState)
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Connected != nil {
		m.connected = *msg.Connected
	}
	if msg.ServerName != "" {
		m.serverName = msg.ServerName
	}
	if msg.SyncQuality != nil {
		m.syncOffset = msg.SyncOffset
		m.syncRTT = msg.SyncRTT
		m.syncQuality = *msg.SyncQuality
	}
}

// StatusMsg updates connection and sync state
type StatusMsg struct {
	Connected   *bool
	ServerName  string
	SyncOffset  int64
	SyncRTT     int64
	SyncQuality *sync.Quality
}

// BeatMsg carries a clock/beat event
type BeatMsg struct {
	Beat    float64
	Phase   float64
	Latency time.Duration
}

// StepMsg carries a clock/step event
type StepMsg struct {
	Step float64
}

// SessionMsg carries a session/state event
type SessionMsg protocol.SessionState

// ErrorMsg carries a server/error
type ErrorMsg struct {
	Message string
}

// Utility functions
func renderBar(value, max float64, width int) string {
	filled := 0
	if max > 0 {
		filled = int(math.Floor(value / max * float64(width)))
	}
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

var currentCell = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))

// renderGrid draws one cell per step in the quantum, highlighting step
func renderGrid(step, quantum, stepsPerBeat float64) string {
	cells := int(math.Ceil(quantum * stepsPerBeat))
	if cells <= 0 {
		return ""
	}
	if cells > maxGrid {
		cells = maxGrid
	}

	var b strings.Builder
	for i := 0; i < cells; i++ {
		if float64(i) == step {
			b.WriteString(currentCell.Render("■"))
		} else {
			b.WriteString("·")
		}
	}
	return b.String()
}

// pad right-pads s to width visible cells
func pad(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}
