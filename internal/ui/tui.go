// ABOUTME: TUI initialization and control
// ABOUTME: Wraps bubbletea program and the command channel for the monitor
package ui

import (
	"github.com/Resonate-Protocol/linkclock-go/internal/sync"
	tea "github.com/charmbracelet/bubbletea"
)

// CommandMsg is a host command requested from the keyboard
type CommandMsg struct {
	Command string
	Args    []float64
}

// QuitMsg signals the user asked to quit
type QuitMsg struct{}

// Control holds channels from the TUI to the app
type Control struct {
	Commands chan CommandMsg
	Quit     chan QuitMsg
}

// NewControl creates a new control handler
func NewControl() *Control {
	return &Control{
		Commands: make(chan CommandMsg, 10),
		Quit:     make(chan QuitMsg, 1),
	}
}

func (c *Control) send(command string, args ...float64) {
	if c == nil {
		return
	}
	select {
	case c.Commands <- CommandMsg{Command: command, Args: args}:
	default:
	}
}

func (c *Control) quit() {
	if c == nil {
		return
	}
	select {
	case c.Quit <- QuitMsg{}:
	default:
	}
}

// NewModel creates a new TUI model; stepsPerBeat seeds the resolution keys
func NewModel(control *Control, stepsPerBeat float64) Model {
	if stepsPerBeat <= 0 {
		stepsPerBeat = 1
	}
	return Model{
		stepsPerBeat: stepsPerBeat,
		quantum:      4,
		syncQuality:  sync.QualityLost,
		control:      control,
	}
}

// Run creates the TUI program
func Run(control *Control, stepsPerBeat float64) *tea.Program {
	return tea.NewProgram(NewModel(control, stepsPerBeat), tea.WithAltScreen())
}
