// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and carries key commands back to the player
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// CommandKind identifies a player command
type CommandKind int

const (
	CmdPlay CommandKind = iota
	CmdPause
	CmdSeek // Value: song seconds
	CmdRewind
	CmdToggleLoop
	CmdVolume // Value: 0-100
	CmdMute   // Value: 1 muted, 0 unmuted
)

// Command is a request from the TUI to the player
type Command struct {
	Kind  CommandKind
	Value float64
}

// Controls holds channels from the TUI to the player
type Controls struct {
	Commands chan Command
	Quit     chan struct{}
}

// NewControls creates a new control handler
func NewControls() *Controls {
	return &Controls{
		Commands: make(chan Command, 10),
		Quit:     make(chan struct{}, 1),
	}
}

// send drops the command if the player is not keeping up
func (c *Controls) send(cmd Command) {
	select {
	case c.Commands <- cmd:
	default:
	}
}

func (c *Controls) quit() {
	select {
	case c.Quit <- struct{}{}:
	default:
	}
}

// Run creates the TUI program; the caller runs it
func Run(controls *Controls) *tea.Program {
	return tea.NewProgram(NewModel(controls), tea.WithAltScreen())
}
