// ABOUTME: Bubbletea model for the player TUI
// ABOUTME: Shows transport, loop, per-track meters and scheduler stats; maps keys to commands
package ui

import (
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Sendspin/multitrack-go/pkg/audio"
	"github.com/Sendspin/multitrack-go/pkg/engine"
)

const (
	seekStep   = 5.0 // seconds
	volumeStep = 5
	meterWidth = 24
	meterFloor = -60.0 // dB shown as empty
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	loopStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	hotStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle   = lipgloss.NewStyle().Faint(true)
)

// TrackStatus is one track's row in the mixer view
type TrackStatus struct {
	ID   string
	Name string
	Gain float64 // linear
	Peak float64
	RMS  float64
}

// Model represents the TUI state
type Model struct {
	// Connection
	connected  bool
	serverName string
	project    string

	// Transport
	state    engine.State
	duration float64 // song seconds
	bpm      float64

	// Mixer
	tracks []TrackStatus
	volume int
	muted  bool

	// Stats
	stats engine.Stats

	// Debug
	showDebug bool

	// Dimensions
	width  int
	height int

	controls *Controls
}

// StatusMsg updates TUI state. Zero and nil fields are left unchanged.
type StatusMsg struct {
	Connected  *bool
	ServerName string
	Project    string
	BPM        float64
	Duration   float64
	State      *engine.State
	Tracks     []TrackStatus
	Stats      *engine.Stats
	Volume     *int
	Muted      *bool
}

// NewModel creates a TUI model; controls may be nil
func NewModel(controls *Controls) Model {
	return Model{
		volume:   100,
		bpm:      120,
		controls: controls,
	}
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

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString(m.renderTransport())
	b.WriteString(m.renderTracks())
	if m.showDebug {
		b.WriteString(m.renderDebug())
	}
	b.WriteString(m.renderHelp())
	return b.String()
}

func (m Model) renderHeader() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Multitrack Player"))
	b.WriteString("\n\n")

	status := "Local project"
	if m.serverName != "" {
		status = "Disconnected"
		if m.connected {
			status = "Connected to " + m.serverName
		}
	}
	b.WriteString(headerStyle.Render("Status:  "))
	b.WriteString(valueStyle.Render(status))
	b.WriteString("\n")

	if m.project != "" {
		b.WriteString(headerStyle.Render("Project: "))
		b.WriteString(valueStyle.Render(fmt.Sprintf("%s (%.0f BPM)", m.project, m.bpm)))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderTransport() string {
	var b strings.Builder

	icon := "■ Stopped"
	if m.state.Playing {
		icon = "▶ Playing"
	}
	b.WriteString(headerStyle.Render(icon))
	b.WriteString(valueStyle.Render(fmt.Sprintf("  %s / %s  beat %.2f",
		formatTime(m.state.Position), formatTime(m.duration), m.state.Position*m.bpm/60)))
	b.WriteString("\n")
	b.WriteString(renderBar(m.state.Position, m.duration, 50))
	b.WriteString("\n")

	loop := m.state.Loop
	switch {
	case loop.Active():
		b.WriteString(loopStyle.Render(fmt.Sprintf("Loop: beats %.0f-%.0f (pass %d)", loop.StartBeat, loop.EndBeat, m.state.Iteration+1)))
	case loop.Set:
		b.WriteString(helpStyle.Render(fmt.Sprintf("Loop: beats %.0f-%.0f (off)", loop.StartBeat, loop.EndBeat)))
	default:
		b.WriteString(helpStyle.Render("Loop: none"))
	}
	b.WriteString("\n")

	muteIcon := ""
	if m.muted {
		muteIcon = " (muted)"
	}
	b.WriteString(fmt.Sprintf("Volume: [%s] %d%%%s\n\n", renderBar(float64(m.volume), 100, 10), m.volume, muteIcon))
	return b.String()
}

func (m Model) renderTracks() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("Tracks (%d)", len(m.tracks))))
	b.WriteString("\n")

	if len(m.tracks) == 0 {
		b.WriteString(valueStyle.Render("  No tracks"))
		b.WriteString("\n")
	}
	for _, t := range m.tracks {
		name := t.Name
		if name == "" {
			name = t.ID
		}
		meter := renderMeter(t.Peak)
		if t.Peak >= 1 {
			meter = hotStyle.Render(meter)
		}
		b.WriteString(fmt.Sprintf("  %-14s %s %s\n",
			truncate(name, 14), meter, valueStyle.Render(formatDB(t.Gain))))
	}
	b.WriteString("\n")
	return b.String()
}

func (m Model) renderDebug() string {
	s := m.stats
	return helpStyle.Render(fmt.Sprintf(
		"voices %d  scheduled %d  stopped %d  late %d  elapsed %d  missing %d  stale %d  wraps %d  reconciles %d",
		m.state.Voices, s.Scheduled, s.Stopped, s.Late, s.Elapsed, s.Missing, s.Stale, s.Wraps, s.Reconciles)) + "\n\n"
}

func (m Model) renderHelp() string {
	return helpStyle.Render("space:Play/Pause  ←/→:Seek  home:Rewind  l:Loop  ↑/↓:Volume  m:Mute  d:Debug  q:Quit") + "\n"
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.controls != nil {
			m.controls.quit()
		}
		return m, tea.Quit
	case " ":
		if m.state.Playing {
			m.send(Command{Kind: CmdPause})
		} else {
			m.send(Command{Kind: CmdPlay})
		}
	case "left":
		m.send(Command{Kind: CmdSeek, Value: math.Max(0, m.state.Position-seekStep)})
	case "right":
		m.send(Command{Kind: CmdSeek, Value: m.state.Position + seekStep})
	case "home", "0":
		m.send(Command{Kind: CmdRewind})
	case "l":
		m.send(Command{Kind: CmdToggleLoop})
	case "up":
		m.volume = min(m.volume+volumeStep, 100)
		m.send(Command{Kind: CmdVolume, Value: float64(m.volume)})
	case "down":
		m.volume = max(m.volume-volumeStep, 0)
		m.send(Command{Kind: CmdVolume, Value: float64(m.volume)})
	case "m":
		m.muted = !m.muted
		m.send(Command{Kind: CmdMute, Value: boolValue(m.muted)})
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

func (m Model) send(cmd Command) {
	if m.controls != nil {
		m.controls.send(cmd)
	}
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Connected != nil {
		m.connected = *msg.Connected
	}
	if msg.ServerName != "" {
		m.serverName = msg.ServerName
	}
	if msg.Project != "" {
		m.project = msg.Project
	}
	if msg.BPM > 0 {
		m.bpm = msg.BPM
	}
	if msg.Duration > 0 {
		m.duration = msg.Duration
	}
	if msg.State != nil {
		m.state = *msg.State
	}
	if msg.Tracks != nil {
		m.tracks = msg.Tracks
	}
	if msg.Stats != nil {
		m.stats = *msg.Stats
	}
	if msg.Volume != nil {
		m.volume = *msg.Volume
	}
	if msg.Muted != nil {
		m.muted = *msg.Muted
	}
}

// Utility functions
func renderBar(value, total float64, width int) string {
	filled := 0
	if total > 0 {
		filled = int(math.Round(value / total * float64(width)))
	}
	filled = min(max(filled, 0), width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// renderMeter draws a peak level on a dB scale
func renderMeter(peak float64) string {
	db := audio.LinearToDB(peak)
	if math.IsInf(db, -1) || db < meterFloor {
		db = meterFloor
	}
	return renderBar(db-meterFloor, -meterFloor, meterWidth)
}

func formatDB(gain float64) string {
	db := audio.LinearToDB(gain)
	if math.IsInf(db, -1) {
		return "-inf dB"
	}
	return fmt.Sprintf("%+.1f dB", db)
}

func formatTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds * 10)
	return fmt.Sprintf("%d:%02d.%d", total/600, (total/10)%60, total%10)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
