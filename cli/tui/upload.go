package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/moffa90/go-esp32ota/ota"
)

// Phase is the coarse state shown in the status line.
type Phase int

const (
	PhaseConnecting Phase = iota
	PhaseUploading
	PhaseReconnecting
	PhaseInstalling
	PhaseDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "Connecting"
	case PhaseUploading:
		return "Uploading"
	case PhaseReconnecting:
		return "Reconnecting"
	case PhaseInstalling:
		return "Installing"
	case PhaseDone:
		return "Done"
	case PhaseFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Messages understood by UploadModel.
type (
	// ConnectingMsg is sent at the start of every connect attempt.
	ConnectingMsg struct{}

	// ConnectedMsg is sent once the device is connected and subscribed.
	ConnectedMsg struct{ Device string }

	// DisconnectedMsg is sent when the link session ends.
	DisconnectedMsg struct{}

	// ProgressMsg is sent before each part is sent.
	ProgressMsg ota.Progress

	// InstallingMsg is sent when the device reports it is installing.
	InstallingMsg struct{}

	// ResultMsg carries the device's result text.
	ResultMsg struct{ Text string }

	// DoneMsg ends the program. Err is nil on success.
	DoneMsg struct{ Err error }
)

// UploadModel is a Bubble Tea model showing one upload.
type UploadModel struct {
	image    string
	size     int
	device   string
	phase    Phase
	prog     ota.Progress
	result   string
	err      error
	connects int

	bar      progress.Model
	spinner  spinner.Model
	onQuit   func()
	quitting bool
}

// NewUploadModel creates the model for an image of size bytes.
// onQuit, if not nil, is called when the user quits before the upload ends.
func NewUploadModel(image string, size int, onQuit func()) UploadModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(primaryColor)

	return UploadModel{
		image:   image,
		size:    size,
		phase:   PhaseConnecting,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spinner: s,
		onQuit:  onQuit,
	}
}

// Phase returns the current phase.
func (m UploadModel) Phase() Phase {
	return m.phase
}

// Err returns the error the upload ended with.
func (m UploadModel) Err() error {
	return m.err
}

// Init implements tea.Model.
func (m UploadModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m UploadModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			if m.onQuit != nil && m.phase != PhaseDone && m.phase != PhaseFailed {
				m.onQuit()
			}
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-20, 10), 60)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case ConnectingMsg:
		if m.connects > 0 {
			m.phase = PhaseReconnecting
		} else {
			m.phase = PhaseConnecting
		}

	case ConnectedMsg:
		m.device = msg.Device
		m.connects++
		m.phase = PhaseUploading

	case DisconnectedMsg:
		if m.phase != PhaseDone {
			m.phase = PhaseFailed
		}

	case ProgressMsg:
		m.prog = ota.Progress(msg)
		m.phase = PhaseUploading

	case InstallingMsg:
		m.phase = PhaseInstalling
		m.prog.Percentage = 100

	case ResultMsg:
		m.result = msg.Text

	case DoneMsg:
		m.err = msg.Err
		if msg.Err != nil {
			m.phase = PhaseFailed
		} else {
			m.phase = PhaseDone
			m.prog.Percentage = 100
		}
		return m, tea.Quit
	}

	return m, nil
}

// View implements tea.Model.
func (m UploadModel) View() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("ESP32 OTA Upload"))
	b.WriteString("\n")

	b.WriteString(m.field("Image", fmt.Sprintf("%s (%s)", m.image, FormatBytes(m.size))))
	device := m.device
	if device == "" {
		device = "-"
	}
	b.WriteString(m.field("Device", device))
	b.WriteString(m.field("Status", m.status()))
	if m.prog.TotalParts > 0 {
		b.WriteString(m.field("Part", fmt.Sprintf("%d / %d", m.prog.Part+1, m.prog.TotalParts)))
		b.WriteString(m.field("Elapsed", m.prog.Elapsed.Truncate(100*time.Millisecond).String()))
	}
	b.WriteString("\n")
	b.WriteString(m.bar.ViewAs(float64(m.prog.Percentage) / 100))

	content := BoxStyle.Render(b.String())
	if m.quitting || m.phase == PhaseDone || m.phase == PhaseFailed {
		return content + "\n"
	}
	return content + "\n" + HelpStyle.Render("Press q or Ctrl+C to abort") + "\n"
}

func (m UploadModel) field(label, value string) string {
	return LabelStyle.Render(label) + ValueStyle.Render(value) + "\n"
}

func (m UploadModel) status() string {
	switch m.phase {
	case PhaseDone:
		text := "Done"
		if m.result != "" {
			text += ": " + m.result
		}
		return SuccessStyle.Render(text)
	case PhaseFailed:
		text := "Failed"
		if m.err != nil {
			text += ": " + m.err.Error()
		}
		return ErrorStyle.Render(text)
	case PhaseReconnecting:
		return m.spinner.View() + " " + WarningStyle.Render("Reconnecting")
	default:
		return m.spinner.View() + " " + m.phase.String()
	}
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "abort"),
	),
}

// FormatBytes renders a byte count with a binary unit.
func FormatBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
