package tui

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-esp32ota/link"
	"github.com/moffa90/go-esp32ota/ota"
)

var (
	_ link.Observer = (*Reporter)(nil)
	_ ota.Observer  = (*Reporter)(nil)
)

func update(t *testing.T, m UploadModel, msgs ...tea.Msg) UploadModel {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		var ok bool
		m, ok = next.(UploadModel)
		require.True(t, ok)
	}
	return m
}

func TestUploadModelPhases(t *testing.T) {
	m := NewUploadModel("app.bin", 48000, nil)
	assert.Equal(t, PhaseConnecting, m.Phase())

	m = update(t, m, ConnectedMsg{Device: "ESP32 OTA"})
	assert.Equal(t, PhaseUploading, m.Phase())
	assert.Contains(t, m.View(), "ESP32 OTA")

	m = update(t, m, ProgressMsg{Part: 1, TotalParts: 3, Percentage: 33, Elapsed: time.Second})
	assert.Contains(t, m.View(), "2 / 3")

	m = update(t, m, ConnectingMsg{})
	assert.Equal(t, PhaseReconnecting, m.Phase())

	m = update(t, m, ConnectedMsg{Device: "ESP32 OTA"}, InstallingMsg{})
	assert.Equal(t, PhaseInstalling, m.Phase())

	m = update(t, m, ResultMsg{Text: "OTA Success"})
	next, cmd := m.Update(DoneMsg{})
	m = next.(UploadModel)
	assert.Equal(t, PhaseDone, m.Phase())
	assert.NotNil(t, cmd)
	assert.Contains(t, m.View(), "OTA Success")
}

func TestUploadModelFailure(t *testing.T) {
	m := NewUploadModel("app.bin", 100, nil)
	m = update(t, m, DoneMsg{Err: errors.New("link lost")})

	assert.Equal(t, PhaseFailed, m.Phase())
	assert.EqualError(t, m.Err(), "link lost")
	assert.Contains(t, m.View(), "link lost")
}

func TestUploadModelQuitCallsOnQuit(t *testing.T) {
	quits := 0
	m := NewUploadModel("app.bin", 100, func() { quits++ })

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	assert.Equal(t, 1, quits)

	m = NewUploadModel("app.bin", 100, func() { quits++ })
	m = update(t, m, DoneMsg{}, tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.Equal(t, 1, quits, "quitting after completion must not abort")
}

type recordingProgram struct {
	msgs []tea.Msg
}

func (p *recordingProgram) Send(msg tea.Msg) {
	p.msgs = append(p.msgs, msg)
}

func TestReporterForwards(t *testing.T) {
	p := &recordingProgram{}
	r := NewReporter(p)

	r.OnConnecting()
	r.OnConnect("dev")
	r.OnUploadProgress(ota.Progress{Part: 2, TotalParts: 4, Percentage: 50})
	r.OnUploadFinished()
	r.OnResult("OK")
	r.OnDisconnect()
	r.Done(nil)

	assert.Equal(t, []tea.Msg{
		ConnectingMsg{},
		ConnectedMsg{Device: "dev"},
		ProgressMsg{Part: 2, TotalParts: 4, Percentage: 50},
		InstallingMsg{},
		ResultMsg{Text: "OK"},
		DisconnectedMsg{},
		DoneMsg{},
	}, p.msgs)
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{3 << 20, "3.0 MiB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatBytes(tt.n))
		})
	}
}
