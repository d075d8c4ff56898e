package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/moffa90/go-esp32ota/ota"
	"github.com/moffa90/go-esp32ota/protocol"
)

// Sender is the part of *tea.Program a Reporter needs.
type Sender interface {
	Send(msg tea.Msg)
}

// Reporter forwards link and transfer events to a running program.
// It satisfies both link.Observer and ota.Observer.
type Reporter struct {
	to Sender
}

// NewReporter returns a Reporter sending to p.
func NewReporter(p Sender) *Reporter {
	return &Reporter{to: p}
}

func (r *Reporter) OnConnecting() { r.to.Send(ConnectingMsg{}) }
func (r *Reporter) OnConnect(deviceName string) { r.to.Send(ConnectedMsg{Device: deviceName}) }
func (r *Reporter) OnDisconnect() { r.to.Send(DisconnectedMsg{}) }

// OnMessage is a no-op; frames are logged, not displayed.
func (r *Reporter) OnMessage(protocol.Frame) {}

func (r *Reporter) OnUploadProgress(p ota.Progress) { r.to.Send(ProgressMsg(p)) }
func (r *Reporter) OnUploadFinished() { r.to.Send(InstallingMsg{}) }
func (r *Reporter) OnResult(text string) { r.to.Send(ResultMsg{Text: text}) }

// Done ends the program with the upload's outcome.
func (r *Reporter) Done(err error) {
	r.to.Send(DoneMsg{Err: err})
}

// RunUpload runs p until a DoneMsg arrives or the user quits, and returns
// the final model.
func RunUpload(p *tea.Program) (UploadModel, error) {
	final, err := p.Run()
	if err != nil {
		return UploadModel{}, err
	}
	m, _ := final.(UploadModel)
	return m, nil
}
