package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/Southclaws/fault/fmsg"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"go-annotate/config"
	"go-annotate/debug"
	"go-annotate/midi"
	"go-annotate/sequencer"
	"go-annotate/store"
	"go-annotate/theme"
	"go-annotate/widgets"
)

const (
	scrubStep  = 5.0
	volumeStep = 5
)

// Volume is the part of the audio sink the UI adjusts
type Volume interface {
	SetVolume(gain float64)
}

// Deps are the collaborators the model drives
type Deps struct {
	Manager   *sequencer.Manager
	Store     store.Store
	Library   *midi.Library
	Theme     *theme.Theme
	Config    *config.Config
	DeviceMgr *midi.DeviceManager // optional
	Remote    *midi.Remote        // optional

	// Volume is optional. VolumeGain maps the volume percent to sink gain.
	Volume     Volume
	VolumeGain func(percent int) float64
}

type statusKind int

const (
	statusInfo statusKind = iota
	statusSuccess
	statusError
)

// layoutBounds holds cached layout info for mouse hit testing
type layoutBounds struct {
	rollTop    int
	rollHeight int
	barTop     int
	barLeft    int
	barWidth   int
}

type Model struct {
	deps   Deps
	sync   syncTarget
	roll   *widgets.PianoRoll
	bounds *layoutBounds

	records     []store.Record
	index       int
	unannotated int
	loading     string

	playback SyncMsg
	speed    float64
	volume   int

	status     string
	statusKind statusKind
	statusSeq  int

	gotoInput textinput.Model
	gotoMode  bool

	width, height int
	quitting      bool
}

func NewModel(deps Deps) Model {
	if deps.VolumeGain == nil {
		deps.VolumeGain = func(p int) float64 { return float64(p) / 100 }
	}
	if deps.Config == nil {
		deps.Config = config.DefaultConfig()
	}

	in := textinput.New()
	in.Placeholder = "file id"
	in.Prompt = "go to: "
	in.CharLimit = 256

	m := Model{
		deps:      deps,
		sync:      newSyncTarget(),
		roll:      widgets.NewPianoRoll(),
		bounds:    &layoutBounds{},
		index:     -1,
		speed:     deps.Config.UI.Speed,
		volume:    deps.Config.Audio.Volume,
		gotoInput: in,
	}
	deps.Manager.SetSyncTarget(m.sync)
	if err := deps.Manager.SetSpeed(m.speed); err != nil {
		m.speed = 1
	}
	if deps.Volume != nil {
		deps.Volume.SetVolume(deps.VolumeGain(m.volume))
	}
	return m
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		loadRecords(m.deps.Store),
		listenForSync(m.sync),
		listenForPlayback(m.deps.Manager),
	}
	if m.deps.DeviceMgr != nil {
		cmds = append(cmds, listenForDevices(m.deps.DeviceMgr))
	}
	if m.deps.Remote != nil {
		cmds = append(cmds, listenForRemote(m.deps.Remote))
	}
	return tea.Batch(cmds...)
}

func (m Model) current() *store.Record {
	if m.index < 0 || m.index >= len(m.records) {
		return nil
	}
	return &m.records[m.index]
}

func (m Model) currentID() string {
	if r := m.current(); r != nil {
		return r.FileID
	}
	return ""
}

// setStatus shows a message that clears itself after statusTTL
func (m *Model) setStatus(kind statusKind, format string, args ...any) tea.Cmd {
	m.status = fmt.Sprintf(format, args...)
	m.statusKind = kind
	m.statusSeq++
	seq := m.statusSeq
	return tea.Tick(statusTTL, func(time.Time) tea.Msg { return clearStatusMsg{seq: seq} })
}

func (m *Model) setError(prefix string, err error) tea.Cmd {
	issue := fmsg.GetIssue(err)
	if issue == "" {
		issue = err.Error()
	}
	debug.Log("ui", "%s: %v", prefix, err)
	return m.setStatus(statusError, "%s: %s", prefix, issue)
}

// selectIndex makes record i current and starts loading it
func (m *Model) selectIndex(i int) tea.Cmd {
	if i < 0 || i >= len(m.records) {
		return nil
	}
	m.index = i
	rec := m.records[i]
	m.loading = rec.FileID
	m.deps.Manager.Load(nil)
	m.roll.SetPiece(nil, nil)
	m.deps.Config.UI.LastFile = rec.FileID
	return loadFile(m.deps.Library, rec.FileID)
}

func (m *Model) selectID(fileID string) tea.Cmd {
	if i := store.Index(m.records, fileID); i >= 0 {
		return m.selectIndex(i)
	}
	for i, r := range m.records {
		if strings.HasPrefix(r.FileID, fileID) {
			return m.selectIndex(i)
		}
	}
	return m.setStatus(statusError, "No file matching %q", fileID)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.roll.Width = max(msg.Width-m.roll.KeyWidth-1, 8)
		m.roll.Rows = max(msg.Height-chromeHeight, 4)
		m.gotoInput.Width = max(msg.Width-10, 10)
		return m, nil

	case tea.KeyMsg:
		if m.gotoMode {
			return m.updateGoto(msg)
		}
		return m.handleKey(msg.String())

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case SyncMsg:
		m.playback = msg
		if msg.Playing {
			m.roll.Follow(msg.Position)
		}
		return m, listenForSync(m.sync)

	case PlaybackMsg:
		var cmd tea.Cmd
		switch msg.Kind {
		case sequencer.EventFinished:
			cmd = m.setStatus(statusInfo, "Finished")
		case sequencer.EventError:
			cmd = m.setError("Playback", msg.Err)
		}
		return m, tea.Batch(cmd, listenForPlayback(m.deps.Manager))

	case DeviceEventMsg:
		// the device manager shut down
		if msg.Port == "" {
			return m, nil
		}
		var cmd tea.Cmd
		switch msg.Type {
		case midi.DeviceConnected:
			cmd = m.setStatus(statusInfo, "MIDI output connected: %s", msg.Port)
		case midi.DeviceDisconnected:
			cmd = m.setStatus(statusError, "MIDI output disconnected: %s", msg.Port)
		}
		return m, tea.Batch(cmd, listenForDevices(m.deps.DeviceMgr))

	case RemoteMsg:
		next, cmd := m.handleKey(remoteKeys[midi.Command(msg)])
		return next, tea.Batch(cmd, listenForRemote(m.deps.Remote))

	case recordsMsg:
		if msg.err != nil {
			return m, m.setError("Load files", msg.err)
		}
		m.records = msg.records
		m.unannotated = store.CountUnannotated(m.records)
		if len(m.records) == 0 {
			return m, m.setStatus(statusError, "No files in the worklist")
		}
		start := max(store.Index(m.records, m.deps.Config.UI.LastFile), 0)
		return m, m.selectIndex(start)

	case loadedMsg:
		if msg.fileID != m.loading {
			return m, nil
		}
		m.loading = ""
		if msg.piece == nil {
			return m, m.setError("Load "+msg.fileID, msg.err)
		}
		rec := m.current()
		stamps := store.ParseTimestamps(rec.StyleChangeTimestamps)
		m.deps.Manager.Load(msg.piece)
		m.roll.SetPiece(msg.piece, store.Sections(stamps, msg.piece.TotalDuration))
		if msg.piece.Placeholder {
			return m, m.setError("Showing sample notes", msg.err)
		}
		debug.Log("ui", "loaded %s: %d notes, %.1fs", msg.fileID, msg.piece.NoteCount(), msg.piece.TotalDuration)
		return m, nil

	case savedMsg:
		if msg.err != nil {
			return m, m.setError("Save annotation", msg.err)
		}
		if i := store.Index(m.records, msg.fileID); i >= 0 {
			agree := msg.agree
			m.records[i].HumanAgree = &agree
		}
		m.unannotated = store.CountUnannotated(m.records)
		verdict := "Disagree"
		if msg.agree {
			verdict = "Agree"
		}
		return m, tea.Batch(
			m.setStatus(statusSuccess, "Annotation saved: %s", verdict),
			countUnannotated(m.deps.Store),
			advanceAfter(advanceDelay, msg.fileID),
		)

	case countMsg:
		if msg.err == nil {
			m.unannotated = msg.n
		}
		return m, nil

	case advanceMsg:
		// the reviewer already moved on
		if m.currentID() != msg.from {
			return m, nil
		}
		return m, nextUnannotated(m.deps.Store, msg.from)

	case nextMsg:
		if msg.err != nil {
			return m, m.setError("Next file", msg.err)
		}
		if msg.record == nil {
			return m, m.setStatus(statusSuccess, "All files have been annotated!")
		}
		return m, m.selectID(msg.record.FileID)

	case clearStatusMsg:
		if msg.seq == m.statusSeq {
			m.status = ""
		}
		return m, nil
	}

	return m, nil
}

// remoteKeys maps controller commands onto the keyboard bindings
var remoteKeys = map[midi.Command]string{
	midi.CmdPlayPause:    " ",
	midi.CmdStop:         "s",
	midi.CmdScrubBack:    "left",
	midi.CmdScrubForward: "right",
	midi.CmdAgree:        "a",
	midi.CmdDisagree:     "d",
	midi.CmdNext:         "j",
	midi.CmdPrev:         "k",
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	mgr := m.deps.Manager

	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		mgr.Stop()
		m.deps.Config.UI.Speed = m.speed
		m.deps.Config.Audio.Volume = m.volume
		if err := m.deps.Config.Save(); err != nil {
			debug.Log("ui", "save config: %v", err)
		}
		return m, tea.Quit

	case " ":
		if mgr.Snapshot().Playing {
			mgr.Pause()
			return m, nil
		}
		if err := mgr.Resume(); err != nil {
			return m, m.setError("Play", err)
		}

	case "p":
		if err := mgr.Play(); err != nil {
			return m, m.setError("Play", err)
		}

	case "s":
		mgr.Stop()
		m.roll.Follow(0)

	case "left", "h":
		mgr.ScrubBy(-scrubStep)
		m.roll.Follow(mgr.Snapshot().Position)

	case "right", "l":
		mgr.ScrubBy(scrubStep)
		m.roll.Follow(mgr.Snapshot().Position)

	case "[", "]":
		dir := 1
		if key == "[" {
			dir = -1
		}
		speed := sequencer.NextSpeed(m.speed, dir)
		if err := mgr.SetSpeed(speed); err != nil {
			return m, m.setError("Speed", err)
		}
		m.speed = speed
		return m, m.setStatus(statusInfo, "Speed %.2gx", speed)

	case "+", "=", "-", "_":
		step := volumeStep
		if key == "-" || key == "_" {
			step = -volumeStep
		}
		m.volume = min(max(m.volume+step, 0), 100)
		if m.deps.Volume != nil {
			m.deps.Volume.SetVolume(m.deps.VolumeGain(m.volume))
		}
		return m, m.setStatus(statusInfo, "Volume %d%% (10x boost)", m.volume)

	case "a", "d":
		rec := m.current()
		if rec == nil {
			return m, nil
		}
		m.status = "Saving..."
		m.statusKind = statusInfo
		return m, saveAnnotation(m.deps.Store, rec.FileID, key == "a")

	case "n":
		return m, nextUnannotated(m.deps.Store, m.currentID())

	case "j", "down":
		return m, m.selectIndex(m.index + 1)

	case "k", "up":
		return m, m.selectIndex(m.index - 1)

	case "/":
		m.gotoMode = true
		m.gotoInput.SetValue("")
		return m, m.gotoInput.Focus()
	}

	return m, nil
}

func (m Model) updateGoto(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.gotoMode = false
		m.gotoInput.Blur()
		return m, nil
	case tea.KeyEnter:
		m.gotoMode = false
		m.gotoInput.Blur()
		id := strings.TrimSpace(m.gotoInput.Value())
		if id == "" {
			return m, nil
		}
		return m, m.selectID(id)
	}
	var cmd tea.Cmd
	m.gotoInput, cmd = m.gotoInput.Update(msg)
	return m, cmd
}

func (m Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if msg.Action != tea.MouseActionPress || msg.Button != tea.MouseButtonLeft {
		return m, nil
	}
	b := m.bounds
	switch {
	case msg.Y == b.barTop && msg.X >= b.barLeft && msg.X < b.barLeft+b.barWidth:
		total := m.deps.Manager.Snapshot().TotalDuration
		m.deps.Manager.Scrub(widgets.ProgressTime(msg.X-b.barLeft, b.barWidth, total))
	case msg.Y >= b.rollTop && msg.Y < b.rollTop+b.rollHeight:
		if t, ok := m.roll.TimeAt(msg.X); ok {
			m.deps.Manager.Scrub(t)
		}
	}
	return m, nil
}
