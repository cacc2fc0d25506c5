package midi

import (
	"sync"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	gomidi "gitlab.com/gomidi/midi/v2"

	"go-annotate/debug"
	"go-annotate/tags"
)

// Command is a transport or annotation action sent from a MIDI controller
type Command int

const (
	CmdNone Command = iota
	CmdPlayPause
	CmdStop
	CmdScrubBack
	CmdScrubForward
	CmdAgree
	CmdDisagree
	CmdNext
	CmdPrev
)

func (c Command) String() string {
	switch c {
	case CmdPlayPause:
		return "play/pause"
	case CmdStop:
		return "stop"
	case CmdScrubBack:
		return "scrub back"
	case CmdScrubForward:
		return "scrub forward"
	case CmdAgree:
		return "agree"
	case CmdDisagree:
		return "disagree"
	case CmdNext:
		return "next"
	case CmdPrev:
		return "prev"
	}
	return "none"
}

// Bindings map note-ons and control changes to commands. A control change
// fires when its value crosses into the upper half.
type Bindings struct {
	Notes map[uint8]Command
	CCs   map[uint8]Command
}

// DefaultBindings puts the commands on the white keys around middle C and
// play/pause on the sustain pedal
var DefaultBindings = Bindings{
	Notes: map[uint8]Command{
		57: CmdScrubBack,    // A3
		59: CmdScrubForward, // B3
		60: CmdPlayPause,    // C4
		62: CmdStop,         // D4
		64: CmdAgree,        // E4
		65: CmdDisagree,     // F4
		67: CmdPrev,         // G4
		69: CmdNext,         // A4
	},
	CCs: map[uint8]Command{
		64: CmdPlayPause,
	},
}

// Remote turns a MIDI input (a keyboard or a foot controller) into
// commands for the annotation UI
type Remote struct {
	port     string
	bindings Bindings
	stop     func()

	commands  chan Command
	mu        sync.Mutex
	ccHigh    map[uint8]bool
	closeOnce sync.Once
}

func newRemote(port string, b Bindings) *Remote {
	return &Remote{
		port:     port,
		bindings: b,
		commands: make(chan Command, 32),
		ccHigh:   make(map[uint8]bool),
	}
}

// NewRemote listens on the named input port
func NewRemote(port string, b Bindings) (*Remote, error) {
	in, err := gomidi.FindInPort(port)
	if err != nil {
		return nil, fault.Wrap(err,
			fmsg.WithDesc("find input "+port, "The MIDI remote is not connected"),
			ftag.With(tags.NotFound))
	}

	r := newRemote(port, b)
	stop, err := gomidi.ListenTo(in, r.handle)
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With("open input "+port), ftag.With(tags.IO))
	}
	r.stop = stop
	debug.Log("midi", "remote listening on %s", port)
	return r, nil
}

func (r *Remote) Port() string { return r.port }

// Commands delivers mapped input. Commands are dropped when nobody reads.
func (r *Remote) Commands() <-chan Command {
	return r.commands
}

func (r *Remote) handle(msg gomidi.Message, timestampms int32) {
	var channel, key, value uint8
	var cmd Command
	switch {
	case msg.GetNoteStart(&channel, &key, &value):
		cmd = r.bindings.Notes[key]
	case msg.GetControlChange(&channel, &key, &value):
		r.mu.Lock()
		high := value >= 64
		rising := high && !r.ccHigh[key]
		r.ccHigh[key] = high
		r.mu.Unlock()
		if rising {
			cmd = r.bindings.CCs[key]
		}
	}
	if cmd == CmdNone {
		return
	}
	select {
	case r.commands <- cmd:
	default:
		debug.Log("midi", "remote dropped %s", cmd)
	}
}

func (r *Remote) Close() error {
	r.closeOnce.Do(func() {
		if r.stop != nil {
			r.stop()
		}
	})
	return nil
}
