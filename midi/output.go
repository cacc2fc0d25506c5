package midi

import (
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	gomidi "gitlab.com/gomidi/midi/v2"

	"go-annotate/tags"
)

// OutputSink plays notes on an external MIDI port. Each trigger sends a
// note-on immediately and a note-off after the note's duration.
type OutputSink struct {
	dm      *DeviceManager
	port    string
	channel uint8

	mu     sync.Mutex
	gain   float64
	offs   map[*time.Timer]func()
	closed bool
}

// NewOutputSink opens port and creates a sink on it for channel (0-15).
// Triggers only use the open port, so they never wait on the driver.
func NewOutputSink(dm *DeviceManager, port string, channel uint8) (*OutputSink, error) {
	if _, err := dm.Sender(port); err != nil {
		return nil, err
	}
	return &OutputSink{
		dm:      dm,
		port:    port,
		channel: channel & 0x0F,
		gain:    1,
		offs:    make(map[*time.Timer]func()),
	}, nil
}

// SetVolume scales outgoing velocities. 1 is unity.
func (o *OutputSink) SetVolume(gain float64) {
	o.mu.Lock()
	o.gain = max(gain, 0)
	o.mu.Unlock()
}

// TriggerNote sends the note using the normalized velocity
func (o *OutputSink) TriggerNote(pitch uint8, dur time.Duration, velocity, boosted float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return fault.New("output closed", ftag.With(tags.Precondition))
	}

	send, ok := o.dm.openSender(o.port)
	if !ok {
		return fault.New("port not open",
			fmsg.WithDesc("port not open: "+o.port, "MIDI output "+o.port+" is not connected"),
			ftag.With(tags.NotFound))
	}

	vel := uint8(min(max(velocity*o.gain, 0), 1) * 127)
	if vel == 0 {
		return nil
	}
	if err := send(gomidi.NoteOn(o.channel, pitch, vel)); err != nil {
		return fault.Wrap(err, fmsg.With("send note on"), ftag.With(tags.Trigger))
	}

	var t *time.Timer
	off := func() { send(gomidi.NoteOff(o.channel, pitch)) }
	t = time.AfterFunc(dur, func() {
		o.mu.Lock()
		_, pending := o.offs[t]
		delete(o.offs, t)
		o.mu.Unlock()
		if pending {
			off()
		}
	})
	o.offs[t] = off
	return nil
}

// Close releases every sounding note and stops accepting triggers
func (o *OutputSink) Close() error {
	o.mu.Lock()
	offs := o.offs
	o.offs = make(map[*time.Timer]func())
	o.closed = true
	o.mu.Unlock()

	for t, off := range offs {
		if t.Stop() {
			off()
		}
	}
	return nil
}
