package sequencer

import (
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"

	"go-annotate/debug"
	"go-annotate/midi"
	"go-annotate/tags"
)

// Sink renders triggered notes. Calls must not block.
type Sink interface {
	TriggerNote(pitch uint8, dur time.Duration, velocity, boosted float64) error
}

// SyncTarget receives the position on every tick and transition. It is
// called with the Manager locked and must not call back into it.
type SyncTarget interface {
	Sync(position, progress float64, playing bool)
}

// SyncFunc adapts a function to SyncTarget
type SyncFunc func(position, progress float64, playing bool)

func (f SyncFunc) Sync(position, progress float64, playing bool) { f(position, progress, playing) }

// Precondition failures reported by Play
var (
	ErrNoPiece = fault.New("no piece loaded",
		fmsg.WithDesc("no piece loaded", "Load a MIDI file before playing"),
		ftag.With(tags.Precondition))
	ErrNoSink = fault.New("no audio sink",
		fmsg.WithDesc("no audio sink", "Audio is not initialized"),
		ftag.With(tags.Precondition))
)

// TickInterval is how often position is sampled while playing
const TickInterval = 100 * time.Millisecond

// Manager is the playback state machine. Every transition, tick and note
// callback runs under mu, so replacing the live epoch and cancelling the
// old one is atomic with respect to in-flight callbacks.
type Manager struct {
	mu    sync.Mutex
	clock Clock
	tick  time.Duration

	sink   Sink
	target SyncTarget
	piece  *midi.Piece

	state State
	live  *Epoch
	gen   uint64
	// sounded holds notes fired since playback last started over, so a
	// resume or speed change landing on a note start does not repeat it
	sounded map[midi.NoteEvent]bool

	events chan Event
}

// Option configures a Manager
type Option func(*Manager)

// WithClock replaces the wall clock (tests use a fake)
func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithTickInterval changes the position sampling cadence
func WithTickInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.tick = d
		}
	}
}

// WithSink sets the audio sink
func WithSink(s Sink) Option {
	return func(m *Manager) { m.sink = s }
}

// WithSyncTarget sets the UI sync target
func WithSyncTarget(t SyncTarget) Option {
	return func(m *Manager) { m.target = t }
}

// NewManager creates a stopped manager with no piece loaded
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		clock:  RealClock,
		tick:   TickInterval,
		state:  State{Speed: 1},
		events:  make(chan Event, 8),
		sounded: make(map[midi.NoteEvent]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Watch returns the channel of playback reports. Reports are dropped when
// nobody reads them.
func (m *Manager) Watch() <-chan Event {
	return m.events
}

func (m *Manager) report(ev Event) {
	if ev.Err != nil {
		debug.Log("playback", "%s: %v", ev.Kind, ev.Err)
	} else {
		debug.Log("playback", "%s", ev.Kind)
	}
	select {
	case m.events <- ev:
	default:
	}
}

// SetSink replaces the audio sink. Notes already armed use the new sink.
func (m *Manager) SetSink(s Sink) {
	m.mu.Lock()
	m.sink = s
	m.mu.Unlock()
}

// SetSyncTarget replaces the UI sync target
func (m *Manager) SetSyncTarget(t SyncTarget) {
	m.mu.Lock()
	m.target = t
	m.mu.Unlock()
}

// Load stops playback and installs a new piece. A nil piece unloads.
func (m *Manager) Load(p *midi.Piece) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()
	m.piece = p
	m.state.TotalDuration = 0
	if p != nil {
		m.state.TotalDuration = max(p.TotalDuration, 0)
	}
	m.publishLocked()
}

// Piece returns the loaded piece
func (m *Manager) Piece() *midi.Piece {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.piece
}

// Snapshot returns a copy of the state with the position sampled now
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state
	if s.Playing {
		s.Position = m.currentLocked()
	}
	return s
}

// Play starts the piece from the beginning. It is a no-op while playing.
func (m *Manager) Play() error {
	return m.start(false, func() float64 { return 0 })
}

// Resume starts from the current position, or from the beginning when the
// position is at the end.
func (m *Manager) Resume() error {
	return m.start(true, func() float64 {
		if m.state.Position >= m.state.TotalDuration {
			return 0
		}
		return m.state.Position
	})
}

func (m *Manager) start(resume bool, from func() float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Playing {
		return nil
	}
	if err := m.checkLocked(); err != nil {
		m.report(Event{Kind: EventError, Err: err})
		return err
	}

	pos := from()
	if !resume || pos != m.state.Position {
		clear(m.sounded)
	}
	m.state.Playing = true
	m.state.Position = pos
	m.state.CursorVisible = true
	m.startEpochLocked(pos)
	m.report(Event{Kind: EventStarted})
	m.publishLocked()
	return nil
}

func (m *Manager) checkLocked() error {
	if m.piece == nil {
		return ErrNoPiece
	}
	if m.sink == nil {
		return ErrNoSink
	}
	return nil
}

// Pause stops playback and keeps the position
func (m *Manager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Playing {
		return
	}
	pos := m.currentLocked()
	m.cancelLocked()
	m.state.Playing = false
	m.state.Position = pos
	m.report(Event{Kind: EventPaused})
	m.publishLocked()
}

// Stop stops playback, rewinds to the start and hides the cursor. Calling
// it while stopped still rewinds.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	wasPlaying := m.state.Playing
	m.stopLocked()
	if wasPlaying {
		m.report(Event{Kind: EventStopped})
	}
	m.publishLocked()
}

func (m *Manager) stopLocked() {
	m.cancelLocked()
	m.state.Playing = false
	m.state.Position = 0
	m.state.CursorVisible = false
	clear(m.sounded)
}

// Scrub moves to target, clamped to the piece. While playing, playback
// restarts from there.
func (m *Manager) Scrub(target float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if math.IsNaN(target) {
		return
	}
	pos := clamp(target, m.state.TotalDuration)
	m.state.Position = pos
	m.state.CursorVisible = true
	clear(m.sounded)
	if m.state.Playing {
		m.startEpochLocked(pos)
	}
	m.publishLocked()
}

// ScrubBy moves relative to the current position
func (m *Manager) ScrubBy(delta float64) {
	m.Scrub(m.Snapshot().Position + delta)
}

// SetSpeed changes the playback rate. While playing, playback restarts at
// the current position so notes not yet played follow the new rate.
func (m *Manager) SetSpeed(k float64) error {
	if !(k > 0) || math.IsInf(k, 0) {
		return fault.New(fmt.Sprintf("invalid speed %v", k),
			fmsg.WithDesc("invalid speed", "Speed must be greater than zero"),
			ftag.With(tags.InvalidArgument))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Playing {
		m.state.Speed = k
		return nil
	}
	pos := m.currentLocked()
	m.state.Speed = k
	m.state.Position = pos
	m.startEpochLocked(pos)
	m.publishLocked()
	return nil
}

func (m *Manager) currentLocked() float64 {
	if m.live == nil {
		return m.state.Position
	}
	return clamp(PositionAt(m.live, m.clock.Now()), m.state.TotalDuration)
}

func (m *Manager) cancelLocked() {
	if m.live != nil {
		m.live.Cancel()
		m.live = nil
	}
}

// startEpochLocked replaces the live epoch. The old epoch is cancelled and
// the generation bumped before any new call is armed. Notes that start at
// pos and already sounded are left out.
func (m *Manager) startEpochLocked(pos float64) {
	m.cancelLocked()
	m.gen++
	gen := m.gen

	e := &Epoch{
		Gen:           gen,
		StartPosition: pos,
		Speed:         m.state.Speed,
		WallStart:     m.clock.Now(),
	}
	var events []midi.NoteEvent
	if m.piece != nil {
		events = midi.Flatten(m.piece.Tracks)
	}
	for ev := range m.sounded {
		if ev.Start != pos {
			delete(m.sounded, ev)
		}
	}
	if len(m.sounded) > 0 {
		events = slices.DeleteFunc(events, func(ev midi.NoteEvent) bool { return m.sounded[ev] })
	}
	ScheduleEpoch(m.clock, events, e, func(ev midi.NoteEvent) { m.fire(gen, ev) })
	e.tick = m.clock.AfterFunc(m.tick, func() { m.onTick(gen) })
	m.live = e

	debug.Log("playback", "epoch %d at %.3fs x%.2f, %d notes armed", gen, pos, e.Speed, e.Pending())
}

func (m *Manager) liveLocked(gen uint64) bool {
	return m.state.Playing && m.live != nil && m.live.Gen == gen
}

func (m *Manager) fire(gen uint64, ev midi.NoteEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.liveLocked(gen) {
		return
	}
	m.sounded[ev] = true
	m.triggerLocked(ev, m.live.Speed)
}

func (m *Manager) triggerLocked(ev midi.NoteEvent, speed float64) {
	defer func() {
		if r := recover(); r != nil {
			m.report(Event{Kind: EventError, Err: fault.New(fmt.Sprintf("sink panic: %v", r),
				fmsg.WithDesc("sink panic", "A note failed to play"),
				ftag.With(tags.Trigger))})
		}
	}()

	if m.sink == nil {
		return
	}
	vel := float64(ev.Velocity) / 127
	boosted := min(vel*10, 1)
	err := m.sink.TriggerNote(ev.Pitch, seconds(ev.Duration/speed), vel, boosted)
	if err != nil {
		m.report(Event{Kind: EventError, Err: fault.Wrap(err,
			fmsg.WithDesc(fmt.Sprintf("trigger note %d", ev.Pitch), "A note failed to play"),
			ftag.With(tags.Trigger))})
	}
}

func (m *Manager) onTick(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.liveLocked(gen) {
		return
	}
	pos := m.currentLocked()
	if pos >= m.state.TotalDuration {
		m.stopLocked()
		m.report(Event{Kind: EventFinished})
		m.publishLocked()
		return
	}
	m.state.Position = pos
	m.publishLocked()
	m.live.tick = m.clock.AfterFunc(m.tick, func() { m.onTick(gen) })
}

func (m *Manager) publishLocked() {
	if m.target == nil {
		return
	}
	m.target.Sync(m.state.Position, m.state.Progress(), m.state.Playing)
}
