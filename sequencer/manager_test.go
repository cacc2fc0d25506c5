package sequencer

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"go-annotate/midi"
	"go-annotate/tags"
)

type trigger struct {
	pitch    uint8
	dur      time.Duration
	velocity float64
	boosted  float64
	at       time.Time
}

type recordingSink struct {
	mu     sync.Mutex
	clock  *fakeClock
	notes  []trigger
	fail   map[uint8]error
	panics map[uint8]bool
}

func newRecordingSink(c *fakeClock) *recordingSink {
	return &recordingSink{clock: c, fail: map[uint8]error{}, panics: map[uint8]bool{}}
}

func (s *recordingSink) TriggerNote(pitch uint8, dur time.Duration, velocity, boosted float64) error {
	if s.panics[pitch] {
		panic("sink exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[pitch]; err != nil {
		return err
	}
	s.notes = append(s.notes, trigger{pitch, dur, velocity, boosted, s.clock.Now()})
	return nil
}

func (s *recordingSink) pitches() []uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint8, len(s.notes))
	for i, n := range s.notes {
		out[i] = n.pitch
	}
	return out
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notes)
}

// piece builds a one-track piece with half-second notes. Note i has pitch
// 60+i.
func piece(total float64, starts ...float64) *midi.Piece {
	notes := make([]midi.NoteEvent, len(starts))
	for i, s := range starts {
		notes[i] = midi.NoteEvent{Pitch: uint8(60 + i), Start: s, Duration: 0.5, Velocity: 100}
	}
	return &midi.Piece{TotalDuration: total, Tracks: []midi.Track{{Notes: notes}}}
}

func newTestManager(t *testing.T, p *midi.Piece) (*Manager, *fakeClock, *recordingSink) {
	t.Helper()
	clk := newFakeClock()
	sink := newRecordingSink(clk)
	m := NewManager(WithClock(clk), WithSink(sink))
	m.Load(p)
	return m, clk, sink
}

func drain(m *Manager) []Event {
	var out []Event
	for {
		select {
		case ev := <-m.Watch():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func equalPitches(a, b []uint8) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestScenarioPlayAndSample(t *testing.T) {
	m, clk, sink := newTestManager(t, piece(3, 0, 1, 2))

	if err := m.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	clk.Advance(2500 * time.Millisecond)

	s := m.Snapshot()
	if !approx(s.Position, 2.5) {
		t.Errorf("position = %v, want 2.5", s.Position)
	}
	if got := sink.count(); got != 3 {
		t.Errorf("triggers = %d, want 3", got)
	}
	if !s.Playing {
		t.Error("expected playing")
	}
}

func TestScenarioScrubForward(t *testing.T) {
	m, clk, sink := newTestManager(t, piece(3, 0, 1, 2))

	m.Play()
	clk.Advance(500 * time.Millisecond)
	m.Scrub(2.0)
	clk.Advance(0)

	if got, want := sink.pitches(), []uint8{60, 62}; !equalPitches(got, want) {
		t.Fatalf("pitches = %v, want %v", got, want)
	}
	if at := sink.notes[1].at.Sub(sink.notes[0].at); at != 500*time.Millisecond {
		t.Errorf("note at 2.0 fired %v after start, want 500ms", at)
	}

	clk.Advance(300 * time.Millisecond)
	if got, want := sink.pitches(), []uint8{60, 62}; !equalPitches(got, want) {
		t.Errorf("pitches after scrub = %v, want %v", got, want)
	}
	if s := m.Snapshot(); s.Position < 2.0 {
		t.Errorf("position = %v, want >= 2.0", s.Position)
	}
}

func TestScenarioDoubleSpeedFinishes(t *testing.T) {
	m, clk, sink := newTestManager(t, piece(3, 0, 1, 2))

	m.Play()
	if err := m.SetSpeed(2.0); err != nil {
		t.Fatalf("SetSpeed: %v", err)
	}

	clk.Advance(1400 * time.Millisecond)
	s := m.Snapshot()
	if !s.Playing {
		t.Fatal("stopped before the end")
	}
	if !approx(s.Position, 2.8) {
		t.Errorf("position = %v, want 2.8", s.Position)
	}

	clk.Advance(100 * time.Millisecond)
	s = m.Snapshot()
	if s.Playing {
		t.Fatal("still playing after 1.5s at 2x")
	}
	if s.Position != 0 || s.CursorVisible {
		t.Errorf("finished state = %+v, want rewound with hidden cursor", s)
	}

	finished := false
	for _, ev := range drain(m) {
		if ev.Kind == EventFinished {
			finished = true
		}
	}
	if !finished {
		t.Error("no finished report")
	}

	if got := sink.count(); got != 3 {
		t.Fatalf("triggers = %d, want 3", got)
	}
	for _, n := range sink.notes {
		if n.dur != 250*time.Millisecond {
			t.Errorf("pitch %d duration = %v, want 250ms", n.pitch, n.dur)
		}
	}
}

func TestNoStaleTriggers(t *testing.T) {
	for _, leaky := range []bool{false, true} {
		name := "cancel delivered"
		if leaky {
			name = "cancel lost"
		}
		t.Run(name, func(t *testing.T) {
			m, clk, sink := newTestManager(t, piece(10, 0, 1, 2, 3, 4, 5, 6, 7, 8, 9))
			clk.leakyStop = leaky

			m.Play()
			clk.Advance(500 * time.Millisecond)
			m.Scrub(3)
			clk.Advance(200 * time.Millisecond)

			before := sink.count()
			m.Scrub(6)
			clk.Advance(5 * time.Second)

			got := sink.pitches()[before:]
			if want := []uint8{66, 67, 68, 69}; !equalPitches(got, want) {
				t.Errorf("final epoch pitches = %v, want %v", got, want)
			}
			if all := sink.pitches(); !equalPitches(all, []uint8{60, 63, 66, 67, 68, 69}) {
				t.Errorf("all pitches = %v", all)
			}
			if m.Snapshot().Playing {
				t.Error("expected finished")
			}
		})
	}
}

func TestEpochCancelIsIdempotent(t *testing.T) {
	clk := newFakeClock()
	fired := 0
	e := &Epoch{Gen: 1, StartPosition: 0, Speed: 1, WallStart: clk.Now()}
	ScheduleEpoch(clk, piece(3, 0, 1, 2).Tracks[0].Notes, e, func(midi.NoteEvent) { fired++ })
	e.tick = clk.AfterFunc(TickInterval, func() {})

	if e.Pending() != 3 {
		t.Fatalf("pending = %d, want 3", e.Pending())
	}

	e.Cancel()
	e.Cancel()

	if !e.Canceled() || e.Pending() != 0 {
		t.Errorf("after cancel: canceled=%v pending=%d", e.Canceled(), e.Pending())
	}
	if armed := clk.armed(); len(armed) != 0 {
		t.Errorf("armed after cancel = %v", armed)
	}
	clk.Advance(10 * time.Second)
	if fired != 0 {
		t.Errorf("fired = %d after cancel", fired)
	}

	var nilEpoch *Epoch
	nilEpoch.Cancel()
}

func TestStopAndPauseAreIdempotent(t *testing.T) {
	m, clk, _ := newTestManager(t, piece(3, 0, 1, 2))

	m.Pause()
	m.Stop()
	m.Play()
	clk.Advance(time.Second)
	m.Pause()
	m.Pause()
	m.Stop()
	m.Stop()

	if s := m.Snapshot(); s.Playing || s.Position != 0 {
		t.Errorf("state = %+v", s)
	}
	if armed := clk.armed(); len(armed) != 0 {
		t.Errorf("armed after stop = %v", armed)
	}
}

func TestPositionIsMonotonic(t *testing.T) {
	m, clk, _ := newTestManager(t, piece(3, 0, 1, 2))
	m.Play()

	prev := -1.0
	samples := 0
	for i := 0; i < 50; i++ {
		clk.Advance(97 * time.Millisecond)
		s := m.Snapshot()
		if !s.Playing {
			break
		}
		samples++
		if s.Position < prev {
			t.Fatalf("position went backwards: %v after %v", s.Position, prev)
		}
		if s.Position > s.TotalDuration {
			t.Fatalf("position %v beyond total %v", s.Position, s.TotalDuration)
		}
		prev = s.Position
	}
	if samples < 25 {
		t.Errorf("only %d samples while playing", samples)
	}
}

func TestScheduleDelaysScaleWithSpeed(t *testing.T) {
	events := []midi.NoteEvent{
		{Pitch: 60, Start: 0.5, Duration: 1},
		{Pitch: 61, Start: 1, Duration: 1},
		{Pitch: 62, Start: 1.5, Duration: 1},
		{Pitch: 63, Start: 2.5, Duration: 1},
	}
	schedule := func(speed float64) []time.Duration {
		clk := newFakeClock()
		ScheduleEpoch(clk, events, &Epoch{StartPosition: 1, Speed: speed, WallStart: clk.Now()}, func(midi.NoteEvent) {})
		return clk.armed()
	}

	base := schedule(1)
	if want := []time.Duration{0, 500 * time.Millisecond, 1500 * time.Millisecond}; len(base) != len(want) {
		t.Fatalf("base delays = %v, want %v", base, want)
	}

	for _, k := range []float64{0.5, 2, 3} {
		got := schedule(k)
		if len(got) != len(base) {
			t.Fatalf("speed %v scheduled %d events, want %d", k, len(got), len(base))
		}
		for i := range got {
			want := time.Duration(float64(base[i]) / k)
			if diff := got[i] - want; diff > time.Microsecond || diff < -time.Microsecond {
				t.Errorf("speed %v event %d delay = %v, want %v", k, i, got[i], want)
			}
		}
	}
}

func TestSetSpeedWhilePlayingKeepsRemainingNotes(t *testing.T) {
	m, clk, sink := newTestManager(t, piece(3, 0.5, 1, 1.5, 2.5))

	m.Play()
	clk.Advance(900 * time.Millisecond)
	if err := m.SetSpeed(2); err != nil {
		t.Fatal(err)
	}
	if s := m.Snapshot(); !approx(s.Position, 0.9) || s.Speed != 2 {
		t.Errorf("after speed change: %+v", s)
	}
	clk.Advance(2 * time.Second)

	if got, want := sink.pitches(), []uint8{60, 61, 62, 63}; !equalPitches(got, want) {
		t.Fatalf("pitches = %v, want %v", got, want)
	}
	for _, n := range sink.notes[1:] {
		if n.dur != 250*time.Millisecond {
			t.Errorf("pitch %d duration = %v, want 250ms", n.pitch, n.dur)
		}
	}
}

func TestPlayPreconditions(t *testing.T) {
	clk := newFakeClock()
	m := NewManager(WithClock(clk))

	err := m.Play()
	if !errors.Is(err, ErrNoPiece) || !tags.Is(err, tags.Precondition) {
		t.Fatalf("Play without piece = %v", err)
	}
	if evs := drain(m); len(evs) != 1 || evs[0].Kind != EventError {
		t.Errorf("reports = %+v", evs)
	}

	m.Load(piece(3, 0))
	if err := m.Play(); !errors.Is(err, ErrNoSink) {
		t.Fatalf("Play without sink = %v", err)
	}
	if m.Snapshot().Playing {
		t.Fatal("playing without a sink")
	}

	m.SetSink(newRecordingSink(clk))
	if err := m.Play(); err != nil {
		t.Fatalf("Play = %v", err)
	}
	if err := m.Play(); err != nil {
		t.Fatalf("second Play = %v", err)
	}
}

func TestTriggerFailureDoesNotStopSchedule(t *testing.T) {
	m, clk, sink := newTestManager(t, piece(4, 0, 1, 2, 3))
	sink.fail[61] = errors.New("voice limit")
	sink.panics[62] = true

	m.Play()
	clk.Advance(3500 * time.Millisecond)

	if got, want := sink.pitches(), []uint8{60, 63}; !equalPitches(got, want) {
		t.Errorf("pitches = %v, want %v", got, want)
	}
	failures := 0
	for _, ev := range drain(m) {
		if ev.Kind == EventError {
			failures++
			if !tags.Is(ev.Err, tags.Trigger) {
				t.Errorf("error kind = %v", ev.Err)
			}
		}
	}
	if failures != 2 {
		t.Errorf("reported failures = %d, want 2", failures)
	}
	if !m.Snapshot().Playing {
		t.Error("playback stopped after trigger failure")
	}
}

func TestVelocityNormalization(t *testing.T) {
	p := &midi.Piece{TotalDuration: 2, Tracks: []midi.Track{{Notes: []midi.NoteEvent{
		{Pitch: 60, Start: 0, Duration: 1, Velocity: 127},
		{Pitch: 61, Start: 0.5, Duration: 1, Velocity: 6},
	}}}}
	m, clk, sink := newTestManager(t, p)
	m.Play()
	clk.Advance(time.Second)

	if len(sink.notes) != 2 {
		t.Fatalf("triggers = %d", len(sink.notes))
	}
	loud, soft := sink.notes[0], sink.notes[1]
	if loud.velocity != 1 || loud.boosted != 1 {
		t.Errorf("loud = %+v", loud)
	}
	if !approx(soft.velocity, 6.0/127) || !approx(soft.boosted, 60.0/127) {
		t.Errorf("soft = %+v", soft)
	}
}

func TestPauseResumeStop(t *testing.T) {
	type syncCall struct {
		pos, progress float64
		playing       bool
	}
	var syncs []syncCall
	clk := newFakeClock()
	sink := newRecordingSink(clk)
	m := NewManager(WithClock(clk), WithSink(sink), WithSyncTarget(SyncFunc(func(pos, progress float64, playing bool) {
		syncs = append(syncs, syncCall{pos, progress, playing})
	})))
	m.Load(piece(3, 0, 1, 2))

	m.Play()
	clk.Advance(1250 * time.Millisecond)
	m.Pause()

	s := m.Snapshot()
	if s.Playing || !approx(s.Position, 1.25) || !s.CursorVisible {
		t.Fatalf("paused state = %+v", s)
	}
	clk.Advance(time.Second)
	if got := m.Snapshot().Position; !approx(got, 1.25) {
		t.Errorf("paused position drifted to %v", got)
	}
	if sink.count() != 2 {
		t.Errorf("triggers while paused = %d, want 2", sink.count())
	}

	if err := m.Resume(); err != nil {
		t.Fatal(err)
	}
	clk.Advance(750 * time.Millisecond)
	if got := sink.pitches(); !equalPitches(got, []uint8{60, 61, 62}) {
		t.Errorf("pitches after resume = %v", got)
	}

	m.Stop()
	s = m.Snapshot()
	if s.Playing || s.Position != 0 || s.CursorVisible {
		t.Errorf("stopped state = %+v", s)
	}

	last := syncs[len(syncs)-1]
	if last.playing || last.pos != 0 || last.progress != 0 {
		t.Errorf("last sync = %+v, want reset progress", last)
	}
	ticks := 0
	for _, s := range syncs {
		if s.playing {
			ticks++
		}
	}
	if ticks < 10 {
		t.Errorf("only %d playing syncs", ticks)
	}
}

func TestSetSpeedValidation(t *testing.T) {
	m, clk, _ := newTestManager(t, piece(3, 0))

	for _, k := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if err := m.SetSpeed(k); !tags.Is(err, tags.InvalidArgument) {
			t.Errorf("SetSpeed(%v) = %v", k, err)
		}
	}

	if err := m.SetSpeed(1.5); err != nil {
		t.Fatal(err)
	}
	if s := m.Snapshot(); s.Speed != 1.5 || s.Playing {
		t.Errorf("state = %+v", s)
	}
	if armed := clk.armed(); len(armed) != 0 {
		t.Errorf("speed change while stopped armed %v", armed)
	}
}

func TestScrubClamps(t *testing.T) {
	tests := []struct {
		target float64
		want   float64
	}{
		{-1, 0},
		{1.5, 1.5},
		{100, 3},
	}
	for _, tt := range tests {
		m, clk, _ := newTestManager(t, piece(3, 0, 1, 2))
		m.Scrub(tt.target)
		s := m.Snapshot()
		if s.Position != tt.want {
			t.Errorf("Scrub(%v) position = %v, want %v", tt.target, s.Position, tt.want)
		}
		if s.Playing || !s.CursorVisible {
			t.Errorf("Scrub(%v) state = %+v", tt.target, s)
		}
		if armed := clk.armed(); len(armed) != 0 {
			t.Errorf("scrub while stopped armed %v", armed)
		}
	}
}

func TestScrubToEndFinishes(t *testing.T) {
	m, clk, _ := newTestManager(t, piece(3, 0, 1, 2))
	m.Play()
	m.Scrub(3)
	clk.Advance(TickInterval)

	if m.Snapshot().Playing {
		t.Error("still playing after scrub to end")
	}
}

func TestLoadStopsPlayback(t *testing.T) {
	m, clk, sink := newTestManager(t, piece(3, 0, 1, 2))
	m.Play()
	clk.Advance(500 * time.Millisecond)

	m.Load(piece(5, 4))
	s := m.Snapshot()
	if s.Playing || s.Position != 0 || s.TotalDuration != 5 {
		t.Errorf("state after load = %+v", s)
	}
	clk.Advance(5 * time.Second)
	if sink.count() != 1 {
		t.Errorf("triggers = %d, want 1", sink.count())
	}
}

func TestEmptyPiecePlaysNothing(t *testing.T) {
	m, clk, sink := newTestManager(t, &midi.Piece{TotalDuration: 0.3})
	if err := m.Play(); err != nil {
		t.Fatal(err)
	}
	clk.Advance(time.Second)
	if sink.count() != 0 || m.Snapshot().Playing {
		t.Errorf("empty piece: triggers=%d playing=%v", sink.count(), m.Snapshot().Playing)
	}
}

func TestNextSpeed(t *testing.T) {
	tests := []struct {
		cur  float64
		dir  int
		want float64
	}{
		{1, 1, 1.25},
		{1, -1, 0.75},
		{2, 1, 2},
		{0.25, -1, 0.25},
		{0.6, 1, 0.75},
		{0.6, -1, 0.5},
	}
	for _, tt := range tests {
		if got := NextSpeed(tt.cur, tt.dir); got != tt.want {
			t.Errorf("NextSpeed(%v, %d) = %v, want %v", tt.cur, tt.dir, got, tt.want)
		}
	}
}

func TestRestartOnNoteStartDoesNotReplay(t *testing.T) {
	t.Run("resume", func(t *testing.T) {
		m, clk, sink := newTestManager(t, piece(3, 0, 1, 2))
		m.Play()
		clk.Advance(time.Second)
		m.Pause()
		if err := m.Resume(); err != nil {
			t.Fatal(err)
		}
		clk.Advance(2 * time.Second)
		if got := sink.pitches(); !equalPitches(got, []uint8{60, 61, 62}) {
			t.Errorf("pitches = %v", got)
		}
	})

	t.Run("speed change", func(t *testing.T) {
		m, clk, sink := newTestManager(t, piece(3, 0, 1, 2))
		m.Play()
		clk.Advance(time.Second)
		if err := m.SetSpeed(2); err != nil {
			t.Fatal(err)
		}
		clk.Advance(time.Second)
		if got := sink.pitches(); !equalPitches(got, []uint8{60, 61, 62}) {
			t.Errorf("pitches = %v", got)
		}
	})

	t.Run("scrub onto a played note", func(t *testing.T) {
		m, clk, sink := newTestManager(t, piece(3, 0, 1, 2))
		m.Play()
		clk.Advance(1500 * time.Millisecond)
		m.Pause()
		m.Scrub(1)
		if err := m.Resume(); err != nil {
			t.Fatal(err)
		}
		clk.Advance(100 * time.Millisecond)
		if got := sink.pitches(); !equalPitches(got, []uint8{60, 61, 61}) {
			t.Errorf("pitches = %v", got)
		}
	})

	t.Run("play after pause starts over", func(t *testing.T) {
		m, clk, sink := newTestManager(t, piece(3, 0, 1, 2))
		m.Play()
		clk.Advance(500 * time.Millisecond)
		m.Pause()
		m.Play()
		clk.Advance(100 * time.Millisecond)
		if got := sink.pitches(); !equalPitches(got, []uint8{60, 60}) {
			t.Errorf("pitches = %v", got)
		}
	})
}
