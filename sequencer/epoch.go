package sequencer

import (
	"time"

	"go-annotate/midi"
)

// Epoch is one uninterrupted scheduling run, from a (re)start until it is
// cancelled. Position inside an epoch is derived from wall time, never
// accumulated.
type Epoch struct {
	Gen           uint64
	StartPosition float64 // seconds into the piece
	Speed         float64
	WallStart     time.Time

	pending  []Timer
	tick     Timer
	canceled bool
}

// PositionAt returns the piece position at wall time now. The result is
// not clamped.
func PositionAt(e *Epoch, now time.Time) float64 {
	return e.StartPosition + now.Sub(e.WallStart).Seconds()*e.Speed
}

// FireDelay is the wall time from the epoch start until a note at start
// should sound.
func FireDelay(e *Epoch, start float64) time.Duration {
	return seconds((start - e.StartPosition) / e.Speed)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// ScheduleEpoch arms one deferred call per event that starts at or after
// the epoch's start position. fire runs when the event is due; it is
// responsible for checking that the epoch is still live.
func ScheduleEpoch(clock Clock, events []midi.NoteEvent, e *Epoch, fire func(midi.NoteEvent)) *Epoch {
	for _, ev := range events {
		if ev.Start < e.StartPosition {
			continue
		}
		delay := FireDelay(e, ev.Start)
		if delay < 0 {
			continue
		}
		e.pending = append(e.pending, clock.AfterFunc(delay, func() { fire(ev) }))
	}
	return e
}

// Pending returns the number of armed note calls
func (e *Epoch) Pending() int {
	return len(e.pending)
}

// Cancel stops every pending note call and the tick. Safe to call more
// than once.
func (e *Epoch) Cancel() {
	if e == nil || e.canceled {
		return
	}
	e.canceled = true
	for _, t := range e.pending {
		t.Stop()
	}
	e.pending = nil
	if e.tick != nil {
		e.tick.Stop()
		e.tick = nil
	}
}

// Canceled reports whether Cancel has run
func (e *Epoch) Canceled() bool {
	return e.canceled
}
