package audio

import (
	"math"
	"time"
)

// Envelope shape of the oscillator voice
const (
	attackTime   = 0.02
	decayTime    = 0.1
	sustainLevel = 0.3
	maxRelease   = 1.0

	// per-voice level before master gain
	voiceLevel = 0.05
)

// oscVoice is a triangle at the fundamental plus sines at 2.01x and 4.02x
// under an ADSR envelope. It stops at the note's duration.
type oscVoice struct {
	rate    float64
	freqs   [3]float64
	phase   [3]float64
	peak    float64
	dur     float64
	release float64
	n       int
	total   int
}

func newOscVoice(rate int, pitch uint8, dur, velocity float64) *oscVoice {
	f := 440 * math.Pow(2, (float64(pitch)-69)/12)
	return &oscVoice{
		rate:    float64(rate),
		freqs:   [3]float64{f, f * 2.01, f * 4.02},
		peak:    velocity * voiceLevel,
		dur:     dur,
		release: min(dur*0.3, maxRelease),
		total:   int(dur * float64(rate)),
	}
}

// envelope returns the gain at t seconds into the note
func (v *oscVoice) envelope(t float64) float64 {
	if rs := v.dur - v.release; t >= rs && v.release > 0 {
		return sustainLevel * max(1-(t-rs)/v.release, 0)
	}
	switch {
	case t < attackTime:
		return t / attackTime
	case t < attackTime+decayTime:
		return 1 - (1-sustainLevel)*(t-attackTime)/decayTime
	}
	return sustainLevel
}

func triangle(ph float64) float64 {
	return 1 - 4*math.Abs(ph-0.5)
}

func (v *oscVoice) Sample() (float64, bool) {
	if v.n >= v.total {
		return 0, true
	}
	t := float64(v.n) / v.rate
	s := triangle(v.phase[0]) +
		math.Sin(2*math.Pi*v.phase[1]) +
		math.Sin(2*math.Pi*v.phase[2])
	for i := range v.phase {
		v.phase[i] += v.freqs[i] / v.rate
		v.phase[i] -= math.Floor(v.phase[i])
	}
	v.n++
	return s / 3 * v.peak * v.envelope(t), v.n >= v.total
}

// Synth renders notes with oscillator voices. It uses the normalized
// velocity.
type Synth struct {
	mixer *Mixer
	rate  int
}

func NewSynth(rate int) *Synth {
	return &Synth{mixer: NewMixer(), rate: rate}
}

func (s *Synth) TriggerNote(pitch uint8, dur time.Duration, velocity, boosted float64) error {
	if dur <= 0 || velocity <= 0 {
		return nil
	}
	s.mixer.Add(newOscVoice(s.rate, pitch, dur.Seconds(), velocity))
	return nil
}

func (s *Synth) SetVolume(gain float64) { s.mixer.SetGain(gain) }

func (s *Synth) Process(dst []float32) { s.mixer.Process(dst) }

// Silence drops every sounding voice
func (s *Synth) Silence() { s.mixer.Reset() }
