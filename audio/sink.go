package audio

import (
	"bytes"
	"context"
	"io"
	"os"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"

	"go-annotate/debug"
	"go-annotate/tags"
)

// Kind names an audio backend
type Kind string

const (
	KindSampler Kind = "sampler"
	KindSynth   Kind = "synth"
	KindMIDI    Kind = "midi"
)

const DefaultSampleRate = 44100

// Config selects and tunes the PCM backend
type Config struct {
	Backend    Kind
	SoundFont  string
	Program    int
	SampleRate int
	Volume     int // percent
}

// MasterGain maps a volume percentage to output gain. 100% is ten times
// unity, which the quiet sampler output needs.
func MasterGain(percent int) float64 {
	return float64(max(percent, 0)) / 100 * 10
}

// Sink is a note sink that owns an output stream
type Sink interface {
	TriggerNote(pitch uint8, dur time.Duration, velocity, boosted float64) error
	SetVolume(gain float64)
	Close() error
}

// OpenFunc starts a device pulling float32 LE stereo PCM from r
type OpenFunc func(rate int, r io.Reader) (io.Closer, error)

type source interface {
	SampleSource
	TriggerNote(pitch uint8, dur time.Duration, velocity, boosted float64) error
	SetVolume(gain float64)
}

// Output is a PCM sink feeding a device
type Output struct {
	kind   Kind
	src    source
	device io.Closer
}

func (o *Output) Kind() Kind { return o.kind }

func (o *Output) TriggerNote(pitch uint8, dur time.Duration, velocity, boosted float64) error {
	return o.src.TriggerNote(pitch, dur, velocity, boosted)
}

func (o *Output) SetVolume(gain float64) { o.src.SetVolume(gain) }

func (o *Output) Close() error {
	if o.device == nil {
		return nil
	}
	return o.device.Close()
}

// New selects the backend once. The sampler is used when its SoundFont
// loads, otherwise the oscillator synth. MIDI output is not built here.
func New(cfg Config, open OpenFunc) (*Output, error) {
	if cfg.Backend == KindMIDI {
		return nil, fault.New("midi backend has no pcm output",
			fmsg.WithDesc("midi backend has no pcm output", "MIDI output is configured separately"),
			ftag.With(tags.InvalidArgument))
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}

	var src source
	kind := KindSynth
	if cfg.Backend != KindSynth && cfg.SoundFont != "" {
		s, err := loadSampler(cfg.SoundFont, rate, cfg.Program)
		if err != nil {
			debug.Log("audio", "sampler unavailable, using synth: %v", err)
		} else {
			src, kind = s, KindSampler
		}
	}
	if src == nil {
		src = NewSynth(rate)
	}
	src.SetVolume(MasterGain(cfg.Volume))

	out := &Output{kind: kind, src: src}
	if open != nil {
		dev, err := open(rate, NewStreamReader(src))
		if err != nil {
			return nil, fault.Wrap(err,
				fmsg.WithDesc("open audio device", "Audio output could not be opened"),
				ftag.With(tags.IO))
		}
		out.device = dev
	}
	debug.Log("audio", "backend %s at %d Hz", kind, rate)
	return out, nil
}

func loadSampler(path string, rate, program int) (*Sampler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.Wrap(err,
			fctx.With(fctx.WithMeta(context.Background(), "soundfont", path)),
			fmsg.WithDesc("read soundfont", "The SoundFont file could not be read"),
			ftag.With(tags.IO))
	}
	return NewSampler(bytes.NewReader(data), rate, program)
}
