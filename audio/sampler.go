package audio

import (
	"io"
	"slices"
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	meltysynth "github.com/sinshu/go-meltysynth/meltysynth"

	"go-annotate/tags"
)

const samplerChannel = 0

type pendingOff struct {
	at  int64 // frame
	key int32
}

// Sampler plays notes through a SoundFont. It uses the boosted velocity.
type Sampler struct {
	mu    sync.Mutex
	synth *meltysynth.Synthesizer
	rate  int
	pos   int64
	offs  []pendingOff
	gain  float32

	left, right []float32
}

// NewSampler loads a SoundFont and selects program on channel 0
func NewSampler(sf io.ReadSeeker, rate int, program int) (*Sampler, error) {
	font, err := meltysynth.NewSoundFont(sf)
	if err != nil {
		return nil, fault.Wrap(err,
			fmsg.WithDesc("load soundfont", "The SoundFont could not be loaded"),
			ftag.With(tags.IO))
	}
	synth, err := meltysynth.NewSynthesizer(font, meltysynth.NewSynthesizerSettings(int32(rate)))
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With("create synthesizer"))
	}
	synth.ProcessMidiMessage(samplerChannel, 0xC0, int32(program), 0)
	return &Sampler{synth: synth, rate: rate, gain: 1}, nil
}

func (s *Sampler) TriggerNote(pitch uint8, dur time.Duration, velocity, boosted float64) error {
	vel := int32(boosted*127 + 0.5)
	if vel <= 0 || dur <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := int32(pitch)
	s.synth.NoteOn(samplerChannel, key, min(vel, 127))
	s.offs = scheduleOff(s.offs, key, s.pos+int64(dur.Seconds()*float64(s.rate)))
	return nil
}

// scheduleOff replaces any pending release of key. A NoteOff ends every
// voice on the key, so an earlier release would cut the new note short.
func scheduleOff(offs []pendingOff, key int32, at int64) []pendingOff {
	offs = slices.DeleteFunc(offs, func(off pendingOff) bool { return off.key == key })
	return append(offs, pendingOff{at: at, key: key})
}

func (s *Sampler) SetVolume(gain float64) {
	s.mu.Lock()
	s.gain = float32(max(gain, 0))
	s.mu.Unlock()
}

// Process renders up to each pending note-off so releases land on the
// right frame.
func (s *Sampler) Process(dst []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frames := len(dst) / 2
	if cap(s.left) < frames {
		s.left = make([]float32, frames)
		s.right = make([]float32, frames)
	}
	left, right := s.left[:frames], s.right[:frames]

	done := 0
	for done < frames {
		n := frames - done
		for _, off := range s.offs {
			if d := int(off.at - s.pos); d >= 0 && d < n {
				n = d
			}
		}
		if n > 0 {
			s.synth.Render(left[done:done+n], right[done:done+n])
			s.pos += int64(n)
			done += n
		}
		s.releaseDue()
	}

	for i := 0; i < frames; i++ {
		dst[2*i] = min(max(left[i]*s.gain, -1), 1)
		dst[2*i+1] = min(max(right[i]*s.gain, -1), 1)
	}
}

func (s *Sampler) releaseDue() {
	kept := s.offs[:0]
	for _, off := range s.offs {
		if off.at <= s.pos {
			s.synth.NoteOff(samplerChannel, off.key)
			continue
		}
		kept = append(kept, off)
	}
	s.offs = kept
}
