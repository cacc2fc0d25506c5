// Package device opens PCM output for the audio sinks. Both backends pull
// interleaved stereo float32 little-endian frames.
package device

import (
	"fmt"
	"io"
	"sync"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/ebitengine/oto/v3"
	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"

	"go-annotate/tags"
)

const (
	Oto    = "oto"
	Ebiten = "ebiten"
)

// Opener returns the open function for a device kind. Unknown kinds fall
// back to oto.
func Opener(kind string) func(rate int, r io.Reader) (io.Closer, error) {
	if kind == Ebiten {
		return openEbiten
	}
	return openOto
}

var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoRate int
	otoErr  error
)

func sharedOto(rate int) (*oto.Context, error) {
	otoOnce.Do(func() {
		otoRate = rate
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   rate,
			ChannelCount: 2,
			Format:       oto.FormatFloat32LE,
		})
		if err != nil {
			otoErr = err
			return
		}
		<-ready
		otoCtx = ctx
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoRate != rate {
		return nil, rateMismatch(otoRate, rate)
	}
	return otoCtx, nil
}

func openOto(rate int, r io.Reader) (io.Closer, error) {
	ctx, err := sharedOto(rate)
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With("oto context"), ftag.With(tags.IO))
	}
	p := ctx.NewPlayer(r)
	p.Play()
	return p, nil
}

var (
	ebitenOnce sync.Once
	ebitenCtx  *ebitaudio.Context
	ebitenRate int
)

func openEbiten(rate int, r io.Reader) (io.Closer, error) {
	ebitenOnce.Do(func() {
		ebitenRate = rate
		ebitenCtx = ebitaudio.NewContext(rate)
	})
	if ebitenRate != rate {
		return nil, rateMismatch(ebitenRate, rate)
	}
	p, err := ebitenCtx.NewPlayerF32(r)
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With("ebiten player"), ftag.With(tags.IO))
	}
	p.Play()
	return p, nil
}

func rateMismatch(have, want int) error {
	return fault.New(fmt.Sprintf("audio context at %d Hz, requested %d Hz", have, want),
		fmsg.WithDesc("audio context already initialized", "Audio is already running at a different sample rate"),
		ftag.With(tags.InvalidArgument))
}
