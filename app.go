package main

import (
	"fmt"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"

	"go-annotate/audio"
	"go-annotate/audio/device"
	"go-annotate/config"
	"go-annotate/debug"
	"go-annotate/midi"
	"go-annotate/sequencer"
	"go-annotate/store"
	"go-annotate/tags"
)

// noteSink is what the app needs from either sink family
type noteSink interface {
	sequencer.Sink
	SetVolume(gain float64)
	Close() error
}

// openSink builds the sink the config selects. The returned function maps
// the volume percent to that sink's gain.
func openSink(cfg *config.Config, dm *midi.DeviceManager) (noteSink, func(int) float64, error) {
	ac := cfg.Audio
	if ac.Backend == config.BackendMIDI {
		dm.Scan()
		port := ac.MIDIPort
		if port == "" {
			ports := dm.Ports()
			if len(ports) == 0 {
				return nil, nil, fault.New("no midi output ports",
					fmsg.WithDesc("no midi output ports", "No MIDI output is connected"),
					ftag.With(tags.NotFound))
			}
			port = ports[0]
		}
		debug.Log("audio", "midi output %q channel %d", port, ac.Channel)
		sink, err := midi.NewOutputSink(dm, port, uint8(ac.Channel))
		if err != nil {
			return nil, nil, err
		}
		return sink, func(p int) float64 { return float64(p) / 100 }, nil
	}

	out, err := audio.New(audio.Config{
		Backend:    audio.Kind(ac.Backend),
		SoundFont:  ac.SoundFont,
		Program:    ac.Program,
		SampleRate: ac.SampleRate,
		Volume:     ac.Volume,
	}, device.Opener(ac.Output))
	if err != nil {
		return nil, nil, err
	}
	return out, audio.MasterGain, nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Kind {
	case "", "csv":
		return store.NewCSVStore(cfg.Store.CSVPath), nil
	case "remote":
		if cfg.Store.URL == "" {
			return nil, fault.New("remote store without url",
				fmsg.WithDesc("remote store without url", "Set store.url in the config"),
				ftag.With(tags.InvalidArgument))
		}
		return store.NewRemote(cfg.Store.URL, nil), nil
	}
	return nil, fault.New(fmt.Sprintf("unknown store kind %q", cfg.Store.Kind),
		fmsg.WithDesc("unknown store kind", "store.kind must be csv or remote"),
		ftag.With(tags.InvalidArgument))
}

// progressLogger logs the playback position about once a second
func progressLogger(every time.Duration) sequencer.SyncFunc {
	var last time.Time
	return func(position, progress float64, playing bool) {
		if !playing || time.Since(last) < every {
			return
		}
		last = time.Now()
		debug.Logger().Info("playing", "position", fmt.Sprintf("%.1fs", position), "progress", fmt.Sprintf("%.0f%%", progress*100))
	}
}
