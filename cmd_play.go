package main

import (
	"os"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/spf13/cobra"

	"go-annotate/debug"
	"go-annotate/midi"
	"go-annotate/sequencer"
	"go-annotate/tags"
)

var playFlags struct {
	speed float64
	from  float64
}

var playCmd = &cobra.Command{
	Use:   "play FILE",
	Short: "Play a MIDI file without the UI",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlay,
}

func init() {
	playCmd.Flags().Float64Var(&playFlags.speed, "speed", 1, "Playback speed")
	playCmd.Flags().Float64Var(&playFlags.from, "from", 0, "Start position in seconds")
}

func runPlay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupDebug(cfg)
	if !debug.Enabled() {
		debug.SetOutput(os.Stderr)
	}
	defer debug.Disable()
	log := debug.Logger()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fault.Wrap(err, fmsg.WithDesc("read "+args[0], "The MIDI file could not be read"), ftag.With(tags.IO))
	}
	piece, err := midi.Load(data)
	if err != nil {
		log.Warn("could not parse, playing sample notes", "err", err)
	}
	lo, hi := piece.PitchRange()
	log.Info("loaded", "file", args[0], "notes", piece.NoteCount(), "duration", time.Duration(piece.TotalDuration*float64(time.Second)).Round(time.Millisecond), "pitches", []uint8{lo, hi})

	sink, gain, err := openSink(cfg, midi.NewDeviceManager())
	if err != nil {
		return err
	}
	defer sink.Close()
	sink.SetVolume(gain(cfg.Audio.Volume))

	manager := sequencer.NewManager(
		sequencer.WithSink(sink),
		sequencer.WithSyncTarget(progressLogger(time.Second)),
	)
	manager.Load(piece)
	if err := manager.SetSpeed(playFlags.speed); err != nil {
		return err
	}
	manager.Scrub(playFlags.from)
	if err := manager.Resume(); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	for {
		select {
		case <-ctx.Done():
			manager.Stop()
			return nil
		case ev := <-manager.Watch():
			switch ev.Kind {
			case sequencer.EventFinished:
				log.Info("finished")
				// let the last notes ring out
				time.Sleep(time.Second)
				return nil
			case sequencer.EventError:
				log.Error("playback", "err", ev.Err)
			}
		}
	}
}
