package main

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"go-annotate/debug"
	"go-annotate/midi"
	"go-annotate/sequencer"
	"go-annotate/theme"
	"go-annotate/tui"
)

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	setupDebug(cfg)
	defer debug.Disable()

	palette, err := theme.LoadGPL(cfg.UI.Palette)
	if err != nil {
		debug.Log("ui", "palette %q: %v", cfg.UI.Palette, err)
		palette = theme.Default()
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}

	// Create MIDI device manager (handles hot-plug)
	deviceMgr := midi.NewDeviceManager()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go deviceMgr.Run(ctx)

	manager := sequencer.NewManager()
	deps := tui.Deps{
		Manager:   manager,
		Store:     st,
		Library:   midi.NewLibrary(cfg.Library.MIDIDir, cfg.Library.BaseURL),
		Theme:     theme.New(palette),
		Config:    cfg,
		DeviceMgr: deviceMgr,
	}

	if port := cfg.Audio.RemotePort; port != "" {
		remote, err := midi.NewRemote(port, midi.DefaultBindings)
		if err != nil {
			debug.Log("midi", "remote %q: %v", port, err)
		} else {
			defer remote.Close()
			deps.Remote = remote
		}
	}

	// without a sink the UI still works and Play reports the problem
	sink, gain, err := openSink(cfg, deviceMgr)
	if err != nil {
		debug.Log("audio", "no sink: %v", err)
	} else {
		defer sink.Close()
		manager.SetSink(sink)
		deps.Volume, deps.VolumeGain = sink, gain
	}

	p := tea.NewProgram(tui.NewModel(deps), tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err = p.Run()
	manager.Stop()
	return err
}
