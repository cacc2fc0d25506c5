package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"go-annotate/midi"
	"go-annotate/sequencer"
)

// SyncMsg carries the playback position published by the manager
type SyncMsg struct {
	Position float64
	Progress float64
	Playing  bool
}

// PlaybackMsg is a playback report (started, finished, errors)
type PlaybackMsg sequencer.Event

type DeviceEventMsg midi.DeviceEvent

// RemoteMsg is a command from the MIDI remote
type RemoteMsg midi.Command

// syncTarget hands positions to the UI without blocking the manager. Only
// the latest position is kept.
type syncTarget chan SyncMsg

func newSyncTarget() syncTarget { return make(syncTarget, 1) }

func (c syncTarget) Sync(position, progress float64, playing bool) {
	msg := SyncMsg{Position: position, Progress: progress, Playing: playing}
	for {
		select {
		case c <- msg:
			return
		default:
		}
		select {
		case <-c:
		default:
		}
	}
}

func listenForSync(c syncTarget) tea.Cmd {
	return func() tea.Msg {
		return <-c
	}
}

func listenForPlayback(manager *sequencer.Manager) tea.Cmd {
	return func() tea.Msg {
		return PlaybackMsg(<-manager.Watch())
	}
}

func listenForDevices(dm *midi.DeviceManager) tea.Cmd {
	return func() tea.Msg {
		return DeviceEventMsg(<-dm.Events())
	}
}

func listenForRemote(r *midi.Remote) tea.Cmd {
	return func() tea.Msg {
		return RemoteMsg(<-r.Commands())
	}
}
