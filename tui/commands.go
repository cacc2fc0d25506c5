package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"go-annotate/debug"
	"go-annotate/midi"
	"go-annotate/store"
)

const (
	storeTimeout = 10 * time.Second
	statusTTL    = 3 * time.Second
	advanceDelay = time.Second
)

type recordsMsg struct {
	records []store.Record
	err     error
}

type loadedMsg struct {
	fileID string
	piece  *midi.Piece
	err    error
}

type savedMsg struct {
	fileID string
	agree  bool
	err    error
}

type countMsg struct {
	n   int
	err error
}

type nextMsg struct {
	record *store.Record
	err    error
}

// advanceMsg fires after an annotation to move past the file
type advanceMsg struct{ from string }

type clearStatusMsg struct{ seq int }

func storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(debug.WithContext(context.Background()), storeTimeout)
}

func loadRecords(s store.Store) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := storeContext()
		defer cancel()
		recs, err := s.LoadAll(ctx)
		return recordsMsg{records: recs, err: err}
	}
}

// loadFile fetches and parses a file. Unparseable bytes still produce a
// placeholder piece alongside the error.
func loadFile(lib *midi.Library, fileID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := storeContext()
		defer cancel()
		data, err := lib.Fetch(ctx, fileID)
		if err != nil {
			return loadedMsg{fileID: fileID, err: err}
		}
		piece, err := midi.Load(data)
		return loadedMsg{fileID: fileID, piece: piece, err: err}
	}
}

func saveAnnotation(s store.Store, fileID string, agree bool) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := storeContext()
		defer cancel()
		err := s.SaveAnnotation(ctx, fileID, agree)
		return savedMsg{fileID: fileID, agree: agree, err: err}
	}
}

func countUnannotated(s store.Store) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := storeContext()
		defer cancel()
		n, err := s.CountUnannotated(ctx)
		return countMsg{n: n, err: err}
	}
}

func nextUnannotated(s store.Store, after string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := storeContext()
		defer cancel()
		rec, err := s.NextUnannotated(ctx, after)
		return nextMsg{record: rec, err: err}
	}
}

func advanceAfter(d time.Duration, from string) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return advanceMsg{from: from} })
}
