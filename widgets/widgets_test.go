package widgets

import (
	"strings"
	"testing"

	"go-annotate/midi"
	"go-annotate/store"
	"go-annotate/theme"
)

func testPiece() *midi.Piece {
	return &midi.Piece{
		TotalDuration: 8,
		Tracks: []midi.Track{{Notes: []midi.NoteEvent{
			{Pitch: 60, Start: 0, Duration: 1, Velocity: 100},
			{Pitch: 64, Start: 2, Duration: 0.5, Velocity: 80},
		}}},
	}
}

func TestCursorColumnAndTimeAt(t *testing.T) {
	p := NewPianoRoll()
	p.SetPiece(testPiece(), nil)

	if got := p.CursorColumn(0); got != p.KeyWidth {
		t.Errorf("CursorColumn(0) = %d, want %d", got, p.KeyWidth)
	}
	if got := p.CursorColumn(2.5); got != p.KeyWidth+10 {
		t.Errorf("CursorColumn(2.5) = %d", got)
	}

	if _, ok := p.TimeAt(2); ok {
		t.Error("TimeAt over key labels reported a time")
	}
	if got, ok := p.TimeAt(p.KeyWidth + 10); !ok || got != 2.5 {
		t.Errorf("TimeAt = %v, %v", got, ok)
	}
	if got, _ := p.TimeAt(p.KeyWidth + 60); got != 8 {
		t.Errorf("TimeAt past end = %v, want clamped 8", got)
	}
}

func TestFollowPages(t *testing.T) {
	p := NewPianoRoll()
	p.Width = 40 // 10s per page
	p.Follow(3)
	if p.Offset != 0 {
		t.Errorf("offset = %v", p.Offset)
	}
	p.Follow(12)
	if p.Offset != 10 {
		t.Errorf("offset = %v, want 10", p.Offset)
	}
	if got := p.CursorColumn(12); got != p.KeyWidth+8 {
		t.Errorf("CursorColumn after paging = %d", got)
	}
	p.Follow(1)
	if p.Offset != 0 {
		t.Errorf("offset = %v after scrubbing back", p.Offset)
	}
}

func TestPianoRollView(t *testing.T) {
	th := theme.New(theme.Default())
	p := NewPianoRoll()
	p.Width = 40
	p.SetPiece(testPiece(), store.Sections([]store.Timestamp{{Section: "B", Time: 4}}, 8))

	out := p.View(th, 1, true)
	lines := strings.Split(out, "\n")
	// pitches 59..65 plus the ruler
	if len(lines) != 8 {
		t.Fatalf("got %d lines:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], "F4") || !strings.Contains(lines[6], "B3") {
		t.Errorf("row labels:\n%s", out)
	}
	if strings.Count(out, "●") != 2 {
		t.Errorf("want two onsets:\n%s", out)
	}
	if !strings.Contains(out, "│") || !strings.Contains(lines[7], "^") {
		t.Errorf("cursor missing:\n%s", out)
	}
	if !strings.Contains(out, "-") {
		t.Errorf("columns past the end not marked:\n%s", out)
	}

	hidden := p.View(th, 1, false)
	if strings.Contains(hidden, "│") {
		t.Error("cursor drawn while hidden")
	}
}

func TestProgress(t *testing.T) {
	th := theme.New(theme.Default())
	bar := RenderProgress(th, 10, 0.3)
	if strings.Count(bar, "█") != 3 || strings.Count(bar, "░") != 7 {
		t.Errorf("bar = %q", bar)
	}
	if got := ProgressTime(4, 10, 20); got != 9 {
		t.Errorf("ProgressTime = %v", got)
	}
	if got := ProgressTime(99, 10, 20); got != 20 {
		t.Errorf("ProgressTime past bar = %v", got)
	}
	if got := FormatTime(75.25); got != "1:15.2" && got != "1:15.3" {
		t.Errorf("FormatTime = %s", got)
	}
}

func TestRenderKeyLine(t *testing.T) {
	got := RenderKeyLine([]KeyBinding{{"space", "play"}, {"q", "quit"}})
	if got != "space:play  q:quit" {
		t.Errorf("got %q", got)
	}
}
