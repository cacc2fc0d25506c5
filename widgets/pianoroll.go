package widgets

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"go-annotate/midi"
	"go-annotate/store"
	"go-annotate/theme"
)

var noteNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// PianoRoll renders a piece as a pitch by time grid with the predicted
// structure shaded behind it. Column 0 of the note area is Offset seconds.
type PianoRoll struct {
	KeyWidth      int
	ColsPerSecond float64
	Width         int // note columns
	Rows          int
	Offset        float64

	byPitch  map[uint8][]midi.NoteEvent
	lo, hi   uint8
	total    float64
	sections []store.Section
}

func NewPianoRoll() *PianoRoll {
	return &PianoRoll{
		KeyWidth:      5,
		ColsPerSecond: 4,
		Width:         64,
		Rows:          20,
		byPitch:       map[uint8][]midi.NoteEvent{},
		lo:            60,
		hi:            60,
	}
}

// SetPiece indexes notes by pitch and resets the scroll
func (p *PianoRoll) SetPiece(piece *midi.Piece, sections []store.Section) {
	p.byPitch = map[uint8][]midi.NoteEvent{}
	p.sections = sections
	p.Offset = 0
	p.total = 0
	p.lo, p.hi = 60, 60
	if piece == nil {
		return
	}
	p.total = piece.TotalDuration
	p.lo, p.hi = piece.PitchRange()
	for _, n := range midi.Flatten(piece.Tracks) {
		p.byPitch[n.Pitch] = append(p.byPitch[n.Pitch], n)
	}
}

// Span is the number of seconds visible at once
func (p *PianoRoll) Span() float64 {
	return float64(p.Width) / p.ColsPerSecond
}

// CursorColumn is the screen column of pos, counting the key labels
func (p *PianoRoll) CursorColumn(pos float64) int {
	return p.KeyWidth + int(math.Floor((pos-p.Offset)*p.ColsPerSecond))
}

// TimeAt maps a screen column back to seconds. Columns over the key
// labels report false.
func (p *PianoRoll) TimeAt(x int) (float64, bool) {
	if x < p.KeyWidth || x >= p.KeyWidth+p.Width {
		return 0, false
	}
	t := p.Offset + float64(x-p.KeyWidth)/p.ColsPerSecond
	return min(t, p.total), true
}

// Follow pages the view so pos is on screen
func (p *PianoRoll) Follow(pos float64) {
	span := p.Span()
	if span <= 0 {
		return
	}
	if pos < p.Offset || pos >= p.Offset+span {
		p.Offset = math.Floor(pos/span) * span
	}
}

// pitches returns the rows top to bottom
func (p *PianoRoll) pitches() []uint8 {
	lo, hi := int(p.lo)-1, int(p.hi)+1
	if n := hi - lo + 1; n > p.Rows {
		mid := (lo + hi) / 2
		lo = mid - p.Rows/2
		hi = lo + p.Rows - 1
	}
	lo, hi = max(lo, 0), min(hi, 127)
	out := make([]uint8, 0, hi-lo+1)
	for pitch := hi; pitch >= lo; pitch-- {
		out = append(out, uint8(pitch))
	}
	return out
}

func (p *PianoRoll) sectionAt(t float64) string {
	return store.SectionAt(p.sections, t)
}

func (p *PianoRoll) cell(pitch uint8, from, to float64) (rune, uint8) {
	var sounding int
	var onset bool
	var vel uint8
	for _, n := range p.byPitch[pitch] {
		if n.Start >= to {
			break
		}
		if n.End() > from {
			sounding++
			vel = max(vel, n.Velocity)
			if n.Start >= from {
				onset = true
			}
		}
	}
	switch {
	case onset:
		return '●', vel
	case sounding > 1:
		return '═', vel
	case sounding == 1:
		return '─', vel
	}
	return 0, 0
}

// View draws the grid. The cursor column is drawn when showCursor is set.
func (p *PianoRoll) View(th *theme.Theme, cursor float64, showCursor bool) string {
	colSecs := 1 / p.ColsPerSecond
	cursorCol := -1
	if showCursor {
		cursorCol = p.CursorColumn(cursor) - p.KeyWidth
	}

	keyStyle := lipgloss.NewStyle().Foreground(th.Muted()).Width(p.KeyWidth)
	cursorStyle := lipgloss.NewStyle().Foreground(th.Cursor())
	emptyStyle := lipgloss.NewStyle().Foreground(th.Muted())

	// section shading is per column, shared by every row
	shade := make([]lipgloss.Style, p.Width)
	for col := range shade {
		t := p.Offset + float64(col)*colSecs
		shade[col] = lipgloss.NewStyle().Background(th.Section(p.sectionAt(t)))
	}

	var out strings.Builder
	for _, pitch := range p.pitches() {
		out.WriteString(keyStyle.Render(fmt.Sprintf("%2s%d", noteNames[pitch%12], int(pitch)/12-1)))
		for col := 0; col < p.Width; col++ {
			from := p.Offset + float64(col)*colSecs
			if from >= p.total {
				out.WriteString(emptyStyle.Render(string(th.Symbols.Beyond)))
				continue
			}
			r, vel := p.cell(pitch, from, from+colSecs)
			switch {
			case r != 0:
				out.WriteString(shade[col].Foreground(th.Velocity(vel)).Render(string(r)))
			case col == cursorCol:
				out.WriteString(shade[col].Inherit(cursorStyle).Render(string(th.Symbols.Playhead)))
			default:
				out.WriteString(shade[col].Foreground(th.Muted()).Render(string(th.Symbols.Empty)))
			}
		}
		out.WriteString("\n")
	}
	out.WriteString(p.ruler(th, cursorCol))
	return out.String()
}

// ruler labels every fourth second and marks the cursor
func (p *PianoRoll) ruler(th *theme.Theme, cursorCol int) string {
	line := []rune(strings.Repeat(" ", p.KeyWidth+p.Width))
	every := int(4 * p.ColsPerSecond)
	for col := 0; col < p.Width; col += max(every, 1) {
		label := fmt.Sprintf("%ds", int(p.Offset+float64(col)/p.ColsPerSecond))
		for i, r := range label {
			if x := p.KeyWidth + col + i; x < len(line) {
				line[x] = r
			}
		}
	}
	if cursorCol >= 0 && cursorCol < p.Width {
		line[p.KeyWidth+cursorCol] = '^'
	}
	return lipgloss.NewStyle().Foreground(th.Muted()).Render(string(line))
}
