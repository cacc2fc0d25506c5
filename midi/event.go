package midi

// NoteEvent is one note of a parsed piece. Times are in seconds from the
// start of the piece.
type NoteEvent struct {
	Pitch    uint8   `json:"pitch"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Velocity uint8   `json:"velocity"`
}

// End returns the time the note releases.
func (n NoteEvent) End() float64 {
	return n.Start + n.Duration
}

// Track holds the notes of a single SMF track in file order
type Track struct {
	Name  string      `json:"name,omitempty"`
	Notes []NoteEvent `json:"notes"`
}

// Piece is a parsed MIDI file
type Piece struct {
	TotalDuration float64 `json:"totalDuration"`
	Tracks        []Track `json:"tracks"`

	// Placeholder is set when the notes were synthesized because the file
	// could not be parsed.
	Placeholder bool `json:"placeholder,omitempty"`
}

// NoteCount returns the number of notes across all tracks
func (p *Piece) NoteCount() int {
	if p == nil {
		return 0
	}
	n := 0
	for _, t := range p.Tracks {
		n += len(t.Notes)
	}
	return n
}

// PitchRange returns the lowest and highest pitch in the piece.
// An empty piece reports middle C for both.
func (p *Piece) PitchRange() (lo, hi uint8) {
	lo, hi = 127, 0
	for _, t := range p.Tracks {
		for _, n := range t.Notes {
			lo = min(lo, n.Pitch)
			hi = max(hi, n.Pitch)
		}
	}
	if lo > hi {
		return 60, 60
	}
	return lo, hi
}
