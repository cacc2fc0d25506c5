package midi

import (
	"cmp"
	"slices"
)

// Flatten merges the notes of every track into one sequence ordered by
// start time. Notes that start together keep their track and file order.
func Flatten(tracks []Track) []NoteEvent {
	n := 0
	for _, t := range tracks {
		n += len(t.Notes)
	}
	out := make([]NoteEvent, 0, n)
	for _, t := range tracks {
		out = append(out, t.Notes...)
	}
	slices.SortStableFunc(out, func(a, b NoteEvent) int {
		return cmp.Compare(a.Start, b.Start)
	})
	return out
}
