package midi

import (
	"bytes"
	"math/rand/v2"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"gitlab.com/gomidi/midi/v2/smf"

	"go-annotate/debug"
	"go-annotate/tags"
)

type noteKey struct {
	track   int
	channel uint8
	key     uint8
}

type openNote struct {
	start    float64
	velocity uint8
}

// Parse decodes a Standard MIDI File into a Piece. Note-on/note-off pairs
// are matched first-in first-out per track, channel and key. Notes left
// open at the end of a track release at the track's last event.
func Parse(data []byte) (*Piece, error) {
	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fault.Wrap(err,
			fmsg.WithDesc("read smf", "The MIDI file could not be read"),
			ftag.With(tags.Parse))
	}
	if len(s.Tracks) == 0 {
		return nil, fault.New("smf has no tracks",
			fmsg.WithDesc("smf has no tracks", "The MIDI file has no tracks"),
			ftag.With(tags.Parse))
	}

	p := &Piece{Tracks: make([]Track, len(s.Tracks))}
	for i, tr := range s.Tracks {
		p.Tracks[i].Name = trackName(tr)
	}

	open := make(map[noteKey][]openNote)
	lastEvent := make([]float64, len(s.Tracks))
	var end float64

	rd := smf.ReadTracksFrom(bytes.NewReader(data))
	rd.Do(func(ev smf.TrackEvent) {
		if ev.TrackNo < 0 || ev.TrackNo >= len(p.Tracks) {
			return
		}
		at := float64(ev.AbsMicroSeconds) / 1_000_000
		lastEvent[ev.TrackNo] = max(lastEvent[ev.TrackNo], at)

		var ch, key, vel uint8
		switch {
		case ev.Message.GetNoteStart(&ch, &key, &vel):
			k := noteKey{ev.TrackNo, ch, key}
			open[k] = append(open[k], openNote{start: at, velocity: vel})
		case ev.Message.GetNoteEnd(&ch, &key):
			k := noteKey{ev.TrackNo, ch, key}
			q := open[k]
			if len(q) == 0 {
				return
			}
			on := q[0]
			open[k] = q[1:]
			if addNote(&p.Tracks[ev.TrackNo], key, on, at) {
				end = max(end, at)
			}
		}
	})
	if err := rd.Error(); err != nil {
		return nil, fault.Wrap(err,
			fmsg.WithDesc("read smf tracks", "The MIDI file is damaged"),
			ftag.With(tags.Parse))
	}

	for k, q := range open {
		for _, on := range q {
			at := lastEvent[k.track]
			if addNote(&p.Tracks[k.track], k.key, on, at) {
				end = max(end, at)
			}
		}
	}

	if end == 0 {
		for _, at := range lastEvent {
			end = max(end, at)
		}
	}
	p.TotalDuration = end

	debug.Log("midi", "parsed %d tracks, %d notes, %.3fs", len(p.Tracks), p.NoteCount(), p.TotalDuration)
	return p, nil
}

func addNote(t *Track, key uint8, on openNote, at float64) bool {
	dur := at - on.start
	if dur <= 0 {
		debug.LogEvery(100, "midi", "dropping zero-length note %d at %.3f", key, on.start)
		return false
	}
	t.Notes = append(t.Notes, NoteEvent{
		Pitch:    key,
		Start:    on.start,
		Duration: dur,
		Velocity: on.velocity,
	})
	return true
}

func trackName(tr smf.Track) string {
	for _, ev := range tr {
		var name string
		if ev.Message.GetMetaTrackName(&name) {
			return name
		}
	}
	return ""
}

// Load parses data and falls back to a placeholder piece when the file
// cannot be decoded. The parse error is still returned so callers can
// report it.
func Load(data []byte) (*Piece, error) {
	p, err := Parse(data)
	if err == nil {
		return p, nil
	}
	debug.Log("midi", "parse failed, using placeholder: %v", err)
	return Placeholder(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))), err
}

// Placeholder size
const (
	placeholderNotes    = 50
	placeholderDuration = 30.0
)

// Placeholder builds 50 random notes spread over 30 seconds, two octaves
// up from middle C, so the rest of the pipeline has something to play.
func Placeholder(r *rand.Rand) *Piece {
	notes := make([]NoteEvent, placeholderNotes)
	for i := range notes {
		notes[i] = NoteEvent{
			Pitch:    uint8(60 + r.IntN(24)),
			Start:    float64(i)*0.5 + r.Float64()*0.2,
			Duration: 0.3 + r.Float64()*0.5,
			Velocity: uint8(64 + r.IntN(64)),
		}
	}
	return &Piece{
		TotalDuration: placeholderDuration,
		Tracks:        []Track{{Name: "placeholder", Notes: notes}},
		Placeholder:   true,
	}
}
