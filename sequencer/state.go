package sequencer

// State is the playback state owned by the Manager. Callers only ever see
// copies through Manager.Snapshot.
type State struct {
	Playing       bool    `json:"playing"`
	Position      float64 `json:"position"`
	TotalDuration float64 `json:"totalDuration"`
	Speed         float64 `json:"speed"`
	CursorVisible bool    `json:"cursorVisible"`
}

// Progress returns position as a fraction of the piece in [0, 1]
func (s State) Progress() float64 {
	return progress(s.Position, s.TotalDuration)
}

func progress(pos, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return min(max(pos/total, 0), 1)
}

func clamp(pos, total float64) float64 {
	return min(max(pos, 0), max(total, 0))
}

// EventKind identifies a playback report
type EventKind int

const (
	EventStarted EventKind = iota
	EventPaused
	EventStopped
	EventFinished
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventPaused:
		return "paused"
	case EventStopped:
		return "stopped"
	case EventFinished:
		return "finished"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event is a report from the Manager. Err is set for EventError.
type Event struct {
	Kind EventKind
	Err  error
}

// Speed presets offered by the UI
var SpeedPresets = []float64{0.25, 0.5, 0.75, 1, 1.25, 1.5, 2}

// NextSpeed returns the preset above (dir > 0) or below (dir < 0) the
// current speed, staying at the ends.
func NextSpeed(current float64, dir int) float64 {
	const eps = 1e-9
	if dir > 0 {
		for _, s := range SpeedPresets {
			if s > current+eps {
				return s
			}
		}
		return SpeedPresets[len(SpeedPresets)-1]
	}
	for i := len(SpeedPresets) - 1; i >= 0; i-- {
		if SpeedPresets[i] < current-eps {
			return SpeedPresets[i]
		}
	}
	return SpeedPresets[0]
}
