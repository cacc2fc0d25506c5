package audio

import "sync"

// Voice produces mono samples in [-1, 1] until it reports done
type Voice interface {
	Sample() (float64, bool)
}

// Mixer sums active voices into a stereo stream. Voices start on the next
// rendered frame.
type Mixer struct {
	mu     sync.Mutex
	voices []Voice
	gain   float64
}

func NewMixer() *Mixer {
	return &Mixer{gain: 1}
}

// Add starts a voice
func (m *Mixer) Add(v Voice) {
	m.mu.Lock()
	m.voices = append(m.voices, v)
	m.mu.Unlock()
}

// SetGain sets the output gain. 1 is unity.
func (m *Mixer) SetGain(g float64) {
	m.mu.Lock()
	m.gain = max(g, 0)
	m.mu.Unlock()
}

// Active returns the number of sounding voices
func (m *Mixer) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// Reset drops every voice
func (m *Mixer) Reset() {
	m.mu.Lock()
	m.voices = nil
	m.mu.Unlock()
}

func (m *Mixer) Process(dst []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := 0; i+1 < len(dst); i += 2 {
		var sum float64
		live := m.voices[:0]
		for _, v := range m.voices {
			s, done := v.Sample()
			sum += s
			if !done {
				live = append(live, v)
			}
		}
		clear(m.voices[len(live):])
		m.voices = live

		out := float32(min(max(sum*m.gain, -1), 1))
		dst[i] = out
		dst[i+1] = out
	}
}
