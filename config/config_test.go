package config

import (
	"os"
	"path/filepath"
	"testing"

	"go-annotate/tags"
)

func write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFromJSONKeepsDefaults(t *testing.T) {
	path := write(t, "config.json", `{"audio":{"backend":"synth","volume":150},"ui":{"lastFile":"x.mid"}}`)
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Audio.Backend != BackendSynth {
		t.Errorf("backend = %s", cfg.Audio.Backend)
	}
	if cfg.Audio.Volume != 100 {
		t.Errorf("volume = %d, want clamped 100", cfg.Audio.Volume)
	}
	if cfg.Audio.SampleRate != 44100 || cfg.Server.Addr != ":3000" || cfg.UI.Speed != 1 {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if cfg.UI.LastFile != "x.mid" || cfg.Path() != path {
		t.Errorf("ui = %+v, path = %s", cfg.UI, cfg.Path())
	}
}

func TestLoadFromYAML(t *testing.T) {
	path := write(t, "config.yaml", `
audio:
  backend: midi
  midiPort: IAC Driver Bus 1
  volume: 40
store:
  kind: remote
  url: http://localhost:3000
ui:
  speed: 0.5
`)
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Audio.Backend != BackendMIDI || cfg.Audio.MIDIPort != "IAC Driver Bus 1" || cfg.Audio.Volume != 40 {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Store.Kind != "remote" || cfg.Store.URL != "http://localhost:3000" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.UI.Speed != 0.5 {
		t.Errorf("speed = %v", cfg.UI.Speed)
	}
}

func TestLoadFromErrors(t *testing.T) {
	if _, err := LoadFrom(filepath.Join(t.TempDir(), "none.json")); !tags.Is(err, tags.NotFound) {
		t.Errorf("missing = %v", err)
	}
	if _, err := LoadFrom(write(t, "bad.json", "audio: [")); !tags.Is(err, tags.Parse) {
		t.Errorf("garbage = %v", err)
	}
}

func TestUnknownBackendFallsBack(t *testing.T) {
	cfg, err := LoadFrom(write(t, "config.json", `{"audio":{"backend":"theremin","volume":50}}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Audio.Backend != BackendSampler {
		t.Errorf("backend = %s", cfg.Audio.Backend)
	}
}

func TestSaveAndReload(t *testing.T) {
	for _, name := range []string{"config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := write(t, name, "{}")
			cfg, err := LoadFrom(path)
			if err != nil {
				t.Fatal(err)
			}
			cfg.UI.LastFile = "song.mid"
			cfg.UI.Speed = 1.5
			if err := cfg.Save(); err != nil {
				t.Fatal(err)
			}

			again, err := LoadFrom(path)
			if err != nil {
				t.Fatal(err)
			}
			if again.UI.LastFile != "song.mid" || again.UI.Speed != 1.5 || again.Audio.Volume != 70 {
				t.Errorf("reloaded = %+v", again)
			}
		})
	}
}
