package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"gopkg.in/yaml.v3"

	"go-annotate/tags"
)

// Backend identifies how notes are rendered
type Backend string

const (
	BackendSampler Backend = "sampler"
	BackendSynth   Backend = "synth"
	BackendMIDI    Backend = "midi"
)

// AudioConfig selects the note sink
type AudioConfig struct {
	Backend    Backend `json:"backend" yaml:"backend"`
	Output     string  `json:"output,omitempty" yaml:"output,omitempty"` // oto or ebiten
	SoundFont  string  `json:"soundFont,omitempty" yaml:"soundFont,omitempty"`
	Program    int     `json:"program,omitempty" yaml:"program,omitempty"`
	SampleRate int     `json:"sampleRate,omitempty" yaml:"sampleRate,omitempty"`
	MIDIPort   string  `json:"midiPort,omitempty" yaml:"midiPort,omitempty"`
	Channel    int     `json:"channel,omitempty" yaml:"channel,omitempty"`
	Volume     int     `json:"volume" yaml:"volume"` // percent

	// RemotePort is a MIDI input used as a remote control
	RemotePort string `json:"remotePort,omitempty" yaml:"remotePort,omitempty"`
}

// StoreConfig selects the annotation store
type StoreConfig struct {
	Kind    string `json:"kind" yaml:"kind"` // csv or remote
	CSVPath string `json:"csvPath,omitempty" yaml:"csvPath,omitempty"`
	URL     string `json:"url,omitempty" yaml:"url,omitempty"`
}

// LibraryConfig says where MIDI bytes come from. A base URL wins over the
// directory.
type LibraryConfig struct {
	MIDIDir string `json:"midiDir,omitempty" yaml:"midiDir,omitempty"`
	BaseURL string `json:"baseURL,omitempty" yaml:"baseURL,omitempty"`
}

// ServerConfig is the legacy HTTP server
type ServerConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	CSVPath   string `json:"csvPath,omitempty" yaml:"csvPath,omitempty"`
	MIDIDir   string `json:"midiDir,omitempty" yaml:"midiDir,omitempty"`
	StaticDir string `json:"staticDir,omitempty" yaml:"staticDir,omitempty"`
}

// UIConfig stores UI preferences
type UIConfig struct {
	Palette  string  `json:"palette,omitempty" yaml:"palette,omitempty"`
	Speed    float64 `json:"speed,omitempty" yaml:"speed,omitempty"`
	LastFile string  `json:"lastFile,omitempty" yaml:"lastFile,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Audio   AudioConfig   `json:"audio" yaml:"audio"`
	Store   StoreConfig   `json:"store" yaml:"store"`
	Library LibraryConfig `json:"library" yaml:"library"`
	Server  ServerConfig  `json:"server" yaml:"server"`
	UI      UIConfig      `json:"ui,omitempty" yaml:"ui,omitempty"`
	Debug   bool          `json:"debug,omitempty" yaml:"debug,omitempty"`

	path string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Audio: AudioConfig{
			Backend:    BackendSampler,
			Output:     "oto",
			SampleRate: 44100,
			Volume:     70,
		},
		Store: StoreConfig{
			Kind:    "csv",
			CSVPath: "included_files.csv",
		},
		Library: LibraryConfig{
			MIDIDir: "midi",
		},
		Server: ServerConfig{
			Addr:      ":3000",
			CSVPath:   "included_files.csv",
			MIDIDir:   "midi",
			StaticDir: ".",
		},
		UI: UIConfig{
			Speed: 1,
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-annotate"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads config.json, then config.yaml, or returns defaults if
// neither exists
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	for _, p := range []string{path, strings.TrimSuffix(path, ".json") + ".yaml"} {
		cfg, err := LoadFrom(p)
		if err == nil {
			return cfg, nil
		}
		if !tags.Is(err, tags.NotFound) {
			return nil, err
		}
	}
	cfg := DefaultConfig()
	cfg.path = path
	return cfg, nil
}

// LoadFrom reads one file. JSON is tried first, then YAML. Fields the file
// leaves out keep their defaults.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		kind := tags.IO
		if os.IsNotExist(err) {
			kind = tags.NotFound
		}
		return nil, fault.Wrap(err,
			fctx.With(fctx.WithMeta(context.Background(), "path", path)),
			fmsg.WithDesc("read config", "The config file could not be read"),
			ftag.With(kind))
	}

	cfg := DefaultConfig()
	if errJSON := json.Unmarshal(data, cfg); errJSON != nil {
		cfg = DefaultConfig()
		if errYAML := yaml.Unmarshal(data, cfg); errYAML != nil {
			return nil, fault.Wrap(errYAML,
				fmsg.WithDesc("config is neither json ("+errJSON.Error()+") nor yaml",
					"The config file could not be parsed"),
				ftag.With(tags.Parse))
		}
	}
	cfg.path = path
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	switch c.Audio.Backend {
	case BackendSampler, BackendSynth, BackendMIDI:
	default:
		c.Audio.Backend = BackendSampler
	}
	c.Audio.Volume = min(max(c.Audio.Volume, 0), 100)
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = 44100
	}
	if !(c.UI.Speed > 0) {
		c.UI.Speed = 1
	}
}

// Path is the file the config was loaded from or will be saved to
func (c *Config) Path() string {
	if c.path != "" {
		return c.path
	}
	p, _ := ConfigPath()
	return p
}

// Save writes the config to disk as JSON, or YAML when loaded from a
// .yaml file
func (c *Config) Save() error {
	path := c.Path()
	if path == "" {
		return fault.New("no config path", ftag.With(tags.Precondition))
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fault.Wrap(err, fmsg.With("create config dir"), ftag.With(tags.IO))
	}

	var data []byte
	var err error
	if ext := filepath.Ext(path); ext == ".yaml" || ext == ".yml" {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fault.Wrap(err, fmsg.With("encode config"))
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fault.Wrap(err, fmsg.With("write config"), ftag.With(tags.IO))
	}
	return nil
}
