package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"

	"go-stepseq/debug"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// TimingConfig holds the fixed musical resolution and frame cadence.
type TimingConfig struct {
	PPQN            int     `json:"ppqn"`
	BeatsPerPattern int     `json:"beatsPerPattern"`
	FrameRate       int     `json:"frameRate"`
	DefaultBPM      float64 `json:"defaultBpm"`
}

// LayoutConfig fixes the arrangement shape: patterns x tracks x steps.
type LayoutConfig struct {
	Patterns int `json:"patterns"`
	Tracks   int `json:"tracks"`
	Steps    int `json:"steps"`
}

// OutputConfig defines the synth MIDI output
type OutputConfig struct {
	PortName string `json:"portName,omitempty"`
	// Channels maps track index to MIDI channel (0-15). Missing entries use the track index.
	Channels       []int `json:"channels,omitempty"`
	NoteOffGuardMs int   `json:"noteOffGuardMs,omitempty"`
}

// UIConfig stores UI preferences
type UIConfig struct {
	LastTempo   int    `json:"lastTempo,omitempty"`
	LastProject string `json:"lastProject,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Timing TimingConfig `json:"timing"`
	Layout LayoutConfig `json:"layout"`
	Output OutputConfig `json:"output,omitempty"`
	UI     UIConfig     `json:"ui,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Timing: TimingConfig{
			PPQN:            480,
			BeatsPerPattern: 4,
			FrameRate:       60,
			DefaultBPM:      120,
		},
		Layout: LayoutConfig{
			Patterns: 16,
			Tracks:   4,
			Steps:    16,
		},
		UI: UIConfig{
			LastTempo: 120,
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-stepseq"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads the config at path. Fields absent from the file keep their defaults.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			debug.Log("config", "no config at %s, using defaults", path)
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fault.Wrap(err, fmsg.With("parse "+path))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	debug.Log("config", "loaded %s", path)
	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the config to path, creating its directory.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate checks the values the sequencer cannot run without.
func (c *Config) Validate() error {
	switch {
	case c.Timing.PPQN <= 0:
		return fault.Wrap(ErrInvalid, fmsg.With("timing.ppqn must be positive"))
	case c.Timing.BeatsPerPattern <= 0:
		return fault.Wrap(ErrInvalid, fmsg.With("timing.beatsPerPattern must be positive"))
	case c.Timing.FrameRate <= 0 || c.Timing.FrameRate > 1000:
		return fault.Wrap(ErrInvalid, fmsg.With("timing.frameRate must be in 1..1000"))
	case c.Timing.DefaultBPM <= 0:
		return fault.Wrap(ErrInvalid, fmsg.With("timing.defaultBpm must be positive"))
	case c.Layout.Patterns <= 0 || c.Layout.Tracks <= 0:
		return fault.Wrap(ErrInvalid, fmsg.With("layout needs at least one pattern and one track"))
	case c.Layout.Tracks > 16:
		return fault.Wrap(ErrInvalid, fmsg.With("layout.tracks is limited to 16 MIDI channels"))
	case c.Layout.Steps < 0:
		return fault.Wrap(ErrInvalid, fmsg.With("layout.steps must not be negative"))
	}
	for _, ch := range c.Output.Channels {
		if ch < 0 || ch > 15 {
			return fault.Wrap(ErrInvalid, fmsg.With("output.channels entries must be 0..15"))
		}
	}
	return nil
}

// MIDIChannel returns the MIDI channel for a track index.
func (c *Config) MIDIChannel(track int) uint8 {
	if track >= 0 && track < len(c.Output.Channels) {
		return uint8(c.Output.Channels[track])
	}
	return uint8(track & 0x0f)
}

// PatternDuration is the pattern length in ticks.
func (c *Config) PatternDuration() int {
	return c.Timing.BeatsPerPattern * c.Timing.PPQN
}
