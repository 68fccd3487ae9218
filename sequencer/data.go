package sequencer

import (
	"math/rand"
)

// Plain records exchanged with persistence. Field names follow the project file format.

type StepData struct {
	Channel  int `json:"channel" yaml:"channel"`
	Pitch    int `json:"pitch" yaml:"pitch"`
	Velocity int `json:"velocity" yaml:"velocity"`
	Start    int `json:"start" yaml:"start"`
	Duration int `json:"duration" yaml:"duration"`
}

type TrackData struct {
	// Length is the loop length in ticks; 0 means the pattern duration.
	Length int        `json:"length,omitempty" yaml:"length,omitempty"`
	Steps  []StepData `json:"steps" yaml:"steps"`
}

type PatternData struct {
	Tracks []TrackData `json:"tracks" yaml:"tracks"`
}

type InstrumentData struct {
	Name   string         `json:"name" yaml:"name"`
	Preset map[string]any `json:"preset,omitempty" yaml:"preset,omitempty"`
}

type ChannelData struct {
	Mute  bool    `json:"mute" yaml:"mute"`
	Solo  bool    `json:"solo" yaml:"solo"`
	Pan   float64 `json:"pan" yaml:"pan"`
	Level float64 `json:"level" yaml:"level"`
}

// RackData is the per-channel instrument and mixer strip. The core carries it
// through untouched.
type RackData struct {
	Instrument InstrumentData `json:"instrument" yaml:"instrument"`
	Channel    ChannelData    `json:"channel" yaml:"channel"`
}

type ProjectData struct {
	BPM      float64       `json:"bpm" yaml:"bpm"`
	Patterns []PatternData `json:"patterns" yaml:"patterns"`
	Racks    []RackData    `json:"racks,omitempty" yaml:"racks,omitempty"`
}

// Layout fixes the shape every project must have.
type Layout struct {
	PPQN            int
	BeatsPerPattern int
	Patterns        int
	Tracks          int
	Steps           int // 0 = any step count
}

// DefaultLayout is 16 patterns of 4 tracks x 16 steps at 480 PPQN.
func DefaultLayout() Layout {
	return Layout{PPQN: 480, BeatsPerPattern: 4, Patterns: 16, Tracks: 4, Steps: 16}
}

// PatternDuration is the pattern length in ticks.
func (l Layout) PatternDuration() int {
	return l.BeatsPerPattern * l.PPQN
}

// StepDuration is the grid spacing used by the generators.
func (l Layout) StepDuration() int {
	if l.Steps <= 0 {
		return max(1, l.PPQN/4)
	}
	return l.PatternDuration() / l.Steps
}

func (l Layout) validate() error {
	switch {
	case l.PPQN <= 0:
		return configError(ErrMalformedData, "ppqn %d must be positive", l.PPQN)
	case l.BeatsPerPattern <= 0:
		return configError(ErrMalformedData, "beats per pattern %d must be positive", l.BeatsPerPattern)
	case l.Patterns <= 0 || l.Tracks <= 0:
		return configError(ErrMalformedData, "layout needs patterns and tracks, got %dx%d", l.Patterns, l.Tracks)
	case l.Steps < 0 || l.Steps > l.PatternDuration():
		return configError(ErrMalformedData, "step count %d does not fit %d ticks", l.Steps, l.PatternDuration())
	}
	return nil
}

// EmptyData builds a silent project: every step present on the grid with
// velocity 0, middle C, half a step long.
func EmptyData(l Layout) ProjectData {
	stepDuration := l.StepDuration()
	steps := l.Steps
	if steps <= 0 {
		steps = l.PatternDuration() / stepDuration
	}

	data := ProjectData{BPM: 100}
	for i := 0; i < l.Patterns; i++ {
		pd := PatternData{Tracks: make([]TrackData, l.Tracks)}
		for j := 0; j < l.Tracks; j++ {
			td := TrackData{Steps: make([]StepData, steps)}
			for k := 0; k < steps; k++ {
				td.Steps[k] = StepData{
					Channel:  j,
					Pitch:    60,
					Velocity: 0,
					Start:    k * stepDuration,
					Duration: stepDuration / 2,
				}
			}
			pd.Tracks[j] = td
		}
		data.Patterns = append(data.Patterns, pd)
	}
	for j := 0; j < l.Tracks; j++ {
		data.Racks = append(data.Racks, RackData{Channel: ChannelData{Level: 1}})
	}
	return data
}

type randomRecipe struct {
	pitch     func(k int) int
	velocity  int
	threshold float64
	// duration as a fraction of the step spacing
	num, den int
}

var randomRecipes = [4]randomRecipe{
	{pitch: func(k int) int { return 60 + k }, velocity: 120, threshold: 0.90, num: 5, den: 1},
	{pitch: func(k int) int { return 24 + k }, velocity: 50, threshold: 0.85, num: 1, den: 2},
	{pitch: func(k int) int { return 48 + k }, velocity: 20, threshold: 0.85, num: 1, den: 1},
	{pitch: func(k int) int { return 76 - k }, velocity: 120, threshold: 0.80, num: 1, den: 8},
}

// RandomData builds a sparse random project on the same grid as EmptyData.
// Tracks past the fourth reuse the recipes in turn.
func RandomData(l Layout, rng *rand.Rand) ProjectData {
	data := EmptyData(l)
	stepDuration := l.StepDuration()

	for i := range data.Patterns {
		for j := range data.Patterns[i].Tracks {
			r := randomRecipes[j%len(randomRecipes)]
			steps := data.Patterns[i].Tracks[j].Steps
			for k := range steps {
				steps[k].Pitch = clamp(r.pitch(k), 0, 127)
				steps[k].Duration = max(1, stepDuration*r.num/r.den)
				if rng.Float64() > r.threshold {
					steps[k].Velocity = r.velocity
				}
			}
		}
	}
	for j := range data.Racks {
		data.Racks[j].Channel.Pan = float64(j%4)*0.4 - 0.6
	}
	return data
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
