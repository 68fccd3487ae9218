package sequencer

import (
	"fmt"
	"math"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"

	"go-stepseq/debug"
)

// Arrangement owns all patterns and plays the active one. It starts with
// EmptyData so the active pattern index is always valid.
type Arrangement struct {
	layout       Layout
	patterns     []*Pattern
	patternIndex int
	bpm          float64
	racks        []RackData
}

// NewArrangement creates an arrangement populated with silent patterns.
func NewArrangement(layout Layout) (*Arrangement, error) {
	if err := layout.validate(); err != nil {
		return nil, err
	}
	a := &Arrangement{layout: layout}
	if err := a.SetData(EmptyData(layout)); err != nil {
		return nil, err
	}
	return a, nil
}

// Layout returns the fixed shape.
func (a *Arrangement) Layout() Layout { return a.layout }

// PatternDuration is the pattern length in ticks.
func (a *Arrangement) PatternDuration() int { return a.layout.PatternDuration() }

// PPQN returns ticks per beat.
func (a *Arrangement) PPQN() int { return a.layout.PPQN }

// BPM returns the tempo recorded with the content.
func (a *Arrangement) BPM() float64 { return a.bpm }

// PatternIndex returns the active pattern.
func (a *Arrangement) PatternIndex() int { return a.patternIndex }

// PatternCount returns the number of patterns.
func (a *Arrangement) PatternCount() int { return len(a.patterns) }

// Racks returns a copy of the rack records.
func (a *Arrangement) Racks() []RackData {
	out := make([]RackData, len(a.racks))
	copy(out, a.racks)
	return out
}

// Pattern returns pattern i, or nil.
func (a *Arrangement) Pattern(i int) *Pattern {
	if i < 0 || i >= len(a.patterns) {
		return nil
	}
	return a.patterns[i]
}

// SelectPattern makes pattern i the active one.
func (a *Arrangement) SelectPattern(i int) error {
	if i < 0 || i >= len(a.patterns) {
		return rangeError(ErrNoPattern, "pattern %d outside 0..%d", i, len(a.patterns)-1)
	}
	a.patternIndex = i
	debug.Log("scan", "active pattern %d", i)
	return nil
}

// SetBPM records the tempo and returns old/new so time-domain state elsewhere
// can be rescaled. The first tempo ever set returns 1.
func (a *Arrangement) SetBPM(bpm float64) (float64, error) {
	if !validBPM(bpm) {
		return 1, configError(ErrInvalidTempo, "bpm %v must be positive", bpm)
	}
	factor := 1.0
	if a.bpm > 0 {
		factor = a.bpm / bpm
	}
	a.bpm = bpm
	return factor, nil
}

// Scan appends the active pattern's events in [start, end] to queue, using
// start as the absolute tick of the query.
func (a *Arrangement) Scan(start, end float64, queue []Event) ([]Event, error) {
	return a.ScanEvents(start, start, end, queue)
}

// ScanEvents maps [start, end] onto the active pattern and appends matches to
// queue. Event ticks are reported relative to absStart. Wraparound happens per
// track; the pattern boundary itself is not split.
func (a *Arrangement) ScanEvents(absStart, start, end float64, queue []Event) ([]Event, error) {
	if math.IsNaN(start) || math.IsNaN(end) || end < start {
		return queue, rangeError(ErrInvalidRange, "scan end %v before start %v", end, start)
	}
	p := a.patterns[a.patternIndex]
	duration := float64(a.PatternDuration())
	localStart := posMod(start, duration)
	localEnd := localStart + (end - start)
	return p.Scan(absStart, localStart, localEnd, queue), nil
}

// TrackSteps returns a copy of the active pattern's steps for one track.
func (a *Arrangement) TrackSteps(index int) []Step {
	return a.patterns[a.patternIndex].TrackSteps(index)
}

// SetData replaces the content from plain records. On error the previous
// content is kept.
func (a *Arrangement) SetData(data ProjectData) error {
	if !validBPM(data.BPM) {
		return configError(ErrInvalidTempo, "project bpm %v must be positive", data.BPM)
	}
	l := a.layout
	if len(data.Patterns) != l.Patterns {
		return configError(ErrMalformedData, "expected %d patterns, got %d", l.Patterns, len(data.Patterns))
	}
	if len(data.Racks) != 0 && len(data.Racks) != l.Tracks {
		return configError(ErrMalformedData, "expected %d racks, got %d", l.Tracks, len(data.Racks))
	}

	patterns := make([]*Pattern, len(data.Patterns))
	for i, pd := range data.Patterns {
		p, err := a.buildPattern(pd)
		if err != nil {
			return fault.Wrap(err, fmsg.With(fmt.Sprintf("pattern %d", i)))
		}
		patterns[i] = p
	}

	a.patterns = patterns
	if a.patternIndex >= len(patterns) {
		a.patternIndex = 0
	}
	a.racks = append([]RackData(nil), data.Racks...)
	a.bpm = data.BPM
	debug.Log("project", "loaded %d patterns, bpm %.2f", len(patterns), data.BPM)
	return nil
}

func (a *Arrangement) buildPattern(pd PatternData) (*Pattern, error) {
	l := a.layout
	if len(pd.Tracks) != l.Tracks {
		return nil, configError(ErrMalformedData, "expected %d tracks, got %d", l.Tracks, len(pd.Tracks))
	}
	tracks := make([]*Track, len(pd.Tracks))
	for j, td := range pd.Tracks {
		if l.Steps > 0 && len(td.Steps) != l.Steps {
			return nil, configError(ErrMalformedData, "track %d: expected %d steps, got %d", j, l.Steps, len(td.Steps))
		}
		length := td.Length
		if length == 0 {
			length = l.PatternDuration()
		}
		if length > l.PatternDuration() {
			return nil, configError(ErrMalformedData, "track %d: length %d exceeds pattern duration %d", j, length, l.PatternDuration())
		}
		steps := make([]Step, len(td.Steps))
		for k, sd := range td.Steps {
			steps[k] = Step{
				Channel:  sd.Channel,
				Pitch:    sd.Pitch,
				Velocity: sd.Velocity,
				Start:    sd.Start,
				Duration: sd.Duration,
			}
		}
		t, err := NewTrack(j, length, steps)
		if err != nil {
			return nil, err
		}
		tracks[j] = t
	}
	return NewPattern(tracks)
}

// GetData converts the content back to plain records.
func (a *Arrangement) GetData() ProjectData {
	data := ProjectData{
		BPM:      a.bpm,
		Patterns: make([]PatternData, len(a.patterns)),
		Racks:    a.Racks(),
	}
	for i, p := range a.patterns {
		pd := PatternData{Tracks: make([]TrackData, p.TrackCount())}
		for j := range pd.Tracks {
			t := p.Track(j)
			td := TrackData{Steps: make([]StepData, 0, len(t.steps))}
			if t.Length() != a.PatternDuration() {
				td.Length = t.Length()
			}
			for _, s := range t.steps {
				td.Steps = append(td.Steps, StepData{
					Channel:  s.Channel,
					Pitch:    s.Pitch,
					Velocity: s.Velocity,
					Start:    s.Start,
					Duration: s.Duration,
				})
			}
			pd.Tracks[j] = td
		}
		data.Patterns[i] = pd
	}
	return data
}

func validBPM(bpm float64) bool {
	return bpm > 0 && !math.IsInf(bpm, 0) && !math.IsNaN(bpm)
}
