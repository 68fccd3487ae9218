package sequencer

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"
)

// oneTrackLayout is a single pattern with one free-form track.
var oneTrackLayout = Layout{PPQN: 480, BeatsPerPattern: 4, Patterns: 1, Tracks: 1}

func newArrangement(t *testing.T, l Layout, data ProjectData) *Arrangement {
	t.Helper()
	a, err := NewArrangement(l)
	if err != nil {
		t.Fatalf("NewArrangement: %v", err)
	}
	if err := a.SetData(data); err != nil {
		t.Fatalf("SetData: %v", err)
	}
	return a
}

func singleStep(bpm float64, steps ...StepData) ProjectData {
	return ProjectData{
		BPM:      bpm,
		Patterns: []PatternData{{Tracks: []TrackData{{Steps: steps}}}},
	}
}

func TestArrangementScenarioOneStep(t *testing.T) {
	a := newArrangement(t, oneTrackLayout, singleStep(120, StepData{Start: 0, Duration: 480, Velocity: 100, Pitch: 60}))

	got, err := a.Scan(0, 1920, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	if got[0].Tick != 0 || got[0].Duration != 480 {
		t.Errorf("unexpected event %+v", got[0])
	}
}

func TestArrangementMapsGlobalToPatternLocal(t *testing.T) {
	a := newArrangement(t, oneTrackLayout, singleStep(120, StepData{Start: 110, Velocity: 100}))

	start := float64(3*1920 + 100)
	got, err := a.Scan(start, start+16, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || !approx(got[0].Tick, 3*1920+110) {
		t.Fatalf("got %+v, want one event at tick %d", got, 3*1920+110)
	}
}

func TestArrangementScanAcrossPatternEnd(t *testing.T) {
	a := newArrangement(t, oneTrackLayout, singleStep(120, StepData{Start: 0, Velocity: 100}))

	got, err := a.Scan(1910, 1926, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || !approx(got[0].Tick, 1920) {
		t.Fatalf("got %+v, want one event at tick 1920", got)
	}
}

func TestArrangementScanRejectsInvertedRange(t *testing.T) {
	a := newArrangement(t, oneTrackLayout, singleStep(120, StepData{Start: 0, Velocity: 100}))

	queue, err := a.Scan(10, 5, nil)
	if !errors.Is(err, ErrInvalidRange) || !IsRangeError(err) {
		t.Fatalf("expected range error, got %v", err)
	}
	if len(queue) != 0 {
		t.Errorf("partial scan returned %d events", len(queue))
	}
}

func TestArrangementSetBPMFactor(t *testing.T) {
	a := newArrangement(t, oneTrackLayout, singleStep(120))

	factor, err := a.SetBPM(240)
	if err != nil || factor != 0.5 {
		t.Fatalf("SetBPM(240) = %v, %v; want 0.5, nil", factor, err)
	}

	if _, err := a.SetBPM(0); !errors.Is(err, ErrInvalidTempo) {
		t.Fatalf("SetBPM(0) err = %v", err)
	}
	if a.BPM() != 240 {
		t.Errorf("BPM() = %v after rejected change, want 240", a.BPM())
	}
}

func TestArrangementSetDataRejectsAndKeepsPrevious(t *testing.T) {
	l := DefaultLayout()
	l.Patterns = 2
	good := RandomData(l, rand.New(rand.NewSource(7)))
	a := newArrangement(t, l, good)

	tests := []struct {
		name   string
		mutate func(*ProjectData)
	}{
		{"zero bpm", func(d *ProjectData) { d.BPM = 0 }},
		{"missing pattern", func(d *ProjectData) { d.Patterns = d.Patterns[:1] }},
		{"missing track", func(d *ProjectData) { d.Patterns[1].Tracks = d.Patterns[1].Tracks[:3] }},
		{"missing step", func(d *ProjectData) { d.Patterns[0].Tracks[2].Steps = d.Patterns[0].Tracks[2].Steps[:15] }},
		{"step outside track", func(d *ProjectData) { d.Patterns[0].Tracks[0].Steps[3].Start = 5000 }},
		{"track longer than pattern", func(d *ProjectData) { d.Patterns[0].Tracks[0].Length = 4000 }},
		{"wrong rack count", func(d *ProjectData) { d.Racks = d.Racks[:1] }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := cloneData(t, good)
			tt.mutate(&bad)

			err := a.SetData(bad)
			if err == nil {
				t.Fatal("expected error")
			}
			if !IsConfigError(err) {
				t.Errorf("expected configuration kind, got %v", err)
			}
			if !reflect.DeepEqual(a.GetData(), good) {
				t.Error("previous content not retained")
			}
		})
	}
}

func cloneData(t *testing.T, d ProjectData) ProjectData {
	t.Helper()
	buf, err := EncodeProjectYAML(d)
	if err != nil {
		t.Fatal(err)
	}
	out, err := DecodeProject(buf)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestArrangementGetDataRoundTrip(t *testing.T) {
	l := DefaultLayout()
	data := RandomData(l, rand.New(rand.NewSource(1)))
	data.Patterns[3].Tracks[1].Length = 960
	for i := range data.Patterns[3].Tracks[1].Steps {
		data.Patterns[3].Tracks[1].Steps[i].Start %= 960
	}

	a := newArrangement(t, l, data)
	if got := a.GetData(); !reflect.DeepEqual(got, data) {
		t.Fatalf("GetData does not round trip SetData")
	}
}

func TestArrangementSelectPattern(t *testing.T) {
	l := DefaultLayout()
	l.Patterns = 2
	data := EmptyData(l)
	data.Patterns[1].Tracks[0].Steps[0].Velocity = 99
	a := newArrangement(t, l, data)

	if got := a.TrackSteps(0)[0].Velocity; got != 0 {
		t.Fatalf("pattern 0 velocity = %d", got)
	}
	if err := a.SelectPattern(1); err != nil {
		t.Fatal(err)
	}
	if got := a.TrackSteps(0)[0].Velocity; got != 99 {
		t.Errorf("pattern 1 velocity = %d, want 99", got)
	}

	if err := a.SelectPattern(2); !errors.Is(err, ErrNoPattern) {
		t.Errorf("SelectPattern(2) err = %v", err)
	}
	if a.PatternIndex() != 1 {
		t.Errorf("PatternIndex changed by rejected select")
	}
}

func TestNewArrangementRejectsBadLayout(t *testing.T) {
	for _, l := range []Layout{
		{PPQN: 0, BeatsPerPattern: 4, Patterns: 1, Tracks: 1},
		{PPQN: 480, BeatsPerPattern: 0, Patterns: 1, Tracks: 1},
		{PPQN: 480, BeatsPerPattern: 4, Patterns: 0, Tracks: 1},
		{PPQN: 1, BeatsPerPattern: 1, Patterns: 1, Tracks: 1, Steps: 2},
	} {
		if _, err := NewArrangement(l); !IsConfigError(err) {
			t.Errorf("layout %+v: expected configuration error, got %v", l, err)
		}
	}
}

func TestEmptyData(t *testing.T) {
	l := DefaultLayout()
	data := EmptyData(l)

	if data.BPM != 100 || len(data.Patterns) != 16 || len(data.Racks) != 4 {
		t.Fatalf("unexpected shape: bpm %v, %d patterns, %d racks", data.BPM, len(data.Patterns), len(data.Racks))
	}
	steps := data.Patterns[5].Tracks[3].Steps
	if len(steps) != 16 {
		t.Fatalf("got %d steps, want 16", len(steps))
	}
	for k, s := range steps {
		want := StepData{Channel: 3, Pitch: 60, Velocity: 0, Start: k * 120, Duration: 60}
		if s != want {
			t.Errorf("step %d = %+v, want %+v", k, s, want)
		}
	}
}

func TestEmptyDataCoarseGrid(t *testing.T) {
	tests := []struct {
		layout Layout
		steps  int
		dur    int
	}{
		{Layout{PPQN: 2, BeatsPerPattern: 4, Patterns: 1, Tracks: 1}, 8, 0},
		{Layout{PPQN: 1, BeatsPerPattern: 3, Patterns: 1, Tracks: 2}, 3, 0},
		{Layout{PPQN: 480, BeatsPerPattern: 4, Patterns: 1, Tracks: 1}, 16, 60},
	}
	for _, tt := range tests {
		a, err := NewArrangement(tt.layout)
		if err != nil {
			t.Fatalf("layout %+v: %v", tt.layout, err)
		}
		steps := a.TrackSteps(0)
		if len(steps) != tt.steps || steps[0].Duration != tt.dur {
			t.Errorf("layout %+v: %d steps of %d ticks, want %d of %d",
				tt.layout, len(steps), steps[0].Duration, tt.steps, tt.dur)
		}
		if err := a.SetData(RandomData(tt.layout, rand.New(rand.NewSource(1)))); err != nil {
			t.Errorf("layout %+v: random data rejected: %v", tt.layout, err)
		}
	}
}

func TestRandomData(t *testing.T) {
	l := DefaultLayout()
	a := RandomData(l, rand.New(rand.NewSource(42)))
	b := RandomData(l, rand.New(rand.NewSource(42)))
	if !reflect.DeepEqual(a, b) {
		t.Fatal("same seed produced different data")
	}

	wantDur := []int{600, 60, 120, 15}
	wantVel := []int{120, 50, 20, 120}
	sounding := 0
	for _, p := range a.Patterns {
		for j, tr := range p.Tracks {
			for _, s := range tr.Steps {
				if s.Duration != wantDur[j] {
					t.Fatalf("track %d duration %d, want %d", j, s.Duration, wantDur[j])
				}
				if s.Velocity != 0 && s.Velocity != wantVel[j] {
					t.Fatalf("track %d velocity %d", j, s.Velocity)
				}
				if s.Velocity != 0 {
					sounding++
				}
			}
		}
	}
	if sounding == 0 {
		t.Error("no sounding steps generated")
	}
	if a.Racks[0].Channel.Pan != -0.6 {
		t.Errorf("rack 0 pan = %v", a.Racks[0].Channel.Pan)
	}

	if _, err := NewArrangement(l); err != nil {
		t.Fatal(err)
	}
	arr, _ := NewArrangement(l)
	if err := arr.SetData(a); err != nil {
		t.Errorf("random data rejected: %v", err)
	}
}
