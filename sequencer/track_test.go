package sequencer

import (
	"errors"
	"math"
	"testing"
)

func mustTrack(t *testing.T, channel, length int, steps ...Step) *Track {
	t.Helper()
	for i := range steps {
		steps[i].Channel = channel
	}
	tr, err := NewTrack(channel, length, steps)
	if err != nil {
		t.Fatalf("NewTrack: %v", err)
	}
	return tr
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestTrackScanInsideLoop(t *testing.T) {
	tr := mustTrack(t, 0, 1920,
		Step{Pitch: 60, Velocity: 100, Start: 0, Duration: 480},
		Step{Pitch: 62, Velocity: 100, Start: 480, Duration: 480},
	)

	got := tr.Scan(3840, 0, 1920)
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].Tick != 3840 || got[1].Tick != 4320 {
		t.Errorf("ticks = %v, %v; want 3840, 4320", got[0].Tick, got[1].Tick)
	}
}

func TestTrackScanBoundaryWrap(t *testing.T) {
	const L = 480

	tests := []struct {
		name     string
		start    int
		wantTick float64
	}{
		// first sub-range [L-2, L]: offset absStart + (start - localStart)
		{"step before the loop point", L - 1, L - 1},
		// wrapped sub-range [0, 2]: offset absStart + start + (L - localStart)
		{"step after the loop point", 0, L},
		{"step inside the wrapped part", 1, L + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := mustTrack(t, 0, L, Step{Velocity: 100, Start: tt.start, Duration: 2})

			got := tr.Scan(L-2, L-2, L+2)
			if len(got) != 1 {
				t.Fatalf("got %d events, want exactly 1", len(got))
			}
			if !approx(got[0].Tick, tt.wantTick) {
				t.Errorf("tick = %v, want %v", got[0].Tick, tt.wantTick)
			}
		})
	}
}

func TestTrackScanNegativeStartWraps(t *testing.T) {
	tr := mustTrack(t, 0, 480, Step{Velocity: 100, Start: 0})

	got := tr.Scan(-10, -10, 5)
	if len(got) != 1 || !approx(got[0].Tick, 0) {
		t.Fatalf("got %+v, want one event at tick 0", got)
	}
}

func TestTrackScanInclusiveBoundary(t *testing.T) {
	// A step exactly on the shared edge is selected by both windows.
	tr := mustTrack(t, 0, 1920, Step{Velocity: 100, Start: 16})

	if got := tr.Scan(0, 0, 16); len(got) != 1 {
		t.Errorf("[0,16]: got %d events, want 1", len(got))
	}
	if got := tr.Scan(16, 16, 32); len(got) != 1 {
		t.Errorf("[16,32]: got %d events, want 1", len(got))
	}
}

func TestTrackScanEmptyAndInverted(t *testing.T) {
	empty := mustTrack(t, 0, 480)
	if got := empty.Scan(0, 0, 480); len(got) != 0 {
		t.Errorf("empty track returned %d events", len(got))
	}

	tr := mustTrack(t, 0, 480, Step{Velocity: 100, Start: 0})
	if got := tr.Scan(10, 10, 5); len(got) != 0 {
		t.Errorf("inverted range returned %d events", len(got))
	}
}

func TestShortTrackLoopsInsidePattern(t *testing.T) {
	tr := mustTrack(t, 0, 960, Step{Velocity: 100, Start: 0})

	got := tr.Scan(900, 900, 1000)
	if len(got) != 1 || !approx(got[0].Tick, 960) {
		t.Fatalf("got %+v, want one event at tick 960", got)
	}
}

func TestNewTrackValidation(t *testing.T) {
	tests := []struct {
		name   string
		length int
		step   Step
	}{
		{"zero length", 0, Step{}},
		{"start at length", 480, Step{Start: 480}},
		{"negative start", 480, Step{Start: -1}},
		{"negative duration", 480, Step{Duration: -1}},
		{"velocity too high", 480, Step{Velocity: 128}},
		{"pitch negative", 480, Step{Pitch: -1}},
		{"wrong channel", 480, Step{Channel: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTrack(0, tt.length, []Step{tt.step})
			if !errors.Is(err, ErrMalformedData) {
				t.Fatalf("expected ErrMalformedData, got %v", err)
			}
			if !IsConfigError(err) {
				t.Errorf("expected configuration kind, got %v", err)
			}
		})
	}
}

func TestTrackStepsIsACopy(t *testing.T) {
	tr := mustTrack(t, 0, 480, Step{Velocity: 100, Start: 0, Pitch: 60})

	steps := tr.Steps()
	steps[0].Pitch = 1
	if tr.Steps()[0].Pitch != 60 {
		t.Error("Steps() exposed internal storage")
	}
}

func TestCloneWithAbsoluteStart(t *testing.T) {
	s := Step{Pitch: 64, Velocity: 90, Start: 120, Duration: 60}
	e := s.CloneWithAbsoluteStart(2040)

	if e.Tick != 2040 || e.Start != 120 || e.Pitch != 64 {
		t.Errorf("unexpected clone %+v", e)
	}
	if s.Start != 120 {
		t.Error("original step modified")
	}
}

func TestPatternScanKeepsTrackOrder(t *testing.T) {
	p, err := NewPattern([]*Track{
		mustTrack(t, 0, 1920, Step{Velocity: 100, Start: 10}),
		mustTrack(t, 1, 1920, Step{Velocity: 100, Start: 2}),
	})
	if err != nil {
		t.Fatal(err)
	}

	got := p.Scan(0, 0, 16, nil)
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	// Track order, not time order.
	if got[0].Channel != 0 || got[1].Channel != 1 {
		t.Fatalf("channels = %d, %d; want 0, 1", got[0].Channel, got[1].Channel)
	}

	for i := range got {
		got[i].AbsStart = got[i].Tick
	}
	SortByAbsStart(got)
	if got[0].Channel != 1 {
		t.Errorf("SortByAbsStart did not order by time: %+v", got)
	}
}

func TestPatternScanAppends(t *testing.T) {
	p, _ := NewPattern([]*Track{mustTrack(t, 0, 1920, Step{Velocity: 100, Start: 0})})

	queue := []Event{{Tick: -1}}
	queue = p.Scan(0, 0, 16, queue)
	if len(queue) != 2 || queue[0].Tick != -1 {
		t.Errorf("Scan did not append to caller queue: %+v", queue)
	}
}

func TestNewPatternRejectsWrongChannel(t *testing.T) {
	_, err := NewPattern([]*Track{mustTrack(t, 1, 480)})
	if !errors.Is(err, ErrMalformedData) {
		t.Fatalf("expected ErrMalformedData, got %v", err)
	}
}

func TestAudibleFiltersSilentSteps(t *testing.T) {
	in := []Event{
		{Step: Step{Velocity: 0}},
		{Step: Step{Velocity: 1}},
		{Step: Step{Velocity: 0}},
	}
	got := Audible(in)
	if len(got) != 1 || got[0].Velocity != 1 {
		t.Errorf("Audible = %+v", got)
	}
	if len(in) != 3 {
		t.Error("input modified")
	}
}
