package sequencer

import (
	"context"
	"errors"
	"testing"
	"time"
)

func startManager(t *testing.T) (*Manager, *ManualClock, *recordingSink) {
	t.Helper()
	clock := NewManualClock(0)
	arr := newArrangement(t, oneTrackLayout, singleStep(150, StepData{Start: 0, Velocity: 100, Duration: 120}))
	sink := &recordingSink{}
	tr, err := NewTransport(clock, arr, WithSink(sink))
	if err != nil {
		t.Fatal(err)
	}
	m, err := NewManager(arr, tr, 200)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
	})
	return m, clock, sink
}

func TestManagerAdoptsArrangementTempo(t *testing.T) {
	m, _, _ := startManager(t)

	s, err := m.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if s.BPM != 150 || s.LoopStart != 0 || !approx(s.LoopEnd, 1920) {
		t.Errorf("snapshot = %+v", s)
	}
	if s.Patterns != 1 || s.Pattern != 0 || s.Running {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestManagerPlaysOnTicker(t *testing.T) {
	m, clock, _ := startManager(t)

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	clock.Advance(0.1)

	deadline := time.After(2 * time.Second)
	for {
		s, err := m.Snapshot()
		if err != nil {
			t.Fatal(err)
		}
		if s.Running && s.Tick > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("playhead never moved: %+v", s)
		case <-m.Updates():
		}
	}
}

func TestManagerCommands(t *testing.T) {
	m, _, _ := startManager(t)

	if err := m.SetBPM(-1); !errors.Is(err, ErrInvalidTempo) {
		t.Errorf("SetBPM(-1) err = %v", err)
	}
	if err := m.SetBPM(90); err != nil {
		t.Fatal(err)
	}
	data, err := m.Data()
	if err != nil || data.BPM != 90 {
		t.Errorf("arrangement bpm = %v, %v; want 90", data.BPM, err)
	}

	if err := m.SelectPattern(3); !errors.Is(err, ErrNoPattern) {
		t.Errorf("SelectPattern(3) err = %v", err)
	}
	if err := m.SetLoop(960, 480); !errors.Is(err, ErrInvalidLoop) {
		t.Errorf("SetLoop err = %v", err)
	}
	if err := m.SetLoopEnd(960); err != nil {
		t.Fatal(err)
	}
	on, err := m.ToggleLoop()
	if err != nil || !on {
		t.Errorf("ToggleLoop = %v, %v", on, err)
	}
	if err := m.Seek(480); err != nil {
		t.Fatal(err)
	}

	s, _ := m.Snapshot()
	if !s.Loop || !approx(s.LoopEnd, 960) || !approx(s.Tick, 480) {
		t.Errorf("snapshot = %+v", s)
	}

	if err := m.Rewind(); err != nil {
		t.Fatal(err)
	}
	if s, _ := m.Snapshot(); s.Tick != 0 {
		t.Errorf("tick after rewind = %v", s.Tick)
	}
}

func TestManagerSetBPMKeepsTick(t *testing.T) {
	m, _, _ := startManager(t)
	if err := m.Seek(960); err != nil {
		t.Fatal(err)
	}
	for _, bpm := range []float64{300, 75} {
		if err := m.SetBPM(bpm); err != nil {
			t.Fatal(err)
		}
		s, _ := m.Snapshot()
		if s.BPM != bpm || !approx(s.Tick, 960) || !approx(s.LoopEnd, 1920) {
			t.Errorf("after SetBPM(%v): %+v", bpm, s)
		}
		if data, _ := m.Data(); data.BPM != bpm {
			t.Errorf("arrangement bpm = %v, want %v", data.BPM, bpm)
		}
	}
}

func TestManagerLoadKeepsPreviousOnError(t *testing.T) {
	m, _, _ := startManager(t)

	if err := m.Load(ProjectData{BPM: 120}); !IsConfigError(err) {
		t.Fatalf("Load err = %v", err)
	}
	data, _ := m.Data()
	if data.BPM != 150 {
		t.Errorf("bpm = %v after rejected load", data.BPM)
	}

	next := singleStep(75, StepData{Start: 240, Pitch: 40, Velocity: 1})
	if err := m.Load(next); err != nil {
		t.Fatal(err)
	}
	s, _ := m.Snapshot()
	if s.BPM != 75 {
		t.Errorf("transport bpm = %v, want 75", s.BPM)
	}
	steps, err := m.ActiveSteps()
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) != 1 || len(steps[0]) != 1 || steps[0][0].Pitch != 40 {
		t.Errorf("ActiveSteps = %+v", steps)
	}
}

func TestManagerStoppedRejectsCommands(t *testing.T) {
	clock := NewManualClock(0)
	arr := newArrangement(t, oneTrackLayout, singleStep(120))
	tr, _ := NewTransport(clock, arr)
	m, err := NewManager(arr, tr, 60)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	cancel()
	<-done

	if tr.IsRunning() {
		t.Error("transport still running after Run returned")
	}
	if err := m.Toggle(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Toggle after stop err = %v", err)
	}
	if _, err := m.Snapshot(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Snapshot after stop err = %v", err)
	}
}

func TestNewManagerRejectsFrameRate(t *testing.T) {
	arr := newArrangement(t, oneTrackLayout, singleStep(120))
	tr, _ := NewTransport(NewManualClock(0), arr)
	if _, err := NewManager(arr, tr, 0); !IsConfigError(err) {
		t.Errorf("err = %v", err)
	}
}
