package tui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"go-stepseq/sequencer"
	"go-stepseq/theme"
)

type fakeStore struct {
	project string
	data    sequencer.ProjectData
}

func (s *fakeStore) Save(projectName, label string, data sequencer.ProjectData) (string, error) {
	s.project = projectName
	s.data = data
	return "2024-01-01_00-00-00.json", nil
}

func newTestModel(t *testing.T) Model {
	t.Helper()
	layout := sequencer.Layout{PPQN: 480, BeatsPerPattern: 4, Patterns: 2, Tracks: 2, Steps: 4}
	arr, err := sequencer.NewArrangement(layout)
	if err != nil {
		t.Fatal(err)
	}
	data := sequencer.EmptyData(layout)
	data.BPM = 120
	data.Patterns[0].Tracks[1].Steps[2].Velocity = 100
	if err := arr.SetData(data); err != nil {
		t.Fatal(err)
	}

	feed := NewFeed(layout.Tracks)
	tr, err := sequencer.NewTransport(sequencer.NewManualClock(0), arr, sequencer.WithView(feed))
	if err != nil {
		t.Fatal(err)
	}
	mgr, err := sequencer.NewManager(arr, tr, 100)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		mgr.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return NewModel(mgr, layout, feed, theme.New(nil))
}

func press(m Model, key string) Model {
	var msg tea.KeyMsg
	if key == " " {
		msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	} else {
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestFormatPosition(t *testing.T) {
	tests := []struct {
		tick float64
		want string
	}{
		{0, "1.1.000"},
		{479.9, "1.1.479"},
		{480, "1.2.000"},
		{1920, "2.1.000"},
		{2000, "2.1.080"},
		{-3, "1.1.000"},
	}
	for _, tt := range tests {
		if got := formatPosition(tt.tick, 480, 4); got != tt.want {
			t.Errorf("formatPosition(%v) = %q, want %q", tt.tick, got, tt.want)
		}
	}
}

func TestModelKeys(t *testing.T) {
	m := newTestModel(t)

	if !strings.Contains(m.View(), "STOP") {
		t.Errorf("initial view:\n%s", m.View())
	}

	m = press(m, " ")
	if !m.snap.Running || !strings.Contains(m.View(), "PLAY") {
		t.Errorf("space did not start playback: %+v", m.snap)
	}

	m = press(m, "+")
	if m.snap.BPM != 125 {
		t.Errorf("bpm = %v after +, want 125", m.snap.BPM)
	}
	m = press(m, "-")
	m = press(m, "-")
	if m.snap.BPM != 115 {
		t.Errorf("bpm = %v after -, want 115", m.snap.BPM)
	}

	m = press(m, "l")
	if !m.snap.Loop || m.status != "loop on" {
		t.Errorf("loop = %v, status %q", m.snap.Loop, m.status)
	}

	m = press(m, "]")
	if m.snap.Pattern != 1 {
		t.Errorf("pattern = %d after ]", m.snap.Pattern)
	}
	m = press(m, "]")
	if m.snap.Pattern != 1 || m.status == "" {
		t.Errorf("past the last pattern: pattern %d, status %q", m.snap.Pattern, m.status)
	}

	m = press(m, "p")
	if m.snap.Running {
		t.Error("p did not pause")
	}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil || next.(Model).View() != "" {
		t.Error("q did not quit")
	}
}

func TestModelSave(t *testing.T) {
	m := newTestModel(t)
	store := &fakeStore{}
	m.Store = store
	m.Project = "demo"

	m = press(m, "s")
	if store.project != "demo" || store.data.BPM != 120 {
		t.Errorf("saved %q bpm %v", store.project, store.data.BPM)
	}
	if !strings.Contains(m.status, "saved") {
		t.Errorf("status = %q", m.status)
	}
}

func TestGridShowsSteps(t *testing.T) {
	m := newTestModel(t)
	lines := strings.Split(m.grid(), "\n")
	if len(lines) != 2 {
		t.Fatalf("grid has %d rows, want 2:\n%s", len(lines), m.grid())
	}
	if strings.ContainsRune(lines[0], '●') {
		t.Errorf("silent track shows an active step: %q", lines[0])
	}
	if strings.Count(lines[1], "●") != 1 {
		t.Errorf("track 2 row = %q, want one active step", lines[1])
	}
}

func TestFeedKeepsLatestPerTrack(t *testing.T) {
	f := NewFeed(2)
	f.ShowEvents([]sequencer.Event{
		{Step: sequencer.Step{Index: 0, Channel: 0}, Tick: 0},
		{Step: sequencer.Step{Index: 1, Channel: 0}, Tick: 120},
		{Step: sequencer.Step{Index: 3, Channel: 5}, Tick: 0},
	})

	if idx, tick, ok := f.Last(0); !ok || idx != 1 || tick != 120 {
		t.Errorf("Last(0) = %d, %v, %v", idx, tick, ok)
	}
	if _, _, ok := f.Last(1); ok {
		t.Error("track 1 has no events")
	}

	f.Reset()
	if _, _, ok := f.Last(0); ok {
		t.Error("Reset kept state")
	}
}
