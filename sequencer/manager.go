package sequencer

import (
	"context"
	"time"

	"go-stepseq/debug"
)

// Snapshot is what the UI needs to draw a frame.
type Snapshot struct {
	Status
	Pattern  int
	Patterns int
}

type command struct {
	fn    func() error
	reply chan error
}

// Manager owns the arrangement and transport and runs them on one goroutine:
// frames from a ticker and commands from callers are handled in turn, so the
// transport never sees concurrent access.
type Manager struct {
	arr       *Arrangement
	tr        *Transport
	frameRate int

	commands chan command
	stopped  chan struct{}

	// Notify TUI of updates
	updates chan struct{}
}

// NewManager aligns the transport with the arrangement's tempo and pattern
// length. frameRate is frames per second.
func NewManager(arr *Arrangement, tr *Transport, frameRate int) (*Manager, error) {
	if frameRate <= 0 {
		return nil, configError(ErrMalformedData, "frame rate %d must be positive", frameRate)
	}
	if err := tr.SetBPM(arr.BPM()); err != nil {
		return nil, err
	}
	if err := tr.SetLoop(0, float64(arr.PatternDuration())); err != nil {
		return nil, err
	}
	return &Manager{
		arr:       arr,
		tr:        tr,
		frameRate: frameRate,
		commands:  make(chan command),
		stopped:   make(chan struct{}),
		updates:   make(chan struct{}, 1),
	}, nil
}

// Updates signals after frames and commands. Reads may coalesce.
func (m *Manager) Updates() <-chan struct{} {
	return m.updates
}

// Run drives frames until ctx is cancelled. Commands block until Run is
// serving them and fail with ErrNotRunning after it returns.
func (m *Manager) Run(ctx context.Context) error {
	defer close(m.stopped)

	ticker := time.NewTicker(time.Second / time.Duration(m.frameRate))
	defer ticker.Stop()

	debug.Log("transport", "frame loop at %d fps", m.frameRate)
	for {
		select {
		case <-ctx.Done():
			m.tr.Pause()
			return ctx.Err()
		case <-ticker.C:
			if m.tr.IsRunning() {
				m.tr.Tick()
				m.notify()
			}
		case cmd := <-m.commands:
			cmd.reply <- cmd.fn()
			m.notify()
		}
	}
}

func (m *Manager) notify() {
	select {
	case m.updates <- struct{}{}:
	default:
	}
}

func (m *Manager) do(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case m.commands <- command{fn: fn, reply: reply}:
		return <-reply
	case <-m.stopped:
		return ErrNotRunning
	}
}

func (m *Manager) Start() error {
	return m.do(func() error { m.tr.Start(); return nil })
}

func (m *Manager) Pause() error {
	return m.do(func() error { m.tr.Pause(); return nil })
}

func (m *Manager) Toggle() error {
	return m.do(func() error { m.tr.ToggleStartStop(); return nil })
}

func (m *Manager) Rewind() error {
	return m.do(func() error { m.tr.Rewind(); return nil })
}

func (m *Manager) Seek(tick float64) error {
	return m.do(func() error { return m.tr.Seek(tick) })
}

// SetBPM changes arrangement and transport tempo together; on error neither
// changes. The transport is rescaled by the factor the arrangement reports.
func (m *Manager) SetBPM(bpm float64) error {
	return m.do(func() error {
		factor, err := m.arr.SetBPM(bpm)
		if err != nil {
			return err
		}
		return m.tr.ApplyTempo(bpm, factor)
	})
}

func (m *Manager) SetLoop(startTick, endTick float64) error {
	return m.do(func() error { return m.tr.SetLoop(startTick, endTick) })
}

func (m *Manager) SetLoopStart(tick float64) error {
	return m.do(func() error { return m.tr.SetLoopStart(tick) })
}

func (m *Manager) SetLoopEnd(tick float64) error {
	return m.do(func() error { return m.tr.SetLoopEnd(tick) })
}

func (m *Manager) SetLooping(on bool) error {
	return m.do(func() error { m.tr.SetLooping(on); return nil })
}

// ToggleLoop flips looping and returns the new state.
func (m *Manager) ToggleLoop() (bool, error) {
	var on bool
	err := m.do(func() error { on = m.tr.ToggleLoop(); return nil })
	return on, err
}

func (m *Manager) SelectPattern(i int) error {
	return m.do(func() error { return m.arr.SelectPattern(i) })
}

// Load replaces the arrangement content and adopts its tempo. Playback keeps
// running at the same tick.
func (m *Manager) Load(data ProjectData) error {
	return m.do(func() error {
		if err := m.arr.SetData(data); err != nil {
			return err
		}
		return m.tr.SetBPM(data.BPM)
	})
}

// Data returns the arrangement as plain records.
func (m *Manager) Data() (ProjectData, error) {
	var data ProjectData
	err := m.do(func() error { data = m.arr.GetData(); return nil })
	return data, err
}

func (m *Manager) Snapshot() (Snapshot, error) {
	var s Snapshot
	err := m.do(func() error {
		s = Snapshot{
			Status:   m.tr.Status(),
			Pattern:  m.arr.PatternIndex(),
			Patterns: m.arr.PatternCount(),
		}
		return nil
	})
	return s, err
}

// ActiveSteps returns the active pattern's steps, one slice per track.
func (m *Manager) ActiveSteps() ([][]Step, error) {
	var steps [][]Step
	err := m.do(func() error {
		steps = make([][]Step, m.arr.Layout().Tracks)
		for i := range steps {
			steps[i] = m.arr.TrackSteps(i)
		}
		return nil
	})
	return steps, err
}
