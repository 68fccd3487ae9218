package sequencer

// Step is one note event inside a Track. Positions are in ticks.
type Step struct {
	Index    int // position within the track's step list
	Channel  int
	Pitch    int
	Velocity int // 0 = silent
	Start    int
	Duration int
}

// Event is a Step selected by a scan. Tick is the absolute transport tick the
// step starts at; AbsStart/AbsEnd are filled in by the Transport in clock seconds.
type Event struct {
	Step
	Tick     float64
	AbsStart float64
	AbsEnd   float64
}

// Silent reports whether the step must not reach a playback sink.
func (s Step) Silent() bool {
	return s.Velocity <= 0
}

// CloneWithAbsoluteStart returns an Event starting at tick without touching s.
func (s Step) CloneWithAbsoluteStart(tick float64) Event {
	return Event{Step: s, Tick: tick}
}

// Audible returns the events with velocity > 0, preserving order. The input
// slice is not modified.
func Audible(events []Event) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if !e.Silent() {
			out = append(out, e)
		}
	}
	return out
}
