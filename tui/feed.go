package tui

import (
	"sync"

	"go-stepseq/sequencer"
)

type fired struct {
	index int
	tick  float64
	ok    bool
}

// Feed receives scanned events from the transport and remembers the latest
// step per track for the playhead highlight. It implements sequencer.View.
type Feed struct {
	mu   sync.Mutex
	last []fired
}

func NewFeed(tracks int) *Feed {
	return &Feed{last: make([]fired, tracks)}
}

func (f *Feed) ShowEvents(events []sequencer.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range events {
		if e.Channel < 0 || e.Channel >= len(f.last) {
			continue
		}
		f.last[e.Channel] = fired{index: e.Index, tick: e.Tick, ok: true}
	}
}

// Last returns the most recently scanned step of a track and its tick.
func (f *Feed) Last(track int) (index int, tick float64, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if track < 0 || track >= len(f.last) {
		return 0, 0, false
	}
	l := f.last[track]
	return l.index, l.tick, l.ok
}

// Reset forgets all tracks, e.g. after a rewind.
func (f *Feed) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.last)
}
