package sequencer

// Pattern holds one Track per channel.
type Pattern struct {
	tracks []*Track
}

// NewPattern wraps tracks; tracks[i] must be channel i.
func NewPattern(tracks []*Track) (*Pattern, error) {
	for i, t := range tracks {
		if t == nil || t.Channel() != i {
			return nil, configError(ErrMalformedData, "pattern track %d missing or on wrong channel", i)
		}
	}
	return &Pattern{tracks: tracks}, nil
}

// TrackCount returns the number of channels.
func (p *Pattern) TrackCount() int { return len(p.tracks) }

// Track returns the track for a channel, or nil.
func (p *Pattern) Track(index int) *Track {
	if index < 0 || index >= len(p.tracks) {
		return nil
	}
	return p.tracks[index]
}

// Scan appends every track's matches to queue in track order. The result is
// not sorted by time.
func (p *Pattern) Scan(absStart, start, end float64, queue []Event) []Event {
	for _, t := range p.tracks {
		queue = t.scanInto(queue, absStart, start, end)
	}
	return queue
}

// TrackSteps returns a copy of a track's steps for display.
func (p *Pattern) TrackSteps(index int) []Step {
	t := p.Track(index)
	if t == nil {
		return nil
	}
	return t.Steps()
}
