package sequencer

import "math"

// Track is the step list for one channel inside one pattern. It loops every
// Length ticks, which may be shorter than the pattern (polymeter).
type Track struct {
	channel int
	length  int
	steps   []Step
}

// NewTrack validates steps against length and copies them.
func NewTrack(channel, length int, steps []Step) (*Track, error) {
	if length <= 0 {
		return nil, configError(ErrMalformedData, "track %d: length %d must be positive", channel, length)
	}
	own := make([]Step, len(steps))
	for i, s := range steps {
		switch {
		case s.Start < 0 || s.Start >= length:
			return nil, configError(ErrMalformedData, "track %d step %d: start %d outside [0,%d)", channel, i, s.Start, length)
		case s.Duration < 0:
			return nil, configError(ErrMalformedData, "track %d step %d: negative duration", channel, i)
		case s.Velocity < 0 || s.Velocity > 127:
			return nil, configError(ErrMalformedData, "track %d step %d: velocity %d outside 0..127", channel, i, s.Velocity)
		case s.Pitch < 0 || s.Pitch > 127:
			return nil, configError(ErrMalformedData, "track %d step %d: pitch %d outside 0..127", channel, i, s.Pitch)
		case s.Channel != channel:
			return nil, configError(ErrMalformedData, "track %d step %d: channel %d does not match track", channel, i, s.Channel)
		}
		s.Index = i
		own[i] = s
	}
	return &Track{channel: channel, length: length, steps: own}, nil
}

// Channel returns the owning channel index.
func (t *Track) Channel() int { return t.channel }

// Length returns the loop length in ticks.
func (t *Track) Length() int { return t.length }

// Steps returns a copy of the step list.
func (t *Track) Steps() []Step {
	out := make([]Step, len(t.steps))
	copy(out, t.steps)
	return out
}

// Scan returns the steps starting inside [start, end], wrapping at the track
// length. Event ticks are relative to absStart, the tick the query begins at.
func (t *Track) Scan(absStart, start, end float64) []Event {
	return t.scanInto(nil, absStart, start, end)
}

func (t *Track) scanInto(dst []Event, absStart, start, end float64) []Event {
	span := end - start
	if span < 0 || len(t.steps) == 0 {
		return dst
	}

	length := float64(t.length)
	localStart := posMod(start, length)
	localEnd := localStart + span

	if localEnd <= length {
		return t.collect(dst, localStart, localEnd, absStart-localStart)
	}

	// Query crosses the loop point: tail of this cycle, then head of the next.
	dst = t.collect(dst, localStart, length, absStart-localStart)
	return t.collect(dst, 0, localEnd-length, absStart+(length-localStart))
}

// collect appends steps with lo <= start <= hi. The boundary is inclusive on
// both ends; callers that stitch adjacent windows drop the duplicate.
func (t *Track) collect(dst []Event, lo, hi, offset float64) []Event {
	for _, s := range t.steps {
		st := float64(s.Start)
		if lo <= st && st <= hi {
			dst = append(dst, s.CloneWithAbsoluteStart(offset+st))
		}
	}
	return dst
}

func posMod(x, m float64) float64 {
	r := math.Mod(x, m)
	if r < 0 {
		r += m
	}
	if r >= m {
		r = 0
	}
	return r
}
