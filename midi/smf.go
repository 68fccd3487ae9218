package midi

import (
	"fmt"
	"io"
	"sort"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"go-stepseq/sequencer"
)

type smfNote struct {
	tick uint32
	seq  int
	msg  gomidi.Message
}

// ExportPattern writes one pattern as a format-1 Standard MIDI File: a tempo
// track followed by one track per sequencer track. Notes are gathered the way
// the transport plays them, in half-open lookahead windows over one pattern.
func ExportPattern(w io.Writer, arr *sequencer.Arrangement, patternIndex int, bpm float64) error {
	p := arr.Pattern(patternIndex)
	if p == nil {
		return fault.Wrap(sequencer.ErrNoPattern, fmsg.With(fmt.Sprintf("export pattern %d", patternIndex)))
	}
	if !(bpm > 0) {
		return fault.Wrap(sequencer.ErrInvalidTempo, fmsg.With(fmt.Sprintf("export at bpm %v", bpm)))
	}

	duration := arr.PatternDuration()
	notes := make([][]smfNote, p.TrackCount())
	seq := 0

	var queue []sequencer.Event
	for start := 0; start < duration; start += sequencer.DefaultLookAheadTicks {
		end := min(start+sequencer.DefaultLookAheadTicks, duration)
		queue = p.Scan(float64(start), float64(start), float64(end), queue[:0])
		for _, e := range queue {
			if e.Silent() || e.Tick >= float64(end) {
				continue
			}
			on := uint32(e.Tick)
			off := uint32(min(int(e.Tick)+e.Duration, duration))
			ch := uint8(e.Channel & 0x0f)
			key := uint8(clampInt(e.Pitch, 0, 127))

			notes[e.Channel] = append(notes[e.Channel],
				smfNote{tick: on, seq: seq, msg: gomidi.NoteOn(ch, key, uint8(clampInt(e.Velocity, 1, 127)))},
				smfNote{tick: off, seq: seq + 1, msg: gomidi.NoteOff(ch, key)},
			)
			seq += 2
		}
	}

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(arr.PPQN())

	var tempo smf.Track
	tempo.Add(0, smf.MetaMeter(uint8(arr.Layout().BeatsPerPattern), 4))
	tempo.Add(0, smf.MetaTempo(bpm))
	tempo.Close(uint32(duration))
	if err := s.Add(tempo); err != nil {
		return fault.Wrap(err, fmsg.With("add tempo track"))
	}

	for i, track := range notes {
		if err := s.Add(buildTrack(fmt.Sprintf("Track %d", i+1), track, uint32(duration))); err != nil {
			return fault.Wrap(err, fmsg.With(fmt.Sprintf("add track %d", i)))
		}
	}

	if _, err := s.WriteTo(w); err != nil {
		return fault.Wrap(err, fmsg.With("write midi file"))
	}
	return nil
}

// buildTrack delta-encodes absolute note times. Note-offs that coincide with a
// later note-on stay ahead of it.
func buildTrack(name string, notes []smfNote, length uint32) smf.Track {
	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].tick != notes[j].tick {
			return notes[i].tick < notes[j].tick
		}
		return notes[i].seq < notes[j].seq
	})

	var t smf.Track
	t.Add(0, smf.MetaTrackSequenceName(name))
	var last uint32
	for _, n := range notes {
		t.Add(n.tick-last, n.msg)
		last = n.tick
	}
	t.Close(length - last)
	return t
}
