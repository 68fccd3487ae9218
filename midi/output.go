package midi

import (
	"context"
	"math"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"

	"go-stepseq/debug"
	"go-stepseq/sequencer"
)

// idleWait is how long Run sleeps when nothing is queued and no wake arrives.
const idleWait = 250 * time.Millisecond

// Output turns scheduled step events into note on/off messages and sends them
// when the shared clock reaches their time. It implements sequencer.Sink.
type Output struct {
	clock sequencer.Clock

	mu       sync.Mutex
	send     Sender
	channel  func(track int) uint8
	racks    []sequencer.RackData
	guard    float64
	queue    messageQueue
	seq      uint64
	sounding map[noteKey]int

	wake chan struct{}
}

// OutputOption configures an Output.
type OutputOption func(*Output)

// WithSender sets the initial port sender. Without one, messages are dropped
// until SetSender is called.
func WithSender(s Sender) OutputOption {
	return func(o *Output) { o.send = s }
}

// WithChannelMap maps track index to MIDI channel. The default is the track index.
func WithChannelMap(fn func(track int) uint8) OutputOption {
	return func(o *Output) {
		if fn != nil {
			o.channel = fn
		}
	}
}

// WithNoteOffGuard ends notes this much early so a following note on the same
// key is not cut by a late note-off.
func WithNoteOffGuard(d time.Duration) OutputOption {
	return func(o *Output) { o.guard = d.Seconds() }
}

func NewOutput(clock sequencer.Clock, opts ...OutputOption) *Output {
	o := &Output{
		clock:    clock,
		channel:  func(track int) uint8 { return uint8(track & 0x0f) },
		sounding: make(map[noteKey]int),
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SetSender swaps the port. Notes still sounding on the old port are
// released there first.
func (o *Output) SetSender(s Sender) {
	o.mu.Lock()
	old := o.send
	offs := o.releaseAll()
	o.send = s
	racks := o.racks
	o.mu.Unlock()

	sendAll(old, offs)
	if s != nil {
		sendAll(s, o.panMessages(racks))
	}
	debug.Log("midi", "sender changed (connected=%v)", s != nil)
}

// SetRacks updates mute, solo and pan from the project's racks.
func (o *Output) SetRacks(racks []sequencer.RackData) {
	o.mu.Lock()
	o.racks = append([]sequencer.RackData(nil), racks...)
	send := o.send
	o.mu.Unlock()

	if send != nil {
		sendAll(send, o.panMessages(racks))
	}
}

func (o *Output) panMessages(racks []sequencer.RackData) []gomidi.Message {
	msgs := make([]gomidi.Message, 0, len(racks))
	for i, r := range racks {
		pan := math.Round((r.Channel.Pan + 1) * 63.5)
		msgs = append(msgs, gomidi.ControlChange(o.channel(i), 10, uint8(clampInt(int(pan), 0, 127))))
	}
	return msgs
}

// audible applies mute and solo: when any rack is soloed only soloed,
// unmuted racks sound.
func (o *Output) audible(track int) bool {
	if track < 0 || track >= len(o.racks) {
		return true
	}
	anySolo := false
	for _, r := range o.racks {
		if r.Channel.Solo {
			anySolo = true
			break
		}
	}
	r := o.racks[track].Channel
	if r.Mute {
		return false
	}
	return !anySolo || r.Solo
}

// PlayEvents queues a note on at AbsStart and a note off at AbsEnd for every
// event. Events are expected to have velocity > 0.
func (o *Output) PlayEvents(events []sequencer.Event) {
	o.mu.Lock()
	for _, e := range events {
		if e.Silent() || !o.audible(e.Channel) {
			continue
		}
		key := noteKey{channel: o.channel(e.Channel), key: uint8(clampInt(e.Pitch, 0, 127))}
		end := math.Max(e.AbsEnd-o.guard, e.AbsStart)

		o.queue.push(message{at: e.AbsStart, seq: o.nextSeq(), on: true, key: key, vel: uint8(clampInt(e.Velocity, 1, 127))})
		o.queue.push(message{at: end, seq: o.nextSeq(), key: key})
	}
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *Output) nextSeq() uint64 {
	o.seq++
	return o.seq
}

// ClearQueue drops queued note-ons and releases every note that is sounding.
func (o *Output) ClearQueue() {
	o.mu.Lock()
	o.queue = o.queue[:0]
	offs := o.releaseAll()
	send := o.send
	o.mu.Unlock()

	sendAll(send, offs)
}

// releaseAll returns note-offs for sounding notes and forgets them. Caller holds mu.
func (o *Output) releaseAll() []gomidi.Message {
	offs := make([]gomidi.Message, 0, len(o.sounding))
	for k := range o.sounding {
		offs = append(offs, gomidi.NoteOff(k.channel, k.key))
	}
	clear(o.sounding)
	return offs
}

// Pending returns the number of queued messages.
func (o *Output) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.queue.Len()
}

// DispatchDue sends every message scheduled at or before now and returns how
// many were sent.
func (o *Output) DispatchDue(now float64) int {
	o.mu.Lock()
	var due []gomidi.Message
	for {
		m, ok := o.queue.peek()
		if !ok || m.at > now {
			break
		}
		o.queue.pop()
		if m.on {
			o.sounding[m.key]++
		} else {
			if o.sounding[m.key] == 0 {
				continue
			}
			o.sounding[m.key]--
			if o.sounding[m.key] == 0 {
				delete(o.sounding, m.key)
			}
		}
		due = append(due, m.midi())
	}
	send := o.send
	o.mu.Unlock()

	sendAll(send, due)
	return len(due)
}

// next returns the time of the earliest queued message.
func (o *Output) next() (float64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	m, ok := o.queue.peek()
	return m.at, ok
}

// Run sends queued messages on time until ctx is cancelled, then releases
// all notes.
func (o *Output) Run(ctx context.Context) error {
	timer := time.NewTimer(idleWait)
	defer timer.Stop()

	for {
		wait := idleWait
		if at, ok := o.next(); ok {
			wait = time.Duration((at - o.clock.Now()) * float64(time.Second))
		}
		if wait > 0 {
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				o.ClearQueue()
				return ctx.Err()
			case <-o.wake:
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			o.ClearQueue()
			return ctx.Err()
		}
		o.DispatchDue(o.clock.Now())
	}
}

func sendAll(send Sender, msgs []gomidi.Message) {
	if send == nil {
		return
	}
	for _, m := range msgs {
		if err := send(m); err != nil {
			debug.LogEvery(100, "midi", "send %s: %v", m, err)
		}
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
