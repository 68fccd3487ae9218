package sequencer

import (
	"math"
	"sort"

	"go-stepseq/debug"
)

const (
	DefaultPPQN = 480
	DefaultBPM  = 120.0

	// DefaultLookAheadTicks is the scan window size (a 1/128 note at 480 PPQN).
	DefaultLookAheadTicks = 16

	// windowAdvanceThreshold is one 60 Hz frame of slack.
	windowAdvanceThreshold = 0.0167

	// maxCatchUp bounds how far behind the playhead a window may start before
	// the missed span is dropped.
	maxCatchUp = 0.25

	tickEpsilon = 1e-6
)

// Scanner answers "which events start in [start, end]" in ticks.
type Scanner interface {
	ScanEvents(absStart, start, end float64, queue []Event) ([]Event, error)
}

// Sink plays events. The batch is reused after PlayEvents returns and only
// contains events with velocity > 0.
type Sink interface {
	PlayEvents(events []Event)
}

// View receives every scanned event, silent ones included, for display. It
// must not modify or retain the batch.
type View interface {
	ShowEvents(events []Event)
}

// queueClearer is implemented by sinks that buffer events.
type queueClearer interface {
	ClearQueue()
}

// Status is a snapshot of transport state. Positions are in ticks.
type Status struct {
	Running   bool
	Loop      bool
	BPM       float64
	PPQN      int
	Tick      float64
	LoopStart float64
	LoopEnd   float64
}

// Transport advances the playhead against a Clock and keeps a lookahead window
// of scanned events ahead of it. All state is in seconds; the public API is in
// ticks. It is not safe for concurrent use; Manager serializes access.
type Transport struct {
	clock   Clock
	scanner Scanner
	sink    Sink
	views   []View

	running bool
	loop    bool

	ppqn           int
	bpm            float64
	tickInSeconds  float64
	lookAheadTicks float64
	lookAhead      float64

	now        float64 // playhead
	absLastNow float64 // clock reading that matches now
	absOrigin  float64 // clock time of tick 0; always absLastNow - now

	loopStart float64
	loopEnd   float64

	scanStart float64
	scanEnd   float64
	needsScan bool

	queue   []Event
	audible []Event
}

// Option configures a Transport.
type Option func(*Transport)

func WithPPQN(ppqn int) Option { return func(t *Transport) { t.ppqn = ppqn } }

func WithBPM(bpm float64) Option { return func(t *Transport) { t.bpm = bpm } }

func WithSink(s Sink) Option { return func(t *Transport) { t.sink = s } }

func WithView(v View) Option {
	return func(t *Transport) {
		if v != nil {
			t.views = append(t.views, v)
		}
	}
}

func WithLookAheadTicks(n int) Option {
	return func(t *Transport) { t.lookAheadTicks = float64(n) }
}

// NewTransport creates a stopped transport at tick 0 with the loop set to one
// 4-beat bar.
func NewTransport(clock Clock, scanner Scanner, opts ...Option) (*Transport, error) {
	t := &Transport{
		clock:          clock,
		scanner:        scanner,
		ppqn:           DefaultPPQN,
		bpm:            DefaultBPM,
		lookAheadTicks: DefaultLookAheadTicks,
	}
	for _, opt := range opts {
		opt(t)
	}

	switch {
	case clock == nil || scanner == nil:
		return nil, configError(ErrMalformedData, "transport needs a clock and a scanner")
	case t.ppqn <= 0:
		return nil, configError(ErrMalformedData, "ppqn %d must be positive", t.ppqn)
	case t.lookAheadTicks <= 0:
		return nil, configError(ErrMalformedData, "lookahead %v ticks must be positive", t.lookAheadTicks)
	case !validBPM(t.bpm):
		return nil, configError(ErrInvalidTempo, "bpm %v must be positive", t.bpm)
	}

	t.setTiming(t.bpm)
	t.loopEnd = t.TickToSeconds(float64(4 * t.ppqn))
	t.absLastNow = clock.Now()
	t.absOrigin = t.absLastNow
	return t, nil
}

func (t *Transport) setTiming(bpm float64) {
	t.bpm = bpm
	t.tickInSeconds = (60 / bpm) / float64(t.ppqn)
	t.lookAhead = t.tickInSeconds * t.lookAheadTicks
}

// TickToSeconds converts ticks at the current tempo.
func (t *Transport) TickToSeconds(ticks float64) float64 {
	return ticks * t.tickInSeconds
}

// SecondsToTicks converts seconds at the current tempo.
func (t *Transport) SecondsToTicks(seconds float64) float64 {
	return seconds / t.tickInSeconds
}

func (t *Transport) BPM() float64       { return t.bpm }
func (t *Transport) PPQN() int          { return t.ppqn }
func (t *Transport) IsRunning() bool    { return t.running }
func (t *Transport) IsLoop() bool       { return t.loop }
func (t *Transport) Now() float64       { return t.SecondsToTicks(t.now) }
func (t *Transport) LoopStart() float64 { return t.SecondsToTicks(t.loopStart) }
func (t *Transport) LoopEnd() float64   { return t.SecondsToTicks(t.loopEnd) }

// LookAhead returns the window size in seconds.
func (t *Transport) LookAhead() float64 { return t.lookAhead }

// Origin returns the clock time at which tick 0 sounds (or would have).
func (t *Transport) Origin() float64 { return t.absOrigin }

func (t *Transport) Status() Status {
	return Status{
		Running:   t.running,
		Loop:      t.loop,
		BPM:       t.bpm,
		PPQN:      t.ppqn,
		Tick:      t.Now(),
		LoopStart: t.LoopStart(),
		LoopEnd:   t.LoopEnd(),
	}
}

// Start anchors the playhead to the clock and opens a scan window at it.
func (t *Transport) Start() {
	if t.running {
		return
	}
	absNow := t.clock.Now()
	t.absLastNow = absNow
	t.absOrigin = absNow - t.now
	t.resetScanRange()
	t.running = true
	debug.Log("transport", "start at tick %.2f origin %.4f", t.Now(), t.absOrigin)
}

// Pause stops playback and drops everything not yet dispatched.
func (t *Transport) Pause() {
	t.running = false
	t.needsScan = false
	t.queue = t.queue[:0]
	if c, ok := t.sink.(queueClearer); ok {
		c.ClearQueue()
	}
	debug.Log("transport", "pause at tick %.2f", t.Now())
}

// ToggleStartStop pauses and rewinds when running, starts otherwise.
func (t *Transport) ToggleStartStop() {
	if t.running {
		t.Pause()
		t.Rewind()
		return
	}
	t.Start()
}

// Rewind moves the playhead to tick 0.
func (t *Transport) Rewind() {
	t.setPlayhead(0, t.clock.Now())
	t.resetScanRange()
}

// Seek moves the playhead to tick.
func (t *Transport) Seek(tick float64) error {
	if math.IsNaN(tick) || math.IsInf(tick, 0) || tick < 0 {
		return rangeError(ErrInvalidRange, "seek to tick %v", tick)
	}
	t.setPlayhead(t.TickToSeconds(tick), t.clock.Now())
	t.resetScanRange()
	debug.Log("transport", "seek to tick %.2f", tick)
	return nil
}

// SetBPM changes tempo keeping every tick position fixed: playhead, loop and
// scan window are rescaled by old/new.
func (t *Transport) SetBPM(bpm float64) error {
	if !validBPM(bpm) {
		return configError(ErrInvalidTempo, "bpm %v must be positive", bpm)
	}
	return t.ApplyTempo(bpm, t.bpm/bpm)
}

// ApplyTempo switches to bpm and rescales second-domain state by factor, the
// old/new ratio reported by Arrangement.SetBPM.
func (t *Transport) ApplyTempo(bpm, factor float64) error {
	if !validBPM(bpm) {
		return configError(ErrInvalidTempo, "bpm %v must be positive", bpm)
	}
	if !validBPM(factor) {
		return configError(ErrInvalidTempo, "tempo factor %v must be positive", factor)
	}

	absNow := t.clock.Now()
	if t.running {
		t.now += absNow - t.absLastNow
	}
	t.absLastNow = absNow

	t.setTiming(bpm)
	t.now *= factor
	t.loopStart *= factor
	t.loopEnd *= factor
	t.scanStart *= factor
	t.scanEnd *= factor
	t.absOrigin = absNow - t.now

	debug.Log("tempo", "bpm %.2f factor %.4f tick %.2f", bpm, factor, t.Now())
	return nil
}

// SetLoop sets both loop points in ticks.
func (t *Transport) SetLoop(startTick, endTick float64) error {
	if math.IsNaN(startTick) || math.IsNaN(endTick) || startTick < 0 || endTick <= startTick {
		return rangeError(ErrInvalidLoop, "loop [%v, %v)", startTick, endTick)
	}
	t.loopStart = t.TickToSeconds(startTick)
	t.loopEnd = t.TickToSeconds(endTick)
	debug.Log("loop", "loop [%.2f, %.2f)", startTick, endTick)
	return nil
}

// SetLoopStart moves the loop start, which must stay before the loop end.
func (t *Transport) SetLoopStart(tick float64) error {
	return t.SetLoop(tick, t.LoopEnd())
}

// SetLoopEnd moves the loop end, which must stay after the loop start.
func (t *Transport) SetLoopEnd(tick float64) error {
	return t.SetLoop(t.LoopStart(), tick)
}

// SetLooping turns looping on or off.
func (t *Transport) SetLooping(on bool) {
	t.loop = on
	debug.Log("loop", "looping %v", on)
}

// ToggleLoop flips looping and returns the new state.
func (t *Transport) ToggleLoop() bool {
	t.SetLooping(!t.loop)
	return t.loop
}

// setPlayhead keeps absOrigin = absNow - now.
func (t *Transport) setPlayhead(seconds, absNow float64) {
	t.now = seconds
	t.absLastNow = absNow
	t.absOrigin = absNow - t.now
}

func (t *Transport) resetScanRange() {
	t.scanStart = t.now
	t.scanEnd = t.now + t.lookAhead
	t.clampToLoop()
	t.needsScan = t.scanEnd > t.scanStart
}

// clampToLoop stops a window at the loop end; the rest is scanned after the wrap.
func (t *Transport) clampToLoop() {
	if t.loop && t.scanStart < t.loopEnd && t.scanEnd > t.loopEnd {
		t.scanEnd = t.loopEnd
	}
}

// Tick runs one frame: advance the playhead, scan and dispatch any open
// window, slide the window, and wrap at the loop end.
func (t *Transport) Tick() {
	if !t.running {
		return
	}

	absNow := t.clock.Now()
	t.now += absNow - t.absLastNow
	t.absLastNow = absNow

	t.scanPending()
	if t.advanceScanRange() {
		t.scanPending()
	}

	if t.loop && t.loopEnd-(t.now+t.lookAhead) < 0 {
		t.wrap(absNow)
	}
}

func (t *Transport) scanPending() {
	if !t.needsScan {
		return
	}
	t.needsScan = false
	t.scan(t.scanStart, t.scanEnd)
}

// advanceScanRange slides the window forward in lookAhead steps until it is
// ahead of the playhead again. Returns true when a new window was opened.
func (t *Transport) advanceScanRange() bool {
	if t.scanEnd-t.now >= windowAdvanceThreshold {
		return false
	}
	if t.loop && t.scanEnd >= t.loopEnd {
		// Window already reaches the loop end; the wrap reopens it.
		return false
	}

	if t.now-t.scanEnd > maxCatchUp {
		debug.Log("transport", "window starved, dropping %.4fs", t.now-t.scanEnd)
		t.scanEnd = t.now
	}

	t.scanStart = t.scanEnd
	if gap := 2*windowAdvanceThreshold - (t.scanEnd - t.now); gap > 0 {
		t.scanEnd += math.Max(1, math.Ceil(gap/t.lookAhead)) * t.lookAhead
	}
	t.clampToLoop()

	t.needsScan = t.scanEnd > t.scanStart
	return t.needsScan
}

// wrap scans what is left before the loop end, then moves the playhead back
// by the loop length keeping the overshoot.
func (t *Transport) wrap(absNow float64) {
	from := t.scanEnd
	if t.needsScan {
		from = t.scanStart
	}
	if from < t.loopEnd {
		t.scan(from, t.loopEnd)
	}

	length := t.loopEnd - t.loopStart
	overshoot := t.now - t.loopEnd
	if overshoot >= length {
		overshoot = math.Mod(overshoot, length)
	}
	t.setPlayhead(t.loopStart+overshoot, absNow)

	// The old window ended at loopEnd, which is loopStart after the wrap.
	t.scanStart = t.loopStart
	if t.now-t.scanStart > maxCatchUp {
		t.scanStart = t.now
	}
	t.scanEnd = t.scanStart
	t.needsScan = false
	debug.Log("loop", "wrap to tick %.3f", t.Now())

	if t.advanceScanRange() {
		t.scanPending()
	}
}

// scan fetches events in the half-open window [start, end) seconds, stamps
// clock times and dispatches them. Track scans are inclusive at the end, so
// events on the end tick are left for the next window. Both edges are pulled
// back by tickEpsilon so a boundary event lands in exactly one of two
// adjacent windows despite rounding in the seconds/ticks conversion.
func (t *Transport) scan(start, end float64) {
	startTick := t.SecondsToTicks(start)
	endTick := t.SecondsToTicks(end)
	if endTick <= startTick {
		return
	}

	from := startTick - tickEpsilon
	events, err := t.scanner.ScanEvents(from, from, endTick, t.queue[:0])
	if err != nil {
		debug.Warn("scan", "scan [%.2f, %.2f): %v", startTick, endTick, err)
		t.queue = t.queue[:0]
		return
	}

	kept := events[:0]
	for _, e := range events {
		if e.Tick >= endTick-tickEpsilon {
			continue
		}
		e.AbsStart = t.absOrigin + t.TickToSeconds(e.Tick)
		e.AbsEnd = e.AbsStart + t.TickToSeconds(float64(e.Duration))
		kept = append(kept, e)
	}
	t.queue = kept

	debug.LogEvery(240, "scan", "window [%.2f, %.2f) -> %d events", startTick, endTick, len(kept))
	t.dispatch()
	t.queue = t.queue[:0]
}

func (t *Transport) dispatch() {
	if len(t.queue) == 0 {
		return
	}
	for _, v := range t.views {
		v.ShowEvents(t.queue)
	}
	if t.sink == nil {
		return
	}
	t.audible = t.audible[:0]
	for _, e := range t.queue {
		if !e.Silent() {
			t.audible = append(t.audible, e)
		}
	}
	if len(t.audible) > 0 {
		t.sink.PlayEvents(t.audible)
	}
}

// SortByAbsStart orders a batch chronologically. Scans return events in track
// order, not time order.
func SortByAbsStart(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].AbsStart < events[j].AbsStart
	})
}
