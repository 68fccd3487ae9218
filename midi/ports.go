package midi

import (
	"context"
	"errors"
	"strings"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"

	"go-stepseq/debug"
)

// ErrNoDriver is returned when the binary was built without a MIDI driver.
var ErrNoDriver = errors.New("no MIDI driver compiled in (build with cgo)")

// ErrPortTimeout is returned when the driver does not answer a port query.
var ErrPortTimeout = errors.New("MIDI port query timed out")

// portTimeout bounds a port query; CoreMIDI can hang.
const portTimeout = 3 * time.Second

// PortEvent is emitted when the watched output appears or goes away.
type PortEvent struct {
	Type PortEventType
	Name string
	Send Sender // set on PortConnected
}

type PortEventType int

const (
	PortConnected PortEventType = iota
	PortDisconnected
)

// ListPorts returns the names of all MIDI output ports.
func ListPorts() ([]string, error) {
	if !driverAvailable {
		return nil, ErrNoDriver
	}
	ch := make(chan []string, 1)
	go func() {
		var names []string
		for _, p := range gomidi.GetOutPorts() {
			names = append(names, p.String())
		}
		ch <- names
	}()

	select {
	case names := <-ch:
		return names, nil
	case <-time.After(portTimeout):
		return nil, ErrPortTimeout
	}
}

// OpenPort opens the first output whose name contains name (case-insensitive).
// An empty name opens the first port.
func OpenPort(name string) (Sender, string, error) {
	names, err := ListPorts()
	if err != nil {
		return nil, "", err
	}
	port, ok := matchPort(names, name)
	if !ok {
		return nil, "", errors.New("no MIDI output matching " + quoteName(name))
	}
	out, err := gomidi.FindOutPort(port)
	if err != nil {
		return nil, "", err
	}
	send, err := gomidi.SendTo(out)
	if err != nil {
		return nil, "", err
	}
	return Sender(send), port, nil
}

func matchPort(names []string, want string) (string, bool) {
	want = strings.ToLower(want)
	for _, n := range names {
		if strings.Contains(strings.ToLower(n), want) {
			return n, true
		}
	}
	return "", false
}

func quoteName(name string) string {
	if name == "" {
		return "(any)"
	}
	return `"` + name + `"`
}

// PortWatcher polls the output ports and reports when the configured port
// connects or disconnects.
type PortWatcher struct {
	want      string
	connected string
	events    chan PortEvent
	pollRate  time.Duration

	list func() ([]string, error)
	open func(name string) (Sender, string, error)
}

func NewPortWatcher(portName string) *PortWatcher {
	return &PortWatcher{
		want:     portName,
		events:   make(chan PortEvent, 16),
		pollRate: time.Second,
		list:     ListPorts,
		open:     OpenPort,
	}
}

// Events returns port connect/disconnect events. It is closed when Run returns.
func (w *PortWatcher) Events() <-chan PortEvent {
	return w.events
}

// Run polls until ctx is cancelled (blocking - run in goroutine).
func (w *PortWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollRate)
	defer ticker.Stop()
	defer close(w.events)

	w.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scan(ctx)
		}
	}
}

func (w *PortWatcher) scan(ctx context.Context) {
	names, err := w.list()
	if err != nil {
		// skip this scan, keep the last known state
		debug.LogEvery(30, "midi", "list ports: %v", err)
		return
	}

	port, present := matchPort(names, w.want)
	switch {
	case w.connected != "" && (!present || port != w.connected):
		gone := w.connected
		w.connected = ""
		debug.Log("midi", "output %s disconnected", gone)
		w.emit(ctx, PortEvent{Type: PortDisconnected, Name: gone})
	case w.connected == "" && present:
		send, name, err := w.open(w.want)
		if err != nil {
			debug.Warn("midi", "open %s: %v", port, err)
			return
		}
		w.connected = name
		debug.Log("midi", "output %s connected", name)
		w.emit(ctx, PortEvent{Type: PortConnected, Name: name, Send: send})
	}
}

func (w *PortWatcher) emit(ctx context.Context, ev PortEvent) {
	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}

// Follow applies port events to o until events is closed: a connected port
// becomes the sender and a lost port drops queued notes.
func (o *Output) Follow(events <-chan PortEvent) {
	for ev := range events {
		switch ev.Type {
		case PortConnected:
			o.SetSender(ev.Send)
		case PortDisconnected:
			o.mu.Lock()
			o.queue = o.queue[:0]
			clear(o.sounding)
			o.send = nil
			o.mu.Unlock()
		}
	}
}
