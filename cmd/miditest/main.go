package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"go-stepseq/midi"
	"go-stepseq/sequencer"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	port := ""
	if len(os.Args) > 2 {
		port = os.Args[2]
	}

	switch os.Args[1] {
	case "list":
		listPorts()
	case "poll":
		pollPorts(port)
	case "scale":
		playScale(port)
	default:
		usage()
	}
}

func usage() {
	fmt.Println("MIDI Test Scripts")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list          - List all MIDI outputs")
	fmt.Println("  poll [port]   - Report when a port connects or disconnects")
	fmt.Println("  scale [port]  - Play a C major scale through the scheduler")
}

func listPorts() {
	fmt.Println("=== MIDI Output Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	names, err := midi.ListPorts()
	if err != nil {
		fmt.Println("\nERROR:", err)
		if err == midi.ErrPortTimeout {
			fmt.Println("Fix: sudo killall coreaudiod midiserver")
		}
		return
	}
	for i, n := range names {
		fmt.Printf("  %d: %s\n", i, n)
	}
}

func pollPorts(port string) {
	fmt.Printf("Watching for %q (Ctrl+C to stop)\n", port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	w := midi.NewPortWatcher(port)
	go w.Run(ctx)
	for ev := range w.Events() {
		switch ev.Type {
		case midi.PortConnected:
			fmt.Printf("%s  connected     %s\n", time.Now().Format("15:04:05"), ev.Name)
		case midi.PortDisconnected:
			fmt.Printf("%s  disconnected  %s\n", time.Now().Format("15:04:05"), ev.Name)
		}
	}
}

// playScale runs one pattern of eighth notes through the real transport and
// output so timing can be checked by ear.
func playScale(port string) {
	send, name, err := midi.OpenPort(port)
	if err != nil {
		fmt.Println("ERROR:", err)
		return
	}
	fmt.Println("Playing to", name)

	layout := sequencer.Layout{PPQN: 480, BeatsPerPattern: 4, Patterns: 1, Tracks: 1, Steps: 8}
	data := sequencer.EmptyData(layout)
	data.BPM = 120
	for k, pitch := range []int{60, 62, 64, 65, 67, 69, 71, 72} {
		data.Patterns[0].Tracks[0].Steps[k].Pitch = pitch
		data.Patterns[0].Tracks[0].Steps[k].Velocity = 100
	}

	arr, err := sequencer.NewArrangement(layout)
	if err == nil {
		err = arr.SetData(data)
	}
	if err != nil {
		fmt.Println("ERROR:", err)
		return
	}

	clock := sequencer.NewSystemClock()
	out := midi.NewOutput(clock, midi.WithSender(send))
	tr, err := sequencer.NewTransport(clock, arr, sequencer.WithBPM(data.BPM), sequencer.WithSink(out))
	if err != nil {
		fmt.Println("ERROR:", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2100*time.Millisecond)
	defer cancel()
	go out.Run(ctx)

	tr.Start()
	ticker := time.NewTicker(time.Second / 60)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			tr.Pause()
			return
		case <-ticker.C:
			tr.Tick()
		}
	}
}
