package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"go-stepseq/config"
	"go-stepseq/debug"
	"go-stepseq/midi"
	"go-stepseq/sequencer"
	"go-stepseq/theme"
	"go-stepseq/tui"
)

func setup() (*config.Config, error) {
	if opts.debug {
		if err := debug.Enable(); err != nil {
			return nil, err
		}
	}
	if opts.configPath != "" {
		return config.LoadFrom(opts.configPath)
	}
	return config.Load()
}

func saveConfig(cfg *config.Config) error {
	if opts.configPath != "" {
		return cfg.SaveTo(opts.configPath)
	}
	return cfg.Save()
}

func layoutFor(cfg *config.Config) sequencer.Layout {
	return sequencer.Layout{
		PPQN:            cfg.Timing.PPQN,
		BeatsPerPattern: cfg.Timing.BeatsPerPattern,
		Patterns:        cfg.Layout.Patterns,
		Tracks:          cfg.Layout.Tracks,
		Steps:           cfg.Layout.Steps,
	}
}

// generate builds new content from the --random, --seed and --kit flags.
func generate(cfg *config.Config, layout sequencer.Layout) (sequencer.ProjectData, error) {
	var data sequencer.ProjectData
	if opts.random {
		seed := opts.seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		data = sequencer.RandomData(layout, rand.New(rand.NewSource(seed)))
		debug.Log("project", "random content, seed %d", seed)
	} else {
		data = sequencer.EmptyData(layout)
		data.BPM = cfg.Timing.DefaultBPM
	}
	if opts.kit != "" {
		kit, err := sequencer.GetKit(opts.kit)
		if err != nil {
			return data, err
		}
		sequencer.ApplyKit(&data, kit)
	}
	return data, nil
}

// loadProject picks the content to open: --file, then --project from the
// store, then a generator. It returns the project name used for saving.
func loadProject(cfg *config.Config, store *sequencer.Store, layout sequencer.Layout) (sequencer.ProjectData, string, error) {
	switch {
	case opts.file != "":
		data, err := sequencer.LoadFile(opts.file)
		return data, opts.project, err
	case opts.project != "" && !opts.random:
		data, err := store.Load(opts.project, "")
		return data, opts.project, err
	}

	name := opts.project
	if name == "" && !opts.random {
		name = cfg.UI.LastProject
		if name != "" {
			if data, err := store.Load(name, ""); err == nil {
				return data, name, nil
			}
		}
	}
	data, err := generate(cfg, layout)
	return data, name, err
}

func newArrangement(layout sequencer.Layout, data sequencer.ProjectData) (*sequencer.Arrangement, error) {
	arr, err := sequencer.NewArrangement(layout)
	if err != nil {
		return nil, err
	}
	if err := arr.SetData(data); err != nil {
		return nil, err
	}
	return arr, nil
}

func runPlay(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	store, err := sequencer.DefaultStore()
	if err != nil {
		return err
	}

	layout := layoutFor(cfg)
	data, name, err := loadProject(cfg, store, layout)
	if err != nil {
		return err
	}
	if opts.bpm > 0 {
		data.BPM = opts.bpm
	}
	arr, err := newArrangement(layout, data)
	if err != nil {
		return err
	}

	palette := theme.DefaultPalette()
	if opts.palette != "" {
		if palette, err = theme.LoadGPL(opts.palette); err != nil {
			return err
		}
	}

	clock := sequencer.NewSystemClock()
	out := midi.NewOutput(clock,
		midi.WithChannelMap(cfg.MIDIChannel),
		midi.WithNoteOffGuard(time.Duration(cfg.Output.NoteOffGuardMs)*time.Millisecond),
	)
	out.SetRacks(arr.Racks())

	feed := tui.NewFeed(layout.Tracks)
	tr, err := sequencer.NewTransport(clock, arr,
		sequencer.WithPPQN(layout.PPQN),
		sequencer.WithBPM(arr.BPM()),
		sequencer.WithSink(out),
		sequencer.WithView(feed),
	)
	if err != nil {
		return err
	}
	mgr, err := sequencer.NewManager(arr, tr, cfg.Timing.FrameRate)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		mgr.Run(ctx)
		close(stopped)
	}()
	go out.Run(ctx)

	portName := opts.port
	if portName == "" {
		portName = cfg.Output.PortName
	}
	watcher := midi.NewPortWatcher(portName)
	go watcher.Run(ctx)
	go out.Follow(watcher.Events())

	m := tui.NewModel(mgr, layout, feed, theme.New(palette))
	m.Store = store
	m.Project = name
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, runErr := p.Run()

	if final, err := mgr.Data(); err == nil {
		if name == "" {
			name = "untitled"
		}
		if err := store.Autosave(name, final); err != nil {
			debug.Warn("project", "autosave %s: %v", name, err)
		}
		cfg.UI.LastProject = name
		cfg.UI.LastTempo = int(final.BPM)
		if err := saveConfig(cfg); err != nil {
			debug.Warn("config", "save: %v", err)
		}
	}

	cancel()
	<-stopped
	return runErr
}

func runNew(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	data, err := generate(cfg, layoutFor(cfg))
	if err != nil {
		return err
	}

	if opts.yaml != "" {
		if err := sequencer.WriteFile(opts.yaml, data); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", opts.yaml)
		return nil
	}

	store, err := sequencer.DefaultStore()
	if err != nil {
		return err
	}
	filename, err := store.Save(args[0], "", data)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %s/%s\n", store.ProjectDir(args[0]), filename)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	store, err := sequencer.DefaultStore()
	if err != nil {
		return err
	}
	layout := layoutFor(cfg)

	var data sequencer.ProjectData
	switch {
	case opts.file != "":
		data, err = sequencer.LoadFile(opts.file)
	case opts.project != "":
		data, err = store.Load(opts.project, "")
	default:
		return fmt.Errorf("export needs --project or --file")
	}
	if err != nil {
		return err
	}
	arr, err := newArrangement(layout, data)
	if err != nil {
		return err
	}

	f, err := os.Create(args[0])
	if err != nil {
		return err
	}
	if err := midi.ExportPattern(f, arr, opts.pattern, arr.BPM()); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote pattern %d to %s\n", opts.pattern, args[0])
	return nil
}

func runPorts(cmd *cobra.Command, args []string) error {
	if _, err := setup(); err != nil {
		return err
	}
	names, err := midi.ListPorts()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no MIDI outputs")
		return nil
	}
	for i, n := range names {
		fmt.Fprintf(cmd.OutOrStdout(), "%d: %s\n", i, n)
	}
	return nil
}
