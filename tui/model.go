package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-stepseq/debug"
	"go-stepseq/sequencer"
	"go-stepseq/theme"
	"go-stepseq/widgets"
)

// tempoStep is the +/- key increment in BPM.
const tempoStep = 5

// Saver stores a snapshot of the project; *sequencer.Store implements it.
type Saver interface {
	Save(projectName, label string, data sequencer.ProjectData) (string, error)
}

type Model struct {
	Manager *sequencer.Manager
	Feed    *Feed
	Theme   *theme.Theme
	Store   Saver
	Project string

	layout   sequencer.Layout
	snap     sequencer.Snapshot
	steps    [][]sequencer.Step
	status   string
	quitting bool
}

type UpdateMsg struct{}

func NewModel(manager *sequencer.Manager, layout sequencer.Layout, feed *Feed, th *theme.Theme) Model {
	m := Model{
		Manager: manager,
		Feed:    feed,
		Theme:   th,
		layout:  layout,
	}
	m.refresh()
	return m
}

// ListenForUpdates waits for the manager's next frame or command.
func ListenForUpdates(manager *sequencer.Manager) tea.Cmd {
	return func() tea.Msg {
		<-manager.Updates()
		return UpdateMsg{}
	}
}

func (m Model) Init() tea.Cmd {
	return ListenForUpdates(m.Manager)
}

func (m *Model) refresh() {
	snap, err := m.Manager.Snapshot()
	if err != nil {
		m.status = err.Error()
		return
	}
	if m.steps == nil || snap.Pattern != m.snap.Pattern || !snap.Running {
		if steps, err := m.Manager.ActiveSteps(); err == nil {
			m.steps = steps
		}
	}
	m.snap = snap
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		m.status = m.handleKey(msg.String())
		m.refresh()

	case UpdateMsg:
		m.refresh()
		return m, ListenForUpdates(m.Manager)
	}

	return m, nil
}

// handleKey runs one key command and returns the status line text.
func (m *Model) handleKey(key string) string {
	var err error
	switch key {
	case " ", "space":
		err = m.Manager.Toggle()
		if err == nil && m.Feed != nil && m.snap.Running {
			m.Feed.Reset()
		}
	case "p":
		err = m.Manager.Pause()
	case "r":
		err = m.Manager.Rewind()
		if err == nil && m.Feed != nil {
			m.Feed.Reset()
		}
	case "l":
		var on bool
		on, err = m.Manager.ToggleLoop()
		if err == nil {
			return fmt.Sprintf("loop %s", onOff(on))
		}
	case "+", "=":
		err = m.Manager.SetBPM(m.snap.BPM + tempoStep)
	case "-", "_":
		err = m.Manager.SetBPM(m.snap.BPM - tempoStep)
	case "[":
		err = m.Manager.SelectPattern(m.snap.Pattern - 1)
	case "]":
		err = m.Manager.SelectPattern(m.snap.Pattern + 1)
	case "s":
		return m.save()
	default:
		return m.status
	}

	if err != nil {
		debug.Warn("tui", "key %q: %v", key, err)
		return err.Error()
	}
	return ""
}

func (m *Model) save() string {
	if m.Store == nil {
		return "no project store"
	}
	data, err := m.Manager.Data()
	if err != nil {
		return err.Error()
	}
	name, err := m.Store.Save(m.Project, "", data)
	if err != nil {
		debug.Warn("tui", "save: %v", err)
		return "save failed: " + err.Error()
	}
	return "saved " + name
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	statusStyle := lipgloss.NewStyle().Foreground(m.Theme.Warning())

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(headerStyle.Render(m.header()))
	out.WriteString("\n\n")
	out.WriteString(m.grid())
	out.WriteString("\n\n")
	if m.status != "" {
		out.WriteString(statusStyle.Render(m.status))
		out.WriteString("\n")
	}
	out.WriteString(dimStyle.Render(widgets.RenderKeyHelp(keyHelp)))
	return out.String()
}

var keyHelp = []widgets.KeySection{
	{Keys: []widgets.KeyBinding{
		{Key: "space", Desc: "play/stop"}, {Key: "p", Desc: "pause"}, {Key: "r", Desc: "rewind"}, {Key: "l", Desc: "loop"},
	}},
	{Keys: []widgets.KeyBinding{
		{Key: "+/-", Desc: "tempo"}, {Key: "[/]", Desc: "pattern"}, {Key: "s", Desc: "save"}, {Key: "q", Desc: "quit"},
	}},
}

func (m Model) header() string {
	s := m.snap
	state := "STOP"
	if s.Running {
		state = "PLAY"
	}
	beats := m.layout.BeatsPerPattern
	return fmt.Sprintf("go-stepseq  %s  %6.2fbpm  %s  loop %s %s-%s  pattern %02d/%02d",
		state, s.BPM, formatPosition(s.Tick, s.PPQN, beats),
		onOff(s.Loop), formatPosition(s.LoopStart, s.PPQN, beats), formatPosition(s.LoopEnd, s.PPQN, beats),
		s.Pattern+1, s.Patterns)
}

func (m Model) grid() string {
	sym := m.Theme.Symbols
	empty := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	firedStyle := lipgloss.NewStyle().Foreground(m.Theme.Success()).Bold(true)

	rows := make([]string, 0, len(m.steps))
	for j, steps := range m.steps {
		active := lipgloss.NewStyle().Foreground(m.Theme.Track(j, len(m.steps)))
		playing := m.playingStep(j)

		cells := make([]widgets.Cell, len(steps))
		for k, s := range steps {
			switch {
			case k == playing:
				cells[k] = widgets.Cell{Glyph: sym.StepFired, Style: firedStyle}
			case s.Silent():
				cells[k] = widgets.Cell{Glyph: sym.StepEmpty, Style: empty}
			default:
				cells[k] = widgets.Cell{Glyph: sym.StepActive, Style: active}
			}
		}
		rows = append(rows, widgets.RenderRow(fmt.Sprintf("T%-2d ", j+1), cells, 4))
	}
	return strings.Join(rows, "\n")
}

// playingStep returns the step index to highlight on track, or -1. A step
// stays lit for one grid step after its tick; scans run slightly ahead.
func (m Model) playingStep(track int) int {
	if m.Feed == nil || !m.snap.Running {
		return -1
	}
	index, tick, ok := m.Feed.Last(track)
	if !ok {
		return -1
	}
	d := m.snap.Tick - tick
	if d < -4*sequencer.DefaultLookAheadTicks || d >= float64(m.layout.StepDuration()) {
		return -1
	}
	return index
}

// formatPosition renders ticks as bar.beat.tick, bars and beats from 1.
func formatPosition(tick float64, ppqn, beatsPerBar int) string {
	if ppqn <= 0 || beatsPerBar <= 0 {
		return "-"
	}
	t := int(tick)
	if t < 0 {
		t = 0
	}
	bar := t/(ppqn*beatsPerBar) + 1
	beat := (t/ppqn)%beatsPerBar + 1
	return fmt.Sprintf("%d.%d.%03d", bar, beat, t%ppqn)
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
