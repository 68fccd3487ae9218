package sequencer

import (
	"fmt"
	"sort"
)

// KitSlots names the 16 drum slots in kit order.
var KitSlots = [16]string{
	"Kick", "Snare", "Closed HH", "Open HH", "Low Tom", "Mid Tom", "High Tom", "Crash",
	"Ride", "Clap", "Rimshot", "Cowbell", "Clave", "Maracas", "Low Conga", "High Conga",
}

// DrumKit maps the 16 drum slots to MIDI notes
type DrumKit struct {
	Name  string
	Notes [16]uint8
}

// Kits contains all available drum kit mappings
var Kits = map[string]DrumKit{
	"gm":   {Name: "General MIDI", Notes: [16]uint8{36, 38, 42, 46, 41, 43, 45, 49, 51, 39, 37, 56, 75, 70, 64, 63}},
	"rd8":  {Name: "Behringer RD-8", Notes: [16]uint8{36, 40, 42, 46, 45, 48, 50, 49, 51, 39, 37, 56, 75, 70, 64, 63}}, // snare on 40
	"tr8s": {Name: "Roland TR-8S", Notes: [16]uint8{36, 38, 42, 46, 41, 43, 45, 49, 51, 39, 37, 56, 75, 70, 62, 63}},
	"er1":  {Name: "Korg ER-1", Notes: [16]uint8{36, 38, 42, 46, 40, 41, 43, 49, 45, 39, 37, 56, 75, 70, 64, 63}},
}

// DefaultKit is the default kit name
const DefaultKit = "gm"

// KitNames returns the available kit names, sorted.
func KitNames() []string {
	names := make([]string, 0, len(Kits))
	for name := range Kits {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetKit looks up a kit by name.
func GetKit(name string) (DrumKit, error) {
	kit, ok := Kits[name]
	if !ok {
		return DrumKit{}, configError(ErrMalformedData, "unknown kit %q (have %v)", name, KitNames())
	}
	return kit, nil
}

// ApplyKit turns every track into a drum voice: track j plays slot j of the
// kit on every step, and its rack instrument is named after the slot.
func ApplyKit(data *ProjectData, kit DrumKit) {
	for p := range data.Patterns {
		for j := range data.Patterns[p].Tracks {
			if j >= len(kit.Notes) {
				break
			}
			steps := data.Patterns[p].Tracks[j].Steps
			for k := range steps {
				steps[k].Pitch = int(kit.Notes[j])
			}
		}
	}
	for j := range data.Racks {
		if j < len(KitSlots) {
			data.Racks[j].Instrument.Name = fmt.Sprintf("%s %s", kit.Name, KitSlots[j])
		}
	}
}
