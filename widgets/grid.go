package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Cell is one glyph of a step row.
type Cell struct {
	Glyph rune
	Style lipgloss.Style
}

// RenderRow renders cells with a space between them and a gap every group cells.
func RenderRow(label string, cells []Cell, group int) string {
	var out strings.Builder
	out.WriteString(label)
	for i, c := range cells {
		if i > 0 {
			out.WriteString(" ")
			if group > 0 && i%group == 0 {
				out.WriteString(" ")
			}
		}
		out.WriteString(c.Style.Render(string(c.Glyph)))
	}
	return out.String()
}

// RenderKeyHelp formats key bindings on one line per section.
func RenderKeyHelp(sections []KeySection) string {
	var lines []string
	for _, sec := range sections {
		parts := make([]string, 0, len(sec.Keys))
		for _, k := range sec.Keys {
			parts = append(parts, fmt.Sprintf("%s:%s", k.Key, k.Desc))
		}
		line := strings.Join(parts, "  ")
		if sec.Title != "" {
			line = sec.Title + "  " + line
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// KeySection groups related key bindings
type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyBinding is a single key and its description
type KeyBinding struct {
	Key  string
	Desc string
}
