package theme

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
)

type RGB [3]uint8

type Palette struct {
	Name   string
	Colors []RGB
}

// DefaultPalette is a dark purple to yellow ramp.
func DefaultPalette() *Palette {
	return &Palette{
		Name: "plasma",
		Colors: []RGB{
			{13, 8, 135},
			{84, 2, 163},
			{139, 10, 165},
			{185, 50, 137},
			{219, 92, 104},
			{244, 136, 73},
			{254, 188, 43},
			{240, 249, 33},
		},
	}
}

// LoadGPL reads a GIMP palette file.
func LoadGPL(path string) (*Palette, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With("open palette"))
	}
	defer file.Close()

	pal, err := ParseGPL(file)
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With("palette "+path))
	}
	return pal, nil
}

// ParseGPL reads the GIMP palette format. Lines that are not a "R G B [name]"
// triple (header, Columns:, comments) are ignored.
func ParseGPL(r io.Reader) (*Palette, error) {
	p := &Palette{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if name, ok := strings.CutPrefix(line, "Name:"); ok {
			p.Name = strings.TrimSpace(name)
			continue
		}
		if c, ok := parseColor(line); ok {
			p.Colors = append(p.Colors, c)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(p.Colors) == 0 {
		return nil, errors.New("palette has no colors")
	}
	return p, nil
}

func parseColor(line string) (RGB, bool) {
	if line == "" || line[0] == '#' {
		return RGB{}, false
	}
	var c [3]int
	if n, _ := fmt.Sscan(line, &c[0], &c[1], &c[2]); n != 3 {
		return RGB{}, false
	}
	var rgb RGB
	for i, v := range c {
		if v < 0 || v > 255 {
			return RGB{}, false
		}
		rgb[i] = uint8(v)
	}
	return rgb, true
}

// Lookup samples the palette at norm in [0, 1], blending neighbouring stops.
func (p *Palette) Lookup(norm float64) RGB {
	last := len(p.Colors) - 1
	switch {
	case norm <= 0 || last == 0:
		return p.Colors[0]
	case norm >= 1:
		return p.Colors[last]
	}
	i, frac := math.Modf(norm * float64(last))
	from, to := p.Colors[int(i)], p.Colors[int(i)+1]
	var out RGB
	for ch := range out {
		out[ch] = lerp(from[ch], to[ch], frac)
	}
	return out
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t)
}
