package annotate

import (
	"image/color"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// defaultPalette is indexed by class id.
var defaultPalette = []string{
	"#a351fb", "#e6194b", "#3cb44b", "#ffe119", "#0082c8", "#f58231",
	"#911eb4", "#46f0f0", "#f032e6", "#d2f53c", "#fabebe", "#008080",
	"#e6beff", "#aa6e28", "#fffac8", "#800000", "#aaffc3",
}

// Palette maps class ids to box colors.
type Palette struct {
	colors []colorful.Color
}

// NewPalette parses hex colors; invalid entries are skipped.
func NewPalette(hexes ...string) *Palette {
	if len(hexes) == 0 {
		hexes = defaultPalette
	}
	p := &Palette{}
	for _, h := range hexes {
		c, err := colorful.Hex(h)
		if err != nil {
			continue
		}
		p.colors = append(p.colors, c)
	}
	if len(p.colors) == 0 {
		p.colors = []colorful.Color{{R: 1, G: 0, B: 0}}
	}
	return p
}

// ColorFor returns the box color for a class id. Negative ids wrap like positive ones.
func (p *Palette) ColorFor(classID int) color.RGBA {
	idx := classID % len(p.colors)
	if idx < 0 {
		idx += len(p.colors)
	}
	return toRGBA(p.colors[idx])
}

// TextColorOn picks black or white, whichever reads better on the background.
func TextColorOn(bg color.RGBA) color.RGBA {
	c, _ := colorful.MakeColor(bg)
	l, _, _ := c.Lab()
	if l > 0.6 {
		return color.RGBA{A: 255}
	}
	return color.RGBA{R: 255, G: 255, B: 255, A: 255}
}

func toRGBA(c colorful.Color) color.RGBA {
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}
