package arena

import (
	"fmt"

	"github.com/lucasb-eyer/go-colorful"
)

// Palette holds the colours a robot paints its parts, bullets and scan arc with.
type Palette struct {
	Body   colorful.Color
	Gun    colorful.Color
	Radar  colorful.Color
	Bullet colorful.Color
	Scan   colorful.Color
}

var defaultPalette = Palette{
	Body:   mustHex("#29298c"),
	Gun:    mustHex("#29298c"),
	Radar:  mustHex("#29298c"),
	Bullet: colorful.Color{R: 1, G: 1, B: 1},
	Scan:   colorful.Color{R: 0, G: 0, B: 1},
}

// DefaultPalette returns the colours robots start a battle with.
func DefaultPalette() Palette {
	return defaultPalette
}

// ParseColor decodes a #rrggbb string.
func ParseColor(hex string) (colorful.Color, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return colorful.Color{}, fmt.Errorf("parse colour %q: %w", hex, err)
	}
	return c, nil
}

// PaletteFromHex derives a palette with every robot part painted in the given colour.
func PaletteFromHex(hex string) (Palette, error) {
	palette := DefaultPalette()
	if hex == "" {
		return palette, nil
	}
	c, err := ParseColor(hex)
	if err != nil {
		return palette, err
	}
	palette.Body = c
	//1.- The turret and radar are painted in lighter shades of the body colour.
	palette.Gun = c.BlendLab(colorful.Color{R: 1, G: 1, B: 1}, 0.25).Clamped()
	palette.Radar = c.BlendLab(colorful.Color{R: 1, G: 1, B: 1}, 0.5).Clamped()
	return palette, nil
}

func mustHex(hex string) colorful.Color {
	c, err := colorful.Hex(hex)
	if err != nil {
		panic(err)
	}
	return c
}
