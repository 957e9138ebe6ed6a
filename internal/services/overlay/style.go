package overlay

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Style is the drawing state configured once when a surface is bound
type Style struct {
	StrokeColor color.RGBA
	FillColor   color.RGBA
	LineWidth   float64
	FontScale   float64
}

var Red = color.RGBA{R: 255, G: 0, B: 0, A: 255}

// DefaultStyle is red stroke, red fill and a 3 unit line
func DefaultStyle() Style {
	return Style{
		StrokeColor: Red,
		FillColor:   Red,
		LineWidth:   3,
		FontScale:   0.6,
	}
}

// StyleFromConfig builds a style from a hex color string, falling back to red
// when the color does not parse.
func StyleFromConfig(hexColor string, lineWidth, fontScale float64) Style {
	s := DefaultStyle()
	if c, err := ParseHexColor(hexColor); err == nil {
		s.StrokeColor = c
		s.FillColor = c
	}
	if lineWidth > 0 {
		s.LineWidth = lineWidth
	}
	if fontScale > 0 {
		s.FontScale = fontScale
	}
	return s
}

// ParseHexColor converts a color string like "#RRGGBB" to color.RGBA
func ParseHexColor(s string) (color.RGBA, error) {
	var c color.RGBA
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return c, fmt.Errorf("invalid color length: %s", s)
	}
	r, err := strconv.ParseUint(s[0:2], 16, 8)
	if err != nil {
		return c, err
	}
	g, err := strconv.ParseUint(s[2:4], 16, 8)
	if err != nil {
		return c, err
	}
	b, err := strconv.ParseUint(s[4:6], 16, 8)
	if err != nil {
		return c, err
	}
	c = color.RGBA{R: uint8(r), G: uint8(g), B: uint8(b), A: 255}
	return c, nil
}

// IsDark reports whether a color is dark using perceived luminance
func IsDark(c color.RGBA) bool {
	// sRGB luminance(Y) from RGB: 0.2126 R + 0.7152 G + 0.0722 B
	luminance := 0.2126*float64(c.R) + 0.7152*float64(c.G) + 0.0722*float64(c.B)
	return luminance < 128
}
