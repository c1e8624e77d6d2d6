package render

import (
	"fmt"
	"image/color"
	"math"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// ColorTheme is a named gradient for normalized values in [0, 1].
type ColorTheme string

const (
	RdYlGnTheme    ColorTheme = "rdylgn"    // Red to yellow to green
	ClassicTheme   ColorTheme = "classic"   // Blue to red transition
	GrayscaleTheme ColorTheme = "grayscale" // Black to white transition
	JungleTheme    ColorTheme = "jungle"    // Dark green to yellow transition
	ThermalTheme   ColorTheme = "thermal"   // Black to red to yellow to white
	MarineTheme    ColorTheme = "marine"    // Deep blue to cyan to white

	DefaultColorMapSize = 256
)

var themes = map[ColorTheme]struct{}{
	RdYlGnTheme:    {},
	ClassicTheme:   {},
	GrayscaleTheme: {},
	JungleTheme:    {},
	ThermalTheme:   {},
	MarineTheme:    {},
}

// ParseTheme accepts a theme name case-insensitively. An empty name selects
// RdYlGnTheme.
func ParseTheme(s string) (ColorTheme, error) {
	if s == "" {
		return RdYlGnTheme, nil
	}
	t := ColorTheme(strings.ToLower(s))
	if _, ok := themes[t]; !ok {
		return "", fmt.Errorf("unknown color theme: %q", s)
	}
	return t, nil
}

// rdYlGnStops are the eleven anchors of the diverging RdYlGn scale, low
// values red and high values green.
var rdYlGnStops = []string{
	"#a50026", "#d73027", "#f46d43", "#fdae61", "#fee08b", "#ffffbf",
	"#d9ef8b", "#a6d96a", "#66bd63", "#1a9850", "#006837",
}

// ColorMapper maps normalized values to pre-computed colors.
type ColorMapper struct {
	colorMap []color.Color
	theme    ColorTheme
}

// NewColorMapper builds a lookup table of size entries for theme.
func NewColorMapper(theme ColorTheme, size int) (*ColorMapper, error) {
	if size < 2 {
		size = DefaultColorMapSize
	}

	fn, err := themeFunc(theme)
	if err != nil {
		return nil, err
	}

	cm := &ColorMapper{
		colorMap: make([]color.Color, size),
		theme:    theme,
	}
	for i := range cm.colorMap {
		cm.colorMap[i] = fn(float64(i) / float64(size-1))
	}
	return cm, nil
}

// Color returns the color of v, clamped to [0, 1]. NaN maps to the low end.
func (cm *ColorMapper) Color(v float64) color.Color {
	if math.IsNaN(v) {
		return cm.colorMap[0]
	}
	v = math.Max(0, math.Min(1, v))
	return cm.colorMap[int(math.Round(v*float64(len(cm.colorMap)-1)))]
}

func (cm *ColorMapper) Theme() ColorTheme {
	return cm.theme
}

// HSV represents a color in HSV color space
type HSV struct {
	H float64 // Hue [0-360]
	S float64 // Saturation [0-1]
	V float64 // Value [0-1]
}

func (hsv HSV) RGB() color.Color {
	c := colorful.Hsv(math.Mod(hsv.H, 360), clamp01(hsv.S), clamp01(hsv.V)).Clamped()
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func gradient(stops []string) (func(float64) color.Color, error) {
	colors := make([]colorful.Color, len(stops))
	for i, s := range stops {
		c, err := colorful.Hex(s)
		if err != nil {
			return nil, fmt.Errorf("parsing color %s: %w", s, err)
		}
		colors[i] = c
	}

	return func(v float64) color.Color {
		pos := clamp01(v) * float64(len(colors)-1)
		i := int(math.Floor(pos))
		if i >= len(colors)-1 {
			i = len(colors) - 2
		}
		c := colors[i].BlendLab(colors[i+1], pos-float64(i)).Clamped()
		r, g, b := c.RGB255()
		return color.RGBA{R: r, G: g, B: b, A: 0xff}
	}, nil
}

func themeFunc(theme ColorTheme) (func(float64) color.Color, error) {
	switch theme {
	case RdYlGnTheme, "":
		return gradient(rdYlGnStops)

	case ClassicTheme: // Blue -> Red
		return func(v float64) color.Color {
			return HSV{
				H: 240 - (v * 240),
				S: 0.9 + (v * 0.1),
				V: math.Pow(v, 0.7),
			}.RGB()
		}, nil

	case GrayscaleTheme: // Black -> White
		return func(v float64) color.Color {
			g := uint8(math.Pow(v, 0.7) * 255)
			return color.RGBA{R: g, G: g, B: g, A: 0xff}
		}, nil

	case JungleTheme: // Dark Green -> Yellow
		return func(v float64) color.Color {
			return HSV{
				H: 120 - (v * 60),
				S: 1.0,
				V: 0.3 + (math.Pow(v, 0.6) * 0.7),
			}.RGB()
		}, nil

	case ThermalTheme: // Black -> Red -> Yellow -> White
		return gradient([]string{"#000000", "#ff0000", "#ffff00", "#ffffff"})

	case MarineTheme: // Deep Blue -> Cyan -> White
		return func(v float64) color.Color {
			return HSV{
				H: 240 - (v * 60),
				S: 1.0 - (v * 0.8),
				V: 0.3 + (math.Pow(v, 0.6) * 0.7),
			}.RGB()
		}, nil

	default:
		return nil, fmt.Errorf("unknown color theme: %q", theme)
	}
}
