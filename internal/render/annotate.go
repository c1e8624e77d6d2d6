package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi            = 96.0
	tickMarkWidth  = 5
	scaleBarHeight = 4
	labelOffset    = 8
)

type annotatorConfig struct {
	DatetimeFormat string
	Location       *time.Location
	FontSize       float64
	Borders        BorderConfig
}

type annotator struct {
	context  *freetype.Context
	config   annotatorConfig
	fontFace font.Face
}

func newAnnotator(config annotatorConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) annotate(img *image.RGBA, area image.Rectangle, vp viewport, m *FlightMap) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	ops := []struct {
		msg string
		fn  func() error
	}{
		{"drawing title", func() error { return a.drawTitle(img, m) }},
		{"drawing node labels", func() error { return a.drawMarkerLabels(vp, m) }},
		{"drawing color scale", func() error { return a.drawColorScale(img, area, m) }},
		{"drawing distance scale", func() error { return a.drawDistanceScale(img, area, vp) }},
		{"drawing info bar", func() error { return a.drawInfoBar(img, m) }},
	}
	for _, op := range ops {
		if err := op.fn(); err != nil {
			return fmt.Errorf("%s: %w", op.msg, err)
		}
	}
	return nil
}

func (a *annotator) fontHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

func (a *annotator) drawString(s string, x, y int) error {
	_, err := a.context.DrawString(s, freetype.Pt(x, y))
	return err
}

func (a *annotator) drawTitle(img *image.RGBA, m *FlightMap) error {
	width := font.MeasureString(a.fontFace, m.Title).Round()
	x := (img.Bounds().Dx() - width) / 2
	y := a.config.Borders.Top/2 + a.fontHeight()/2
	return a.drawString(m.Title, x, y)
}

func (a *annotator) drawMarkerLabels(vp viewport, m *FlightMap) error {
	for _, mk := range m.Markers {
		p := vp.pixel(mk.Position.X, mk.Position.Y)
		if err := a.drawString(mk.Label, p.X+labelOffset, p.Y-labelOffset); err != nil {
			return fmt.Errorf("drawing label %s: %w", mk.Label, err)
		}
	}
	return nil
}

// drawColorScale labels the color bar with the range ends and midpoint.
func (a *annotator) drawColorScale(img *image.RGBA, area image.Rectangle, m *FlightMap) error {
	bar := colorBarRect(area)
	x := bar.Max.X + tickMarkWidth + 3
	half := a.fontHeight() / 3

	ticks := []struct {
		y int
		v float64
	}{
		{bar.Min.Y, m.Range.Max},
		{(bar.Min.Y + bar.Max.Y) / 2, (m.Range.Min + m.Range.Max) / 2},
		{bar.Max.Y - 1, m.Range.Min},
	}
	for _, t := range ticks {
		for i := bar.Max.X; i < bar.Max.X+tickMarkWidth; i++ {
			img.Set(i, t.y, color.Black)
		}
		if err := a.drawString(humanize.FtoaWithDigits(t.v, 3), x, t.y+half); err != nil {
			return err
		}
	}
	return nil
}

// drawDistanceScale draws a bar of a round length in the bottom left corner
// of the plot area.
func (a *annotator) drawDistanceScale(img *image.RGBA, area image.Rectangle, vp viewport) error {
	meters := niceDistance(vp.metersPerPixel() * float64(area.Dx()) / 5)
	px := int(math.Round(meters * vp.scale))
	if px <= 0 {
		return nil
	}

	x0 := area.Min.X
	y0 := area.Max.Y + 8
	for y := y0; y < y0+scaleBarHeight; y++ {
		for x := x0; x < x0+px; x++ {
			img.Set(x, y, color.Black)
		}
	}
	return a.drawString(formatDistance(meters), x0+px+6, y0+a.fontHeight()/2)
}

func (a *annotator) drawInfoBar(img *image.RGBA, m *FlightMap) error {
	var sb strings.Builder

	if !m.Start.IsZero() {
		sb.WriteString(fmt.Sprintf("Time: %s - %s",
			m.Start.In(a.config.Location).Format(a.config.DatetimeFormat),
			m.End.In(a.config.Location).Format(a.config.DatetimeFormat)))
		sb.WriteString("; ")
	}
	sb.WriteString(fmt.Sprintf("Fixes: %s; Nodes: %d", humanize.Comma(int64(len(m.Track))), len(m.Markers)))

	metrics := a.fontFace.Metrics()
	textY := img.Bounds().Max.Y - 8 - metrics.Descent.Round()
	return a.drawString(sb.String(), a.config.Borders.Left, textY)
}

// niceDistance rounds meters down to 1, 2 or 5 times a power of ten.
func niceDistance(meters float64) float64 {
	if meters <= 0 || math.IsNaN(meters) || math.IsInf(meters, 0) {
		return 0
	}
	exp := math.Pow(10, math.Floor(math.Log10(meters)))
	for _, f := range []float64{5, 2, 1} {
		if f*exp <= meters {
			return f * exp
		}
	}
	return exp
}

func formatDistance(meters float64) string {
	if meters < 1 {
		return fmt.Sprintf("%.2g m", meters)
	}
	return humanize.SIWithDigits(meters, 1, "m")
}
