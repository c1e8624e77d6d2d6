package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
	"golang.org/x/image/vector"
)

const (
	fontSize = 12.0

	// Default border sizes in pixels
	defaultTopBorder    = 50
	defaultLeftBorder   = 40
	defaultBottomBorder = 50
	defaultRightBorder  = 120

	defaultDatetimeFormat = time.DateTime

	// Minimum extent in meters, so a hovering drone still gets a readable map
	minExtent = 20.0
	padding   = 0.05

	markerSize  = 7
	markerWidth = 2.0
	pointRadius = 3.5
	pathWidth   = 1.5

	circleSegments = 24
)

var (
	ErrEmptyMap = errors.New("nothing to draw")

	trackColor  = color.RGBA{R: 0xb0, G: 0xb0, B: 0xb0, A: 0xff}
	markerColor = color.Black
)

// BorderConfig defines the sizes of white space around the plot area
type BorderConfig struct {
	Top    int // Space for the title
	Left   int
	Bottom int // Space for the scale and information bar
	Right  int // Space for the color bar
}

// Config holds all configuration options for flight map rendering
type Config struct {
	Width  int // full image width, borders included
	Height int // full image height, borders included

	Theme        ColorTheme
	ColorMapSize int // Number of colors in gradient (0 for default)
	FontSize     float64

	DatetimeFormat string
	Location       *time.Location // Timezone for time display

	// SimplifyTolerance is the Douglas-Peucker threshold, in meters, for the
	// connecting path. Zero draws every segment.
	SimplifyTolerance float64

	NoAnnotations bool
	BorderConfig  BorderConfig
}

// Renderer draws flight maps.
type Renderer struct {
	config   Config
	colorMap *ColorMapper

	// Masks shared by every track dot and node marker
	dot    *image.Alpha
	marker *image.Alpha
}

// NewRenderer creates a renderer with the given configuration
func NewRenderer(config Config) (*Renderer, error) {
	if config.DatetimeFormat == "" {
		config.DatetimeFormat = defaultDatetimeFormat
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.BorderConfig == (BorderConfig{}) {
		config.BorderConfig = BorderConfig{
			Top:    defaultTopBorder,
			Left:   defaultLeftBorder,
			Bottom: defaultBottomBorder,
			Right:  defaultRightBorder,
		}
	}

	b := config.BorderConfig
	if config.Width-b.Left-b.Right < 10 || config.Height-b.Top-b.Bottom < 10 {
		return nil, fmt.Errorf("image size %dx%d leaves no plot area", config.Width, config.Height)
	}

	cm, err := NewColorMapper(config.Theme, config.ColorMapSize)
	if err != nil {
		return nil, fmt.Errorf("creating color map: %w", err)
	}

	return &Renderer{
		config:   config,
		colorMap: cm,
		dot:      dotMask(pointRadius),
		marker:   crossMask(markerSize, markerWidth),
	}, nil
}

// viewport maps projected meters onto image pixels with equal scale on
// both axes, north up.
type viewport struct {
	area  image.Rectangle
	bound orb.Bound
	scale float64 // pixels per meter
}

func newViewport(area image.Rectangle, bound orb.Bound) viewport {
	center := bound.Center()
	w := math.Max(bound.Right()-bound.Left(), minExtent)
	h := math.Max(bound.Top()-bound.Bottom(), minExtent)
	w *= 1 + 2*padding
	h *= 1 + 2*padding

	scale := math.Min(float64(area.Dx())/w, float64(area.Dy())/h)

	// Re-center the bound on the area's aspect ratio
	halfW := float64(area.Dx()) / scale / 2
	halfH := float64(area.Dy()) / scale / 2
	return viewport{
		area: area,
		bound: orb.Bound{
			Min: orb.Point{center[0] - halfW, center[1] - halfH},
			Max: orb.Point{center[0] + halfW, center[1] + halfH},
		},
		scale: scale,
	}
}

func (v viewport) pixel(x, y float64) image.Point {
	return image.Point{
		X: v.area.Min.X + int(math.Round((x-v.bound.Left())*v.scale)),
		Y: v.area.Max.Y - int(math.Round((y-v.bound.Bottom())*v.scale)),
	}
}

// metersPerPixel is the ground size of one pixel.
func (v viewport) metersPerPixel() float64 {
	return 1 / v.scale
}

// Render creates an image of the flight map with annotations
func (r *Renderer) Render(m *FlightMap) (*image.RGBA, error) {
	bound, ok := m.Bound()
	if !ok {
		return nil, ErrEmptyMap
	}

	b := r.config.BorderConfig
	img := image.NewRGBA(image.Rect(0, 0, r.config.Width, r.config.Height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	area := image.Rect(b.Left, b.Top, r.config.Width-b.Right, r.config.Height-b.Bottom)
	vp := newViewport(area, bound)

	drawRect(img, area.Inset(-1), color.Gray{Y: 0x60})

	r.renderPath(img, vp, m)
	r.renderTrack(img, vp, m)
	r.renderMarkers(img, vp, m)
	r.renderColorBar(img, area)

	if r.config.NoAnnotations {
		return img, nil
	}

	ann, err := newAnnotator(annotatorConfig{
		DatetimeFormat: r.config.DatetimeFormat,
		Location:       r.config.Location,
		FontSize:       r.config.FontSize,
		Borders:        b,
	})
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	if err = ann.annotate(img, area, vp, m); err != nil {
		return nil, fmt.Errorf("drawing annotations: %w", err)
	}
	return img, nil
}

// renderPath connects consecutive fixes with a thin line.
func (r *Renderer) renderPath(img *image.RGBA, vp viewport, m *FlightMap) {
	path := m.path()
	if len(path) < 2 {
		return
	}
	if r.config.SimplifyTolerance > 0 {
		if ls, ok := simplify.DouglasPeucker(r.config.SimplifyTolerance).Simplify(path.Clone()).(orb.LineString); ok && len(ls) >= 2 {
			path = ls
		}
	}

	bounds := img.Bounds()
	z := vector.NewRasterizer(bounds.Dx(), bounds.Dy())
	prev := vp.pixel(path[0][0], path[0][1])
	for _, p := range path[1:] {
		next := vp.pixel(p[0], p[1])
		addSegment(z, prev, next, pathWidth)
		prev = next
	}
	z.Draw(img, bounds, image.NewUniform(trackColor), image.Point{})
}

// renderTrack draws one dot per fix colored by its normalized value.
func (r *Renderer) renderTrack(img *image.RGBA, vp viewport, m *FlightMap) {
	for _, p := range m.Track {
		c := r.colorMap.Color(m.Range.Normalize(p.Value))
		drawMask(img, r.dot, vp.pixel(p.Position.X, p.Position.Y), c)
	}
}

func (r *Renderer) renderMarkers(img *image.RGBA, vp viewport, m *FlightMap) {
	for _, mk := range m.Markers {
		drawMask(img, r.marker, vp.pixel(mk.Position.X, mk.Position.Y), markerColor)
	}
}

// colorBarRect is the color bar position to the right of the plot area.
func colorBarRect(area image.Rectangle) image.Rectangle {
	return image.Rect(area.Max.X+20, area.Min.Y, area.Max.X+40, area.Max.Y)
}

// renderColorBar draws the gradient with the high end on top.
func (r *Renderer) renderColorBar(img *image.RGBA, area image.Rectangle) {
	bar := colorBarRect(area)
	h := bar.Dy() - 1
	if h <= 0 {
		return
	}
	for y := bar.Min.Y; y < bar.Max.Y; y++ {
		c := r.colorMap.Color(float64(bar.Max.Y-1-y) / float64(h))
		for x := bar.Min.X; x < bar.Max.X; x++ {
			img.Set(x, y, c)
		}
	}
	drawRect(img, bar.Inset(-1), color.Black)
}

func drawRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	src := image.NewUniform(c)
	for _, edge := range []image.Rectangle{
		{Min: r.Min, Max: image.Pt(r.Max.X, r.Min.Y+1)},
		{Min: image.Pt(r.Min.X, r.Max.Y-1), Max: r.Max},
		{Min: r.Min, Max: image.Pt(r.Min.X+1, r.Max.Y)},
		{Min: image.Pt(r.Max.X-1, r.Min.Y), Max: r.Max},
	} {
		draw.Draw(img, edge, src, image.Point{}, draw.Src)
	}
}

// addSegment adds the line from a to b, through pixel centers, as a closed
// quad of the given width. Every quad winds the same way so overlapping
// segments do not cancel out.
func addSegment(z *vector.Rasterizer, a, b image.Point, width float64) {
	ax, ay := float64(a.X)+0.5, float64(a.Y)+0.5
	bx, by := float64(b.X)+0.5, float64(b.Y)+0.5
	addQuad(z, ax, ay, bx, by, width)
}

func addQuad(z *vector.Rasterizer, ax, ay, bx, by, width float64) {
	dx, dy := bx-ax, by-ay
	l := math.Hypot(dx, dy)
	if l == 0 {
		return
	}
	nx, ny := -dy/l*width/2, dx/l*width/2
	z.MoveTo(float32(ax+nx), float32(ay+ny))
	z.LineTo(float32(bx+nx), float32(by+ny))
	z.LineTo(float32(bx-nx), float32(by-ny))
	z.LineTo(float32(ax-nx), float32(ay-ny))
	z.ClosePath()
}

// newMask rasterizes a shape centered in a square alpha mask of odd size.
func newMask(size int, shape func(z *vector.Rasterizer, c float64)) *image.Alpha {
	z := vector.NewRasterizer(size, size)
	shape(z, float64(size)/2)

	mask := image.NewAlpha(image.Rect(0, 0, size, size))
	z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})
	return mask
}

func dotMask(radius float64) *image.Alpha {
	size := 2*int(math.Ceil(radius)) + 1
	return newMask(size, func(z *vector.Rasterizer, c float64) {
		for i := 0; i < circleSegments; i++ {
			a := 2 * math.Pi * float64(i) / circleSegments
			x, y := float32(c+radius*math.Cos(a)), float32(c+radius*math.Sin(a))
			if i == 0 {
				z.MoveTo(x, y)
			} else {
				z.LineTo(x, y)
			}
		}
		z.ClosePath()
	})
}

// crossMask is an X whose arms reach size pixels from the center.
func crossMask(size int, width float64) *image.Alpha {
	n := 2*(size+int(math.Ceil(width))) + 1
	return newMask(n, func(z *vector.Rasterizer, c float64) {
		s := float64(size)
		addQuad(z, c-s, c-s, c+s, c+s, width)
		addQuad(z, c-s, c+s, c+s, c-s, width)
	})
}

// drawMask paints c through mask with the mask centered on p.
func drawMask(img *image.RGBA, mask *image.Alpha, p image.Point, c color.Color) {
	half := mask.Bounds().Dx() / 2
	r := mask.Bounds().Add(p.Sub(image.Pt(half, half)))
	draw.DrawMask(img, r, image.NewUniform(c), image.Point{}, mask, image.Point{}, draw.Over)
}
