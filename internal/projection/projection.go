package projection

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/project"

	"github.com/roman-kulish/drone-path-prob/internal/telemetry"
)

// MaxLatitude is the Web Mercator latitude limit.
const MaxLatitude = 85.05112878

// ErrNoOrigin is returned when no fix can serve as the projection origin.
var ErrNoOrigin = errors.New("no valid origin fix")

// Point is a local planar position in meters east (X) and north (Y) of the
// origin.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Projector maps WGS84 coordinates onto a local plane centered on an origin.
// It uses Web Mercator offsets scaled by cos(origin latitude), which keeps
// distances close to ground meters around the origin and has an exact
// inverse.
type Projector struct {
	origin orb.Point // lon, lat
	merc   orb.Point
	scale  float64
}

// NewProjector returns a projector centered at lat, lon.
func NewProjector(lat, lon float64) (*Projector, error) {
	if !validCoordinate(lat, lon) {
		return nil, fmt.Errorf("invalid origin %f,%f", lat, lon)
	}

	origin := orb.Point{lon, lat}
	return &Projector{
		origin: origin,
		merc:   project.WGS84.ToMercator(origin),
		scale:  math.Cos(lat * math.Pi / 180),
	}, nil
}

// Origin returns the origin latitude and longitude.
func (p *Projector) Origin() (lat, lon float64) {
	return p.origin.Lat(), p.origin.Lon()
}

// Project maps a coordinate to local meters. The origin maps to (0, 0).
func (p *Projector) Project(lat, lon float64) Point {
	m := project.WGS84.ToMercator(orb.Point{lon, lat})
	return Point{
		X: (m.X() - p.merc.X()) * p.scale,
		Y: (m.Y() - p.merc.Y()) * p.scale,
	}
}

// Inverse maps local meters back to latitude and longitude.
func (p *Projector) Inverse(pt Point) (lat, lon float64) {
	m := orb.Point{
		pt.X/p.scale + p.merc.X(),
		pt.Y/p.scale + p.merc.Y(),
	}
	g := project.Mercator.ToWGS84(m)
	return g.Lat(), g.Lon()
}

// ProjectAll projects every fix, preserving order.
func (p *Projector) ProjectAll(fixes []telemetry.Fix) []Point {
	out := make([]Point, len(fixes))
	for i, f := range fixes {
		out[i] = p.Project(f.Latitude, f.Longitude)
	}
	return out
}

// OriginFromFixes picks the earliest fix with usable coordinates. Ties on
// timestamp keep the first one in input order.
func OriginFromFixes(fixes []telemetry.Fix) (lat, lon float64, err error) {
	found := -1
	for i, f := range fixes {
		if !validCoordinate(f.Latitude, f.Longitude) {
			continue
		}
		if found < 0 || f.Timestamp.Before(fixes[found].Timestamp) {
			found = i
		}
	}
	if found < 0 {
		return 0, 0, ErrNoOrigin
	}
	return fixes[found].Latitude, fixes[found].Longitude, nil
}

// NewProjectorForFixes is a shorthand for OriginFromFixes plus NewProjector.
func NewProjectorForFixes(fixes []telemetry.Fix) (*Projector, error) {
	lat, lon, err := OriginFromFixes(fixes)
	if err != nil {
		return nil, err
	}
	return NewProjector(lat, lon)
}

// Distance returns the great-circle distance in meters.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	return geo.Distance(orb.Point{lon1, lat1}, orb.Point{lon2, lat2})
}

// Bearing returns the initial bearing in degrees from the first coordinate
// to the second.
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	return geo.Bearing(orb.Point{lon1, lat1}, orb.Point{lon2, lat2})
}

func validCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return math.Abs(lat) <= MaxLatitude && math.Abs(lon) <= 180
}
