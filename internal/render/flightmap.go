package render

import (
	"time"

	"github.com/paulmach/orb"

	"github.com/roman-kulish/drone-path-prob/internal/align"
	"github.com/roman-kulish/drone-path-prob/internal/projection"
	"github.com/roman-kulish/drone-path-prob/internal/session"
)

// Title returns the flight map heading for a session name. Sessions that
// decoded altitude are headed as 3D data.
func Title(name string, threeD bool) string {
	if threeD {
		return "3D Drone Data for: " + name
	}
	return "2D Drone Data for: " + name
}

// TrackPoint is one projected fix and the value it is colored by.
type TrackPoint struct {
	Position projection.Point
	Value    float64
}

// Marker is a labelled node location.
type Marker struct {
	Label    string
	Position projection.Point
}

// FlightMap is everything drawn on a flight map. Coordinates are meters in
// the session's local projection.
type FlightMap struct {
	Title   string
	Start   time.Time
	End     time.Time
	Range   align.Range
	Track   []TrackPoint
	Markers []Marker
}

// FromSession builds a flight map from an aligned session. Nodes without a
// position are left out.
func FromSession(s *session.Session) *FlightMap {
	m := &FlightMap{
		Title: Title(s.Name, s.ThreeD),
		Range: s.Range,
		Track: make([]TrackPoint, len(s.Rows)),
	}

	for i, row := range s.Rows {
		m.Track[i] = TrackPoint{Position: row.Position, Value: row.MaxConcern}
	}
	if n := len(s.Rows); n > 0 {
		m.Start = s.Rows[0].Fix.Timestamp
		m.End = s.Rows[n-1].Fix.Timestamp
	}

	for _, n := range s.Nodes {
		if n.Position == nil {
			continue
		}
		m.Markers = append(m.Markers, Marker{Label: n.ID, Position: *n.Position})
	}
	return m
}

// Bound returns the extent of the track and markers.
func (m *FlightMap) Bound() (orb.Bound, bool) {
	mp := make(orb.MultiPoint, 0, len(m.Track)+len(m.Markers))
	for _, p := range m.Track {
		mp = append(mp, orb.Point{p.Position.X, p.Position.Y})
	}
	for _, mk := range m.Markers {
		mp = append(mp, orb.Point{mk.Position.X, mk.Position.Y})
	}
	if len(mp) == 0 {
		return orb.Bound{}, false
	}
	return mp.Bound(), true
}

// path returns the track as a line string.
func (m *FlightMap) path() orb.LineString {
	ls := make(orb.LineString, len(m.Track))
	for i, p := range m.Track {
		ls[i] = orb.Point{p.Position.X, p.Position.Y}
	}
	return ls
}
