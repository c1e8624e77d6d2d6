package session

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/drone-path-prob/internal/align"
	"github.com/roman-kulish/drone-path-prob/internal/node"
	"github.com/roman-kulish/drone-path-prob/internal/projection"
	"github.com/roman-kulish/drone-path-prob/internal/telemetry"
)

var (
	// ErrMissingInput is returned when the session directory lacks node
	// logs or a flight log.
	ErrMissingInput = errors.New("missing session input")

	// ErrNoUsableData is returned when inputs exist but nothing survives
	// filtering: no node produced a sample or the flight log has no fix.
	ErrNoUsableData = errors.New("no usable data")
)

// Session is the aligned result of one recording session.
type Session struct {
	RunID       uuid.UUID
	Name        string
	Dir         string
	FlightLog   string
	ProcessedAt time.Time

	Nodes     []*Node // sorted by ID, same order as Table.Nodes
	Table     *align.JointTable
	Fixes     []telemetry.Fix
	Telemetry telemetry.Stats

	Projector *projection.Projector
	Rows      []align.Row
	Range     align.Range
	// Degenerate is true when Range fell back to align.DegenerateRange.
	Degenerate bool
	// ThreeD is true when every fix carries an altitude.
	ThreeD bool
}

// Node is one sensor node of the session.
type Node struct {
	ID     string
	Files  []string
	Read   node.ReadStats
	Series *node.Series

	// Position is the projected representative location, nil when the node
	// never reported coordinates.
	Position *projection.Point
	Closest  *Approach
}

// Approach is the closest point of the drone track to a node.
type Approach struct {
	Distance  float64 // meters, great-circle
	Timestamp time.Time
	Row       int // index into Session.Rows
}

// NodeIDs returns the node IDs in column order.
func (s *Session) NodeIDs() []string {
	ids := make([]string, len(s.Nodes))
	for i, n := range s.Nodes {
		ids[i] = n.ID
	}
	return ids
}

// Unmatched counts aligned rows with no node match.
func (s *Session) Unmatched() int {
	var n int
	for _, row := range s.Rows {
		if row.Matched == nil {
			n++
		}
	}
	return n
}

// closestApproach scans the track for the fix nearest to loc.
func closestApproach(rows []align.Row, loc *node.Location) *Approach {
	if loc == nil || len(rows) == 0 {
		return nil
	}

	var best *Approach
	for i, row := range rows {
		d := projection.Distance(loc.Latitude, loc.Longitude, row.Fix.Latitude, row.Fix.Longitude)
		if best == nil || d < best.Distance {
			best = &Approach{Distance: d, Timestamp: row.Fix.Timestamp, Row: i}
		}
	}
	return best
}
