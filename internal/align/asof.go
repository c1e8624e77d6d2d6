package align

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/roman-kulish/drone-path-prob/internal/projection"
	"github.com/roman-kulish/drone-path-prob/internal/telemetry"
)

const (
	Nearest Direction = iota
	Backward
	Forward
)

// Direction selects which table rows a fix may be matched against.
type Direction int

func (d Direction) String() string {
	switch d {
	case Backward:
		return "backward"
	case Forward:
		return "forward"
	default:
		return "nearest"
	}
}

// ParseDirection parses "nearest", "backward" or "forward".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nearest":
		return Nearest, nil
	case "backward":
		return Backward, nil
	case "forward":
		return Forward, nil
	default:
		return Nearest, fmt.Errorf("unknown alignment direction: %q", s)
	}
}

// Row is one telemetry fix annotated with the matched node values.
type Row struct {
	Fix        telemetry.Fix
	Position   projection.Point
	Matched    *time.Time // timestamp of the matched table row, nil if none
	Values     []float64  // one per JointTable column
	MaxConcern float64
}

// Lag returns how far the matched node row is from the fix (positive when
// the node row is older). The boolean is false for unmatched rows.
func (r Row) Lag() (time.Duration, bool) {
	if r.Matched == nil {
		return 0, false
	}
	return r.Fix.Timestamp.Sub(*r.Matched), true
}

type aligner struct {
	direction Direction
	tolerance time.Duration
	projector *projection.Projector
}

// Option configures Align.
type Option func(*aligner)

// WithDirection restricts matches to earlier (Backward), later (Forward) or
// either side (Nearest) of each fix.
func WithDirection(d Direction) Option {
	return func(a *aligner) {
		a.direction = d
	}
}

// WithTolerance bounds the distance between a fix and its match. Zero means
// unbounded: a fix far from any node sample still receives the nearest,
// possibly stale, values.
func WithTolerance(d time.Duration) Option {
	return func(a *aligner) {
		a.tolerance = d
	}
}

// WithProjector fills Row.Position for every fix.
func WithProjector(p *projection.Projector) Option {
	return func(a *aligner) {
		a.projector = p
	}
}

// Align joins every telemetry fix with the joint table row closest in time.
//
// Fixes are stably sorted by timestamp first (decoder order is not
// monotonic). Then two cursors walk the fixes and the table forward without
// ever backtracking, so the join is O(n + m). Equidistant candidates resolve
// to the earlier table row. The result always has exactly one row per fix.
func Align(fixes []telemetry.Fix, table *JointTable, opts ...Option) ([]Row, error) {
	a := aligner{direction: Nearest}
	for _, opt := range opts {
		opt(&a)
	}
	if a.tolerance < 0 {
		return nil, fmt.Errorf("negative alignment tolerance: %s", a.tolerance)
	}

	sorted := make([]telemetry.Fix, len(fixes))
	copy(sorted, fixes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var columns int
	var stamps []time.Time
	if table != nil {
		columns = len(table.Nodes)
		stamps = table.Timestamps
	}

	rows := make([]Row, len(sorted))

	// last is the index of the last table row at or before the current fix.
	last := -1
	for i, fix := range sorted {
		for last+1 < len(stamps) && !stamps[last+1].After(fix.Timestamp) {
			last++
		}

		match := a.pick(stamps, last, fix.Timestamp)

		row := Row{Fix: fix, Values: make([]float64, columns)}
		if match >= 0 {
			ts := stamps[match]
			row.Matched = &ts
			copy(row.Values, table.Values[match])
		} else {
			for j := range row.Values {
				row.Values[j] = FillValue
			}
		}
		row.MaxConcern = MaxConcern(row.Values)

		if a.projector != nil {
			row.Position = a.projector.Project(fix.Latitude, fix.Longitude)
		}
		rows[i] = row
	}

	return rows, nil
}

// pick chooses between the table row at or before t (prev) and the one right
// after it (prev+1). It returns -1 when no row qualifies.
func (a *aligner) pick(stamps []time.Time, prev int, t time.Time) int {
	next := prev + 1
	if next >= len(stamps) {
		next = -1
	}

	var match int
	switch a.direction {
	case Backward:
		match = prev

	case Forward:
		switch {
		case prev >= 0 && stamps[prev].Equal(t):
			match = prev
		default:
			match = next
		}

	default:
		switch {
		case prev < 0:
			match = next
		case next < 0:
			match = prev
		case t.Sub(stamps[prev]) <= stamps[next].Sub(t):
			match = prev
		default:
			match = next
		}
	}

	if match < 0 {
		return -1
	}
	if a.tolerance > 0 && absDuration(t.Sub(stamps[match])) > a.tolerance {
		return -1
	}
	return match
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
