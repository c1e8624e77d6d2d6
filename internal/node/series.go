package node

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Point is one timestamped probability of a node series.
type Point struct {
	Timestamp time.Time
	Value     float64
}

// Location is the representative position of a node: the arithmetic mean of
// every retained row that carried both coordinates.
type Location struct {
	Latitude  float64
	Longitude float64
	Count     int // number of fixes averaged
}

// Stats summarise how a node's rows were reduced to a series.
type Stats struct {
	Rows       int // parsed rows
	Retained   int // rows passing the status filter
	Usable     int // retained rows with a timestamp and probability
	Duplicates int // usable rows merged into an existing timestamp
	MinValue   float64
	MaxValue   float64
	MeanValue  float64
}

// Series is the time series of one node, immutable once normalized.
type Series struct {
	NodeID   string
	Points   []Point   // strictly increasing timestamps
	Location *Location // nil when no retained row had a position
	Stats    Stats
}

// Len returns the number of distinct timestamps.
func (s *Series) Len() int {
	return len(s.Points)
}

// Span returns the first and last timestamp of the series.
func (s *Series) Span() (start, end time.Time) {
	if len(s.Points) == 0 {
		return time.Time{}, time.Time{}
	}
	return s.Points[0].Timestamp, s.Points[len(s.Points)-1].Timestamp
}

type normalizeOptions struct {
	allowEmpty bool
}

// NormalizeOption configures Normalize.
type NormalizeOption func(*normalizeOptions)

// AllowEmpty makes Normalize return an empty series instead of ErrNoSamples.
func AllowEmpty() NormalizeOption {
	return func(o *normalizeOptions) {
		o.allowEmpty = true
	}
}

// Normalize filters a node's samples and reduces them to a Series.
//
// A row is retained only when its status is Valid. Retained rows contribute
// their coordinates to the representative location; those that also carry
// a timestamp and probability enter the series. Rows sharing a timestamp
// are merged by arithmetic mean, so the result does not depend on the order
// in which files were read.
func Normalize(nodeID string, samples []Sample, opts ...NormalizeOption) (*Series, error) {
	var o normalizeOptions
	for _, opt := range opts {
		opt(&o)
	}

	series := &Series{NodeID: nodeID}
	series.Stats.Rows = len(samples)

	type bucket struct {
		ts    time.Time
		sum   float64
		count int
	}
	buckets := make(map[int64]*bucket)

	var latSum, lonSum float64
	var fixes int

	for _, s := range samples {
		if s.Validity != Valid {
			continue
		}
		series.Stats.Retained++

		if s.HasPosition() && isFinite(*s.Latitude) && isFinite(*s.Longitude) {
			latSum += *s.Latitude
			lonSum += *s.Longitude
			fixes++
		}

		if !s.Usable() {
			continue
		}
		series.Stats.Usable++

		key := s.Timestamp.UnixNano()
		if b, ok := buckets[key]; ok {
			b.sum += *s.Probability
			b.count++
			series.Stats.Duplicates++
			continue
		}
		buckets[key] = &bucket{ts: *s.Timestamp, sum: *s.Probability, count: 1}
	}

	if fixes > 0 {
		series.Location = &Location{
			Latitude:  latSum / float64(fixes),
			Longitude: lonSum / float64(fixes),
			Count:     fixes,
		}
	}

	if len(buckets) == 0 {
		if o.allowEmpty {
			return series, nil
		}
		return series, fmt.Errorf("node %s: %w", nodeID, ErrNoSamples)
	}

	series.Points = make([]Point, 0, len(buckets))
	for _, b := range buckets {
		series.Points = append(series.Points, Point{Timestamp: b.ts, Value: b.sum / float64(b.count)})
	}
	sort.Slice(series.Points, func(i, j int) bool {
		return series.Points[i].Timestamp.Before(series.Points[j].Timestamp)
	})

	series.Stats.MinValue = math.Inf(1)
	series.Stats.MaxValue = math.Inf(-1)
	var sum float64
	for _, p := range series.Points {
		series.Stats.MinValue = min(series.Stats.MinValue, p.Value)
		series.Stats.MaxValue = max(series.Stats.MaxValue, p.Value)
		sum += p.Value
	}
	series.Stats.MeanValue = sum / float64(len(series.Points))

	return series, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
