package align

import (
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/drone-path-prob/internal/node"
	"github.com/roman-kulish/drone-path-prob/internal/projection"
	"github.com/roman-kulish/drone-path-prob/internal/telemetry"
)

var t0 = time.Date(2024, 5, 1, 9, 25, 0, 0, time.UTC)

func at(sec float64) time.Time {
	return t0.Add(time.Duration(sec * float64(time.Second)))
}

func series(id string, points ...node.Point) *node.Series {
	return &node.Series{NodeID: id, Points: points}
}

func pt(sec, v float64) node.Point {
	return node.Point{Timestamp: at(sec), Value: v}
}

func fix(sec float64) telemetry.Fix {
	return telemetry.Fix{Timestamp: at(sec), Latitude: 51.5, Longitude: -0.12}
}

func TestMerge(t *testing.T) {
	table := Merge(
		series("node2", pt(2, 0.5), pt(4, 0.6)),
		series("node1", pt(1, 0.2), pt(3, 0.9)),
	)

	assert.Equal(t, []string{"node1", "node2"}, table.Nodes)
	assert.Equal(t, []time.Time{at(1), at(2), at(3), at(4)}, table.Timestamps)
	assert.Equal(t, [][]float64{
		{0.2, 0},
		{0, 0.5},
		{0.9, 0},
		{0, 0.6},
	}, table.Values)

	assert.Equal(t, 4, table.Len())
	assert.Equal(t, 1, table.Column("node2"))
	assert.Equal(t, -1, table.Column("node9"))
}

func TestMerge_SharedTimestamps(t *testing.T) {
	table := Merge(
		series("a", pt(1, 0.1), pt(2, 0.2)),
		series("b", pt(2, 0.7)),
	)

	require.Equal(t, 2, table.Len())
	assert.Equal(t, []float64{0.2, 0.7}, table.Values[1])
}

func TestMerge_ColumnSetEqualsNodes(t *testing.T) {
	for n := 0; n <= 4; n++ {
		var in []*node.Series
		var want []string
		for i := 0; i < n; i++ {
			id := string(rune('a' + i))
			in = append(in, series(id, pt(float64(i), 0.1)))
			want = append(want, id)
		}
		in = append(in, nil)

		table := Merge(in...)
		assert.Len(t, table.Nodes, n)
		if n > 0 {
			assert.Equal(t, want, table.Nodes)
		}
		for _, row := range table.Values {
			assert.Len(t, row, n)
		}
	}
}

func TestMerge_EmptySeriesKeepsColumn(t *testing.T) {
	table := Merge(series("a", pt(1, 0.4)), series("b"))

	assert.Equal(t, []string{"a", "b"}, table.Nodes)
	assert.Equal(t, [][]float64{{0.4, FillValue}}, table.Values)
}

func TestAlign_NearestAndTies(t *testing.T) {
	table := Merge(series("a", pt(0, 0.1), pt(2, 0.2), pt(10, 0.3)))

	rows, err := Align([]telemetry.Fix{fix(1), fix(1.5), fix(6), fix(-5), fix(20)}, table)
	require.NoError(t, err)
	require.Len(t, rows, 5)

	// Sorted by fix time: -5, 1, 1.5, 6, 20.
	got := make([]float64, len(rows))
	for i, r := range rows {
		got[i] = r.Values[0]
	}
	assert.Equal(t, []float64{0.1, 0.1, 0.2, 0.2, 0.3}, got)

	// 1 is equidistant from 0 and 2; 6 from 2 and 10. Both take the earlier row.
	assert.Equal(t, at(0), *rows[1].Matched)
	assert.Equal(t, at(2), *rows[3].Matched)

	lag, ok := rows[4].Lag()
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, lag)
}

func TestAlign_Directions(t *testing.T) {
	table := Merge(series("a", pt(0, 0.1), pt(10, 0.9)))
	fixes := []telemetry.Fix{fix(-1), fix(0), fix(9), fix(11)}

	values := func(d Direction) []float64 {
		rows, err := Align(fixes, table, WithDirection(d))
		require.NoError(t, err)
		out := make([]float64, len(rows))
		for i, r := range rows {
			out[i] = r.Values[0]
		}
		return out
	}

	assert.Equal(t, []float64{0.1, 0.1, 0.9, 0.9}, values(Nearest))
	assert.Equal(t, []float64{FillValue, 0.1, 0.1, 0.9}, values(Backward))
	assert.Equal(t, []float64{0.1, 0.1, 0.9, FillValue}, values(Forward))
}

func TestAlign_Tolerance(t *testing.T) {
	table := Merge(series("a", pt(0, 0.5)))

	rows, err := Align([]telemetry.Fix{fix(1), fix(3)}, table, WithTolerance(2*time.Second))
	require.NoError(t, err)

	assert.Equal(t, 0.5, rows[0].Values[0])
	assert.NotNil(t, rows[0].Matched)
	assert.Equal(t, FillValue, rows[1].Values[0])
	assert.Nil(t, rows[1].Matched)
	_, ok := rows[1].Lag()
	assert.False(t, ok)

	_, err = Align(nil, table, WithTolerance(-time.Second))
	assert.Error(t, err)
}

func TestAlign_RowCountEqualsFixCount(t *testing.T) {
	fixes := []telemetry.Fix{fix(3), fix(1), fix(2)}

	for name, table := range map[string]*JointTable{
		"nil":   nil,
		"empty": Merge(),
		"data":  Merge(series("a", pt(2, 0.4))),
	} {
		rows, err := Align(fixes, table)
		require.NoError(t, err, name)
		assert.Len(t, rows, len(fixes), name)
	}

	rows, err := Align(fixes, nil)
	require.NoError(t, err)
	assert.Empty(t, rows[0].Values)
	assert.Equal(t, FillValue, rows[0].MaxConcern)
}

func TestAlign_SortsFixesStably(t *testing.T) {
	a := fix(1)
	a.Latitude = 1
	b := fix(1)
	b.Latitude = 2
	in := []telemetry.Fix{fix(5), a, b, fix(0)}

	rows, err := Align(in, Merge())
	require.NoError(t, err)

	var lats []float64
	for _, r := range rows {
		lats = append(lats, r.Fix.Latitude)
	}
	assert.Equal(t, []float64{51.5, 1, 2, 51.5}, lats)
	assert.Equal(t, at(5), in[0].Timestamp, "input is not reordered")
}

func TestAlign_MaxConcernAndPosition(t *testing.T) {
	table := Merge(
		series("a", pt(0, 0.3)),
		series("b", pt(0, 0.8)),
		series("c", pt(0, 0.1)),
	)
	p, err := projection.NewProjector(51.5, -0.12)
	require.NoError(t, err)

	rows, err := Align([]telemetry.Fix{fix(0)}, table, WithProjector(p))
	require.NoError(t, err)

	assert.Equal(t, 0.8, rows[0].MaxConcern)
	assert.InDelta(t, 0, rows[0].Position.X, 1e-9)
	assert.InDelta(t, 0, rows[0].Position.Y, 1e-9)
}

// linearNearest is the obvious O(n*m) join used to cross-check Align.
func linearNearest(stamps []time.Time, ts time.Time) int {
	best := -1
	var bestDist time.Duration
	for i, s := range stamps {
		d := absDuration(ts.Sub(s))
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func TestAlign_MatchesLinearScan(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 20; round++ {
		var points []node.Point
		for i := 0; i < 30; i++ {
			points = append(points, pt(float64(rng.Intn(200)), rng.Float64()))
		}
		s, err := node.Normalize("a", samplesFrom(points))
		require.NoError(t, err)
		table := Merge(s)

		var fixes []telemetry.Fix
		for i := 0; i < 50; i++ {
			fixes = append(fixes, fix(float64(rng.Intn(260)-30)+rng.Float64()))
		}

		rows, err := Align(fixes, table)
		require.NoError(t, err)
		require.Len(t, rows, len(fixes))

		sorted := append([]telemetry.Fix(nil), fixes...)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

		for i, r := range rows {
			want := linearNearest(table.Timestamps, sorted[i].Timestamp)
			if diff := cmp.Diff(table.Values[want], r.Values); diff != "" {
				t.Fatalf("round %d row %d mismatch (-want +got):\n%s", round, i, diff)
			}
		}
	}
}

func samplesFrom(points []node.Point) []node.Sample {
	out := make([]node.Sample, len(points))
	for i, p := range points {
		ts, v := p.Timestamp, p.Value
		out[i] = node.Sample{Timestamp: &ts, Probability: &v, Validity: node.Valid}
	}
	return out
}

func scoredRows(values ...[]float64) []Row {
	rows := make([]Row, len(values))
	for i, v := range values {
		rows[i] = Row{Values: v, MaxConcern: MaxConcern(v)}
	}
	return rows
}

func TestScaleRange(t *testing.T) {
	r, ok := ScaleRange(scoredRows([]float64{0.2, 0.6}, []float64{0.9, 0}))
	require.True(t, ok)
	assert.Equal(t, Range{Min: 0.6, Max: 0.9}, r)
	assert.InDelta(t, 0.5, r.Normalize(0.75), 1e-9)
	assert.Equal(t, 1.0, r.Normalize(5))
	assert.Equal(t, 0.0, r.Normalize(-5))

	// Fill zeros in other columns do not pull the low end down.
	r, ok = ScaleRange(scoredRows([]float64{0.3, 0}, []float64{0, 0.8}))
	require.True(t, ok)
	assert.Equal(t, Range{Min: 0.3, Max: 0.8}, r)

	r, ok = ScaleRange(scoredRows([]float64{0.4}, []float64{0.4}))
	assert.False(t, ok)
	assert.Equal(t, DegenerateRange, r)

	r, ok = ScaleRange(nil)
	assert.False(t, ok)
	assert.Equal(t, DegenerateRange, r)

	r, ok = ScaleRange(scoredRows(nil, nil))
	assert.False(t, ok)
	assert.Equal(t, DegenerateRange, r)
}

func TestScaleRange_FlatMaxConcernIsDegenerate(t *testing.T) {
	r, ok := ScaleRange(scoredRows([]float64{0.5, 0}, []float64{0, 0.5}, []float64{0.5, 0.2}))
	assert.False(t, ok)
	assert.Equal(t, DegenerateRange, r)
}

func TestMaxConcern(t *testing.T) {
	assert.Equal(t, FillValue, MaxConcern(nil))
	assert.Equal(t, 0.7, MaxConcern([]float64{0.1, 0.7, 0.3}))
	assert.Equal(t, 0.0, MaxConcern([]float64{0, 0}))
}

func TestParseDirection(t *testing.T) {
	for in, want := range map[string]Direction{
		"":          Nearest,
		"nearest":   Nearest,
		" Backward": Backward,
		"FORWARD":   Forward,
	} {
		got, err := ParseDirection(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseDirection("sideways")
	assert.Error(t, err)
	assert.Equal(t, "backward", Backward.String())
}
