package align

import (
	"math"
	"sort"
	"time"

	"github.com/roman-kulish/drone-path-prob/internal/node"
)

// FillValue replaces cells where a node has no sample at a timestamp. After
// filling, a true zero reading and "no data" are indistinguishable.
const FillValue = 0.0

// JointTable is the outer union of every node series keyed by timestamp.
type JointTable struct {
	Nodes      []string    // column names, sorted
	Timestamps []time.Time // strictly increasing
	Values     [][]float64 // Values[row][column]
}

// Len returns the number of rows.
func (t *JointTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Timestamps)
}

// Column returns the index of a node column, or -1.
func (t *JointTable) Column(nodeID string) int {
	i := sort.SearchStrings(t.Nodes, nodeID)
	if i < len(t.Nodes) && t.Nodes[i] == nodeID {
		return i
	}
	return -1
}

// Merge outer-joins node series on exact timestamp equality. No tolerance or
// snapping is applied here; that is the aligner's job. Missing cells are
// filled with FillValue once, after the union is complete.
func Merge(series ...*node.Series) *JointTable {
	ordered := make([]*node.Series, 0, len(series))
	for _, s := range series {
		if s != nil {
			ordered = append(ordered, s)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].NodeID < ordered[j].NodeID
	})

	table := &JointTable{Nodes: make([]string, len(ordered))}
	for i, s := range ordered {
		table.Nodes[i] = s.NodeID
	}

	// Distinct timestamps of every series.
	seen := make(map[int64]time.Time)
	for _, s := range ordered {
		for _, p := range s.Points {
			seen[p.Timestamp.UnixNano()] = p.Timestamp
		}
	}
	keys := make([]int64, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	table.Timestamps = make([]time.Time, len(keys))
	rowOf := make(map[int64]int, len(keys))
	for i, k := range keys {
		table.Timestamps[i] = seen[k]
		rowOf[k] = i
	}

	table.Values = make([][]float64, len(keys))
	for i := range table.Values {
		row := make([]float64, len(ordered))
		for j := range row {
			row[j] = math.NaN()
		}
		table.Values[i] = row
	}

	for col, s := range ordered {
		for _, p := range s.Points {
			table.Values[rowOf[p.Timestamp.UnixNano()]][col] = p.Value
		}
	}

	for _, row := range table.Values {
		for j, v := range row {
			if math.IsNaN(v) {
				row[j] = FillValue
			}
		}
	}

	return table
}
