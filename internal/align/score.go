package align

import "math"

// DegenerateRange is substituted when the display range would be empty.
var DegenerateRange = Range{Min: 0, Max: 1}

// Range is the display scale of max concern values.
type Range struct {
	Min float64
	Max float64
}

// Span returns Max - Min.
func (r Range) Span() float64 {
	return r.Max - r.Min
}

// Normalize maps v onto [0,1], clamping values outside the range.
func (r Range) Normalize(v float64) float64 {
	span := r.Span()
	if span <= 0 {
		return 0
	}
	return math.Max(0, math.Min(1, (v-r.Min)/span))
}

// MaxConcern returns the highest node value of a row, or FillValue when the
// row has no node columns.
func MaxConcern(values []float64) float64 {
	if len(values) == 0 {
		return FillValue
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// ScaleRange returns the min and max of the rows' max concern. When there
// are no rows or min == max it returns DegenerateRange and false, so callers
// can report the substitution.
func ScaleRange(rows []Row) (Range, bool) {
	if len(rows) == 0 {
		return DegenerateRange, false
	}
	lo, hi := rows[0].MaxConcern, rows[0].MaxConcern
	for _, row := range rows[1:] {
		lo = math.Min(lo, row.MaxConcern)
		hi = math.Max(hi, row.MaxConcern)
	}
	if lo == hi {
		return DegenerateRange, false
	}
	return Range{Min: lo, Max: hi}, true
}
