package node

import (
	"strconv"
	"strings"
	"time"
)

const (
	Unknown Validity = iota
	Valid
	Invalid
)

const (
	acceptMarker = "Valid"
	rejectMarker = "Invalid"
)

// Validity is the node's own verdict on a row's position fix.
type Validity int

func (v Validity) String() string {
	switch v {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// ParseValidity classifies a status field. Matching is case-sensitive, so
// "Invalid" never satisfies the "Valid" marker. A status carrying the
// rejection marker is Invalid even if it also carries the acceptance marker.
func ParseValidity(status string) Validity {
	switch {
	case strings.Contains(status, rejectMarker):
		return Invalid
	case strings.Contains(status, acceptMarker):
		return Valid
	default:
		return Unknown
	}
}

// Sample is one parsed row of a node log. Pointer fields are nil when the
// column was missing or could not be parsed.
type Sample struct {
	Timestamp   *time.Time
	Probability *float64
	Latitude    *float64
	Longitude   *float64
	Validity    Validity
}

// Usable reports whether the sample can be placed on the node's time series.
func (s Sample) Usable() bool {
	return s.Validity == Valid && s.Probability != nil && s.Timestamp != nil
}

// HasPosition reports whether both coordinates were parsed.
func (s Sample) HasPosition() bool {
	return s.Latitude != nil && s.Longitude != nil
}

// Schema maps the fixed column positions of a node log onto Sample fields.
// The logs have no header row, so positions are the only contract.
type Schema struct {
	Timestamp   int
	Probability int
	Status      int
	Latitude    int
	Longitude   int

	// MaxColumns truncates wider rows; some firmware revisions append a
	// trailing column that is not part of the layout.
	MaxColumns int

	TimeLayouts []string
	Location    *time.Location
	Extractor   *Extractor
}

// DefaultTimeLayouts are tried in order for the timestamp column.
var DefaultTimeLayouts = []string{
	time.DateTime,
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006/01/02 15:04:05",
}

// DefaultSchema returns the 13 column layout written by the node firmware:
// index, id, type, background, drone, latitude, longitude, timestamp,
// unknown, status, unknown, unknown, value.
func DefaultSchema() Schema {
	return Schema{
		Timestamp:   7,
		Probability: 4,
		Status:      9,
		Latitude:    5,
		Longitude:   6,
		MaxColumns:  13,
		TimeLayouts: DefaultTimeLayouts,
		Location:    time.UTC,
		Extractor:   defaultExtractor,
	}
}

// ParseRow converts a raw record into a Sample. It never fails: fields that
// are missing or malformed are left nil.
func (s Schema) ParseRow(record []string) Sample {
	if s.MaxColumns > 0 && len(record) > s.MaxColumns {
		record = record[:s.MaxColumns]
	}

	var sample Sample

	if status, ok := column(record, s.Status); ok {
		sample.Validity = ParseValidity(status)
	}
	if text, ok := column(record, s.Probability); ok {
		extractor := s.Extractor
		if extractor == nil {
			extractor = defaultExtractor
		}
		if v, ok := extractor.Extract(text); ok {
			sample.Probability = &v
		}
	}
	if raw, ok := column(record, s.Timestamp); ok {
		sample.Timestamp = s.parseTime(raw)
	}
	if raw, ok := column(record, s.Latitude); ok {
		sample.Latitude = parseFloat(raw)
	}
	if raw, ok := column(record, s.Longitude); ok {
		sample.Longitude = parseFloat(raw)
	}

	return sample
}

// Validate checks that the column indices can address a row.
func (s Schema) Validate() error {
	cols := []struct {
		name string
		idx  int
	}{
		{"timestamp", s.Timestamp},
		{"probability", s.Probability},
		{"status", s.Status},
		{"latitude", s.Latitude},
		{"longitude", s.Longitude},
	}
	for _, c := range cols {
		if c.idx < 0 {
			return &SchemaError{Column: c.name, Index: c.idx, Reason: "negative index"}
		}
		if s.MaxColumns > 0 && c.idx >= s.MaxColumns {
			return &SchemaError{Column: c.name, Index: c.idx, Reason: "beyond the column limit"}
		}
	}
	return nil
}

func (s Schema) parseTime(raw string) *time.Time {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	layouts := s.TimeLayouts
	if len(layouts) == 0 {
		layouts = DefaultTimeLayouts
	}

	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func column(record []string, idx int) (string, bool) {
	if idx < 0 || idx >= len(record) {
		return "", false
	}
	v := strings.TrimSpace(record[idx])
	return v, v != ""
}

func parseFloat(raw string) *float64 {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}
