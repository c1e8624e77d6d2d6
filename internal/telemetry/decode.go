package telemetry

import (
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	// DefaultMessageType is the DataFlash message carrying GPS fixes.
	DefaultMessageType = "GPS"

	// DefaultLeapSeconds is the GPS-UTC offset in effect since 2017.
	DefaultLeapSeconds = 18 * time.Second

	FieldWeek      = "GWk"
	FieldWeekMS    = "GMS"
	FieldLatitude  = "Lat"
	FieldLongitude = "Lng"
	FieldAltitude  = "Alt"

	coordinateScale = 1e7 // raw lat/lon are degrees * 1e7
	altitudeScale   = 100 // raw altitude is centimeters
)

// GPSEpoch is the origin of GPS week numbering.
var GPSEpoch = time.Date(1980, time.January, 6, 0, 0, 0, 0, time.UTC)

// ErrNoTelemetry is returned when no message survives filtering.
var ErrNoTelemetry = errors.New("no usable telemetry")

// GPSTime converts a GPS week and milliseconds into the week to UTC.
func GPSTime(week, msOfWeek float64, leap time.Duration) time.Time {
	return GPSEpoch.
		Add(time.Duration(week) * 7 * 24 * time.Hour).
		Add(time.Duration(msOfWeek) * time.Millisecond).
		Add(-leap)
}

// Stats counts messages seen by Decode.
type Stats struct {
	Messages   int // messages read from the source
	Candidates int // messages of the position type
	Incomplete int // position messages missing a required field
	Fixes      int // fixes produced
}

type decoder struct {
	types           map[string]struct{}
	leap            time.Duration
	requireAltitude bool
}

// DecodeOption configures Decode.
type DecodeOption func(*decoder)

// WithMessageTypes replaces the accepted position message types.
func WithMessageTypes(types ...string) DecodeOption {
	return func(d *decoder) {
		d.types = make(map[string]struct{}, len(types))
		for _, t := range types {
			d.types[t] = struct{}{}
		}
	}
}

// WithLeapSeconds overrides the GPS-UTC offset.
func WithLeapSeconds(leap time.Duration) DecodeOption {
	return func(d *decoder) {
		d.leap = leap
	}
}

// WithAltitude makes the altitude field mandatory, as 3-D consumers need it.
func WithAltitude() DecodeOption {
	return func(d *decoder) {
		d.requireAltitude = true
	}
}

// Decode drains src and returns the position fixes it carries, in decoder
// order. Messages of other types are ignored; position messages missing any
// required field are discarded.
func Decode(src Source, opts ...DecodeOption) ([]Fix, Stats, error) {
	d := decoder{
		types: map[string]struct{}{DefaultMessageType: {}},
		leap:  DefaultLeapSeconds,
	}
	for _, opt := range opts {
		opt(&d)
	}

	var stats Stats
	var fixes []Fix
	for {
		msg, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("reading telemetry: %w", err)
		}
		stats.Messages++

		if _, ok := d.types[msg.Type()]; !ok {
			continue
		}
		stats.Candidates++

		fix, ok := d.fix(msg)
		if !ok {
			stats.Incomplete++
			continue
		}
		fixes = append(fixes, fix)
	}

	stats.Fixes = len(fixes)
	if len(fixes) == 0 {
		return nil, stats, ErrNoTelemetry
	}
	return fixes, stats, nil
}

func (d *decoder) fix(msg Message) (Fix, bool) {
	week, ok1 := msg.Field(FieldWeek)
	ms, ok2 := msg.Field(FieldWeekMS)
	lat, ok3 := msg.Field(FieldLatitude)
	lng, ok4 := msg.Field(FieldLongitude)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return Fix{}, false
	}

	fix := Fix{
		Timestamp: GPSTime(week, ms, d.leap),
		Latitude:  lat / coordinateScale,
		Longitude: lng / coordinateScale,
	}

	alt, ok := msg.Field(FieldAltitude)
	switch {
	case ok:
		meters := alt / altitudeScale
		fix.Altitude = &meters
	case d.requireAltitude:
		return Fix{}, false
	}

	return fix, true
}
