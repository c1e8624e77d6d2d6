package telemetry

import (
	"time"
)

// Source yields decoded flight log messages. Next returns io.EOF once the
// stream is exhausted; it never blocks waiting for more data.
type Source interface {
	Next() (Message, error)
}

// Message is a decoded log message exposing named numeric fields.
type Message interface {
	Type() string
	Field(name string) (float64, bool)
}

// Fix is one GPS position of the drone
type Fix struct {
	Timestamp time.Time `json:"timestamp"`          // UTC time of the fix
	Latitude  float64   `json:"latitude"`           // WGS84 latitude in degrees
	Longitude float64   `json:"longitude"`          // WGS84 longitude in degrees
	Altitude  *float64  `json:"altitude,omitempty"` // Altitude in meters, nil when not decoded
}
