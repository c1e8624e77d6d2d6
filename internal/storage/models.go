package storage

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/drone-path-prob/internal/align"
	"github.com/roman-kulish/drone-path-prob/internal/node"
	"github.com/roman-kulish/drone-path-prob/internal/projection"
)

// SessionRecord is a stored session without its rows.
type SessionRecord struct {
	ID          int64
	RunID       uuid.UUID
	Name        string
	Dir         string
	FlightLog   string
	ProcessedAt time.Time
	OriginLat   float64
	OriginLon   float64
	Range       align.Range
	Degenerate  bool
	ThreeD      bool
	Config      *string // JSON
}

// NodeRecord is a stored node summary.
type NodeRecord struct {
	Column    int
	ID        string
	Latitude  *float64
	Longitude *float64
	Position  *projection.Point
	Stats     node.Stats
	Malformed int
	Points    int

	ClosestDistance *float64
	ClosestAt       *time.Time
}

type sessionData struct {
	RunID       uuid.UUID
	Name        string
	Dir         string
	FlightLog   string
	ProcessedAt time.Time
	OriginLat   float64
	OriginLon   float64
	RangeMin    float64
	RangeMax    float64
	Degenerate  bool
	ThreeD      bool
	Config      sql.NullString
}

type nodeData struct {
	Column     int
	NodeID     string
	Latitude   sql.NullFloat64
	Longitude  sql.NullFloat64
	X          sql.NullFloat64
	Y          sql.NullFloat64
	Rows       int
	Retained   int
	Usable     int
	Duplicates int
	Malformed  int
	Points     int
	MinValue   sql.NullFloat64
	MaxValue   sql.NullFloat64
	MeanValue  sql.NullFloat64
	ClosestM   sql.NullFloat64
	ClosestNS  sql.NullInt64
}

type rowData struct {
	Seq         int64
	TimestampNS int64
	Latitude    float64
	Longitude   float64
	Altitude    sql.NullFloat64
	X           float64
	Y           float64
	MatchedNS   sql.NullInt64
	MaxConcern  float64
}
