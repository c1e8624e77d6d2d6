package storage

import (
	"database/sql"
	"errors"
	"time"

	"github.com/roman-kulish/drone-path-prob/internal/align"
	"github.com/roman-kulish/drone-path-prob/internal/node"
	"github.com/roman-kulish/drone-path-prob/internal/projection"
	"github.com/roman-kulish/drone-path-prob/internal/session"
	"github.com/roman-kulish/drone-path-prob/internal/telemetry"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

// rollbackWithError rolls back unless the transaction was committed.
func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && !errors.Is(cErr, sql.ErrTxDone) && *err == nil {
		*err = cErr
	}
}

func toSessionData(s *session.Session) *sessionData {
	data := &sessionData{
		RunID:       s.RunID,
		Name:        s.Name,
		Dir:         s.Dir,
		FlightLog:   s.FlightLog,
		ProcessedAt: s.ProcessedAt.UTC(),
		RangeMin:    s.Range.Min,
		RangeMax:    s.Range.Max,
		Degenerate:  s.Degenerate,
		ThreeD:      s.ThreeD,
	}
	if s.Projector != nil {
		data.OriginLat, data.OriginLon = s.Projector.Origin()
	}
	return data
}

func toNodeData(col int, n *session.Node) *nodeData {
	data := &nodeData{
		Column:    col,
		NodeID:    n.ID,
		Malformed: n.Read.Malformed,
	}

	if ser := n.Series; ser != nil {
		data.Rows = ser.Stats.Rows
		data.Retained = ser.Stats.Retained
		data.Usable = ser.Stats.Usable
		data.Duplicates = ser.Stats.Duplicates
		data.Points = ser.Len()

		if ser.Len() > 0 {
			data.MinValue = sql.NullFloat64{Float64: ser.Stats.MinValue, Valid: true}
			data.MaxValue = sql.NullFloat64{Float64: ser.Stats.MaxValue, Valid: true}
			data.MeanValue = sql.NullFloat64{Float64: ser.Stats.MeanValue, Valid: true}
		}
		if loc := ser.Location; loc != nil {
			data.Latitude = sql.NullFloat64{Float64: loc.Latitude, Valid: true}
			data.Longitude = sql.NullFloat64{Float64: loc.Longitude, Valid: true}
		}
	}

	if n.Position != nil {
		data.X = sql.NullFloat64{Float64: n.Position.X, Valid: true}
		data.Y = sql.NullFloat64{Float64: n.Position.Y, Valid: true}
	}
	if n.Closest != nil {
		data.ClosestM = sql.NullFloat64{Float64: n.Closest.Distance, Valid: true}
		data.ClosestNS = sql.NullInt64{Int64: n.Closest.Timestamp.UnixNano(), Valid: true}
	}
	return data
}

func toRowData(seq int, r *align.Row) *rowData {
	data := &rowData{
		Seq:         int64(seq),
		TimestampNS: r.Fix.Timestamp.UnixNano(),
		Latitude:    r.Fix.Latitude,
		Longitude:   r.Fix.Longitude,
		X:           r.Position.X,
		Y:           r.Position.Y,
		MaxConcern:  r.MaxConcern,
	}
	if r.Fix.Altitude != nil {
		data.Altitude = sql.NullFloat64{Float64: *r.Fix.Altitude, Valid: true}
	}
	if r.Matched != nil {
		data.MatchedNS = sql.NullInt64{Int64: r.Matched.UnixNano(), Valid: true}
	}
	return data
}

func (d *nodeData) record() *NodeRecord {
	rec := &NodeRecord{
		Column:    d.Column,
		ID:        d.NodeID,
		Latitude:  fromSQLNullFloat(d.Latitude),
		Longitude: fromSQLNullFloat(d.Longitude),
		Malformed: d.Malformed,
		Points:    d.Points,
		Stats: node.Stats{
			Rows:       d.Rows,
			Retained:   d.Retained,
			Usable:     d.Usable,
			Duplicates: d.Duplicates,
			MinValue:   d.MinValue.Float64,
			MaxValue:   d.MaxValue.Float64,
			MeanValue:  d.MeanValue.Float64,
		},
		ClosestDistance: fromSQLNullFloat(d.ClosestM),
	}
	if d.X.Valid && d.Y.Valid {
		rec.Position = &projection.Point{X: d.X.Float64, Y: d.Y.Float64}
	}
	if d.ClosestNS.Valid {
		ts := fromUnixNano(d.ClosestNS.Int64)
		rec.ClosestAt = &ts
	}
	return rec
}

func (d *rowData) row(values []float64) align.Row {
	r := align.Row{
		Fix: telemetry.Fix{
			Timestamp: fromUnixNano(d.TimestampNS),
			Latitude:  d.Latitude,
			Longitude: d.Longitude,
			Altitude:  fromSQLNullFloat(d.Altitude),
		},
		Position:   projection.Point{X: d.X, Y: d.Y},
		Values:     values,
		MaxConcern: d.MaxConcern,
	}
	if d.MatchedNS.Valid {
		ts := fromUnixNano(d.MatchedNS.Int64)
		r.Matched = &ts
	}
	return r
}

func fromSQLNullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func fromUnixNano(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}
