package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/roman-kulish/drone-path-prob/internal/align"
)

// ErrNoData indicates that all available rows have been read from the reader.
var ErrNoData = fmt.Errorf("no data available")

// RowReader provides an iterator-based interface for reading aligned rows of
// a stored session with optional time filtering.
type RowReader interface {
	// Session returns the stored session this reader is accessing.
	Session() *SessionRecord

	// Next advances the iterator and returns true if there is another row
	// to read, false when the iteration is complete or if an error occurred.
	Next(context.Context) bool

	// Current returns the current row in the iteration.
	// If called after Next() returns false, the behavior is undefined.
	Current() *align.Row

	// Error returns any error that occurred during iteration.
	// If Next() returns false, Error() should be checked to distinguish between
	// end of data and an error condition.
	Error() error

	// Close releases any resources associated with the reader.
	Close() error
}

// ReaderOption configures a RowReader with specific filtering criteria.
type ReaderOption func(*SqliteRowReader)

// WithStartTime excludes rows with fixes before t.
func WithStartTime(t time.Time) ReaderOption {
	return func(r *SqliteRowReader) {
		r.startTime = &t
	}
}

// WithEndTime excludes rows with fixes after t.
func WithEndTime(t time.Time) ReaderOption {
	return func(r *SqliteRowReader) {
		r.endTime = &t
	}
}

// WithTimeRange sets both start and end time filters.
func WithTimeRange(startTime, endTime time.Time) ReaderOption {
	return func(r *SqliteRowReader) {
		r.startTime = &startTime
		r.endTime = &endTime
	}
}

func newSqliteRowReader(ctx context.Context, db *sql.DB, sessionID int64, opts ...ReaderOption) (*SqliteRowReader, error) {
	rr := &SqliteRowReader{
		db:        db,
		sessionID: sessionID,
	}
	for _, opt := range opts {
		opt(rr)
	}
	if err := rr.init(ctx); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return rr, nil
}

// SqliteRowReader implements RowReader for SQLite database backend.
// The query yields one database row per (aligned row, node column) pair;
// the reader folds them back into align.Row values.
type SqliteRowReader struct {
	db *sql.DB

	sessionID int64
	session   *SessionRecord
	columns   int

	startTime *time.Time
	endTime   *time.Time

	current       *align.Row
	next          *align.Row // first row of the next group
	nextSeq       int64
	nextRowExists bool
	rows          *sql.Rows
	err           error
}

func (rr *SqliteRowReader) init(ctx context.Context) error {
	if rr.db == nil {
		return errors.New("database connection required")
	}
	if rr.sessionID <= 0 {
		return errors.New("session ID required")
	}

	steps := []struct {
		msg string
		fn  func(context.Context) error
	}{
		{msg: "loading session", fn: rr.loadSession},
		{msg: "initializing filters", fn: rr.initFilters},
		{msg: "initializing query", fn: rr.initQuery},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.msg, err)
		}
	}
	return nil
}

func (rr *SqliteRowReader) loadSession(ctx context.Context) (err error) {
	stmt, err := rr.db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if rr.session, err = scanSession(stmt.QueryRowContext(ctx, rr.sessionID)); err != nil {
		return fmt.Errorf("querying session: %w", err)
	}

	if err = rr.db.QueryRowContext(ctx, countNodesSQL, rr.sessionID).Scan(&rr.columns); err != nil {
		return fmt.Errorf("counting nodes: %w", err)
	}
	return nil
}

func (rr *SqliteRowReader) initFilters(ctx context.Context) (err error) {
	if rr.startTime != nil && rr.endTime != nil {
		if rr.startTime.After(*rr.endTime) {
			return fmt.Errorf("start time %s is after end time %s", rr.startTime, rr.endTime)
		}
		return nil
	}

	var minNS, maxNS, count int64
	if err = rr.db.QueryRowContext(ctx, selectRowBoundsSQL, rr.sessionID).Scan(&minNS, &maxNS, &count); err != nil {
		return fmt.Errorf("scanning filters data: %w", err)
	}

	if rr.startTime == nil {
		t := fromUnixNano(minNS)
		rr.startTime = &t
	}
	if rr.endTime == nil {
		t := fromUnixNano(maxNS)
		rr.endTime = &t
	}
	if count > 0 && rr.startTime.After(*rr.endTime) {
		return fmt.Errorf("start time %s is after end time %s", rr.startTime, rr.endTime)
	}
	return nil
}

func (rr *SqliteRowReader) initQuery(ctx context.Context) (err error) {
	stmt, err := rr.db.PrepareContext(ctx, selectRowsSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	rr.rows, err = stmt.QueryContext(ctx, rr.sessionID, rr.startTime.UnixNano(), rr.endTime.UnixNano())
	return err
}

// scanRow reads one joined database row. col is negative when the aligned
// row has no stored values.
func (rr *SqliteRowReader) scanRow() (seq int64, data rowData, col int, value float64, err error) {
	var nullCol sql.NullInt64
	var nullValue sql.NullFloat64
	err = rr.rows.Scan(
		&data.Seq,
		&data.TimestampNS,
		&data.Latitude,
		&data.Longitude,
		&data.Altitude,
		&data.X,
		&data.Y,
		&data.MatchedNS,
		&data.MaxConcern,
		&nullCol,
		&nullValue,
	)
	if err != nil {
		err = fmt.Errorf("scanning row: %w", err)
		return
	}

	col = -1
	if nullCol.Valid {
		col = int(nullCol.Int64)
		value = nullValue.Float64
	}
	return data.Seq, data, col, value, nil
}

func (rr *SqliteRowReader) newRow(data *rowData) *align.Row {
	values := make([]float64, rr.columns)
	for i := range values {
		values[i] = align.FillValue
	}
	r := data.row(values)
	return &r
}

func (rr *SqliteRowReader) setValue(r *align.Row, col int, value float64) error {
	if col < 0 {
		return nil
	}
	if col >= len(r.Values) {
		return fmt.Errorf("value column %d out of range for %d nodes", col, len(r.Values))
	}
	if math.IsNaN(value) {
		value = align.FillValue
	}
	r.Values[col] = value
	return nil
}

func (rr *SqliteRowReader) Session() *SessionRecord {
	return rr.session
}

func (rr *SqliteRowReader) Next(ctx context.Context) bool {
	if rr.err != nil || rr.rows == nil {
		return false
	}

	var currentSeq int64
	rr.current = nil
	if rr.nextRowExists {
		rr.current = rr.next
		currentSeq = rr.nextSeq
		rr.next = nil
		rr.nextRowExists = false
	}

	for {
		select {
		case <-ctx.Done():
			rr.err = ctx.Err()
			return false
		default:
		}

		if !rr.rows.Next() {
			if rr.current != nil {
				rr.err = ErrNoData
				return true
			}
			return false
		}

		seq, data, col, value, err := rr.scanRow()
		if err != nil {
			rr.err = err
			return false
		}

		if rr.current == nil {
			rr.current = rr.newRow(&data)
			currentSeq = seq
		} else if seq != currentSeq {
			// Sequence changed - complete current row
			rr.next = rr.newRow(&data)
			rr.nextSeq = seq
			rr.nextRowExists = true
			if rr.err = rr.setValue(rr.next, col, value); rr.err != nil {
				return false
			}
			return true
		}

		if rr.err = rr.setValue(rr.current, col, value); rr.err != nil {
			return false
		}
	}
}

func (rr *SqliteRowReader) Current() *align.Row {
	return rr.current
}

func (rr *SqliteRowReader) Error() error {
	if rr.err != nil && !errors.Is(rr.err, ErrNoData) {
		return rr.err
	}
	if rr.rows != nil {
		return rr.rows.Err()
	}
	return nil
}

func (rr *SqliteRowReader) Close() error {
	if rr.rows != nil {
		err := rr.rows.Close()
		rr.current = nil
		rr.next = nil
		rr.nextRowExists = false
		rr.rows = nil
		return err
	}
	return nil
}
