package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/roman-kulish/drone-path-prob/internal/session"
)

var _ Store = (*SqliteStore)(nil)

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store backed by the Sqlite database at dbPath.
// Connections are opened lazily; the schema is created on first write.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func marshalConfig(config any) (configData sql.NullString, err error) {
	if config == nil {
		return
	}

	switch c := config.(type) {
	case string:
		configData.Valid = true
		configData.String = c

	case []byte:
		configData.Valid = true
		configData.String = string(c)

	default:
		var p []byte
		if p, err = json.Marshal(config); err != nil {
			err = fmt.Errorf("marshaling config: %w", err)
			return
		}

		configData.Valid = true
		configData.String = string(p)
	}
	return
}

// SaveSession stores the session, its nodes and every aligned row in one
// transaction.
func (s *SqliteStore) SaveSession(ctx context.Context, sess *session.Session, config any) (sessionID int64, err error) {
	if sess == nil {
		return 0, errors.New("session is required")
	}

	data := toSessionData(sess)
	if data.Config, err = marshalConfig(config); err != nil {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		err = fmt.Errorf("beginning transaction: %w", err)
		return
	}
	defer rollbackWithError(tx, &err)

	result, err := tx.ExecContext(ctx, insertSessionSQL,
		data.RunID,
		data.Name,
		data.Dir,
		data.FlightLog,
		data.ProcessedAt,
		data.OriginLat,
		data.OriginLon,
		data.RangeMin,
		data.RangeMax,
		data.Degenerate,
		data.ThreeD,
		data.Config,
	)
	if err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	if sessionID, err = result.LastInsertId(); err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
		return
	}

	if err = storeNodes(ctx, tx, sessionID, sess.Nodes); err != nil {
		return
	}
	if err = storeRows(ctx, tx, sessionID, sess); err != nil {
		return
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("committing transaction: %w", err)
		return
	}
	return sessionID, nil
}

func storeNodes(ctx context.Context, tx *sql.Tx, sessionID int64, nodes []*session.Node) (err error) {
	stmt, err := tx.PrepareContext(ctx, insertNodeSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	for col, n := range nodes {
		data := toNodeData(col, n)
		if _, err = stmt.ExecContext(ctx,
			sessionID,
			data.Column,
			data.NodeID,
			data.Latitude,
			data.Longitude,
			data.X,
			data.Y,
			data.Rows,
			data.Retained,
			data.Usable,
			data.Duplicates,
			data.Malformed,
			data.Points,
			data.MinValue,
			data.MaxValue,
			data.MeanValue,
			data.ClosestM,
			data.ClosestNS,
		); err != nil {
			return fmt.Errorf("inserting node %s: %w", n.ID, err)
		}
	}
	return nil
}

func storeRows(ctx context.Context, tx *sql.Tx, sessionID int64, sess *session.Session) (err error) {
	rowStmt, err := tx.PrepareContext(ctx, insertRowSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(rowStmt, &err)

	valueStmt, err := tx.PrepareContext(ctx, insertValueSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(valueStmt, &err)

	for seq := range sess.Rows {
		row := &sess.Rows[seq]
		data := toRowData(seq, row)

		result, err := rowStmt.ExecContext(ctx,
			sessionID,
			data.Seq,
			data.TimestampNS,
			data.Latitude,
			data.Longitude,
			data.Altitude,
			data.X,
			data.Y,
			data.MatchedNS,
			data.MaxConcern,
		)
		if err != nil {
			return fmt.Errorf("inserting row %d: %w", seq, err)
		}

		rowID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("getting row ID: %w", err)
		}

		for col, v := range row.Values {
			if _, err = valueStmt.ExecContext(ctx, rowID, col, v); err != nil {
				return fmt.Errorf("inserting row %d value %d: %w", seq, col, err)
			}
		}
	}
	return nil
}

func scanSession(sc interface{ Scan(...any) error }) (*SessionRecord, error) {
	var rec SessionRecord
	var data sessionData
	if err := sc.Scan(
		&rec.ID,
		&data.RunID,
		&data.Name,
		&data.Dir,
		&data.FlightLog,
		&data.ProcessedAt,
		&data.OriginLat,
		&data.OriginLon,
		&data.RangeMin,
		&data.RangeMax,
		&data.Degenerate,
		&data.ThreeD,
		&data.Config,
	); err != nil {
		return nil, err
	}

	rec.RunID = data.RunID
	rec.Name = data.Name
	rec.Dir = data.Dir
	rec.FlightLog = data.FlightLog
	rec.ProcessedAt = data.ProcessedAt.UTC()
	rec.OriginLat = data.OriginLat
	rec.OriginLon = data.OriginLon
	rec.Range.Min = data.RangeMin
	rec.Range.Max = data.RangeMax
	rec.Degenerate = data.Degenerate
	rec.ThreeD = data.ThreeD
	if data.Config.Valid {
		rec.Config = &data.Config.String
	}
	return &rec, nil
}

func (s *SqliteStore) Session(ctx context.Context, id int64) (session *SessionRecord, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	if session, err = scanSession(stmt.QueryRowContext(ctx, id)); err != nil {
		err = fmt.Errorf("scanning session: %w", err)
	}
	return
}

func (s *SqliteStore) Sessions(ctx context.Context) (sessions []*SessionRecord, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var sess *SessionRecord
		if sess, err = scanSession(rows); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		sessions = append(sessions, sess)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) Nodes(ctx context.Context, sessionID int64) (nodes []*NodeRecord, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectNodesSQL, sessionID)
	if err != nil {
		err = fmt.Errorf("querying nodes: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var d nodeData
		if err = rows.Scan(
			&d.Column,
			&d.NodeID,
			&d.Latitude,
			&d.Longitude,
			&d.X,
			&d.Y,
			&d.Rows,
			&d.Retained,
			&d.Usable,
			&d.Duplicates,
			&d.Malformed,
			&d.Points,
			&d.MinValue,
			&d.MaxValue,
			&d.MeanValue,
			&d.ClosestM,
			&d.ClosestNS,
		); err != nil {
			err = fmt.Errorf("scanning node: %w", err)
			return
		}
		nodes = append(nodes, d.record())
	}
	err = rows.Err()
	return
}

// ReadRows creates a RowReader over the aligned rows of a session, in the
// order they were aligned. Each row carries one value per node column.
//
// The returned reader must be closed after use to release database
// resources. Each reader instance should only be used from a single
// goroutine.
func (s *SqliteStore) ReadRows(ctx context.Context, sessionID int64, opts ...ReaderOption) (RowReader, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return newSqliteRowReader(ctx, db, sessionID, opts...)
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
