package output

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/roman-kulish/drone-path-prob/internal/align"
	"github.com/roman-kulish/drone-path-prob/internal/session"
)

// TimeLayout is the timestamp format of the output table.
const TimeLayout = "2006-01-02 15:04:05.000"

const (
	ColumnTimestamp  = "timestamp"
	ColumnLatitude   = "latitude"
	ColumnLongitude  = "longitude"
	ColumnAltitude   = "altitude"
	ColumnMaxConcern = "max_concern"
	ColumnX          = "x_m"
	ColumnY          = "y_m"
)

// Table is what the CSV writer needs from an aligned session.
type Table struct {
	Nodes     []string
	Rows      []align.Row
	Altitude  bool // write the altitude column
	Projected bool // write x_m and y_m
}

// NewTable prepares an aligned session for writing. The altitude column is
// written when the session is three dimensional.
func NewTable(s *session.Session, projected bool) *Table {
	return &Table{
		Nodes:     s.NodeIDs(),
		Rows:      s.Rows,
		Altitude:  s.ThreeD,
		Projected: projected,
	}
}

// Header returns the column names: timestamp, one column per node,
// position, optional altitude, max concern and optional planar offsets.
func (t *Table) Header() []string {
	header := make([]string, 0, len(t.Nodes)+7)
	header = append(header, ColumnTimestamp)
	header = append(header, t.Nodes...)
	header = append(header, ColumnLatitude, ColumnLongitude)
	if t.Altitude {
		header = append(header, ColumnAltitude)
	}
	header = append(header, ColumnMaxConcern)
	if t.Projected {
		header = append(header, ColumnX, ColumnY)
	}
	return header
}

// Write encodes the table as CSV.
func Write(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header()); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	record := make([]string, 0, len(t.Header()))
	for i, row := range t.Rows {
		if len(row.Values) != len(t.Nodes) {
			return fmt.Errorf("row %d: %d values for %d nodes", i, len(row.Values), len(t.Nodes))
		}

		record = record[:0]
		record = append(record, row.Fix.Timestamp.UTC().Format(TimeLayout))
		for _, v := range row.Values {
			record = append(record, formatFloat(v))
		}
		record = append(record, formatFloat(row.Fix.Latitude), formatFloat(row.Fix.Longitude))
		if t.Altitude {
			alt := ""
			if row.Fix.Altitude != nil {
				alt = formatFloat(*row.Fix.Altitude)
			}
			record = append(record, alt)
		}
		record = append(record, formatFloat(row.MaxConcern))
		if t.Projected {
			record = append(record,
				strconv.FormatFloat(row.Position.X, 'f', 3, 64),
				strconv.FormatFloat(row.Position.Y, 'f', 3, 64))
		}

		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteFile writes the table to path through a temporary file in the same
// directory, so a failed run never leaves a partial table behind.
func WriteFile(path string, t *Table) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, os.Remove(tmp.Name()))
		}
	}()

	if err = tmp.Chmod(0o644); err != nil {
		return errors.Join(fmt.Errorf("creating output file: %w", err), tmp.Close())
	}

	if err = Write(tmp, t); err != nil {
		return errors.Join(fmt.Errorf("writing %s: %w", path, err), tmp.Close())
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing output file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("moving output file: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
