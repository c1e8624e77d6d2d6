package node

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

// ReadStats counts what happened to the raw records of one or more files.
type ReadStats struct {
	Records   int // records returned by the CSV reader
	Malformed int // records the CSV reader could not split
}

func (s *ReadStats) add(o ReadStats) {
	s.Records += o.Records
	s.Malformed += o.Malformed
}

// ReadSamples parses every record of a headerless node log. Records the CSV
// reader rejects are counted and skipped; any other read error is returned.
func ReadSamples(r io.Reader, schema Schema) ([]Sample, ReadStats, error) {
	var stats ReadStats

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	var samples []Sample
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pErr *csv.ParseError
			if errors.As(err, &pErr) {
				stats.Malformed++
				continue
			}
			return nil, stats, fmt.Errorf("reading record: %w", err)
		}

		stats.Records++
		samples = append(samples, schema.ParseRow(record))
	}

	return samples, stats, nil
}

// ReadFile opens and parses one node log file.
func ReadFile(path string, schema Schema) (samples []Sample, stats ReadStats, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, stats, fmt.Errorf("opening node log: %w", err)
	}
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = fmt.Errorf("closing node log: %w", cErr)
		}
	}()

	samples, stats, err = ReadSamples(f, schema)
	if err != nil {
		return nil, stats, fmt.Errorf("parsing %s: %w", path, err)
	}
	return samples, stats, nil
}

// ReadFiles concatenates the samples of several files belonging to one node.
func ReadFiles(paths []string, schema Schema) ([]Sample, ReadStats, error) {
	var total ReadStats
	var all []Sample
	for _, path := range paths {
		samples, stats, err := ReadFile(path, schema)
		total.add(stats)
		if err != nil {
			return nil, total, err
		}
		all = append(all, samples...)
	}
	return all, total, nil
}
