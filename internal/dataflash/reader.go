package dataflash

import (
	"fmt"
	"io"
	"os"

	"github.com/roman-kulish/drone-path-prob/internal/telemetry"
)

// Message is a decoded DataFlash message.
type Message struct {
	name    string
	numbers map[string]float64
	text    map[string]string
}

// Type returns the message name, e.g. "GPS".
func (m *Message) Type() string {
	return m.name
}

// Field returns a numeric field by column label.
func (m *Message) Field(name string) (float64, bool) {
	v, ok := m.numbers[name]
	return v, ok
}

// Text returns a string field by column label.
func (m *Message) Text(name string) (string, bool) {
	v, ok := m.text[name]
	return v, ok
}

// Stats counts what the reader skipped while scanning.
type Stats struct {
	Messages      int // messages returned
	Formats       int // FMT messages registered
	SkippedBytes  int // bytes discarded while resynchronising
	UnknownTypes  int // messages whose type has no FMT yet
	BadFormats    int // FMT messages that could not be parsed
	TruncatedTail int // bytes left over at the end of the log
}

// Reader scans an in-memory DataFlash log. It resynchronises on the
// 0xA3 0x95 header after corrupt bytes instead of failing, the way ground
// station log readers do.
type Reader struct {
	data    []byte
	pos     int
	formats map[uint8]*Format
	stats   Stats
}

var _ telemetry.Source = (*Reader)(nil)

// NewReader reads the whole log from r.
func NewReader(r io.Reader) (*Reader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}
	return NewReaderBytes(data), nil
}

// NewReaderBytes scans data without copying it.
func NewReaderBytes(data []byte) *Reader {
	return &Reader{
		data:    data,
		formats: make(map[uint8]*Format),
	}
}

// Open reads a DataFlash .bin file.
func Open(path string) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening log: %w", err)
	}
	return NewReaderBytes(data), nil
}

// Stats returns counters accumulated so far.
func (r *Reader) Stats() Stats {
	return r.stats
}

// Next returns the next decoded data message, or io.EOF at the end of the
// log. FMT messages are consumed internally and never returned.
func (r *Reader) Next() (telemetry.Message, error) {
	for {
		if r.pos+headerLen > len(r.data) {
			r.stats.TruncatedTail += len(r.data) - r.pos
			r.pos = len(r.data)
			return nil, io.EOF
		}

		if r.data[r.pos] != head1 || r.data[r.pos+1] != head2 {
			r.pos++
			r.stats.SkippedBytes++
			continue
		}

		typ := r.data[r.pos+2]

		if typ == fmtType {
			if r.pos+fmtLength > len(r.data) {
				r.stats.TruncatedTail += len(r.data) - r.pos
				r.pos = len(r.data)
				return nil, io.EOF
			}
			f, err := parseFormat(r.data[r.pos+headerLen : r.pos+fmtLength])
			if err != nil {
				r.stats.BadFormats++
			} else {
				r.formats[f.Type] = f
				r.stats.Formats++
			}
			r.pos += fmtLength
			continue
		}

		f, ok := r.formats[typ]
		if !ok {
			r.stats.UnknownTypes++
			r.pos++
			r.stats.SkippedBytes++
			continue
		}

		if r.pos+f.Length > len(r.data) {
			r.stats.TruncatedTail += len(r.data) - r.pos
			r.pos = len(r.data)
			return nil, io.EOF
		}

		msg := f.decode(r.data[r.pos+headerLen : r.pos+f.Length])
		r.pos += f.Length
		r.stats.Messages++
		return msg, nil
	}
}
