package dataflash

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

const (
	head1 = 0xA3
	head2 = 0x95

	headerLen = 3

	// fmtType is the self-describing FMT message: type, length, name,
	// format and column labels of every other message in the log.
	fmtType   = 0x80
	fmtLength = 89
)

// fieldSize is the wire size of every DataFlash format character.
var fieldSize = map[byte]int{
	'a': 64, // int16[32]
	'b': 1,
	'B': 1,
	'h': 2,
	'H': 2,
	'i': 4,
	'I': 4,
	'f': 4,
	'd': 8,
	'n': 4,
	'N': 16,
	'Z': 64,
	'c': 2, // int16 * 100
	'C': 2, // uint16 * 100
	'e': 4, // int32 * 100
	'E': 4, // uint32 * 100
	'L': 4, // int32 lat/lon * 1e7
	'M': 1, // flight mode
	'q': 8,
	'Q': 8,
}

// Format describes the layout of one message type.
type Format struct {
	Type    uint8
	Length  int // full message length including the 3 byte header
	Name    string
	Format  string
	Columns []string
}

func parseFormat(body []byte) (*Format, error) {
	if len(body) < fmtLength-headerLen {
		return nil, fmt.Errorf("short FMT message: %d bytes", len(body))
	}

	f := &Format{
		Type:   body[0],
		Length: int(body[1]),
		Name:   cString(body[2:6]),
		Format: cString(body[6:22]),
	}
	if cols := cString(body[22:86]); cols != "" {
		f.Columns = strings.Split(cols, ",")
	}

	size := headerLen
	for i := 0; i < len(f.Format); i++ {
		n, ok := fieldSize[f.Format[i]]
		if !ok {
			return nil, fmt.Errorf("message %s: unknown format character %q", f.Name, f.Format[i])
		}
		size += n
	}
	if size != f.Length {
		return nil, fmt.Errorf("message %s: format %q needs %d bytes, header says %d", f.Name, f.Format, size, f.Length)
	}
	if len(f.Columns) != len(f.Format) {
		return nil, fmt.Errorf("message %s: %d columns for %d fields", f.Name, len(f.Columns), len(f.Format))
	}

	return f, nil
}

// decode unpacks a message body. Numeric fields keep their raw wire value:
// no scaling is applied for the c, C, e, E or L characters.
func (f *Format) decode(body []byte) *Message {
	msg := &Message{
		name:    f.Name,
		numbers: make(map[string]float64, len(f.Columns)),
	}

	le := binary.LittleEndian
	off := 0
	for i := 0; i < len(f.Format); i++ {
		c := f.Format[i]
		col := f.Columns[i]
		n := fieldSize[c]
		b := body[off : off+n]
		off += n

		switch c {
		case 'b':
			msg.numbers[col] = float64(int8(b[0]))
		case 'B', 'M':
			msg.numbers[col] = float64(b[0])
		case 'h', 'c':
			msg.numbers[col] = float64(int16(le.Uint16(b)))
		case 'H', 'C':
			msg.numbers[col] = float64(le.Uint16(b))
		case 'i', 'e', 'L':
			msg.numbers[col] = float64(int32(le.Uint32(b)))
		case 'I', 'E':
			msg.numbers[col] = float64(le.Uint32(b))
		case 'f':
			msg.numbers[col] = float64(math.Float32frombits(le.Uint32(b)))
		case 'd':
			msg.numbers[col] = math.Float64frombits(le.Uint64(b))
		case 'q':
			msg.numbers[col] = float64(int64(le.Uint64(b)))
		case 'Q':
			msg.numbers[col] = float64(le.Uint64(b))
		case 'n', 'N', 'Z':
			if msg.text == nil {
				msg.text = make(map[string]string)
			}
			msg.text[col] = cString(b)
		}
	}

	return msg
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}
