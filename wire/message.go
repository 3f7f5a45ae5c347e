package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxRecordSize is the largest record, terminator included, that either side
// may put on the wire.
const MaxRecordSize = 1380

// ServerSource is the source token of every record the server originates.
const ServerSource = "SERVER"

var (
	ErrMalformedPacket = errors.New("malformed packet")
	ErrRecordTooLarge  = errors.New("record exceeds maximum size")
	ErrInvalidSource   = errors.New("source must be a non-empty token without whitespace")
)

// Msg is one decoded record. Size is advisory: it is what the sender claims
// the data occupies (data bytes plus terminator) and is never used for
// framing. An empty Data means the record carried no payload.
type Msg struct {
	Type   Type
	Size   int
	Source string
	Data   string
}

// New builds a record with Size computed the way every sender computes it.
func New(t Type, source, data string) Msg {
	size := 0
	if data != "" {
		size = len(data) + 1
	}

	return Msg{Type: t, Size: size, Source: source, Data: data}
}

// FromServer builds a record whose source is ServerSource.
func FromServer(t Type, data string) Msg {
	return New(t, ServerSource, data)
}

// HasData reports whether the record carried a payload.
func (m Msg) HasData() bool {
	return m.Data != ""
}

func (m Msg) String() string {
	return fmt.Sprintf("%s(%d) from %s: %q", m.Type, m.Size, m.Source, m.Data)
}

// Encode renders m as a NUL-terminated record.
//
// Parameters:
//   - m: The message to encode
//
// Returns:
//   - The record bytes including the trailing NUL
//   - ErrInvalidSource if the source is empty or contains whitespace,
//     ErrRecordTooLarge if the record would exceed MaxRecordSize
func Encode(m Msg) ([]byte, error) {
	if !m.Type.Valid() {
		return nil, fmt.Errorf("encode: unknown type %d", uint8(m.Type))
	}

	if m.Source == "" || strings.IndexFunc(m.Source, unicode.IsSpace) >= 0 {
		return nil, fmt.Errorf("encode %s: %w", m.Type, ErrInvalidSource)
	}

	var b strings.Builder
	b.Grow(len(m.Source) + len(m.Data) + 16)
	b.WriteString(strconv.Itoa(int(m.Type)))
	b.WriteByte(' ')
	b.WriteString(strconv.Itoa(m.Size))
	b.WriteByte(' ')
	b.WriteString(m.Source)
	b.WriteByte(' ')
	b.WriteString(m.Data)
	b.WriteByte(0)

	if b.Len() > MaxRecordSize {
		return nil, fmt.Errorf("encode %s: %d bytes: %w", m.Type, b.Len(), ErrRecordTooLarge)
	}

	return []byte(b.String()), nil
}

// Decode parses one record. A trailing NUL, if present, is ignored. The first
// three whitespace-delimited tokens are type, size and source; everything after
// the single delimiter that follows the source is the data, verbatim.
//
// Parameters:
//   - record: One record as produced by the framer
//
// Returns:
//   - The decoded message, or an error wrapping ErrMalformedPacket
func Decode(record []byte) (Msg, error) {
	rest := strings.TrimRight(string(record), "\x00")

	var fields [3]string
	for i := range fields {
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
		if rest == "" {
			return Msg{}, fmt.Errorf("%w: expected 3 header fields, got %d", ErrMalformedPacket, i)
		}

		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end < 0 {
			end = len(rest)
		}

		fields[i], rest = rest[:end], rest[end:]
	}

	t, err := ParseType(fields[0])
	if err != nil {
		return Msg{}, err
	}

	size, err := strconv.Atoi(fields[1])
	if err != nil || size < 0 {
		return Msg{}, fmt.Errorf("%w: bad payload length %q", ErrMalformedPacket, fields[1])
	}

	// Exactly one delimiter separates the source from the data.
	if rest != "" {
		_, width := utf8.DecodeRuneInString(rest)
		rest = rest[width:]
	}

	return Msg{Type: t, Size: size, Source: fields[2], Data: rest}, nil
}
