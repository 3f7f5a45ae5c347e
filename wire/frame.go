package wire

import (
	"bufio"
	"bytes"
	"io"
)

// SplitRecords is a bufio.SplitFunc that yields NUL-terminated records with
// the terminator stripped. Empty records are skipped. Trailing bytes without a
// terminator are returned as a final record at EOF.
func SplitRecords(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for len(data) > 0 && data[0] == 0 {
		advance++
		data = data[1:]
	}

	if i := bytes.IndexByte(data, 0); i >= 0 {
		return advance + i + 1, data[:i], nil
	}

	if atEOF && len(data) > 0 {
		return advance + len(data), data, nil
	}

	return advance, nil, nil
}

// NewScanner returns a scanner that reads one record per Scan from r. A
// record longer than MaxRecordSize makes Scan fail with bufio.ErrTooLong.
func NewScanner(r io.Reader) *bufio.Scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 512), MaxRecordSize)
	s.Split(SplitRecords)
	return s
}
