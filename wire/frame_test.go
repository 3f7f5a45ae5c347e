package wire

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scanAll(t *testing.T, s *bufio.Scanner) []string {
	t.Helper()

	var out []string
	for s.Scan() {
		out = append(out, s.Text())
	}

	return out
}

func TestScanner_SplitsOnTerminator(t *testing.T) {
	input := "1 0 SERVER \x00\x0013 3 bob hi\x00tail"
	s := NewScanner(strings.NewReader(input))

	got := scanAll(t, s)
	require.NoError(t, s.Err())
	assert.Equal(t, []string{"1 0 SERVER ", "13 3 bob hi", "tail"}, got)
}

func TestScanner_ReassemblesPartialReads(t *testing.T) {
	var buf bytes.Buffer
	for _, m := range []Msg{
		New(Login, "alice", "pw1"),
		New(NewSession, "alice", "room"),
		New(Message, "alice", "hello world"),
	} {
		b, err := Encode(m)
		require.NoError(t, err)
		buf.Write(b)
	}

	s := NewScanner(iotest.OneByteReader(&buf))
	var got []Msg
	for s.Scan() {
		m, err := Decode(s.Bytes())
		require.NoError(t, err)
		got = append(got, m)
	}

	require.NoError(t, s.Err())
	require.Len(t, got, 3)
	assert.Equal(t, Login, got[0].Type)
	assert.Equal(t, "room", got[1].Data)
	assert.Equal(t, "hello world", got[2].Data)
}

func TestScanner_RejectsOversizedRecord(t *testing.T) {
	s := NewScanner(strings.NewReader(strings.Repeat("x", MaxRecordSize+10) + "\x00"))

	assert.False(t, s.Scan())
	assert.ErrorIs(t, s.Err(), bufio.ErrTooLong)
}

func TestScanner_MaximumRecordFits(t *testing.T) {
	data := strings.Repeat("y", MaxRecordSize-1)
	s := NewScanner(strings.NewReader(data + "\x00"))

	require.True(t, s.Scan())
	assert.Equal(t, data, s.Text())
}

func TestSplitRecords_NeedsMoreData(t *testing.T) {
	advance, token, err := SplitRecords([]byte("13 3 bob"), false)
	require.NoError(t, err)
	assert.Zero(t, advance)
	assert.Nil(t, token)
}
