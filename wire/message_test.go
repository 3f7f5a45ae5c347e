package wire

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestType_String(t *testing.T) {
	assert.Equal(t, "LOGIN", Login.String())
	assert.Equal(t, "QU_ACK", QueryAck.String())
	assert.Equal(t, "DMESS_NAK", DirectMessageNak.String())
	assert.Equal(t, "Type(42)", Type(42).String())
}

func TestType_WireOrdinals(t *testing.T) {
	// Ordinals are fixed by the protocol.
	assert.Equal(t, Type(0), Login)
	assert.Equal(t, Type(4), Join)
	assert.Equal(t, Type(10), NewSession)
	assert.Equal(t, Type(13), Message)
	assert.Equal(t, Type(16), DirectMessage)
	assert.Equal(t, Type(18), DirectMessageNak)
	assert.False(t, Type(19).Valid())
}

func TestNew_Size(t *testing.T) {
	t.Run("payload counts terminator", func(t *testing.T) {
		m := New(NewSession, "alice", "room pw")
		assert.Equal(t, 8, m.Size)
		assert.True(t, m.HasData())
	})

	t.Run("no payload has zero size", func(t *testing.T) {
		m := FromServer(LoginAck, "")
		assert.Equal(t, 0, m.Size)
		assert.Equal(t, ServerSource, m.Source)
		assert.False(t, m.HasData())
	})
}

func TestEncode(t *testing.T) {
	t.Run("renders fields and terminator", func(t *testing.T) {
		b, err := Encode(New(NewSession, "alice", "room pw"))
		require.NoError(t, err)
		assert.Equal(t, "10 8 alice room pw\x00", string(b))
	})

	t.Run("empty data keeps delimiter", func(t *testing.T) {
		b, err := Encode(FromServer(LoginAck, ""))
		require.NoError(t, err)
		assert.Equal(t, "1 0 SERVER \x00", string(b))
	})

	t.Run("rejects empty source", func(t *testing.T) {
		_, err := Encode(New(Query, "", ""))
		assert.ErrorIs(t, err, ErrInvalidSource)
	})

	t.Run("rejects source with whitespace", func(t *testing.T) {
		_, err := Encode(New(Query, "al ice", ""))
		assert.ErrorIs(t, err, ErrInvalidSource)
	})

	t.Run("rejects oversized record", func(t *testing.T) {
		_, err := Encode(New(Message, "alice", strings.Repeat("x", MaxRecordSize)))
		assert.ErrorIs(t, err, ErrRecordTooLarge)
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		_, err := Encode(Msg{Type: Type(200), Source: "a"})
		assert.Error(t, err)
	})
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name   string
		record string
		want   Msg
	}{
		{
			name:   "login with secret",
			record: "0 4 alice pw1\x00",
			want:   Msg{Type: Login, Size: 4, Source: "alice", Data: "pw1"},
		},
		{
			name:   "data is kept verbatim after one delimiter",
			record: "13 15 bob  hello  there",
			want:   Msg{Type: Message, Size: 15, Source: "bob", Data: " hello  there"},
		},
		{
			name:   "no data",
			record: "14 0 bob",
			want:   Msg{Type: Query, Size: 0, Source: "bob"},
		},
		{
			name:   "trailing delimiter only",
			record: "1 0 SERVER \x00",
			want:   Msg{Type: LoginAck, Size: 0, Source: "SERVER"},
		},
		{
			name:   "tabs delimit header fields",
			record: "13\t3\tbob\thi",
			want:   Msg{Type: Message, Size: 3, Source: "bob", Data: "hi"},
		},
		{
			name:   "multi-line data",
			record: "15 9 SERVER a\nb c",
			want:   Msg{Type: QueryAck, Size: 9, Source: "SERVER", Data: "a\nb c"},
		},
		{
			name:   "sentinel-looking data is ordinary data",
			record: "4 7 bob NoData",
			want:   Msg{Type: Join, Size: 7, Source: "bob", Data: "NoData"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.record))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	records := map[string]string{
		"empty":             "",
		"only terminator":   "\x00",
		"one field":         "13",
		"two fields":        "13 4",
		"non numeric type":  "MESSAGE 4 bob hi",
		"unknown type":      "19 4 bob hi",
		"negative type":     "-1 4 bob hi",
		"non numeric size":  "13 four bob hi",
		"negative size":     "13 -4 bob hi",
		"whitespace only":   "   \t ",
		"type out of range": "300 0 bob",
	}

	for name, record := range records {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(record))
			assert.ErrorIs(t, err, ErrMalformedPacket)
		})
	}
}

func TestEncodeDecode_DirectMessage(t *testing.T) {
	sent := New(DirectMessage, "alice", "bob see you at 5")
	b, err := Encode(sent)
	require.NoError(t, err)

	got, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, sent, got)
}
