package conntable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_Bind(t *testing.T) {
	tbl := New[uint32]()

	require.NoError(t, tbl.Bind(1, "alice"))

	t.Run("lookup both ways", func(t *testing.T) {
		id, ok := tbl.Lookup(1)
		assert.True(t, ok)
		assert.Equal(t, "alice", id)

		conn, ok := tbl.FindByIdentity("alice")
		assert.True(t, ok)
		assert.Equal(t, uint32(1), conn)
		assert.True(t, tbl.Online("alice"))
	})

	t.Run("identity bound elsewhere", func(t *testing.T) {
		assert.ErrorIs(t, tbl.Bind(2, "alice"), ErrIdentityBound)
		_, ok := tbl.Lookup(2)
		assert.False(t, ok)
	})

	t.Run("connection already bound", func(t *testing.T) {
		assert.ErrorIs(t, tbl.Bind(1, "bob"), ErrConnBound)
		assert.False(t, tbl.Online("bob"))
	})
}

func TestTable_Unbind(t *testing.T) {
	tbl := New[uint32]()
	require.NoError(t, tbl.Bind(1, "alice"))

	id, ok := tbl.Unbind(1)
	assert.True(t, ok)
	assert.Equal(t, "alice", id)
	assert.False(t, tbl.Online("alice"))

	t.Run("second unbind is a no-op", func(t *testing.T) {
		id, ok := tbl.Unbind(1)
		assert.False(t, ok)
		assert.Empty(t, id)
	})

	t.Run("identity can be bound again", func(t *testing.T) {
		require.NoError(t, tbl.Bind(7, "alice"))
		conn, ok := tbl.FindByIdentity("alice")
		assert.True(t, ok)
		assert.Equal(t, uint32(7), conn)
	})
}

func TestTable_Identities(t *testing.T) {
	tbl := New[uint32]()
	assert.Empty(t, tbl.Identities())

	require.NoError(t, tbl.Bind(3, "carol"))
	require.NoError(t, tbl.Bind(1, "alice"))
	require.NoError(t, tbl.Bind(2, "bob"))

	assert.Equal(t, []string{"alice", "bob", "carol"}, tbl.Identities())
	assert.Equal(t, 3, tbl.Len())
}
