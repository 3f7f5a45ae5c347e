package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Create(t *testing.T) {
	r := NewRegistry[int]()

	t.Run("founder becomes sole member", func(t *testing.T) {
		require.NoError(t, r.Create("room", "pw", 1))

		name, ok := r.SessionOf(1)
		assert.True(t, ok)
		assert.Equal(t, "room", name)
		assert.Equal(t, []int{1}, r.MembersOf("room"))
	})

	t.Run("name taken regardless of password", func(t *testing.T) {
		assert.ErrorIs(t, r.Create("room", "pw", 2), ErrNameTaken)
		assert.ErrorIs(t, r.Create("room", "other", 2), ErrNameTaken)
		_, ok := r.SessionOf(2)
		assert.False(t, ok)
	})

	t.Run("empty name", func(t *testing.T) {
		assert.ErrorIs(t, r.Create("", "pw", 2), ErrEmptyName)
	})

	t.Run("already in a session wins over other checks", func(t *testing.T) {
		assert.ErrorIs(t, r.Create("", "", 1), ErrAlreadyInSession)
		assert.ErrorIs(t, r.Create("room", "", 1), ErrAlreadyInSession)
		assert.ErrorIs(t, r.Create("lobby", "", 1), ErrAlreadyInSession)
	})
}

func TestRegistry_Join(t *testing.T) {
	r := NewRegistry[int]()
	require.NoError(t, r.Create("room", "secret", 1))
	require.NoError(t, r.Create("lobby", "", 9))

	tests := []struct {
		name     string
		session  string
		password string
		conn     int
		want     error
	}{
		{name: "already in a session", session: "room", password: "secret", conn: 1, want: ErrAlreadyInSession},
		{name: "empty name", session: "", password: "", conn: 2, want: ErrEmptyName},
		{name: "not found beats password", session: "nowhere", password: "secret", conn: 2, want: ErrNotFound},
		{name: "wrong password", session: "room", password: "guess", conn: 2, want: ErrWrongPassword},
		{name: "empty password on protected room", session: "room", password: "", conn: 2, want: ErrWrongPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, r.Join(tt.session, tt.password, tt.conn), tt.want)
		})
	}

	t.Run("success", func(t *testing.T) {
		require.NoError(t, r.Join("room", "secret", 2))
		name, ok := r.SessionOf(2)
		assert.True(t, ok)
		assert.Equal(t, "room", name)
		assert.Equal(t, []int{1, 2}, r.MembersOf("room"))
	})

	t.Run("cannot join a second session", func(t *testing.T) {
		assert.ErrorIs(t, r.Join("lobby", "", 2), ErrAlreadyInSession)
		assert.Equal(t, []int{9}, r.MembersOf("lobby"))
	})
}

func TestRegistry_Leave(t *testing.T) {
	r := NewRegistry[int]()
	require.NoError(t, r.Create("room", "", 1))
	require.NoError(t, r.Join("room", "", 2))

	t.Run("not in session", func(t *testing.T) {
		_, err := r.Leave(3)
		assert.ErrorIs(t, err, ErrNotInSession)
	})

	t.Run("session survives while members remain", func(t *testing.T) {
		name, err := r.Leave(2)
		require.NoError(t, err)
		assert.Equal(t, "room", name)
		assert.True(t, r.Exists("room"))
		assert.Equal(t, []int{1}, r.MembersOf("room"))

		_, ok := r.SessionOf(2)
		assert.False(t, ok)
	})

	t.Run("last member deletes session", func(t *testing.T) {
		name, err := r.Leave(1)
		require.NoError(t, err)
		assert.Equal(t, "room", name)
		assert.False(t, r.Exists("room"))
		assert.Nil(t, r.MembersOf("room"))
		assert.Empty(t, r.Names())
		assert.Zero(t, r.Len())
	})

	t.Run("leaving twice fails", func(t *testing.T) {
		_, err := r.Leave(1)
		assert.ErrorIs(t, err, ErrNotInSession)
	})
}

func TestRegistry_RecreateDeletedSessionWithNewPassword(t *testing.T) {
	r := NewRegistry[int]()
	require.NoError(t, r.Create("room", "old", 1))
	_, err := r.Leave(1)
	require.NoError(t, err)

	require.NoError(t, r.Create("room", "new", 2))
	assert.ErrorIs(t, r.Join("room", "old", 3), ErrWrongPassword)
	assert.NoError(t, r.Join("room", "new", 3))
}

func TestRegistry_Lifecycle(t *testing.T) {
	r := NewRegistry[int]()

	require.NoError(t, r.Create("room", "", 1))
	require.NoError(t, r.Join("room", "", 2))
	_, err := r.Leave(2)
	require.NoError(t, err)
	assert.Equal(t, []string{"room"}, r.Names())

	_, err = r.Leave(1)
	require.NoError(t, err)
	assert.NotContains(t, r.Names(), "room")
}

func TestRegistry_Names(t *testing.T) {
	r := NewRegistry[int]()
	require.NoError(t, r.Create("zeta", "", 1))
	require.NoError(t, r.Create("alpha", "", 2))
	require.NoError(t, r.Create("NoData", "", 3))

	assert.Equal(t, []string{"NoData", "alpha", "zeta"}, r.Names())
	assert.Equal(t, 3, r.Len())
}

func TestRegistry_ConcurrentJoinKeepsSingleMembership(t *testing.T) {
	r := NewRegistry[int]()
	require.NoError(t, r.Create("a", "", 1000))
	require.NoError(t, r.Create("b", "", 1001))

	var wg sync.WaitGroup
	for conn := 0; conn < 50; conn++ {
		wg.Add(2)
		go func(c int) {
			defer wg.Done()
			_ = r.Join("a", "", c)
		}(conn)
		go func(c int) {
			defer wg.Done()
			_ = r.Join("b", "", c)
		}(conn)
	}
	wg.Wait()

	for conn := 0; conn < 50; conn++ {
		name, ok := r.SessionOf(conn)
		require.True(t, ok)
		other := "a"
		if name == "a" {
			other = "b"
		}

		assert.Contains(t, r.MembersOf(name), conn)
		assert.NotContains(t, r.MembersOf(other), conn)
	}
}
