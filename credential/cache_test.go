package credential

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_GetOrFetch(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()

	fetches := 0
	fetch := func(ctx context.Context) (Record, error) {
		fetches++
		return Record{ID: "alice", Secret: "pw1"}, nil
	}

	rec, err := c.GetOrFetch(ctx, "alice", time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, "pw1", rec.Secret)

	rec, err = c.GetOrFetch(ctx, "alice", time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, "pw1", rec.Secret)
	assert.Equal(t, 1, fetches)
	assert.Equal(t, 1, c.ItemCount())
}

func TestMemoryCache_FetchErrorIsNotCached(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()

	_, err := c.GetOrFetch(ctx, "ghost", time.Minute, func(ctx context.Context) (Record, error) {
		return Record{}, ErrUnknownUser
	})
	assert.ErrorIs(t, err, ErrUnknownUser)
	assert.Zero(t, c.ItemCount())
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()

	var fetches int
	fetch := func(ctx context.Context) (Record, error) {
		fetches++
		return Record{ID: "alice"}, nil
	}

	_, err := c.GetOrFetch(ctx, "alice", 20*time.Millisecond, fetch)
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)

	_, err = c.GetOrFetch(ctx, "alice", 20*time.Millisecond, fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, fetches)
}

func TestMemoryCache_CollapsesConcurrentMisses(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()

	var fetches atomic.Int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) (Record, error) {
		fetches.Add(1)
		<-release
		return Record{ID: "alice", Secret: "pw1"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := c.GetOrFetch(ctx, "alice", time.Minute, fetch)
			assert.NoError(t, err)
			assert.Equal(t, "pw1", rec.Secret)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, fetches.Load(), int32(2))
}

func TestMemoryCache_DeleteAndClear(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()
	fetch := func(ctx context.Context) (Record, error) { return Record{ID: "x"}, nil }

	_, _ = c.GetOrFetch(ctx, "a", time.Minute, fetch)
	_, _ = c.GetOrFetch(ctx, "b", time.Minute, fetch)
	require.Equal(t, 2, c.ItemCount())

	require.NoError(t, c.Delete(ctx, "a"))
	assert.Equal(t, 1, c.ItemCount())

	require.NoError(t, c.Clear(ctx))
	assert.Zero(t, c.ItemCount())

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, c.Delete(cctx, "b"), context.Canceled)
	assert.ErrorIs(t, c.Clear(cctx), context.Canceled)
}
