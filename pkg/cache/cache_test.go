package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGetSet(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()
	ctx := context.Background()

	_, err := m.Get(ctx, "missing")
	assert.True(t, IsMiss(err))

	require.NoError(t, m.Set(ctx, "k1", []byte("v1"), time.Minute))
	val, err := m.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), val)
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()
	ctx := context.Background()

	now := time.Now()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "k1", []byte("v1"), time.Minute))

	// Advance past the TTL: the entry reads as a miss and is dropped.
	m.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err := m.Get(ctx, "k1")
	assert.True(t, IsMiss(err))
	assert.Equal(t, 0, m.Len())
}

func TestMemoryDeletePrefix(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, SearchKey("t1", "boots", 1, 20), []byte("a"), time.Minute))
	require.NoError(t, m.Set(ctx, SearchKey("t1", "boots", 2, 20), []byte("b"), time.Minute))
	require.NoError(t, m.Set(ctx, FlagsKey("t1"), []byte("c"), time.Minute))
	require.NoError(t, m.Set(ctx, SearchKey("t2", "boots", 1, 20), []byte("d"), time.Minute))

	require.NoError(t, m.DeletePrefix(ctx, SearchPrefix("t1")))

	_, err := m.Get(ctx, SearchKey("t1", "boots", 1, 20))
	assert.True(t, IsMiss(err))
	_, err = m.Get(ctx, FlagsKey("t1"))
	assert.NoError(t, err, "flags key should survive a search-prefix drop")
	_, err = m.Get(ctx, SearchKey("t2", "boots", 1, 20))
	assert.NoError(t, err, "other tenants are untouched")
}

func TestMemorySweepTrimsToMaxEntries(t *testing.T) {
	m := NewMemory(2)
	defer m.Close()
	ctx := context.Background()

	now := time.Now()
	m.now = func() time.Time { return now }
	require.NoError(t, m.Set(ctx, "old", []byte("1"), time.Hour))

	m.now = func() time.Time { return now.Add(time.Second) }
	require.NoError(t, m.Set(ctx, "mid", []byte("2"), time.Hour))

	m.now = func() time.Time { return now.Add(2 * time.Second) }
	require.NoError(t, m.Set(ctx, "new", []byte("3"), time.Hour))

	m.sweep()

	assert.Equal(t, 2, m.Len())
	_, err := m.Get(ctx, "old")
	assert.True(t, IsMiss(err), "least recently seen entry should be trimmed")
}

func TestInvalidateTenantScopesToOneTenant(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, SearchKey("t1", "q", 1, 20), []byte("a"), time.Minute))
	require.NoError(t, m.Set(ctx, FlagsKey("t1"), []byte("b"), time.Minute))
	require.NoError(t, m.Set(ctx, FlagsKey("t2"), []byte("c"), time.Minute))

	require.NoError(t, InvalidateTenant(ctx, m, "t1", "test"))

	assert.Equal(t, 1, m.Len())
	_, err := m.Get(ctx, FlagsKey("t2"))
	assert.NoError(t, err)
}

func TestSearchKeyHashesQuery(t *testing.T) {
	k1 := SearchKey("t1", "red boots", 1, 20)
	k2 := SearchKey("t1", "red boots", 1, 20)
	k3 := SearchKey("t1", "blue boots", 1, 20)

	assert.Equal(t, k1, k2, "same query must produce the same key")
	assert.NotEqual(t, k1, k3)
	assert.NotContains(t, k1, " ", "raw query text must not leak into keys")
}

func TestLoaderSingleFlight(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()
	loader := NewLoader(m, "search")

	var fills int32
	fill := func(ctx context.Context) ([]byte, error) {
		atomic.AddInt32(&fills, 1)
		time.Sleep(50 * time.Millisecond) // hold the flight open
		return []byte("result"), nil
	}

	const goroutines = 20
	var wg sync.WaitGroup
	results := make([][]byte, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			val, err := loader.Do(context.Background(), "key", time.Minute, fill)
			require.NoError(t, err)
			results[i] = val
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&fills), "concurrent misses must coalesce into one fill")
	for _, val := range results {
		assert.Equal(t, []byte("result"), val)
	}
}

func TestLoaderServesHitsWithoutFilling(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()
	loader := NewLoader(m, "flags")
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "key", []byte("cached"), time.Minute))

	val, err := loader.Do(ctx, "key", time.Minute, func(ctx context.Context) ([]byte, error) {
		t.Fatal("fill must not run on a hit")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("cached"), val)
}

func TestLoaderPropagatesFillErrors(t *testing.T) {
	m := NewMemory(0)
	defer m.Close()
	loader := NewLoader(m, "search")

	wantErr := assert.AnError
	_, err := loader.Do(context.Background(), "key", time.Minute, func(ctx context.Context) ([]byte, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	// The failure is not cached.
	_, err = m.Get(context.Background(), "key")
	assert.True(t, IsMiss(err))
}
