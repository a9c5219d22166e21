package matching

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKeyDeterministic(t *testing.T) {
	c := NewResultCache(nil, 0, "")
	k1 := c.Key(CacheKey{Query: "  Machine Learning ", SearchType: "supervisor", Page: 1, RequesterID: "u1"})
	k2 := c.Key(CacheKey{Query: "machine   learning", SearchType: "Supervisor", Page: 1, RequesterID: "u1"})
	assert.Equal(t, k1, k2)
	assert.True(t, strings.HasPrefix(k1, DefaultCachePrefix))

	variants := []CacheKey{
		{Query: "machine learning", SearchType: "supervisor", Page: 2, RequesterID: "u1"},
		{Query: "machine learning", SearchType: "students", Page: 1, RequesterID: "u1"},
		{Query: "machine learning", SearchType: "supervisor", Page: 1, RequesterID: "u2"},
		{Query: "machine learning", SearchType: "supervisor", Page: 1, RequesterID: "u1", StudentType: "postgraduate"},
		{Query: "machine", SearchType: "learning supervisor", Page: 1, RequesterID: "u1"},
	}
	for _, v := range variants {
		assert.NotEqual(t, k1, c.Key(v), "%+v", v)
	}
}

func TestGetOrComputeReadThrough(t *testing.T) {
	store := newMemoryStore()
	c := NewResultCache(store, time.Minute, "")
	var calls int32
	compute := func(context.Context) ([]byte, bool, error) {
		atomic.AddInt32(&calls, 1)
		return []byte(`{"n":1}`), true, nil
	}

	first, hit, err := c.GetOrCompute(context.Background(), "k", compute)
	require.NoError(t, err)
	assert.False(t, hit)

	second, hit, err := c.GetOrCompute(context.Background(), "k", compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, calls)
	assert.Equal(t, time.Minute, store.ttls["k"])
}

func TestGetOrComputeTreatsStoreErrorsAsMiss(t *testing.T) {
	store := newMemoryStore()
	store.getErr = errors.New("connection refused")
	store.setErr = errors.New("connection refused")
	c := NewResultCache(store, time.Minute, "")

	payload, hit, err := c.GetOrCompute(context.Background(), "k", func(context.Context) ([]byte, bool, error) {
		return []byte("fresh"), true, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []byte("fresh"), payload)
}

func TestGetOrComputeDoesNotCacheErrors(t *testing.T) {
	store := newMemoryStore()
	c := NewResultCache(store, time.Minute, "")

	_, _, err := c.GetOrCompute(context.Background(), "k", func(context.Context) ([]byte, bool, error) {
		return nil, false, errors.New("boom")
	})
	require.Error(t, err)
	_, ok := store.data["k"]
	assert.False(t, ok)
}

func TestGetOrComputeSkipsStoreForUncacheableResult(t *testing.T) {
	store := newMemoryStore()
	c := NewResultCache(store, time.Minute, "")
	var calls int32
	compute := func(context.Context) ([]byte, bool, error) {
		n := atomic.AddInt32(&calls, 1)
		return []byte{byte('0' + n)}, n > 1, nil
	}

	first, hit, err := c.GetOrCompute(context.Background(), "k", compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []byte("1"), first)
	_, ok := store.data["k"]
	assert.False(t, ok)

	second, hit, err := c.GetOrCompute(context.Background(), "k", compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []byte("2"), second)
	assert.Equal(t, []byte("2"), store.data["k"])
}

func TestGetOrComputeSurvivesCallerCancellation(t *testing.T) {
	store := newMemoryStore()
	c := NewResultCache(store, time.Minute, "")
	release := make(chan struct{})
	computed := make(chan error, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()
	_, _, err := c.GetOrCompute(ctx, "k", func(ctx context.Context) ([]byte, bool, error) {
		<-release
		computed <- ctx.Err()
		return []byte("v"), true, nil
	})
	require.ErrorIs(t, err, context.Canceled)

	select {
	case cerr := <-computed:
		assert.NoError(t, cerr)
	case <-time.After(2 * time.Second):
		t.Fatal("shared computation did not finish")
	}
	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		_, ok := store.data["k"]
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	payload, hit, err := c.GetOrCompute(context.Background(), "k", func(context.Context) ([]byte, bool, error) {
		return []byte("other"), true, nil
	})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []byte("v"), payload)
}

func TestGetOrComputeCoalescesConcurrentMisses(t *testing.T) {
	c := NewResultCache(newMemoryStore(), time.Minute, "")
	var calls int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	results := make([][]byte, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload, _, err := c.GetOrCompute(context.Background(), "same", func(context.Context) ([]byte, bool, error) {
				atomic.AddInt32(&calls, 1)
				<-release
				return []byte("v"), true, nil
			})
			assert.NoError(t, err)
			results[i] = payload
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(2))
	for _, r := range results {
		assert.Equal(t, []byte("v"), r)
	}
}

func TestFlushUsesPrefix(t *testing.T) {
	store := newMemoryStore()
	c := NewResultCache(store, time.Minute, "ai_match:v1:")
	store.data["ai_match:v1:a"] = []byte("1")
	store.data["ai_match:v1:b"] = []byte("2")
	store.data["other:c"] = []byte("3")

	n, err := c.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Contains(t, store.data, "other:c")

	n, err = NewResultCache(nil, 0, "").Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
