package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultStoreGetSet(t *testing.T) {
	ctx := context.Background()
	s := NewResultStore(8, time.Hour)

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestResultStorePerEntryTTL(t *testing.T) {
	ctx := context.Background()
	s := NewResultStore(8, time.Hour)
	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	s.now = func() time.Time { return now.Add(2 * time.Minute) }

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestResultStoreEvictsOldest(t *testing.T) {
	ctx := context.Background()
	s := NewResultStore(2, time.Hour)
	require.NoError(t, s.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, s.Set(ctx, "c", []byte("3"), 0))

	_, ok, _ := s.Get(ctx, "a")
	assert.False(t, ok)
	_, ok, _ = s.Get(ctx, "c")
	assert.True(t, ok)
}

func TestResultStoreDeletePrefix(t *testing.T) {
	ctx := context.Background()
	s := NewResultStore(8, time.Hour)
	require.NoError(t, s.Set(ctx, "ai_match:v1:a", []byte("1"), 0))
	require.NoError(t, s.Set(ctx, "ai_match:v1:b", []byte("2"), 0))
	require.NoError(t, s.Set(ctx, "other:c", []byte("3"), 0))

	n, err := s.DeletePrefix(ctx, "ai_match:v1:")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, s.Len())
}
