package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetGetDelete(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)

	_, err := c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_CompareAndSwap(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	ok, err := c.CompareAndSwap(ctx, "k", nil, []byte("one"))
	require.NoError(t, err)
	assert.True(t, ok, "swap into empty slot")

	ok, err = c.CompareAndSwap(ctx, "k", nil, []byte("two"))
	require.NoError(t, err)
	assert.False(t, ok, "absent precondition fails once filled")

	ok, err = c.CompareAndSwap(ctx, "k", []byte("stale"), []byte("two"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.CompareAndSwap(ctx, "k", []byte("one"), []byte("two"))
	require.NoError(t, err)
	assert.True(t, ok)

	got, _ := c.Get(ctx, "k")
	assert.Equal(t, []byte("two"), got)
}

func TestMemoryCache_ReturnsCopies(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	v := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", v, 0))
	v[0] = 'z'

	got, _ := c.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), got)
}
