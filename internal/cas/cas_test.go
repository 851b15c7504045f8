package cas

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) []Store {
	fsStore, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	return []Store{fsStore, NewMemStore()}
}

func TestPutIdempotent(t *testing.T) {
	ctx := context.Background()
	for _, s := range testStores(t) {
		h1, err := s.Put(ctx, []byte("hello"))
		require.NoError(t, err)
		h2, err := s.Put(ctx, []byte("hello"))
		require.NoError(t, err)
		require.Equal(t, h1, h2)

		var n int
		require.NoError(t, s.List(ctx, func(Hash) error { n++; return nil }))
		require.Equal(t, 1, n)
	}
}

func TestGetNotFound(t *testing.T) {
	ctx := context.Background()
	for _, s := range testStores(t) {
		_, err := s.Get(ctx, Hash{1, 2, 3})
		require.ErrorIs(t, err, ErrNotFound)
	}
}

func TestHasRoundTrip(t *testing.T) {
	ctx := context.Background()
	for _, s := range testStores(t) {
		h, err := s.Put(ctx, []byte("data"))
		require.NoError(t, err)
		ok, err := s.Has(ctx, h)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = s.Has(ctx, Hash{9, 9, 9})
		require.NoError(t, err)
		require.False(t, ok)
	}
}

func TestCopyAll(t *testing.T) {
	ctx := context.Background()
	src := NewMemStore()
	_, err := src.Put(ctx, []byte("a"))
	require.NoError(t, err)
	_, err = src.Put(ctx, []byte("b"))
	require.NoError(t, err)

	dst := NewMemStore()
	require.NoError(t, CopyAll(ctx, dst, src))

	var n int
	require.NoError(t, dst.List(ctx, func(Hash) error { n++; return nil }))
	require.Equal(t, 2, n)
}

func TestCachingStore(t *testing.T) {
	ctx := context.Background()
	inner := NewMemStore()
	cached := NewCaching(inner, 8)
	h, err := cached.Put(ctx, []byte("cached"))
	require.NoError(t, err)
	data, err := cached.Get(ctx, h)
	require.NoError(t, err)
	require.Equal(t, []byte("cached"), data)
}
