package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketumami/pocketumami/pkg/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_OpensOnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := New(Config{Path: dir})
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "instances/abc", []byte("v")))
	require.NoError(t, s.Close())

	// Reopen sees the data.
	s, err = New(Config{Path: dir})
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(ctx, "instances/abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.Set(ctx, "instances/abc", []byte(`{"name":"blog"}`)))
	got, err := s.Get(ctx, "instances/abc")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"name":"blog"}`), got)

	// Overwrite replaces the previous value
	require.NoError(t, s.Set(ctx, "instances/abc", []byte(`{"name":"docs"}`)))
	got, err = s.Get(ctx, "instances/abc")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"name":"docs"}`), got)

	require.NoError(t, s.Delete(ctx, "instances/abc"))
	_, err = s.Get(ctx, "instances/abc")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_DeletePrefix(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Set(ctx, "cache/i1/a", []byte("1")))
	require.NoError(t, s.Set(ctx, "cache/i1/b", []byte("2")))
	require.NoError(t, s.Set(ctx, "cache/i2/a", []byte("3")))

	require.NoError(t, s.DeletePrefix(ctx, "cache/i1/"))

	_, err := s.Get(ctx, "cache/i1/a")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.Get(ctx, "cache/i1/b")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.Get(ctx, "cache/i2/a")
	assert.NoError(t, err)
}

func TestStore_ContextCancelled(t *testing.T) {
	s := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, s.Set(ctx, "k", []byte("v")))
	_, err := s.Get(ctx, "k")
	assert.Error(t, err)
}
