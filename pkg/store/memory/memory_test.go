package memory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/mover/pkg/store"
)

func TestPutGet(t *testing.T) {
	s := New()
	ctx := t.Context()

	require.NoError(t, s.Put(ctx, "blob-1", []byte("content bytes")))

	data, err := s.Get(ctx, "blob-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("content bytes"), data)
}

func TestGet_NotFound(t *testing.T) {
	s := New()

	_, err := s.Get(t.Context(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestExists(t *testing.T) {
	s := New()
	ctx := t.Context()

	ok, err := s.Exists(ctx, "blob-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "blob-1", []byte("x")))

	ok, err = s.Exists(ctx, "blob-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGet_ReturnsCopy(t *testing.T) {
	s := New()
	ctx := t.Context()

	require.NoError(t, s.Put(ctx, "blob-1", []byte("original")))

	data, err := s.Get(ctx, "blob-1")
	require.NoError(t, err)
	data[0] = 'X'

	again, err := s.Get(ctx, "blob-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), again)
}

func TestConcurrentAccess(t *testing.T) {
	s := New()
	ctx := t.Context()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := store.ID(string(rune('a' + i%4)))
			_ = s.Put(ctx, id, []byte{byte(i)})
			_, _ = s.Get(ctx, id)
		}(i)
	}
	wg.Wait()
}
