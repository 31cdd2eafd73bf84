package client_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/mover/internal/server"
	"github.com/marmos91/mover/pkg/bufpool"
	"github.com/marmos91/mover/pkg/client"
	"github.com/marmos91/mover/pkg/protocol"
	"github.com/marmos91/mover/pkg/store/memory"
	"github.com/marmos91/mover/pkg/uring"
)

// startMover boots a full mover on a temp socket for the client to talk to.
func startMover(t *testing.T) string {
	t.Helper()

	pool, err := bufpool.New(8, 8192)
	require.NoError(t, err)

	ring, err := uring.New(uring.Config{Entries: 256, Flags: uring.SetupClamp, ZeroCopySend: true})
	require.NoError(t, err)

	handler := &server.DefaultHandler{
		Store:        memory.New(),
		Ring:         ring,
		Pool:         pool,
		BatchTimeout: 500 * time.Millisecond,
	}

	socketPath := filepath.Join(t.TempDir(), "mover.sock")
	srv := server.New(socketPath, 8, handler, pool, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.Eventually(t, func() bool {
		_, err := os.Stat(socketPath)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	return socketPath
}

func TestClient_WriteRead(t *testing.T) {
	c := client.New(startMover(t))

	content := []byte("client round trip")
	require.NoError(t, c.Write(t.Context(), "obj-1", content))

	got, err := c.Read(t.Context(), "obj-1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// Sliced read.
	got, err = c.Read(t.Context(), "obj-1", 7, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("round"), got)
}

func TestClient_ReadNotFound(t *testing.T) {
	c := client.New(startMover(t))

	_, err := c.Read(t.Context(), "missing", 0, 0)
	assert.ErrorIs(t, err, client.ErrNotFound)
}

func TestClient_BatchRead(t *testing.T) {
	c := client.New(startMover(t))
	dir := t.TempDir()

	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	require.NoError(t, os.WriteFile(a, []byte("aaaa"), 0644))
	require.NoError(t, os.WriteFile(b, []byte("bbbb"), 0644))

	results, err := c.BatchRead(t.Context(), []protocol.BatchOp{
		{Path: a, Length: 4},
		{Path: b, Length: 4},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, []byte("aaaa"), results[0])
	assert.Equal(t, []byte("bbbb"), results[1])
}

func TestClient_ConcurrentCalls(t *testing.T) {
	c := client.New(startMover(t), client.WithMaxInFlight(4))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i%4))
			assert.NoError(t, c.Write(t.Context(), id, []byte(id)))
		}(i)
	}
	wg.Wait()

	got, err := c.Read(t.Context(), "a", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), got)
}

func TestClient_ContextCancelled(t *testing.T) {
	c := client.New(startMover(t))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := c.Read(ctx, "anything", 0, 0)
	assert.Error(t, err)
}
