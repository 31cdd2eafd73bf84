package uring

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/mover/pkg/bufpool"
	"github.com/marmos91/mover/pkg/protocol"
)

func newTestRing(t *testing.T) *Ring {
	t.Helper()

	ring, err := New(Config{Entries: 256, Flags: SetupClamp, ZeroCopySend: true})
	require.NoError(t, err)
	return ring
}

func TestNew_EntriesValidation(t *testing.T) {
	// Invalid without CLAMP.
	_, err := New(Config{Entries: 1000})
	require.Error(t, err)

	_, err = New(Config{Entries: 16384})
	require.Error(t, err)

	// CLAMP repairs instead of rejecting.
	ring, err := New(Config{Entries: 16384, Flags: SetupClamp})
	require.NoError(t, err)
	assert.Equal(t, uint32(MaxEntries), ring.Entries())

	ring, err = New(Config{Entries: 100, Flags: SetupClamp})
	require.NoError(t, err)
	assert.Equal(t, uint32(MinEntries), ring.Entries())

	// In range but not a power of two: rounded down.
	ring, err = New(Config{Entries: 1000, Flags: SetupClamp})
	require.NoError(t, err)
	assert.Equal(t, uint32(512), ring.Entries())
}

func TestSendZC(t *testing.T) {
	ring := newTestRing(t)

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payload := []byte("zero copy payload")

	received := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 1024)
		n, _ := server.Read(buf)
		received <- buf[:n]
	}()

	n, err := ring.SendZC(client, payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, <-received)
}

func TestSendZC_FallbackPath(t *testing.T) {
	ring, err := New(Config{Entries: 256, ZeroCopySend: false})
	require.NoError(t, err)

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		buf := make([]byte, 64)
		_, _ = server.Read(buf)
	}()

	n, err := ring.SendZC(client, []byte("plain"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestRecvInto(t *testing.T) {
	ring := newTestRing(t)

	pool, err := bufpool.New(4, 4096)
	require.NoError(t, err)

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		_, _ = server.Write([]byte("incoming bytes"))
	}()

	idx, n, err := ring.RecvInto(client, pool)
	require.NoError(t, err)
	assert.Equal(t, 14, n)

	buf, err := pool.Get(idx)
	require.NoError(t, err)
	assert.Equal(t, []byte("incoming bytes"), buf[:n])

	// Caller owns the buffer after a successful receive.
	assert.Equal(t, pool.Count()-1, pool.Available())
	require.NoError(t, pool.Release(idx))
}

func TestBatchRead_OrderPreserved(t *testing.T) {
	ring := newTestRing(t)
	dir := t.TempDir()

	contents := []string{"first file", "second file content", "third"}
	ops := make([]protocol.BatchOp, len(contents))
	for i, content := range contents {
		path := filepath.Join(dir, "f"+string(rune('0'+i)))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		ops[i] = protocol.BatchOp{Path: path, Offset: 0, Length: uint64(len(content))}
	}

	results, err := ring.BatchRead(t.Context(), ops, time.Second)
	require.NoError(t, err)

	require.Len(t, results, len(contents))
	for i, content := range contents {
		assert.Equal(t, []byte(content), results[i], "result %d", i)
	}
}

func TestBatchRead_OffsetAndEOF(t *testing.T) {
	ring := newTestRing(t)
	path := filepath.Join(t.TempDir(), "blob")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0644))

	// Length past EOF returns what was available from the offset.
	results, err := ring.BatchRead(t.Context(), []protocol.BatchOp{
		{Path: path, Offset: 4, Length: 100},
	}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte("456789"), results[0])
}

func TestBatchRead_FailFast(t *testing.T) {
	ring := newTestRing(t)
	dir := t.TempDir()

	good := filepath.Join(dir, "good")
	require.NoError(t, os.WriteFile(good, []byte("data"), 0644))

	ops := []protocol.BatchOp{
		{Path: good, Length: 4},
		{Path: filepath.Join(dir, "missing"), Length: 4},
		{Path: good, Length: 4},
	}

	// One bad read fails the whole batch; no partial results.
	results, err := ring.BatchRead(t.Context(), ops, time.Second)
	require.Error(t, err)
	assert.Nil(t, results)
}

func TestBatchRead_Timeout(t *testing.T) {
	ring := newTestRing(t)
	path := filepath.Join(t.TempDir(), "blob")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0644))

	ops := []protocol.BatchOp{
		{Path: path, Length: 4},
		{Path: path, Length: 4},
		{Path: path, Length: 4},
	}

	// The deadline is already past by the time any read gets scheduled, so
	// every pending read fails and no partial results leak out.
	results, err := ring.BatchRead(t.Context(), ops, time.Nanosecond)
	require.ErrorIs(t, err, ErrBatchTimeout)
	assert.Nil(t, results)
}

func TestBatchRead_Empty(t *testing.T) {
	ring := newTestRing(t)

	results, err := ring.BatchRead(t.Context(), nil, time.Second)
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestDescribeFlags(t *testing.T) {
	assert.Equal(t, "None", DescribeFlags(0))
	assert.Equal(t, "CLAMP", DescribeFlags(SetupClamp))
	assert.Equal(t, "SQPOLL|CLAMP", DescribeFlags(SetupSQPoll|SetupClamp))
}
