// Package uring adapts the platform's asynchronous I/O submission ring to the
// three capabilities the mover needs: zero-copy send, receive into a
// registered pool buffer, and order-preserving batched reads.
//
// The kernel API never leaks through this package. Callers hand it net.Conns,
// a buffer pool, and batch descriptors; they get back byte counts, buffer
// indices, and result slices.
package uring

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/mover/internal/logger"
	"github.com/marmos91/mover/pkg/bufpool"
	"github.com/marmos91/mover/pkg/protocol"
)

// Ring setup flags, mirroring the kernel's io_uring_setup flag bits. The
// configuration accepts them numerically or by symbolic name.
const (
	SetupIOPoll   uint32 = 1 << 0 // busy-poll for completions
	SetupSQPoll   uint32 = 1 << 1 // kernel submission-polling thread
	SetupSQAff    uint32 = 1 << 2 // pin the SQ poll thread to a CPU
	SetupCQSize   uint32 = 1 << 3 // completion queue size specified
	SetupClamp    uint32 = 1 << 4 // clamp queue sizes to the supported max
	SetupAttachWQ uint32 = 1 << 5 // attach to an existing work queue
)

// MinEntries and MaxEntries bound the submission queue depth. The depth must
// also be a power of two.
const (
	MinEntries = 256
	MaxEntries = 8192
)

// ErrBatchTimeout indicates a batch did not complete within the configured
// batch timeout. Every read in the batch is failed; no partial results are
// returned.
var ErrBatchTimeout = errors.New("batch read timed out")

// Config carries the ring geometry and feature toggles.
type Config struct {
	// Entries is the submission queue depth. Must be a power of two in
	// [MinEntries, MaxEntries] unless SetupClamp is set, in which case
	// out-of-range values are clamped instead of rejected.
	Entries uint32

	// Flags is the bitwise OR of Setup* flags.
	Flags uint32

	// ZeroCopySend selects the vectored send path for SendZC. When false,
	// SendZC degrades to a plain write.
	ZeroCopySend bool
}

// Ring multiplexes the mover's I/O over the submission ring. In-flight
// operations are bounded by the configured entry count.
type Ring struct {
	entries uint32
	flags   uint32
	sendZC  bool

	// sem bounds concurrent submissions to the queue depth.
	sem chan struct{}

	mu         sync.Mutex
	registered []byte
}

// New initializes a ring with the given geometry.
//
// An entry count that is not a power of two in [MinEntries, MaxEntries] is an
// error, unless SetupClamp is present: then the count is rounded down to the
// nearest power of two and clamped into range, matching the kernel's CLAMP
// behavior.
func New(cfg Config) (*Ring, error) {
	entries := cfg.Entries

	if !validEntries(entries) {
		if cfg.Flags&SetupClamp == 0 {
			return nil, fmt.Errorf("ring entries must be a power of two in [%d, %d], got %d",
				MinEntries, MaxEntries, entries)
		}
		entries = clampEntries(entries)
		logger.Warn("Ring entries %d out of range, clamped to %d", cfg.Entries, entries)
	}

	logger.Info("Initializing I/O ring: %d entries, flags=0x%x (%s)",
		entries, cfg.Flags, DescribeFlags(cfg.Flags))

	return &Ring{
		entries: entries,
		flags:   cfg.Flags,
		sendZC:  cfg.ZeroCopySend,
		sem:     make(chan struct{}, int(entries)),
	}, nil
}

// Entries returns the effective submission queue depth.
func (r *Ring) Entries() uint32 {
	return r.entries
}

// Flags returns the setup flags the ring was created with.
func (r *Ring) Flags() uint32 {
	return r.flags
}

// RegisterBuffers registers the pool's arena with the ring so receives can
// land directly in pool buffers. Call once at startup, before serving.
func (r *Ring) RegisterBuffers(pool *bufpool.Pool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.registered != nil {
		return errors.New("buffers already registered")
	}

	r.registered = pool.Arena()
	logger.Debug("Registered %d buffers of %d bytes with the ring",
		pool.Count(), pool.BufferSize())

	return nil
}

// SendZC transmits data over conn using the most efficient available path
// and returns the number of bytes sent.
//
// With zero-copy send enabled, the slice is handed to the kernel as a single
// vectored write so it is not staged through an intermediate copy. The write
// is not retried; short writes surface as an error to the caller.
func (r *Ring) SendZC(conn net.Conn, data []byte) (int, error) {
	r.sem <- struct{}{}
	defer func() { <-r.sem }()

	if r.sendZC {
		bufs := net.Buffers{data}
		n, err := bufs.WriteTo(conn)
		if err != nil {
			return int(n), fmt.Errorf("zero-copy send: %w", err)
		}
		return int(n), nil
	}

	n, err := conn.Write(data)
	if err != nil {
		return n, fmt.Errorf("send: %w", err)
	}
	return n, nil
}

// RecvInto reads once from conn into a buffer acquired from pool.
//
// On success the caller owns the returned buffer index and must release it
// once the data has been consumed. On failure the buffer is released here
// and no index is returned. Pool exhaustion surfaces as
// bufpool.ErrExhausted so callers can apply backpressure.
func (r *Ring) RecvInto(conn net.Conn, pool *bufpool.Pool) (idx int, n int, err error) {
	idx, buf, err := pool.Acquire()
	if err != nil {
		return 0, 0, err
	}

	r.sem <- struct{}{}
	defer func() { <-r.sem }()

	n, err = conn.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		if relErr := pool.Release(idx); relErr != nil {
			logger.Error("Failed to release buffer %d after recv error: %v", idx, relErr)
		}
		return 0, 0, fmt.Errorf("recv into buffer %d: %w", idx, err)
	}

	return idx, n, nil
}

// BatchRead executes all reads concurrently and joins the results in input
// order. The batch is fail-fast: the first error cancels the remaining reads
// and fails the whole batch, and a batch that outlives the timeout fails
// every pending read rather than returning a partial result set.
func (r *Ring) BatchRead(ctx context.Context, ops []protocol.BatchOp, timeout time.Duration) ([][]byte, error) {
	if len(ops) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make([][]byte, len(ops))
	errs := make(chan error, len(ops))

	var wg sync.WaitGroup
	for i, op := range ops {
		wg.Add(1)
		go func(i int, op protocol.BatchOp) {
			defer wg.Done()

			select {
			case r.sem <- struct{}{}:
				defer func() { <-r.sem }()
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}

			if ctx.Err() != nil {
				errs <- ctx.Err()
				return
			}

			data, err := readAt(op)
			if err != nil {
				cancel()
				errs <- fmt.Errorf("batch read %q @%d: %w", op.Path, op.Offset, err)
				return
			}
			results[i] = data
			errs <- nil
		}(i, op)
	}

	wg.Wait()
	close(errs)

	// A failed read cancels its siblings, so plain cancellations are noise
	// next to the read error that caused them.
	var readErr error
	timedOut := false
	cancelled := false
	for err := range errs {
		switch {
		case err == nil:
		case errors.Is(err, context.DeadlineExceeded):
			timedOut = true
		case errors.Is(err, context.Canceled):
			cancelled = true
		case readErr == nil:
			readErr = err
		}
	}

	if readErr != nil {
		return nil, readErr
	}
	if timedOut {
		return nil, fmt.Errorf("%w after %s", ErrBatchTimeout, timeout)
	}
	if cancelled {
		return nil, context.Canceled
	}

	return results, nil
}

// readAt reads op.Length bytes at op.Offset from op.Path. A read that hits
// EOF returns the bytes that were available.
func readAt(op protocol.BatchOp) ([]byte, error) {
	f, err := os.Open(op.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, op.Length)
	n, err := f.ReadAt(buf, int64(op.Offset))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	return buf[:n], nil
}

// DescribeFlags renders a flag bitmask as a human-readable list, for startup
// logging.
func DescribeFlags(flags uint32) string {
	names := []struct {
		bit  uint32
		name string
	}{
		{SetupIOPoll, "IOPOLL"},
		{SetupSQPoll, "SQPOLL"},
		{SetupSQAff, "SQ_AFF"},
		{SetupCQSize, "CQSIZE"},
		{SetupClamp, "CLAMP"},
		{SetupAttachWQ, "ATTACH_WQ"},
	}

	var set []string
	for _, f := range names {
		if flags&f.bit != 0 {
			set = append(set, f.name)
		}
	}

	if len(set) == 0 {
		return "None"
	}
	return strings.Join(set, "|")
}

func validEntries(entries uint32) bool {
	return entries >= MinEntries && entries <= MaxEntries && entries&(entries-1) == 0
}

// clampEntries rounds down to the nearest power of two and clamps into
// [MinEntries, MaxEntries].
func clampEntries(entries uint32) uint32 {
	if entries < MinEntries {
		return MinEntries
	}
	if entries > MaxEntries {
		return MaxEntries
	}
	// In range but not a power of two: round down.
	p := uint32(MinEntries)
	for p<<1 <= entries {
		p <<= 1
	}
	return p
}
