// Package bufpool provides the fixed pool of pre-allocated, page-aligned
// buffers shared by all connection handlers.
//
// The pool is sized once at startup (count x size from configuration) and
// never grows. Buffers are identified by a stable index so an I/O completion
// can refer back to the buffer it filled. All buffers are carved out of a
// single page-aligned arena, which lets the I/O ring register the whole
// region with the kernel once and receive directly into pool buffers without
// an intermediate copy.
package bufpool

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"unsafe"
)

var (
	// ErrExhausted indicates all buffers are checked out. Callers should
	// treat this as backpressure, not a fatal error.
	ErrExhausted = errors.New("buffer pool exhausted")

	// ErrDoubleRelease indicates a release of an index that is already in
	// the free set. This is a caller bug: ownership of an acquired buffer
	// is exclusive, and releasing it twice would corrupt the free list.
	ErrDoubleRelease = errors.New("buffer released twice")

	// ErrBadIndex indicates an index outside the pool.
	ErrBadIndex = errors.New("buffer index out of range")
)

// Pool is a fixed-capacity allocator of equally sized buffers.
//
// Acquire and Release mutate a shared free list and are safe for concurrent
// use. The free list is a stack: Acquire hands out the most recently released
// buffer first, which keeps hot buffers hot in cache and TLB.
type Pool struct {
	mu       sync.Mutex
	arena    []byte
	buffers  [][]byte
	free     []int
	acquired []bool
	size     int
}

// New creates a pool of count buffers of size bytes each.
//
// size must be a multiple of the system page size so that buffers stay
// page-aligned within the arena; configuration validation enforces this
// before the pool is built.
func New(count, size int) (*Pool, error) {
	if count <= 0 {
		return nil, fmt.Errorf("buffer count must be positive, got %d", count)
	}
	pageSize := os.Getpagesize()
	if size <= 0 || size%pageSize != 0 {
		return nil, fmt.Errorf("buffer size must be a positive multiple of %d, got %d", pageSize, size)
	}

	// Over-allocate by one page so the first buffer can be aligned down
	// to a page boundary regardless of where the allocation landed.
	raw := make([]byte, count*size+pageSize)
	offset := 0
	if rem := int(uintptr(unsafe.Pointer(&raw[0])) % uintptr(pageSize)); rem != 0 {
		offset = pageSize - rem
	}
	arena := raw[offset : offset+count*size]

	buffers := make([][]byte, count)
	free := make([]int, count)
	for i := 0; i < count; i++ {
		buffers[i] = arena[i*size : (i+1)*size : (i+1)*size]
		free[i] = i
	}

	return &Pool{
		arena:    arena,
		buffers:  buffers,
		free:     free,
		acquired: make([]bool, count),
		size:     size,
	}, nil
}

// Acquire takes exclusive ownership of a buffer and returns its index and
// contents. Returns ErrExhausted when the free set is empty.
func (p *Pool) Acquire() (int, []byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) == 0 {
		return 0, nil, ErrExhausted
	}

	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.acquired[idx] = true

	return idx, p.buffers[idx], nil
}

// Release returns an acquired buffer to the free set.
//
// Releasing an index that is already free is a contract violation and is
// reported as ErrDoubleRelease instead of corrupting the free list.
func (p *Pool) Release(idx int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idx < 0 || idx >= len(p.buffers) {
		return fmt.Errorf("%w: %d", ErrBadIndex, idx)
	}
	if !p.acquired[idx] {
		return fmt.Errorf("%w: %d", ErrDoubleRelease, idx)
	}

	p.acquired[idx] = false
	p.free = append(p.free, idx)

	return nil
}

// Get returns the buffer at idx without transferring ownership. It is used
// after an I/O completion that references a buffer by index.
func (p *Pool) Get(idx int) ([]byte, error) {
	if idx < 0 || idx >= len(p.buffers) {
		return nil, fmt.Errorf("%w: %d", ErrBadIndex, idx)
	}
	return p.buffers[idx], nil
}

// Count returns the number of buffers in the pool.
func (p *Pool) Count() int {
	return len(p.buffers)
}

// BufferSize returns the size of each buffer in bytes.
func (p *Pool) BufferSize() int {
	return p.size
}

// Available returns the number of buffers currently in the free set.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Arena returns the contiguous page-aligned region backing all buffers.
// The I/O ring registers this region with the kernel once at startup.
func (p *Pool) Arena() []byte {
	return p.arena
}
