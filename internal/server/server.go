// Package server implements the mover's Unix socket listener and the
// per-connection dispatch loop.
//
// Each accepted connection is an independent unit of concurrency carrying
// exactly one request: read one frame, decode, dispatch by operation code,
// write one response, close. Keeping connections single-shot is a deliberate
// protocol simplification; persistent connections are an extension point,
// not a bug fix.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/marmos91/mover/internal/logger"
	"github.com/marmos91/mover/internal/ratelimiter"
	"github.com/marmos91/mover/pkg/bufpool"
	"github.com/marmos91/mover/pkg/metrics"
)

// Server accepts mover connections on a Unix domain socket.
type Server struct {
	socketPath string
	maxConns   int

	handler Handler
	pool    *bufpool.Pool
	metrics *metrics.ServerMetrics
	limiter *ratelimiter.ConnLimiter

	listener net.Listener
	wg       sync.WaitGroup
}

// New creates a server. The pool bounds the maximum request size: each
// connection reads its request into a single pool buffer.
func New(socketPath string, maxConns int, handler Handler, pool *bufpool.Pool, m *metrics.ServerMetrics) *Server {
	return &Server{
		socketPath: socketPath,
		maxConns:   maxConns,
		handler:    handler,
		pool:       pool,
		metrics:    m,
	}
}

// SetRateLimiter installs connection admission rate limiting. Connections
// arriving over the rate are closed without a response. Must be called
// before Serve.
func (s *Server) SetRateLimiter(l *ratelimiter.ConnLimiter) {
	s.limiter = l
}

// Serve listens on the configured socket and accepts connections until ctx
// is cancelled or Stop is called, then waits for in-flight connections to
// finish.
//
// A stale socket file from a previous run is removed before binding.
func (s *Server) Serve(ctx context.Context) error {
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to bind unix socket %s: %w", s.socketPath, err)
	}
	s.listener = listener

	logger.Info("Mover listening on %s", s.socketPath)

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			s.listener.Close()
		case <-stopped:
		}
	}()

	// Gate limits concurrently served connections to max_connections.
	gate := make(chan struct{}, s.maxConns)

	for {
		unixConn, err := s.listener.Accept()
		if err != nil {
			// Both Stop and context cancellation land here by closing
			// the listener.
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			logger.Debug("Accept error: %v", err)
			continue
		}

		if s.limiter != nil && !s.limiter.Allow() {
			logger.Debug("Connection rejected by rate limiter")
			unixConn.Close()
			continue
		}

		s.metrics.ConnectionAccepted()

		gate <- struct{}{}
		s.wg.Add(1)
		c := &conn{server: s, conn: unixConn}
		go func() {
			defer func() {
				<-gate
				s.wg.Done()
			}()
			c.serve(ctx)
		}()
	}
}

// Stop closes the listener, causing Serve to drain and return.
func (s *Server) Stop() error {
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
