// Package client is the Go client for the mover service.
//
// The service serves one request per connection, so the client dials a fresh
// connection for every call. Concurrency is bounded by a configurable
// in-flight limit instead of a reusable connection pool.
package client

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"

	"github.com/marmos91/mover/pkg/protocol"
)

// ErrNotFound is returned when a READ misses the backend.
var ErrNotFound = fmt.Errorf("content not found")

// DefaultSocketPath is where the mover listens unless configured otherwise.
const DefaultSocketPath = "/tmp/mover.sock"

// DefaultMaxInFlight bounds concurrent requests per client.
const DefaultMaxInFlight = 8

// Client talks to a mover over its Unix domain socket.
type Client struct {
	socketPath string
	inflight   chan struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithMaxInFlight sets the concurrent-request bound.
func WithMaxInFlight(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.inflight = make(chan struct{}, n)
		}
	}
}

// New creates a client for the mover at socketPath. An empty path selects
// the default socket.
func New(socketPath string, opts ...Option) *Client {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	c := &Client{
		socketPath: socketPath,
		inflight:   make(chan struct{}, DefaultMaxInFlight),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Read fetches the content stored under id. Offset and length select a slice;
// length 0 means everything from offset.
func (c *Client) Read(ctx context.Context, id string, offset, length uint64) ([]byte, error) {
	resp, err := c.call(ctx, &protocol.Request{
		Op:     protocol.OpRead,
		ID:     []byte(id),
		Offset: offset,
		Length: length,
	})
	if err != nil {
		return nil, err
	}
	if err := statusError("read", resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Write stores data under id, write-through.
func (c *Client) Write(ctx context.Context, id string, data []byte) error {
	resp, err := c.call(ctx, &protocol.Request{
		Op:   protocol.OpWrite,
		ID:   []byte(id),
		Data: data,
	})
	if err != nil {
		return err
	}
	return statusError("write", resp)
}

// SendZC asks the mover to transmit data to the peer address on its zero-copy
// path and returns the byte count the mover reports.
func (c *Client) SendZC(ctx context.Context, peer string, data []byte) (uint64, error) {
	resp, err := c.call(ctx, &protocol.Request{
		Op:   protocol.OpSendZC,
		ID:   []byte(peer),
		Data: data,
	})
	if err != nil {
		return 0, err
	}
	if err := statusError("send_zc", resp); err != nil {
		return 0, err
	}
	if len(resp.Data) != 8 {
		return 0, fmt.Errorf("send_zc: malformed byte count in response")
	}
	return binary.LittleEndian.Uint64(resp.Data), nil
}

// Recv asks the mover to receive once from the peer address and returns the
// bytes it got.
func (c *Client) Recv(ctx context.Context, peer string) ([]byte, error) {
	resp, err := c.call(ctx, &protocol.Request{
		Op: protocol.OpRecv,
		ID: []byte(peer),
	})
	if err != nil {
		return nil, err
	}
	if err := statusError("recv", resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// BatchRead executes the reads on the mover concurrently and returns the
// results in request order. The batch is all-or-nothing.
func (c *Client) BatchRead(ctx context.Context, ops []protocol.BatchOp) ([][]byte, error) {
	payload, err := protocol.EncodeBatchRequest(ops)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch: %w", err)
	}

	resp, err := c.call(ctx, &protocol.Request{
		Op:   protocol.OpBatch,
		Data: payload,
	})
	if err != nil {
		return nil, err
	}
	if err := statusError("batch", resp); err != nil {
		return nil, err
	}
	return protocol.DecodeBatchResponse(resp.Data)
}

// call performs one request/response exchange on a fresh connection.
func (c *Client) call(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	select {
	case c.inflight <- struct{}{}:
		defer func() { <-c.inflight }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mover at %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, err
		}
	}

	encoded, err := req.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	if _, err := conn.Write(encoded); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	resp, err := protocol.DecodeResponse(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp, nil
}

// statusError maps a non-Ok response onto a Go error.
func statusError(op string, resp *protocol.Response) error {
	switch resp.Status {
	case protocol.StatusOk:
		return nil
	case protocol.StatusNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("%s failed: %s", op, string(resp.Data))
	}
}
