package server

import (
	"bytes"
	"context"
	"errors"
	"net"

	"github.com/marmos91/mover/internal/logger"
	"github.com/marmos91/mover/pkg/bufpool"
	"github.com/marmos91/mover/pkg/protocol"
)

// conn serves one accepted connection through its lifecycle: read one frame,
// decode one request, dispatch, send one response, close.
type conn struct {
	server *Server
	conn   net.Conn
}

func (c *conn) serve(ctx context.Context) {
	defer c.conn.Close()

	// The request frame lands in a pool buffer, which both bounds the
	// maximum request size and keeps the read path on registered memory.
	idx, buf, err := c.server.pool.Acquire()
	if err != nil {
		if errors.Is(err, bufpool.ErrExhausted) {
			// Backpressure, not a protocol failure: the peer gets a
			// typed answer instead of a dropped connection.
			c.server.metrics.PoolExhausted()
			c.reply(protocol.ErrorResponse("no buffers available"))
			return
		}
		logger.Error("Buffer acquire failed: %v", err)
		return
	}
	defer func() {
		if err := c.server.pool.Release(idx); err != nil {
			logger.Error("Buffer release failed: %v", err)
		}
	}()

	n, err := c.conn.Read(buf)
	if err != nil {
		// Request-path I/O failure: close without a response.
		logger.Debug("Request read failed: %v", err)
		return
	}

	req, err := protocol.DecodeRequest(bytes.NewReader(buf[:n]))
	if err != nil {
		// Malformed frames get silence, never a guessed response.
		logger.Debug("Request decode failed: %v", err)
		return
	}

	logger.Debug("Request: op=%s id_len=%d data_len=%d", req.Op, len(req.ID), len(req.Data))
	c.server.metrics.RequestDecoded(req.Op.String(), len(req.Data))

	resp := c.dispatch(ctx, req)
	c.reply(resp)
}

// dispatch routes a decoded request to its handler. Handlers convert their
// own failures into Error responses, so dispatch always has a response to
// return.
func (c *conn) dispatch(ctx context.Context, req *protocol.Request) *protocol.Response {
	h := c.server.handler

	switch req.Op {
	case protocol.OpRead:
		return h.Read(ctx, req)
	case protocol.OpWrite:
		return h.Write(ctx, req)
	case protocol.OpSendZC:
		return h.SendZC(ctx, req)
	case protocol.OpRecv:
		return h.Recv(ctx, req)
	case protocol.OpBatch:
		return h.Batch(ctx, req)
	default:
		// Unreachable: DecodeRequest rejects unknown op codes.
		return protocol.ErrorResponse("unknown operation")
	}
}

// reply encodes and writes the single response frame for this connection.
func (c *conn) reply(resp *protocol.Response) {
	encoded, err := resp.Encode()
	if err != nil {
		logger.Error("Response encode failed: %v", err)
		return
	}

	if _, err := c.conn.Write(encoded); err != nil {
		logger.Debug("Response write failed: %v", err)
		return
	}

	c.server.metrics.ResponseSent(resp.Status.String(), len(resp.Data))
}
