package server

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/marmos91/mover/internal/logger"
	"github.com/marmos91/mover/pkg/bufpool"
	"github.com/marmos91/mover/pkg/metrics"
	"github.com/marmos91/mover/pkg/protocol"
	"github.com/marmos91/mover/pkg/store"
	"github.com/marmos91/mover/pkg/uring"
)

// Handler maps each operation code to its implementation. Every method
// returns a response: handler-level failures are serialized into an Error
// response rather than propagated, so a successfully decoded request always
// gets a typed answer.
type Handler interface {
	// Read fetches content from the backend by the request identifier.
	Read(ctx context.Context, req *protocol.Request) *protocol.Response

	// Write stores the request payload under the request identifier.
	Write(ctx context.Context, req *protocol.Request) *protocol.Response

	// SendZC transmits the payload to the peer named by the identifier
	// over the zero-copy send path.
	SendZC(ctx context.Context, req *protocol.Request) *protocol.Response

	// Recv receives from the peer named by the identifier into a
	// registered buffer and returns the bytes.
	Recv(ctx context.Context, req *protocol.Request) *protocol.Response

	// Batch executes the reads encoded in the payload concurrently.
	Batch(ctx context.Context, req *protocol.Request) *protocol.Response
}

// peerDialTimeout bounds connection establishment for SEND_ZC and RECV.
const peerDialTimeout = 5 * time.Second

// DefaultHandler is the production handler. Each capability is backed by a
// collaborator that may be absent: a nil backend or ring turns the
// corresponding operations into NotImplemented-flavored Error responses
// instead of dead code paths.
type DefaultHandler struct {
	// Store is the content-addressed backend for READ/WRITE. May be nil.
	Store store.Store

	// Ring is the I/O ring for SEND_ZC/RECV/BATCH. May be nil.
	Ring *uring.Ring

	// Pool supplies registered buffers for RECV.
	Pool *bufpool.Pool

	// BatchTimeout bounds whole-batch execution.
	BatchTimeout time.Duration

	// Metrics may be nil; all its methods tolerate that.
	Metrics *metrics.ServerMetrics
}

// Read consults the backend and maps its outcome onto the response status:
// hit = Ok with the content, miss = NotFound, failure = Error.
func (h *DefaultHandler) Read(ctx context.Context, req *protocol.Request) *protocol.Response {
	if h.Store == nil {
		return protocol.ErrorResponse("READ not implemented: no backend configured")
	}

	data, err := h.Store.Get(ctx, store.ID(req.ID))
	if errors.Is(err, store.ErrNotFound) {
		return protocol.NotFoundResponse()
	}
	if err != nil {
		logger.Error("READ %q failed: %v", req.ID, err)
		return protocol.ErrorResponse(err.Error())
	}

	// Offset/length select a slice of the content; length 0 means
	// everything from offset.
	if req.Offset > uint64(len(data)) {
		return protocol.ErrorResponse("read offset beyond content size")
	}
	data = data[req.Offset:]
	if req.Length > 0 && req.Length < uint64(len(data)) {
		data = data[:req.Length]
	}

	return protocol.OkResponse(data)
}

// Write stores the payload write-through under the request identifier.
func (h *DefaultHandler) Write(ctx context.Context, req *protocol.Request) *protocol.Response {
	if h.Store == nil {
		return protocol.ErrorResponse("WRITE not implemented: no backend configured")
	}

	if err := h.Store.Put(ctx, store.ID(req.ID), req.Data); err != nil {
		logger.Error("WRITE %q failed: %v", req.ID, err)
		return protocol.ErrorResponse(err.Error())
	}

	return protocol.OkResponse(nil)
}

// SendZC dials the peer named by the identifier and transmits the payload on
// the zero-copy path. The response payload is the byte count sent, as u64
// little-endian.
func (h *DefaultHandler) SendZC(ctx context.Context, req *protocol.Request) *protocol.Response {
	if h.Ring == nil {
		return protocol.ErrorResponse("SEND_ZC not implemented: no ring configured")
	}

	conn, err := dialPeer(string(req.ID))
	if err != nil {
		logger.Error("SEND_ZC dial %q failed: %v", req.ID, err)
		return protocol.ErrorResponse(err.Error())
	}
	defer conn.Close()

	n, err := h.Ring.SendZC(conn, req.Data)
	if err != nil {
		logger.Error("SEND_ZC to %q failed: %v", req.ID, err)
		return protocol.ErrorResponse(err.Error())
	}

	var sent [8]byte
	binary.LittleEndian.PutUint64(sent[:], uint64(n))
	return protocol.OkResponse(sent[:])
}

// Recv dials the peer named by the identifier and receives once into a
// registered buffer. The bytes are copied into the response and the buffer
// is returned to the pool before replying.
func (h *DefaultHandler) Recv(ctx context.Context, req *protocol.Request) *protocol.Response {
	if h.Ring == nil || h.Pool == nil {
		return protocol.ErrorResponse("RECV not implemented: no ring configured")
	}

	conn, err := dialPeer(string(req.ID))
	if err != nil {
		logger.Error("RECV dial %q failed: %v", req.ID, err)
		return protocol.ErrorResponse(err.Error())
	}
	defer conn.Close()

	idx, n, err := h.Ring.RecvInto(conn, h.Pool)
	if err != nil {
		if errors.Is(err, bufpool.ErrExhausted) {
			return protocol.ErrorResponse("no buffers available")
		}
		logger.Error("RECV from %q failed: %v", req.ID, err)
		return protocol.ErrorResponse(err.Error())
	}

	buf, _ := h.Pool.Get(idx)
	data := make([]byte, n)
	copy(data, buf[:n])

	if err := h.Pool.Release(idx); err != nil {
		// Double release would mean the ownership contract broke; that
		// is a bug worth failing loudly over.
		logger.Error("RECV buffer release failed: %v", err)
		return protocol.ErrorResponse(err.Error())
	}

	return protocol.OkResponse(data)
}

// Batch decodes the read list from the payload and fans the reads out
// through the ring. The batch is fail-fast: any single failure (or the batch
// timeout) fails the whole batch.
func (h *DefaultHandler) Batch(ctx context.Context, req *protocol.Request) *protocol.Response {
	if h.Ring == nil {
		return protocol.ErrorResponse("BATCH not implemented: no ring configured")
	}

	ops, err := protocol.DecodeBatchRequest(req.Data)
	if err != nil {
		return protocol.ErrorResponse("malformed batch payload: " + err.Error())
	}

	results, err := h.Ring.BatchRead(ctx, ops, h.BatchTimeout)
	if err != nil {
		logger.Error("BATCH of %d reads failed: %v", len(ops), err)
		return protocol.ErrorResponse(err.Error())
	}
	h.Metrics.BatchReads(len(ops))

	payload, err := protocol.EncodeBatchResponse(results)
	if err != nil {
		return protocol.ErrorResponse(err.Error())
	}

	return protocol.OkResponse(payload)
}

// dialPeer connects to a peer identifier: an absolute path is a Unix socket,
// anything else is host:port.
func dialPeer(id string) (net.Conn, error) {
	network := "tcp"
	if strings.HasPrefix(id, "/") {
		network = "unix"
	}
	return net.DialTimeout(network, id, peerDialTimeout)
}
