// Package protocol implements the binary wire format spoken over the mover's
// Unix domain socket.
//
// All integers are little-endian. A connection carries exactly one request
// frame followed by one response frame:
//
//	Request:  [op:u8][id_len:u16][id:bytes][offset:u64][length:u64][data_len:u32][data:bytes]
//	Response: [status:u8][data_len:u32][data:bytes]
//
// Decoding is strict: an unknown operation or status byte, or a truncated
// frame, is an error. There is no partial-frame recovery; callers are expected
// to drop the connection on any decode failure.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// OpCode identifies a mover operation. The set is closed: decoding any byte
// outside it fails with ErrUnknownOpCode.
type OpCode uint8

const (
	// OpRead fetches content from the CAS backend by identifier.
	OpRead OpCode = 0x01
	// OpWrite stores content in the CAS backend under the given identifier.
	OpWrite OpCode = 0x02
	// OpSendZC transmits the payload to a peer using the zero-copy send path.
	OpSendZC OpCode = 0x03
	// OpRecv receives from a peer into a registered buffer.
	OpRecv OpCode = 0x04
	// OpBatch executes multiple file reads in parallel.
	OpBatch OpCode = 0x05
)

// Status is the response status byte.
type Status uint8

const (
	StatusOk       Status = 0x00
	StatusNotFound Status = 0x01
	StatusError    Status = 0x02
)

var (
	// ErrUnknownOpCode indicates a request frame with an operation byte
	// outside the closed OpCode set.
	ErrUnknownOpCode = errors.New("unknown op code")

	// ErrUnknownStatus indicates a response frame with an unrecognized
	// status byte.
	ErrUnknownStatus = errors.New("unknown status")

	// ErrShortFrame indicates a frame that ended before all declared
	// fields were read.
	ErrShortFrame = errors.New("short frame")

	// ErrOversizedField indicates an in-memory value whose id or payload
	// does not fit the width of its length prefix. Encoding fails rather
	// than silently truncating.
	ErrOversizedField = errors.New("field exceeds length prefix")
)

// MaxIDLen is the largest identifier the wire format can carry (u16 prefix).
const MaxIDLen = math.MaxUint16

// MaxDataLen is the largest payload the wire format can carry (u32 prefix).
const MaxDataLen = math.MaxUint32

func (op OpCode) String() string {
	switch op {
	case OpRead:
		return "READ"
	case OpWrite:
		return "WRITE"
	case OpSendZC:
		return "SEND_ZC"
	case OpRecv:
		return "RECV"
	case OpBatch:
		return "BATCH"
	default:
		return fmt.Sprintf("OpCode(0x%02x)", uint8(op))
	}
}

func (s Status) String() string {
	switch s {
	case StatusOk:
		return "OK"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusError:
		return "ERROR"
	default:
		return fmt.Sprintf("Status(0x%02x)", uint8(s))
	}
}

// parseOpCode validates a raw operation byte.
func parseOpCode(b uint8) (OpCode, error) {
	switch op := OpCode(b); op {
	case OpRead, OpWrite, OpSendZC, OpRecv, OpBatch:
		return op, nil
	default:
		return 0, fmt.Errorf("%w: 0x%02x", ErrUnknownOpCode, b)
	}
}

// parseStatus validates a raw status byte.
func parseStatus(b uint8) (Status, error) {
	switch s := Status(b); s {
	case StatusOk, StatusNotFound, StatusError:
		return s, nil
	default:
		return 0, fmt.Errorf("%w: 0x%02x", ErrUnknownStatus, b)
	}
}

// Request is a single mover request. ID is an opaque content address or peer
// identifier; Data carries the payload for WRITE/SEND_ZC and the encoded
// operation list for BATCH.
type Request struct {
	Op     OpCode
	ID     []byte
	Offset uint64
	Length uint64
	Data   []byte
}

// Encode serializes the request.
//
// Encoding fails with ErrOversizedField if ID exceeds 64 KiB or Data exceeds
// 4 GiB; it never truncates.
func (r *Request) Encode() ([]byte, error) {
	if len(r.ID) > MaxIDLen {
		return nil, fmt.Errorf("request id is %d bytes: %w", len(r.ID), ErrOversizedField)
	}
	if uint64(len(r.Data)) > MaxDataLen {
		return nil, fmt.Errorf("request data is %d bytes: %w", len(r.Data), ErrOversizedField)
	}

	buf := make([]byte, 0, 1+2+len(r.ID)+8+8+4+len(r.Data))
	buf = append(buf, byte(r.Op))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(r.ID)))
	buf = append(buf, r.ID...)
	buf = binary.LittleEndian.AppendUint64(buf, r.Offset)
	buf = binary.LittleEndian.AppendUint64(buf, r.Length)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(r.Data)))
	buf = append(buf, r.Data...)

	return buf, nil
}

// DecodeRequest reads one request frame from r.
func DecodeRequest(r io.Reader) (*Request, error) {
	var head [1]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, shortFrame("op", err)
	}
	op, err := parseOpCode(head[0])
	if err != nil {
		return nil, err
	}

	id, err := readPrefixed16(r, "id")
	if err != nil {
		return nil, err
	}

	var fixed [16]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return nil, shortFrame("offset/length", err)
	}
	offset := binary.LittleEndian.Uint64(fixed[0:8])
	length := binary.LittleEndian.Uint64(fixed[8:16])

	data, err := readPrefixed32(r, "data")
	if err != nil {
		return nil, err
	}

	return &Request{Op: op, ID: id, Offset: offset, Length: length, Data: data}, nil
}

// Response is the single reply sent for a decoded request. Error responses
// carry a human-readable message in Data.
type Response struct {
	Status Status
	Data   []byte
}

// Encode serializes the response.
//
// Fails with ErrOversizedField if Data exceeds 4 GiB.
func (r *Response) Encode() ([]byte, error) {
	if uint64(len(r.Data)) > MaxDataLen {
		return nil, fmt.Errorf("response data is %d bytes: %w", len(r.Data), ErrOversizedField)
	}

	buf := make([]byte, 0, 1+4+len(r.Data))
	buf = append(buf, byte(r.Status))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(r.Data)))
	buf = append(buf, r.Data...)

	return buf, nil
}

// DecodeResponse reads one response frame from r.
func DecodeResponse(r io.Reader) (*Response, error) {
	var head [1]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, shortFrame("status", err)
	}
	status, err := parseStatus(head[0])
	if err != nil {
		return nil, err
	}

	data, err := readPrefixed32(r, "data")
	if err != nil {
		return nil, err
	}

	return &Response{Status: status, Data: data}, nil
}

// OkResponse builds a success response carrying data.
func OkResponse(data []byte) *Response {
	return &Response{Status: StatusOk, Data: data}
}

// NotFoundResponse builds an empty not-found response.
func NotFoundResponse() *Response {
	return &Response{Status: StatusNotFound}
}

// ErrorResponse builds an error response whose payload is the message.
func ErrorResponse(message string) *Response {
	return &Response{Status: StatusError, Data: []byte(message)}
}

// readPrefixed16 reads a u16 length prefix and that many bytes.
func readPrefixed16(r io.Reader, field string) ([]byte, error) {
	var prefix [2]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, shortFrame(field+" length", err)
	}
	n := binary.LittleEndian.Uint16(prefix[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, shortFrame(field, err)
	}
	return buf, nil
}

// readPrefixed32 reads a u32 length prefix and that many bytes.
//
// When r knows its remaining length (in-memory frames), a declared length
// larger than what is present fails before allocating, so a forged prefix
// cannot request gigabytes for a few-byte frame.
func readPrefixed32(r io.Reader, field string) ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, shortFrame(field+" length", err)
	}
	n := binary.LittleEndian.Uint32(prefix[:])
	if rem, ok := r.(interface{ Len() int }); ok && uint64(n) > uint64(rem.Len()) {
		return nil, fmt.Errorf("%w: %s declares %d bytes, %d available",
			ErrShortFrame, field, n, rem.Len())
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, shortFrame(field, err)
	}
	return buf, nil
}

func shortFrame(field string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: reading %s: %v", ErrShortFrame, field, err)
	}
	return fmt.Errorf("reading %s: %w", field, err)
}
