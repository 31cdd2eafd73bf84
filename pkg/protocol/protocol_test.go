package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{
			name: "read with content id",
			req: Request{
				Op:     OpRead,
				ID:     []byte("test-cas-id"),
				Offset: 0,
				Length: 1024,
			},
		},
		{
			name: "write with payload",
			req: Request{
				Op:   OpWrite,
				ID:   []byte("blob-7c2a"),
				Data: []byte("hello mover"),
			},
		},
		{
			name: "send_zc with offset",
			req: Request{
				Op:     OpSendZC,
				ID:     []byte("peer-1"),
				Offset: 4096,
				Length: 8192,
				Data:   bytes.Repeat([]byte{0xAB}, 512),
			},
		},
		{
			name: "recv",
			req:  Request{Op: OpRecv, ID: []byte("peer-2"), Length: 4096},
		},
		{
			name: "batch",
			req:  Request{Op: OpBatch, Data: []byte{1, 2, 3, 4}},
		},
		{
			name: "empty id and payload",
			req:  Request{Op: OpRead},
		},
		{
			name: "max length id",
			req:  Request{Op: OpWrite, ID: bytes.Repeat([]byte{'x'}, MaxIDLen)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := tt.req.Encode()
			require.NoError(t, err)

			decoded, err := DecodeRequest(bytes.NewReader(encoded))
			require.NoError(t, err)

			assert.Equal(t, tt.req.Op, decoded.Op)
			assert.Equal(t, tt.req.ID, decoded.ID)
			assert.Equal(t, tt.req.Offset, decoded.Offset)
			assert.Equal(t, tt.req.Length, decoded.Length)
			assert.Equal(t, tt.req.Data, decoded.Data)
		})
	}
}

func TestResponseRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		resp *Response
	}{
		{"ok with data", OkResponse([]byte("test-data"))},
		{"ok empty", OkResponse(nil)},
		{"not found", NotFoundResponse()},
		{"error with message", ErrorResponse("backend unavailable")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := tt.resp.Encode()
			require.NoError(t, err)

			decoded, err := DecodeResponse(bytes.NewReader(encoded))
			require.NoError(t, err)

			assert.Equal(t, tt.resp.Status, decoded.Status)
			assert.Equal(t, tt.resp.Data, decoded.Data)
		})
	}
}

func TestDecodeRequest_UnknownOpCode(t *testing.T) {
	req := Request{Op: OpRead, ID: []byte("abc")}
	encoded, err := req.Encode()
	require.NoError(t, err)

	encoded[0] = 0x99

	_, err = DecodeRequest(bytes.NewReader(encoded))
	require.ErrorIs(t, err, ErrUnknownOpCode)
}

func TestDecodeResponse_UnknownStatus(t *testing.T) {
	encoded, err := OkResponse(nil).Encode()
	require.NoError(t, err)

	encoded[0] = 0x7F

	_, err = DecodeResponse(bytes.NewReader(encoded))
	require.ErrorIs(t, err, ErrUnknownStatus)
}

func TestDecodeRequest_Truncated(t *testing.T) {
	req := Request{
		Op:     OpWrite,
		ID:     []byte("content-id"),
		Offset: 10,
		Length: 20,
		Data:   []byte("payload bytes"),
	}
	encoded, err := req.Encode()
	require.NoError(t, err)

	// Every proper prefix of a valid frame must fail to decode.
	for n := 0; n < len(encoded); n++ {
		_, err := DecodeRequest(bytes.NewReader(encoded[:n]))
		require.Errorf(t, err, "prefix of %d bytes decoded successfully", n)
		require.ErrorIs(t, err, ErrShortFrame)
	}
}

func TestDecodeResponse_Truncated(t *testing.T) {
	encoded, err := OkResponse([]byte("some payload")).Encode()
	require.NoError(t, err)

	for n := 0; n < len(encoded); n++ {
		_, err := DecodeResponse(bytes.NewReader(encoded[:n]))
		require.Errorf(t, err, "prefix of %d bytes decoded successfully", n)
		require.ErrorIs(t, err, ErrShortFrame)
	}
}

func TestDecodeRequest_ForgedDataLength(t *testing.T) {
	// Valid header, then a data_len prefix far beyond the frame's bytes.
	// The decode must fail without allocating the declared length.
	frame := []byte{byte(OpRead), 0x00, 0x00}            // op, empty id
	frame = append(frame, make([]byte, 16)...)           // offset, length
	frame = append(frame, 0xFF, 0xFF, 0xFF, 0xFF)        // data_len = 4 GiB - 1
	frame = append(frame, []byte("only a few bytes")...) // far short of that

	_, err := DecodeRequest(bytes.NewReader(frame))
	require.ErrorIs(t, err, ErrShortFrame)
}

func TestEncodeRequest_OversizedID(t *testing.T) {
	req := Request{
		Op: OpWrite,
		ID: bytes.Repeat([]byte{'x'}, MaxIDLen+1),
	}

	_, err := req.Encode()
	require.ErrorIs(t, err, ErrOversizedField)
}

func TestOpCodeString(t *testing.T) {
	assert.Equal(t, "READ", OpRead.String())
	assert.Equal(t, "BATCH", OpBatch.String())
	assert.Equal(t, "OpCode(0x99)", OpCode(0x99).String())
}
