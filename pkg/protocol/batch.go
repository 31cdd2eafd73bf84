package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Batch payload sub-format, carried in the Data field of an OpBatch request
// and its response:
//
//	Request payload:  [count:u32] then per item [path_len:u16][path:bytes][offset:u64][length:u64]
//	Response payload: [count:u32] then per item [len:u32][data:bytes]
//
// Results are returned in request order.

// BatchOp describes one read in a batch: length bytes at offset from path.
type BatchOp struct {
	Path   string
	Offset uint64
	Length uint64
}

// EncodeBatchRequest serializes a list of batch reads into a request payload.
//
// Fails with ErrOversizedField if a path exceeds 64 KiB.
func EncodeBatchRequest(ops []BatchOp) ([]byte, error) {
	var buf bytes.Buffer
	var prefix [8]byte

	binary.LittleEndian.PutUint32(prefix[:4], uint32(len(ops)))
	buf.Write(prefix[:4])

	for _, op := range ops {
		if len(op.Path) > MaxIDLen {
			return nil, fmt.Errorf("batch path is %d bytes: %w", len(op.Path), ErrOversizedField)
		}
		binary.LittleEndian.PutUint16(prefix[:2], uint16(len(op.Path)))
		buf.Write(prefix[:2])
		buf.WriteString(op.Path)
		binary.LittleEndian.PutUint64(prefix[:8], op.Offset)
		buf.Write(prefix[:8])
		binary.LittleEndian.PutUint64(prefix[:8], op.Length)
		buf.Write(prefix[:8])
	}

	return buf.Bytes(), nil
}

// DecodeBatchRequest parses a batch request payload.
func DecodeBatchRequest(payload []byte) ([]BatchOp, error) {
	r := bytes.NewReader(payload)

	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, shortFrame("batch count", err)
	}
	count := binary.LittleEndian.Uint32(head[:])

	// Each item occupies at least 18 bytes (empty path), so a count the
	// payload cannot possibly hold is malformed. Checking before the
	// allocation keeps a forged count from requesting gigabytes.
	if uint64(count)*18 > uint64(r.Len()) {
		return nil, fmt.Errorf("%w: batch declares %d items in %d bytes",
			ErrShortFrame, count, r.Len())
	}

	ops := make([]BatchOp, 0, count)
	for i := uint32(0); i < count; i++ {
		path, err := readPrefixed16(r, "batch path")
		if err != nil {
			return nil, err
		}
		var fixed [16]byte
		if _, err := io.ReadFull(r, fixed[:]); err != nil {
			return nil, shortFrame("batch offset/length", err)
		}
		ops = append(ops, BatchOp{
			Path:   string(path),
			Offset: binary.LittleEndian.Uint64(fixed[0:8]),
			Length: binary.LittleEndian.Uint64(fixed[8:16]),
		})
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("batch request has %d trailing bytes", r.Len())
	}

	return ops, nil
}

// EncodeBatchResponse serializes per-read results, in request order, into a
// response payload.
func EncodeBatchResponse(results [][]byte) ([]byte, error) {
	var buf bytes.Buffer
	var prefix [4]byte

	binary.LittleEndian.PutUint32(prefix[:], uint32(len(results)))
	buf.Write(prefix[:])

	for _, data := range results {
		if uint64(len(data)) > MaxDataLen {
			return nil, fmt.Errorf("batch result is %d bytes: %w", len(data), ErrOversizedField)
		}
		binary.LittleEndian.PutUint32(prefix[:], uint32(len(data)))
		buf.Write(prefix[:])
		buf.Write(data)
	}

	return buf.Bytes(), nil
}

// DecodeBatchResponse parses a batch response payload.
func DecodeBatchResponse(payload []byte) ([][]byte, error) {
	r := bytes.NewReader(payload)

	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, shortFrame("batch count", err)
	}
	count := binary.LittleEndian.Uint32(head[:])

	// Every result carries a 4-byte length prefix at minimum.
	if uint64(count)*4 > uint64(r.Len()) {
		return nil, fmt.Errorf("%w: batch declares %d results in %d bytes",
			ErrShortFrame, count, r.Len())
	}

	results := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		data, err := readPrefixed32(r, "batch result")
		if err != nil {
			return nil, err
		}
		results = append(results, data)
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("batch response has %d trailing bytes", r.Len())
	}

	return results, nil
}
