package artifact

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the payload encoding.
type Compression string

// Supported compressions.
const (
	CompressionNone Compression = "none"
	CompressionLZ4  Compression = "lz4"
)

var magic = [4]byte{'H', 'L', 'D', 'S'}

const (
	formatVersion = 1
	flagLZ4       = 1 << 0

	float64Size  = 8
	checksumSize = 8
	// magic, version, flags, name length.
	fixedPrefix = len(magic) + 2 + 2 + 2
	// rows, cols, raw length, payload length.
	fixedShape = 4 * 8
)

// Encode serializes m: a header (magic, version, flags, name, rows, cols,
// raw and payload lengths), the payload and an xxhash64 of everything before it.
func Encode(m *Matrix, compression Compression) ([]byte, error) {
	err := m.Validate()
	if err != nil {
		return nil, err
	}

	if len(m.Name) > math.MaxUint16 {
		return nil, fmt.Errorf("dataset name too long: %d bytes", len(m.Name))
	}

	raw := make([]byte, len(m.Data)*float64Size)
	for i, v := range m.Data {
		binary.LittleEndian.PutUint64(raw[i*float64Size:], math.Float64bits(v))
	}

	var flags uint16

	payload := raw

	if compression == CompressionLZ4 {
		compressed := make([]byte, lz4.CompressBlockBound(len(raw)))

		written, compressErr := lz4.CompressBlock(raw, compressed, nil)
		if compressErr != nil {
			return nil, fmt.Errorf("compress payload: %w", compressErr)
		}

		// Zero means incompressible; keep the raw payload.
		if written > 0 {
			payload = compressed[:written]
			flags |= flagLZ4
		}
	}

	buf := make([]byte, 0, fixedPrefix+len(m.Name)+fixedShape+len(payload)+checksumSize)
	buf = append(buf, magic[:]...)
	buf = binary.LittleEndian.AppendUint16(buf, formatVersion)
	buf = binary.LittleEndian.AppendUint16(buf, flags)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(m.Name)))
	buf = append(buf, m.Name...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(m.Rows))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(m.Cols))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(raw)))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(payload)))
	buf = append(buf, payload...)
	buf = binary.LittleEndian.AppendUint64(buf, xxhash.Sum64(buf))

	return buf, nil
}

// Decode parses data produced by Encode. Any truncation, checksum mismatch
// or inconsistent header yields ErrCorrupt.
func Decode(data []byte) (*Matrix, error) {
	if len(data) < fixedPrefix+fixedShape+checksumSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than a header", ErrCorrupt, len(data))
	}

	body := data[:len(data)-checksumSize]

	want := binary.LittleEndian.Uint64(data[len(body):])
	if got := xxhash.Sum64(body); got != want {
		return nil, fmt.Errorf("%w: checksum %016x, want %016x", ErrCorrupt, got, want)
	}

	if [4]byte(body[:4]) != magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorrupt, body[:4])
	}

	r := reader{buf: body[len(magic):]}

	version := r.uint16()
	if version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, version)
	}

	flags := r.uint16()
	name := string(r.bytes(int(r.uint16())))
	rows := r.uint64()
	cols := r.uint64()
	rawLen := r.uint64()
	payload := r.bytes(int(r.uint64()))

	if r.err || len(r.buf) != 0 {
		return nil, fmt.Errorf("%w: header does not match length", ErrCorrupt)
	}

	if rows > math.MaxInt32 || cols > math.MaxInt32 || rawLen != rows*cols*float64Size {
		return nil, fmt.Errorf("%w: shape %dx%d with %d bytes", ErrCorrupt, rows, cols, rawLen)
	}

	raw := payload

	if flags&flagLZ4 != 0 {
		raw = make([]byte, rawLen)

		n, err := lz4.UncompressBlock(payload, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: decompress payload: %w", ErrCorrupt, err)
		}

		raw = raw[:n]
	}

	if uint64(len(raw)) != rawLen {
		return nil, fmt.Errorf("%w: payload has %d bytes, want %d", ErrCorrupt, len(raw), rawLen)
	}

	m := &Matrix{Name: name, Rows: int(rows), Cols: int(cols), Data: make([]float64, rows*cols)}
	for i := range m.Data {
		m.Data[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*float64Size:]))
	}

	return m, nil
}

// reader consumes little-endian fields, latching err on underflow.
type reader struct {
	buf []byte
	err bool
}

func (r *reader) bytes(n int) []byte {
	if r.err || n < 0 || n > len(r.buf) {
		r.err = true

		return nil
	}

	out := r.buf[:n]
	r.buf = r.buf[n:]

	return out
}

func (r *reader) uint16() uint16 {
	b := r.bytes(2)
	if b == nil {
		return 0
	}

	return binary.LittleEndian.Uint16(b)
}

func (r *reader) uint64() uint64 {
	b := r.bytes(8)
	if b == nil {
		return 0
	}

	return binary.LittleEndian.Uint64(b)
}
