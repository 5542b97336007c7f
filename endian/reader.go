package endian

import (
	"errors"
	"io"
	"math"

	"golang.org/x/text/encoding/japanese"
)

// DefaultCStringLimit bounds ReadCString when the caller passes no limit.
const DefaultCStringLimit = 255

// Reader wraps a seekable byte source with byte-order-switchable typed reads.
//
// The zero value is not usable; construct with NewReader. The reader is not
// safe for concurrent use.
type Reader struct {
	r      io.ReadSeeker
	engine EndianEngine
	little bool
	buf    [8]byte
}

// NewReader creates a Reader over r using little-endian order when little is
// true, big-endian otherwise.
func NewReader(r io.ReadSeeker, little bool) *Reader {
	rd := &Reader{r: r}
	rd.SetLittleEndian(little)

	return rd
}

// SetLittleEndian switches the byte order used by subsequent typed reads.
func (r *Reader) SetLittleEndian(little bool) {
	r.little = little
	if little {
		r.engine = GetLittleEndianEngine()
	} else {
		r.engine = GetBigEndianEngine()
	}
}

// LittleEndian reports whether the reader currently decodes little-endian.
func (r *Reader) LittleEndian() bool {
	return r.little
}

// ReadBytes reads exactly n bytes, failing with io.ErrUnexpectedEOF when the
// source ends partway through, or io.EOF when no bytes remain.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, err
	}

	return buf, nil
}

// ReadUint8 reads one unsigned byte.
func (r *Reader) ReadUint8() (uint8, error) {
	if _, err := io.ReadFull(r.r, r.buf[:1]); err != nil {
		return 0, err
	}

	return r.buf[0], nil
}

// ReadInt8 reads one signed byte.
func (r *Reader) ReadInt8() (int8, error) {
	v, err := r.ReadUint8()
	return int8(v), err
}

// ReadUint16 reads a 16-bit unsigned integer in the current byte order.
func (r *Reader) ReadUint16() (uint16, error) {
	if _, err := io.ReadFull(r.r, r.buf[:2]); err != nil {
		return 0, err
	}

	return r.engine.Uint16(r.buf[:2]), nil
}

// ReadInt16 reads a 16-bit signed integer in the current byte order.
func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

// ReadUint32 reads a 32-bit unsigned integer in the current byte order.
func (r *Reader) ReadUint32() (uint32, error) {
	if _, err := io.ReadFull(r.r, r.buf[:4]); err != nil {
		return 0, err
	}

	return r.engine.Uint32(r.buf[:4]), nil
}

// ReadInt32 reads a 32-bit signed integer in the current byte order.
func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

// ReadUint64 reads a 64-bit unsigned integer in the current byte order.
func (r *Reader) ReadUint64() (uint64, error) {
	if _, err := io.ReadFull(r.r, r.buf[:8]); err != nil {
		return 0, err
	}

	return r.engine.Uint64(r.buf[:8]), nil
}

// ReadInt64 reads a 64-bit signed integer in the current byte order.
func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

// ReadFloat32 reads an IEEE 754 32-bit float in the current byte order.
func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	if err != nil {
		return 0, err
	}

	return math.Float32frombits(v), nil
}

// Seek repositions the underlying source.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	return r.r.Seek(offset, whence)
}

// Position returns the current byte offset within the source.
func (r *Reader) Position() (int64, error) {
	return r.r.Seek(0, io.SeekCurrent)
}

// ReadCString consumes bytes until a NUL terminator or maxLen bytes, whichever
// comes first, and decodes the collected bytes as Shift-JIS. A maxLen of zero
// or less applies DefaultCStringLimit.
//
// Hitting EOF with a non-empty accumulator returns the collected string as-is:
// the format stores unterminated names at the tail of a strings heap.
func (r *Reader) ReadCString(maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = DefaultCStringLimit
	}

	raw := make([]byte, 0, 16)
	for range maxLen {
		b, err := r.ReadUint8()
		if err != nil {
			if len(raw) > 0 && (errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)) {
				break
			}

			return "", err
		}
		if b == 0 {
			break
		}
		raw = append(raw, b)
	}

	decoded, err := japanese.ShiftJIS.NewDecoder().Bytes(raw)
	if err != nil {
		return "", err
	}

	return string(decoded), nil
}
