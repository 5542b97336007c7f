// Package crilayla decompresses CRILAYLA-tagged blobs, the proprietary
// reverse-direction LZSS variant used for file payloads in CPK archives.
//
// The codec is unusual in that both sides run backward: the compressed
// bitstream is read from the end of the input toward the start, and output
// bytes are written from the end of the output buffer toward the front.
// Back-references therefore point toward higher addresses, at bytes the
// decompressor has already emitted. Match lengths use a four-level
// variable-length code with an unbounded 8-bit extension tail. The final
// 0x100 bytes of the input are a plaintext header stored outside the
// compressed stream and copied verbatim to the front of the output.
package crilayla

import (
	"encoding/binary"
	"fmt"

	"github.com/arloliu/cpk/errs"
)

// Signature is the eight-byte magic identifying a compressed blob.
const Signature = "CRILAYLA"

const (
	headerLen      = 16    // magic + uncompressed size + header offset
	plainHeaderLen = 0x100 // verbatim header carried after the stream

	// maxOutputSize caps a declared uncompressed size. Policy bound against
	// adversarial inputs, not a format limit.
	maxOutputSize = 100_000_000
)

// vleLens are the bit widths of the four match-length levels. A level that
// reads as all ones continues to the next; after the last level, 8-bit chunks
// accumulate until one is not 0xFF.
var vleLens = [4]uint{2, 3, 5, 8}

// IsCompressed reports whether data begins with the CRILAYLA magic.
func IsCompressed(data []byte) bool {
	return len(data) >= len(Signature) && string(data[:len(Signature)]) == Signature
}

// Decompress expands one CRILAYLA blob. The returned buffer holds the 0x100
// plaintext header bytes followed by the decompressed payload.
func Decompress(input []byte) ([]byte, error) {
	if len(input) < headerLen {
		return nil, fmt.Errorf("%w: input too short for CRILAYLA (%d bytes)", errs.ErrCompression, len(input))
	}
	if !IsCompressed(input) {
		return nil, fmt.Errorf("%w: missing CRILAYLA signature", errs.ErrCompression)
	}

	uncompressedSize := int(binary.LittleEndian.Uint32(input[8:12]))
	headerOffset := int(binary.LittleEndian.Uint32(input[12:16]))

	if uncompressedSize < 0 || uncompressedSize > maxOutputSize {
		return nil, fmt.Errorf("%w: unreasonable uncompressed size %d", errs.ErrCompression, uint32(uncompressedSize))
	}
	// The plaintext header is read from [headerOffset+0x10, headerOffset+0x110).
	if headerOffset < 0 || headerOffset+0x10+plainHeaderLen > len(input) {
		return nil, fmt.Errorf("%w: header offset %d out of range for %d-byte input", errs.ErrCompression, headerOffset, len(input))
	}
	if len(input) < plainHeaderLen+1 {
		return nil, fmt.Errorf("%w: input too short for compressed stream", errs.ErrCompression)
	}

	result := make([]byte, plainHeaderLen+uncompressedSize)
	copy(result[:plainHeaderLen], input[headerOffset+0x10:headerOffset+0x10+plainHeaderLen])

	br := newBitReader(input, len(input)-plainHeaderLen-1)
	outputEnd := plainHeaderLen + uncompressedSize - 1
	bytesOutput := 0

	for bytesOutput < uncompressedSize {
		control, err := br.next(1)
		if err != nil {
			return nil, err
		}

		if control == 0 {
			// Verbatim byte.
			b, err := br.next(8)
			if err != nil {
				return nil, err
			}
			result[outputEnd-bytesOutput] = byte(b)
			bytesOutput++

			continue
		}

		offsetBits, err := br.next(13)
		if err != nil {
			return nil, err
		}
		back := outputEnd - bytesOutput + int(offsetBits) + 3

		length, err := br.readMatchLength()
		if err != nil {
			return nil, err
		}

		for range length {
			if bytesOutput >= uncompressedSize {
				break
			}
			if back < 0 || back >= len(result) {
				return nil, fmt.Errorf("%w: back-reference position %d outside %d-byte buffer", errs.ErrCompression, back, len(result))
			}
			result[outputEnd-bytesOutput] = result[back]
			back--
			bytesOutput++
		}
	}

	return result, nil
}

// readMatchLength decodes the variable-length match length: a base of 3 plus
// up to four level fields, then an open-ended run of 8-bit extensions while
// each chunk saturates.
func (br *bitReader) readMatchLength() (int, error) {
	length := 3
	allMax := true
	for _, bits := range vleLens {
		v, err := br.next(bits)
		if err != nil {
			return 0, err
		}
		length += int(v)
		if v != (1<<bits)-1 {
			allMax = false
			break
		}
	}

	if allMax {
		for {
			v, err := br.next(8)
			if err != nil {
				return 0, err
			}
			length += int(v)
			if v != 0xFF {
				break
			}
		}
	}

	return length, nil
}
