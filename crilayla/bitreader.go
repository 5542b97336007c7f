package crilayla

import (
	"fmt"

	"github.com/arloliu/cpk/errs"
)

// bitReader serves bits from a CRILAYLA compressed stream, which is laid out
// backward: bytes are loaded from high addresses toward low ones, and bits
// within each loaded byte are consumed MSB first.
type bitReader struct {
	data []byte
	idx  int // next byte to load, moving toward zero
	pool uint8
	left uint
}

func newBitReader(data []byte, start int) *bitReader {
	return &bitReader{data: data, idx: start}
}

// next returns n bits as an unsigned value. The largest single request the
// format makes is 13 bits, so the result always fits in 16.
func (br *bitReader) next(n uint) (uint16, error) {
	var out uint16
	var produced uint

	for produced < n {
		if br.left == 0 {
			if br.idx < 0 {
				return 0, fmt.Errorf("%w: unexpected end of compressed stream", errs.ErrCompression)
			}
			br.pool = br.data[br.idx]
			br.left = 8
			br.idx--
		}

		take := n - produced
		if take > br.left {
			take = br.left
		}

		out <<= take
		out |= uint16(br.pool>>(br.left-take)) & ((1 << take) - 1)

		br.left -= take
		produced += take
	}

	return out, nil
}
