package cpk

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/arloliu/cpk/utf"
)

// tcol describes one column for buildTable: raw flags, a name, and one value
// per row for per-row storage.
type tcol struct {
	flags byte
	name  string
	vals  []any
}

func perRowWidth(flags byte) int {
	if flags&0xF0 != utf.StoragePerRow {
		return 0
	}
	switch utf.ColumnType(flags & 0x0F) {
	case utf.TypeUint8, utf.TypeInt8:
		return 1
	case utf.TypeUint16, utf.TypeInt16:
		return 2
	case utf.TypeUint32, utf.TypeInt32, utf.TypeFloat32, utf.TypeString:
		return 4
	case utf.TypeUint64, utf.TypeInt64, utf.TypeData:
		return 8
	default:
		return 0
	}
}

// buildTable assembles a well-formed @UTF blob from column specs.
func buildTable(t *testing.T, cols []tcol, numRows int) []byte {
	t.Helper()

	stringsHeap := []byte{0}
	stringOffsets := map[string]uint32{"": 0}
	addString := func(s string) uint32 {
		if off, ok := stringOffsets[s]; ok {
			return off
		}
		off := uint32(len(stringsHeap))
		stringsHeap = append(stringsHeap, []byte(s)...)
		stringsHeap = append(stringsHeap, 0)
		stringOffsets[s] = off

		return off
	}

	var dataHeap []byte
	addData := func(b []byte) (uint32, uint32) {
		off := uint32(len(dataHeap))
		dataHeap = append(dataHeap, b...)

		return off, uint32(len(b))
	}

	var colsDesc []byte
	rowLength := 0
	for _, col := range cols {
		colsDesc = append(colsDesc, col.flags)
		colsDesc = binary.BigEndian.AppendUint32(colsDesc, addString(col.name))
		rowLength += perRowWidth(col.flags)
	}

	var rowsBuf []byte
	for row := range numRows {
		for _, col := range cols {
			if col.flags&0xF0 != utf.StoragePerRow {
				continue
			}
			v := col.vals[row]
			switch utf.ColumnType(col.flags & 0x0F) {
			case utf.TypeUint8, utf.TypeInt8:
				rowsBuf = append(rowsBuf, v.(uint8))
			case utf.TypeUint16, utf.TypeInt16:
				rowsBuf = binary.BigEndian.AppendUint16(rowsBuf, v.(uint16))
			case utf.TypeUint32, utf.TypeInt32:
				rowsBuf = binary.BigEndian.AppendUint32(rowsBuf, v.(uint32))
			case utf.TypeUint64, utf.TypeInt64:
				rowsBuf = binary.BigEndian.AppendUint64(rowsBuf, v.(uint64))
			case utf.TypeFloat32:
				rowsBuf = binary.BigEndian.AppendUint32(rowsBuf, math.Float32bits(v.(float32)))
			case utf.TypeString:
				rowsBuf = binary.BigEndian.AppendUint32(rowsBuf, addString(v.(string)))
			case utf.TypeData:
				off, size := addData(v.([]byte))
				rowsBuf = binary.BigEndian.AppendUint32(rowsBuf, off)
				rowsBuf = binary.BigEndian.AppendUint32(rowsBuf, size)
			default:
				t.Fatalf("unsupported test column flags 0x%02X", col.flags)
			}
		}
	}

	rowsRel := uint32(24 + len(colsDesc))
	stringsRel := rowsRel + uint32(len(rowsBuf))
	dataRel := stringsRel + uint32(len(stringsHeap))
	total := 8 + int(dataRel) + len(dataHeap)

	blob := make([]byte, 0, total)
	blob = append(blob, utf.Signature...)
	blob = binary.BigEndian.AppendUint32(blob, uint32(total-8))
	blob = binary.BigEndian.AppendUint32(blob, rowsRel)
	blob = binary.BigEndian.AppendUint32(blob, stringsRel)
	blob = binary.BigEndian.AppendUint32(blob, dataRel)
	blob = binary.BigEndian.AppendUint32(blob, 0)
	blob = binary.BigEndian.AppendUint16(blob, uint16(len(cols)))
	blob = binary.BigEndian.AppendUint16(blob, uint16(rowLength))
	blob = binary.BigEndian.AppendUint32(blob, uint32(numRows))
	blob = append(blob, colsDesc...)
	blob = append(blob, rowsBuf...)
	blob = append(blob, stringsHeap...)
	blob = append(blob, dataHeap...)

	return blob
}

// packet frames a table blob with the shared inner-UTF envelope: a discarded
// word and the little-endian size. Scrambling uses the self-inverse keystream.
func packet(blob []byte, scramble bool) []byte {
	if scramble {
		blob = utf.Decrypt(blob)
	}

	out := make([]byte, 0, 12+len(blob))
	out = append(out, 0xFF, 0xFF, 0xFF, 0xFF)
	out = binary.LittleEndian.AppendUint64(out, uint64(len(blob)))

	return append(out, blob...)
}

// archiveBuilder lays out sections at absolute offsets, zero-padding gaps.
type archiveBuilder struct {
	buf []byte
}

func (b *archiveBuilder) placeAt(off int, data []byte) {
	if need := off + len(data); need > len(b.buf) {
		b.buf = append(b.buf, make([]byte, need-len(b.buf))...)
	}
	copy(b.buf[off:], data)
}

func (b *archiveBuilder) writeFile(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.cpk")
	if err := os.WriteFile(path, b.buf, 0o644); err != nil {
		t.Fatalf("write test archive: %v", err)
	}

	return path
}

func u64col(name string, vals ...uint64) tcol {
	anyVals := make([]any, len(vals))
	for i, v := range vals {
		anyVals[i] = v
	}

	return tcol{flags: utf.StoragePerRow | byte(utf.TypeUint64), name: name, vals: anyVals}
}

func u32col(name string, vals ...uint32) tcol {
	anyVals := make([]any, len(vals))
	for i, v := range vals {
		anyVals[i] = v
	}

	return tcol{flags: utf.StoragePerRow | byte(utf.TypeUint32), name: name, vals: anyVals}
}

func u16col(name string, vals ...uint16) tcol {
	anyVals := make([]any, len(vals))
	for i, v := range vals {
		anyVals[i] = v
	}

	return tcol{flags: utf.StoragePerRow | byte(utf.TypeUint16), name: name, vals: anyVals}
}

func strcol(name string, vals ...string) tcol {
	anyVals := make([]any, len(vals))
	for i, v := range vals {
		anyVals[i] = v
	}

	return tcol{flags: utf.StoragePerRow | byte(utf.TypeString), name: name, vals: anyVals}
}

func datacol(name string, vals ...[]byte) tcol {
	anyVals := make([]any, len(vals))
	for i, v := range vals {
		anyVals[i] = v
	}

	return tcol{flags: utf.StoragePerRow | byte(utf.TypeData), name: name, vals: anyVals}
}
