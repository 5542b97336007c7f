package utf

import (
	"encoding/binary"
	"math"
	"testing"
)

// testColumn describes one column for buildTableBlob: a raw flags byte, a
// name, and one value per row for per-row storage.
type testColumn struct {
	flags byte
	name  string
	vals  []any
}

func cellWidth(flags byte) int {
	if flags&0xF0 != StoragePerRow {
		return 0
	}
	switch ColumnType(flags & 0x0F) {
	case TypeUint8, TypeInt8:
		return 1
	case TypeUint16, TypeInt16:
		return 2
	case TypeUint32, TypeInt32, TypeFloat32, TypeString:
		return 4
	case TypeUint64, TypeInt64, TypeData:
		return 8
	default:
		return 0
	}
}

// buildTableBlob assembles a well-formed @UTF blob from column specs. The
// strings heap starts with a NUL so offset zero resolves to the empty string.
func buildTableBlob(t *testing.T, cols []testColumn, numRows int) []byte {
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
		rowLength += cellWidth(col.flags)
	}

	var rowsBuf []byte
	for row := range numRows {
		for _, col := range cols {
			if col.flags&0xF0 != StoragePerRow {
				continue
			}
			v := col.vals[row]
			switch ColumnType(col.flags & 0x0F) {
			case TypeUint8, TypeInt8:
				rowsBuf = append(rowsBuf, v.(uint8))
			case TypeUint16, TypeInt16:
				rowsBuf = binary.BigEndian.AppendUint16(rowsBuf, v.(uint16))
			case TypeUint32, TypeInt32:
				rowsBuf = binary.BigEndian.AppendUint32(rowsBuf, v.(uint32))
			case TypeUint64, TypeInt64:
				rowsBuf = binary.BigEndian.AppendUint64(rowsBuf, v.(uint64))
			case TypeFloat32:
				rowsBuf = binary.BigEndian.AppendUint32(rowsBuf, math.Float32bits(v.(float32)))
			case TypeString:
				rowsBuf = binary.BigEndian.AppendUint32(rowsBuf, addString(v.(string)))
			case TypeData:
				off, size := addData(v.([]byte))
				rowsBuf = binary.BigEndian.AppendUint32(rowsBuf, off)
				rowsBuf = binary.BigEndian.AppendUint32(rowsBuf, size)
			default:
				t.Fatalf("unsupported test column flags 0x%02X", col.flags)
			}
		}
	}

	rowsRel := uint32(headerFieldsLen + len(colsDesc))
	stringsRel := rowsRel + uint32(len(rowsBuf))
	dataRel := stringsRel + uint32(len(stringsHeap))
	total := 8 + int(dataRel) + len(dataHeap)

	blob := make([]byte, 0, total)
	blob = append(blob, Signature...)
	blob = binary.BigEndian.AppendUint32(blob, uint32(total-8))
	blob = binary.BigEndian.AppendUint32(blob, rowsRel)
	blob = binary.BigEndian.AppendUint32(blob, stringsRel)
	blob = binary.BigEndian.AppendUint32(blob, dataRel)
	blob = binary.BigEndian.AppendUint32(blob, 0) // table name
	blob = binary.BigEndian.AppendUint16(blob, uint16(len(cols)))
	blob = binary.BigEndian.AppendUint16(blob, uint16(rowLength))
	blob = binary.BigEndian.AppendUint32(blob, uint32(numRows))
	blob = append(blob, colsDesc...)
	blob = append(blob, rowsBuf...)
	blob = append(blob, stringsHeap...)
	blob = append(blob, dataHeap...)

	return blob
}
