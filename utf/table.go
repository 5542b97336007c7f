// Package utf parses the @UTF tabular metadata format embedded in CPK
// archives.
//
// An @UTF table is a big-endian blob holding a column descriptor list, a
// row-major cell matrix, and two indirection heaps (strings and data). Each
// column carries a storage mode and a value type in a single flags byte;
// per-row cells are read at a fixed row stride while the other storage modes
// contribute no bytes. Cell positions within the blob are recorded at read
// time so consumers can learn where a value physically lives.
//
// Table blobs may be stored scrambled with a byte-wise XOR keystream; see
// Decrypt.
package utf

import (
	"bytes"
	"fmt"
	"io"

	"github.com/arloliu/cpk/endian"
	"github.com/arloliu/cpk/errs"
)

const headerFieldsLen = 24 // offset fields through num_rows, after signature and table_size

// Cell is one decoded table cell: the tagged value and the byte position
// within the blob where its raw bytes live. Cells of columns without per-row
// storage hold the None value and record the cursor at the point the cell was
// visited.
type Cell struct {
	Value    Value
	Position int64
}

// Row is an ordered sequence of cells, one per column.
type Row []Cell

// Table is a fully parsed @UTF table.
type Table struct {
	TableSize     uint32
	RowsOffset    int64
	StringsOffset int64
	DataOffset    int64
	TableName     uint32
	NumColumns    uint16
	RowLength     uint16
	NumRows       uint32
	Columns       []Column
	Rows          []Row
}

// Parse decodes one @UTF table blob. The blob must begin with the plaintext
// "@UTF" signature; callers descramble with Decrypt first when needed.
func Parse(data []byte) (*Table, error) {
	r := endian.NewReader(bytes.NewReader(data), false)

	sig, err := r.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("read UTF signature: %w", err)
	}
	if string(sig) != Signature {
		return nil, errs.ErrInvalidUTFSignature
	}

	t := &Table{}
	if t.TableSize, err = r.ReadUint32(); err != nil {
		return nil, fmt.Errorf("read UTF table size: %w", err)
	}

	rowsRel, err := r.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("read rows offset: %w", err)
	}
	stringsRel, err := r.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("read strings offset: %w", err)
	}
	dataRel, err := r.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("read data offset: %w", err)
	}

	// Heap offsets are stored relative to the byte just after table_size.
	t.RowsOffset = int64(rowsRel) + 8
	t.StringsOffset = int64(stringsRel) + 8
	t.DataOffset = int64(dataRel) + 8

	if t.RowsOffset > int64(len(data)) || t.StringsOffset > int64(len(data)) || t.DataOffset > int64(len(data)) {
		return nil, fmt.Errorf("%w: UTF heap offset beyond table end (rows=0x%X strings=0x%X data=0x%X len=0x%X)",
			errs.ErrInvalidFormat, t.RowsOffset, t.StringsOffset, t.DataOffset, len(data))
	}

	if t.TableName, err = r.ReadUint32(); err != nil {
		return nil, fmt.Errorf("read table name offset: %w", err)
	}
	if t.NumColumns, err = r.ReadUint16(); err != nil {
		return nil, fmt.Errorf("read column count: %w", err)
	}
	if t.RowLength, err = r.ReadUint16(); err != nil {
		return nil, fmt.Errorf("read row length: %w", err)
	}
	if t.NumRows, err = r.ReadUint32(); err != nil {
		return nil, fmt.Errorf("read row count: %w", err)
	}

	if err := t.readColumns(r); err != nil {
		return nil, err
	}

	return t, t.readRows(r)
}

func (t *Table) readColumns(r *endian.Reader) error {
	t.Columns = make([]Column, 0, t.NumColumns)
	for i := range int(t.NumColumns) {
		flags, err := r.ReadUint8()
		if err != nil {
			return fmt.Errorf("read column %d flags: %w", i, err)
		}
		if flags == 0 {
			// A zero flags byte is followed by three padding bytes; the real
			// flags byte comes after them.
			if _, err := r.Seek(3, io.SeekCurrent); err != nil {
				return fmt.Errorf("skip column %d flags padding: %w", i, err)
			}
			if flags, err = r.ReadUint8(); err != nil {
				return fmt.Errorf("re-read column %d flags: %w", i, err)
			}
		}

		nameOffset, err := r.ReadUint32()
		if err != nil {
			return fmt.Errorf("read column %d name offset: %w", i, err)
		}

		name, err := t.readStringAt(r, int64(nameOffset))
		if err != nil || name == "" {
			// Unresolvable names degrade to positional ones so the rest of the
			// table stays usable.
			name = fmt.Sprintf("Column%d", i)
		}

		t.Columns = append(t.Columns, Column{Flags: flags, Name: name})
	}

	return nil
}

func (t *Table) readRows(r *endian.Reader) error {
	t.Rows = make([]Row, 0, t.NumRows)
	for rowIdx := range int(t.NumRows) {
		if _, err := r.Seek(t.RowsOffset+int64(rowIdx)*int64(t.RowLength), io.SeekStart); err != nil {
			return fmt.Errorf("seek to row %d: %w", rowIdx, err)
		}

		row := make(Row, 0, len(t.Columns))
		for colIdx := range t.Columns {
			cell, err := t.readCell(r, &t.Columns[colIdx])
			if err != nil {
				return fmt.Errorf("row %d column %q: %w", rowIdx, t.Columns[colIdx].Name, err)
			}
			row = append(row, cell)
		}

		t.Rows = append(t.Rows, row)
	}

	return nil
}

func (t *Table) readCell(r *endian.Reader, col *Column) (Cell, error) {
	pos, err := r.Position()
	if err != nil {
		return Cell{}, err
	}

	switch col.Storage() {
	case StorageNone, StorageZero, StorageConstant:
		return Cell{Value: None, Position: pos}, nil
	case StoragePerRow:
		// Handled below.
	default:
		return Cell{}, fmt.Errorf("%w: unknown storage flag 0x%02X", errs.ErrParse, col.Storage())
	}

	var value Value
	switch col.Type() {
	case TypeUint8, TypeInt8:
		v, err := r.ReadUint8()
		if err != nil {
			return Cell{}, err
		}
		value = Uint8Value(v)
	case TypeUint16, TypeInt16:
		v, err := r.ReadUint16()
		if err != nil {
			return Cell{}, err
		}
		value = Uint16Value(v)
	case TypeUint32, TypeInt32:
		v, err := r.ReadUint32()
		if err != nil {
			return Cell{}, err
		}
		value = Uint32Value(v)
	case TypeUint64, TypeInt64:
		v, err := r.ReadUint64()
		if err != nil {
			return Cell{}, err
		}
		value = Uint64Value(v)
	case TypeFloat32:
		v, err := r.ReadFloat32()
		if err != nil {
			return Cell{}, err
		}
		value = Float32Value(v)
	case TypeString:
		strOffset, err := r.ReadUint32()
		if err != nil {
			return Cell{}, err
		}
		s, err := t.readStringAt(r, int64(strOffset))
		if err != nil {
			return Cell{}, err
		}
		value = StringValue(s)
	case TypeData:
		dataOffset, err := r.ReadUint32()
		if err != nil {
			return Cell{}, err
		}
		dataSize, err := r.ReadUint32()
		if err != nil {
			return Cell{}, err
		}
		b, err := t.readDataAt(r, int64(dataOffset), int(dataSize))
		if err != nil {
			return Cell{}, err
		}
		value = DataValue(b)
	default:
		return Cell{}, fmt.Errorf("%w: unsupported column type 0x%02X", errs.ErrParse, uint8(col.Type()))
	}

	return Cell{Value: value, Position: pos}, nil
}

// readStringAt resolves an indirect string from the strings heap, restoring
// the cursor afterwards.
func (t *Table) readStringAt(r *endian.Reader, offset int64) (string, error) {
	saved, err := r.Position()
	if err != nil {
		return "", err
	}
	if _, err := r.Seek(t.StringsOffset+offset, io.SeekStart); err != nil {
		return "", err
	}

	// Restore the cursor even when the string read fails; column-name
	// fallback keeps parsing from the same spot.
	s, readErr := r.ReadCString(0)
	if _, err := r.Seek(saved, io.SeekStart); err != nil {
		return "", err
	}
	if readErr != nil {
		return "", readErr
	}

	return s, nil
}

// readDataAt resolves an indirect blob from the data heap, restoring the
// cursor afterwards.
func (t *Table) readDataAt(r *endian.Reader, offset int64, size int) ([]byte, error) {
	saved, err := r.Position()
	if err != nil {
		return nil, err
	}
	if _, err := r.Seek(t.DataOffset+offset, io.SeekStart); err != nil {
		return nil, err
	}

	b, err := r.ReadBytes(size)
	if err != nil {
		return nil, fmt.Errorf("%w: data cell [0x%X..+0x%X] beyond table end", errs.ErrInvalidFormat, t.DataOffset+offset, size)
	}
	if _, err := r.Seek(saved, io.SeekStart); err != nil {
		return nil, err
	}

	return b, nil
}

func (t *Table) columnIndex(name string) (int, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return i, true
		}
	}

	return 0, false
}

// GetColumnData returns the cell value at (row, name). The second return is
// false when the column does not exist or the row is out of range.
func (t *Table) GetColumnData(row int, name string) (Value, bool) {
	idx, ok := t.columnIndex(name)
	if !ok || row < 0 || row >= len(t.Rows) {
		return None, false
	}

	return t.Rows[row][idx].Value, true
}

// GetColumnPosition returns the blob position where the cell's raw value was
// read.
func (t *Table) GetColumnPosition(row int, name string) (int64, bool) {
	idx, ok := t.columnIndex(name)
	if !ok || row < 0 || row >= len(t.Rows) {
		return 0, false
	}

	return t.Rows[row][idx].Position, true
}

// GetColumnDataOrDefault returns the cell value at (row, name), or the
// all-ones sentinel of the given kind when the column is missing or holds the
// absent variant.
func (t *Table) GetColumnDataOrDefault(row int, name string, kind Kind) Value {
	v, ok := t.GetColumnData(row, name)
	if !ok || v.IsNone() {
		return DefaultValue(kind)
	}

	return v
}
