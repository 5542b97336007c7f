package utf

// Storage modes, encoded in the high nibble of a column's flags byte.
const (
	StorageNone     = 0x00 // StorageNone marks a column with no stored values.
	StorageZero     = 0x10 // StorageZero marks a column whose values are implicitly zero.
	StorageConstant = 0x30 // StorageConstant marks a column with a single shared value.
	StoragePerRow   = 0x50 // StoragePerRow marks a column with one value per row.
)

// ColumnType is a column's value type code, encoded in the low nibble of the
// flags byte. Odd codes are nominally signed variants; the parser stores both
// halves as unsigned of the same width.
type ColumnType uint8

const (
	TypeUint8   ColumnType = 0x00
	TypeInt8    ColumnType = 0x01
	TypeUint16  ColumnType = 0x02
	TypeInt16   ColumnType = 0x03
	TypeUint32  ColumnType = 0x04
	TypeInt32   ColumnType = 0x05
	TypeUint64  ColumnType = 0x06
	TypeInt64   ColumnType = 0x07
	TypeFloat32 ColumnType = 0x08
	TypeString  ColumnType = 0x0A
	TypeData    ColumnType = 0x0B
)

func (t ColumnType) String() string {
	switch t {
	case TypeUint8:
		return "UInt8"
	case TypeInt8:
		return "Int8"
	case TypeUint16:
		return "UInt16"
	case TypeInt16:
		return "Int16"
	case TypeUint32:
		return "UInt32"
	case TypeInt32:
		return "Int32"
	case TypeUint64:
		return "UInt64"
	case TypeInt64:
		return "Int64"
	case TypeFloat32:
		return "Float"
	case TypeString:
		return "String"
	case TypeData:
		return "Data"
	default:
		return "Unknown"
	}
}

// Column describes one table column: a raw flags byte and a resolved name.
type Column struct {
	Flags uint8
	Name  string
}

// Storage returns the column's storage mode (the high nibble of Flags).
func (c Column) Storage() uint8 {
	return c.Flags & 0xF0
}

// Type returns the column's value type (the low nibble of Flags).
func (c Column) Type() ColumnType {
	return ColumnType(c.Flags & 0x0F)
}
