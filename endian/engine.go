// Package endian provides byte order utilities for decoding CPK archives.
//
// The package combines the ByteOrder and AppendByteOrder interfaces from
// encoding/binary into a unified EndianEngine interface, and builds a
// seekable Reader on top of it. CPK mixes byte orders: the outer framing and
// @UTF payloads are big-endian while the inner table envelopes are
// little-endian, so the Reader carries a mutable endianness flag that callers
// flip between sub-operations.
package endian

import "encoding/binary"

// EndianEngine combines ByteOrder and AppendByteOrder from encoding/binary
// into a single interface for convenient byte order operations.
//
// This interface is satisfied by binary.LittleEndian and binary.BigEndian
// from the standard library, making it fully compatible with existing Go
// code while providing access to both read and append operations.
type EndianEngine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// GetLittleEndianEngine returns the little-endian engine.
func GetLittleEndianEngine() EndianEngine {
	return binary.LittleEndian
}

// GetBigEndianEngine returns the big-endian engine.
func GetBigEndianEngine() EndianEngine {
	return binary.BigEndian
}
