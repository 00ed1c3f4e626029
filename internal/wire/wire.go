// Package wire decodes the fixed-width integers of the dictionary binary
// format. Every on-disk int32 carries a byte-order tag in the index header;
// callers must thread that tag through instead of assuming host order.
package wire

import "encoding/binary"

// Order selects how the multi-byte integers in a dictionary file were
// written. The tag lives in bit 0 of IndexDataHeader.BitFlag.
type Order bool

const (
	LittleEndian Order = false
	BigEndian    Order = true
)

// OrderFromBit derives an Order from bit 0 of a header's bit_flag field.
func OrderFromBit(bitFlag int32) Order {
	if bitFlag&1 != 0 {
		return BigEndian
	}
	return LittleEndian
}

func (o Order) byteOrder() binary.ByteOrder {
	if o == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Uint32 decodes a 4-byte unsigned integer at the front of buf.
func (o Order) Uint32(buf []byte) uint32 {
	return o.byteOrder().Uint32(buf)
}

// Int32 decodes a 4-byte signed integer at the front of buf.
func (o Order) Int32(buf []byte) int32 {
	return int32(o.byteOrder().Uint32(buf))
}

// Uint16 decodes a 2-byte unsigned integer at the front of buf.
func (o Order) Uint16(buf []byte) uint16 {
	return o.byteOrder().Uint16(buf)
}

// Int16 decodes a 2-byte signed integer at the front of buf.
func (o Order) Int16(buf []byte) int16 {
	return int16(o.byteOrder().Uint16(buf))
}

// PutUint32 encodes v into buf using the receiver's byte order.
func (o Order) PutUint32(buf []byte, v uint32) {
	o.byteOrder().PutUint32(buf, v)
}

// PutInt32 encodes v into buf using the receiver's byte order.
func (o Order) PutInt32(buf []byte, v int32) {
	o.byteOrder().PutUint32(buf, uint32(v))
}

// PutUint16 encodes v into buf using the receiver's byte order.
func (o Order) PutUint16(buf []byte, v uint16) {
	o.byteOrder().PutUint16(buf, v)
}

// PutInt16 encodes v into buf using the receiver's byte order.
func (o Order) PutInt16(buf []byte, v int16) {
	o.byteOrder().PutUint16(buf, uint16(v))
}

// InformationMagic is the magic value at the start of the 64-byte trailer.
const InformationMagic uint32 = 0x7FEDC000

// InformationSize is the fixed size, in bytes, of the trailer.
const InformationSize = 64

// IndexDataHeaderSize is the fixed size, in bytes, of IndexDataHeader.
const IndexDataHeaderSize = 32

// FixedArrayEntrySize is the byte size of one FixedArray[256] slot.
const FixedArrayEntrySize = 8

// BlockSize is the byte size of one Block record (offset + packed size/count).
const BlockSize = 8

// BlockShortSize is the byte size of one BlockShort record.
const BlockShortSize = 2

// BlockShortFlag is bit 31 of IndexDataHeader.BitFlag; when set the index
// uses the compact BlockShort layout instead of Block.
const BlockShortFlag int32 = -1 << 31
