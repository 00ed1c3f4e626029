package dictionary

import "github.com/yaskkserv/yaskkserv-go/internal/wire"

// IndexDataHeader is the 32-byte header immediately preceding FixedArray in
// the index region. Every int32 field is encoded per the byte-order tag
// carried in BitFlag.
type IndexDataHeader struct {
	BitFlag            int32
	Size               int32
	BlockSize          int32
	NormalBlockLength  int32
	SpecialBlockLength int32
	NormalStringSize   int32
	SpecialStringSize  int32
	SpecialEntryOffset int32
}

// ByteOrder reports the byte order this header (and everything following
// it in the index region) was written with.
func (h IndexDataHeader) ByteOrder() wire.Order {
	return wire.OrderFromBit(h.BitFlag)
}

// UsesBlockShort reports whether bit 31 of BitFlag selects the compact
// BlockShort layout over Block.
func (h IndexDataHeader) UsesBlockShort() bool {
	return h.BitFlag&wire.BlockShortFlag != 0
}

func decodeIndexDataHeader(buf []byte, order wire.Order) IndexDataHeader {
	return IndexDataHeader{
		BitFlag:            order.Int32(buf[0:4]),
		Size:               order.Int32(buf[4:8]),
		BlockSize:          order.Int32(buf[8:12]),
		NormalBlockLength:  order.Int32(buf[12:16]),
		SpecialBlockLength: order.Int32(buf[16:20]),
		NormalStringSize:   order.Int32(buf[20:24]),
		SpecialStringSize:  order.Int32(buf[24:28]),
		SpecialEntryOffset: order.Int32(buf[28:32]),
	}
}

func (h IndexDataHeader) encode(buf []byte, order wire.Order) {
	order.PutInt32(buf[0:4], h.BitFlag)
	order.PutInt32(buf[4:8], h.Size)
	order.PutInt32(buf[8:12], h.BlockSize)
	order.PutInt32(buf[12:16], h.NormalBlockLength)
	order.PutInt32(buf[16:20], h.SpecialBlockLength)
	order.PutInt32(buf[20:24], h.NormalStringSize)
	order.PutInt32(buf[24:28], h.SpecialStringSize)
	order.PutInt32(buf[28:32], h.SpecialEntryOffset)
}

// FixedArrayEntry is one of the 256 fanout-table slots, indexed by the
// canonicalized first byte of a headword. Index 0 is never written by the
// builder; a bucket with BlockLength == 0 is simply empty.
type FixedArrayEntry struct {
	StartBlock       int32
	BlockLength      int32
	StringDataOffset int32
}

func decodeFixedArrayEntry(buf []byte, order wire.Order) FixedArrayEntry {
	// StartBlock and BlockLength are packed into the first word as two
	// 16-bit halves in the on-disk layout used by this dictionary
	// generation; StringDataOffset is the second word.
	return FixedArrayEntry{
		StartBlock:       int32(order.Int16(buf[0:2])),
		BlockLength:      int32(order.Int16(buf[2:4])),
		StringDataOffset: order.Int32(buf[4:8]),
	}
}

func (e FixedArrayEntry) encode(buf []byte, order wire.Order) {
	order.PutInt16(buf[0:2], int16(e.StartBlock))
	order.PutInt16(buf[2:4], int16(e.BlockLength))
	order.PutInt32(buf[4:8], e.StringDataOffset)
}

// Block is the full-size per-block descriptor: a byte offset (relative to
// the block region's read_offset_start) plus a packed size/count word
// whose low 20 bits are the block's byte length and whose high 12 bits are
// its entry count.
type Block struct {
	Offset             int32
	LineLengthAndCount int32
}

// DataSize returns the block's byte length (the low 20 bits).
func (b Block) DataSize() int32 {
	return b.LineLengthAndCount & 0xFFFFF
}

// EntryCount returns the block's entry count (the high 12 bits).
func (b Block) EntryCount() int32 {
	return (b.LineLengthAndCount >> 20) & 0xFFF
}

func decodeBlock(buf []byte, order wire.Order) Block {
	return Block{
		Offset:             order.Int32(buf[0:4]),
		LineLengthAndCount: order.Int32(buf[4:8]),
	}
}

func (b Block) encode(buf []byte, order wire.Order) {
	order.PutInt32(buf[0:4], b.Offset)
	order.PutInt32(buf[4:8], b.LineLengthAndCount)
}

// BlockShort is the compact per-block descriptor used when
// IndexDataHeader.UsesBlockShort is set. Its file offset is implied:
// block_index * block_size.
type BlockShort struct {
	DataSize int16
}

func decodeBlockShort(buf []byte, order wire.Order) BlockShort {
	return BlockShort{DataSize: order.Int16(buf[0:2])}
}

func (b BlockShort) encode(buf []byte, order wire.Order) {
	order.PutInt16(buf[0:2], b.DataSize)
}

// Information is the 64-byte trailer at EOF-64.
type Information struct {
	Magic          uint32
	Version        int32
	ByteOrder      wire.Order
	IndexDataOffset int32
	IndexDataSize   int32
	LineCount       int64
	ByteCount       int64
}

func decodeInformation(buf []byte) (Information, bool) {
	// The magic is read in both byte orders; whichever matches determines
	// the byte order for the rest of the trailer.
	leMagic := wire.LittleEndian.Uint32(buf[0:4])
	beMagic := wire.BigEndian.Uint32(buf[0:4])
	var order wire.Order
	switch wire.InformationMagic {
	case leMagic:
		order = wire.LittleEndian
	case beMagic:
		order = wire.BigEndian
	default:
		return Information{}, false
	}
	info := Information{
		Magic:           wire.InformationMagic,
		Version:         order.Int32(buf[4:8]),
		ByteOrder:       order,
		IndexDataOffset: order.Int32(buf[8:12]),
		IndexDataSize:   order.Int32(buf[12:16]),
		LineCount:       int64(order.Int32(buf[16:20])),
		ByteCount:       int64(order.Int32(buf[20:24])),
	}
	return info, true
}

func (info Information) encode() []byte {
	buf := make([]byte, wire.InformationSize)
	info.ByteOrder.PutUint32(buf[0:4], info.Magic)
	info.ByteOrder.PutInt32(buf[4:8], info.Version)
	info.ByteOrder.PutInt32(buf[8:12], info.IndexDataOffset)
	info.ByteOrder.PutInt32(buf[12:16], info.IndexDataSize)
	info.ByteOrder.PutInt32(buf[16:20], int32(info.LineCount))
	info.ByteOrder.PutInt32(buf[20:24], int32(info.ByteCount))
	return buf
}
