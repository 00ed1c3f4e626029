package dictionary

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/yaskkserv/yaskkserv-go/internal/midasi"
	"github.com/yaskkserv/yaskkserv-go/internal/wire"
)

// SourceEntry is one EUC-JP SKK dictionary line before encoding: a raw
// headword and its already-escaped "/cand1/cand2/.../" candidate string.
type SourceEntry struct {
	Headword   []byte
	Candidates []byte
}

// BuildOptions configures the on-disk layout Build produces.
type BuildOptions struct {
	BlockSize     int32
	UseBlockShort bool
	ByteOrder     wire.Order
}

// DefaultBuildOptions mirrors the defaults yaskkserv_make_dictionary used.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{BlockSize: 4096, UseBlockShort: false, ByteOrder: wire.LittleEndian}
}

type builtLine struct {
	encoded []byte
	line    []byte // encoded + ' ' + candidates + '\n'
}

// Build assembles the complete binary dictionary file described in §3 from
// a flat slice of source entries. This is the single code path both
// cmd/skkmkdict and every internal/dictionary test use to produce a
// dictionary, so format bugs show up the same way for both.
func Build(entries []SourceEntry, opts BuildOptions) ([]byte, error) {
	if opts.BlockSize <= 0 {
		opts.BlockSize = DefaultBuildOptions().BlockSize
	}

	limit := encodedMidasiBufferSize - encodedMidasiMargin

	buckets := make(map[byte][]builtLine)
	var special []builtLine

	for _, e := range entries {
		encoded := midasi.EncodeOrRaw(e.Headword, limit)
		var line bytes.Buffer
		line.Write(encoded)
		line.WriteByte(' ')
		line.Write(e.Candidates)
		line.WriteByte('\n')
		bl := builtLine{encoded: encoded, line: line.Bytes()}
		if midasi.IsSpecialBucket(encoded) {
			special = append(special, bl)
		} else {
			bucket := midasi.FirstByteBucket(encoded)
			buckets[bucket] = append(buckets[bucket], bl)
		}
	}

	sortLines := func(lines []builtLine) {
		sort.Slice(lines, func(i, j int) bool {
			return midasi.Compare(lines[i].encoded, lines[j].encoded) < 0
		})
	}
	for b := range buckets {
		sortLines(buckets[b])
	}
	sortLines(special)

	var normalEntries bytes.Buffer
	var fixedArray [256]FixedArrayEntry
	var blocks []Block
	var blocksShort []BlockShort
	var summary bytes.Buffer

	appendBlocks := func(lines []builtLine, region *bytes.Buffer) (startBlock int32, blockCount int32, stringOffset int32, err error) {
		startBlock = int32(len(blocks) + len(blocksShort))
		stringOffset = int32(summary.Len())

		i := 0
		for i < len(lines) {
			blockStart := int32(region.Len())
			j := i
			size := 0
			for j < len(lines) {
				lineLen := len(lines[j].line)
				if size > 0 && int32(size+lineLen) > opts.BlockSize {
					break
				}
				size += lineLen
				j++
			}
			if j == i {
				// a single line is larger than BlockSize: still must emit
				// it whole, matching I1's "fits in block_size" intent only
				// when callers pick a large enough block size.
				size = len(lines[i].line)
				j = i + 1
			}
			if opts.UseBlockShort && size > int(opts.BlockSize) {
				return 0, 0, 0, fmt.Errorf("dictionary: entry for %q (%d bytes) exceeds block size %d, cannot place at its implied block_index*block_size offset", lines[i].encoded, size, opts.BlockSize)
			}
			for k := i; k < j; k++ {
				region.Write(lines[k].line)
			}
			if opts.UseBlockShort {
				blocksShort = append(blocksShort, BlockShort{DataSize: int16(size)})
				// BlockShort's file offset is implied as block_index *
				// block_size (§3), so every block — including the last
				// one in a region — must occupy exactly block_size bytes
				// here, padded with zeros past its actual payload.
				if pad := int(opts.BlockSize) - size; pad > 0 {
					region.Write(make([]byte, pad))
				}
			} else {
				blocks = append(blocks, Block{
					Offset:             blockStart,
					LineLengthAndCount: int32(size) | int32(j-i)<<20,
				})
			}
			last := lines[j-1]
			summary.Write(last.encoded)
			summary.WriteByte(' ')
			i = j
		}
		blockCount = int32(len(blocks)+len(blocksShort)) - startBlock
		return
	}

	normalBlockLength := int32(0)
	for bucket := 1; bucket < 256; bucket++ {
		lines, ok := buckets[byte(bucket)]
		if !ok {
			continue
		}
		start, count, strOff, err := appendBlocks(lines, &normalEntries)
		if err != nil {
			return nil, err
		}
		fixedArray[bucket] = FixedArrayEntry{StartBlock: start, BlockLength: count, StringDataOffset: strOff}
		normalBlockLength += count
	}
	normalStringSize := int32(summary.Len())

	var specialEntries bytes.Buffer
	_, specialBlockLength, _, err := appendBlocks(special, &specialEntries)
	if err != nil {
		return nil, err
	}

	specialEntryOffset := int32(normalEntries.Len())

	var body bytes.Buffer
	body.Write(normalEntries.Bytes())
	body.Write(specialEntries.Bytes())
	for body.Len()%4 != 0 {
		body.WriteByte(0)
	}

	indexDataOffset := int32(body.Len())

	header := IndexDataHeader{
		BitFlag:            boolBit(opts.ByteOrder == wire.BigEndian) | boolBit32(opts.UseBlockShort, wire.BlockShortFlag),
		BlockSize:          opts.BlockSize,
		NormalBlockLength:  normalBlockLength,
		SpecialBlockLength: specialBlockLength,
		NormalStringSize:   normalStringSize,
		SpecialStringSize:  int32(summary.Len()) - normalStringSize,
		SpecialEntryOffset: specialEntryOffset,
	}

	var index bytes.Buffer
	headerBuf := make([]byte, wire.IndexDataHeaderSize)
	header.encode(headerBuf, opts.ByteOrder)
	index.Write(headerBuf)

	faBuf := make([]byte, wire.FixedArrayEntrySize)
	for i := 0; i < 256; i++ {
		fixedArray[i].encode(faBuf, opts.ByteOrder)
		index.Write(faBuf)
	}

	if opts.UseBlockShort {
		bsBuf := make([]byte, wire.BlockShortSize)
		for _, b := range blocksShort {
			b.encode(bsBuf, opts.ByteOrder)
			index.Write(bsBuf)
		}
	} else {
		bBuf := make([]byte, wire.BlockSize)
		for _, b := range blocks {
			b.encode(bBuf, opts.ByteOrder)
			index.Write(bBuf)
		}
	}
	index.Write(summary.Bytes())

	header.Size = int32(index.Len())

	for index.Len()%4 != 0 {
		index.WriteByte(0)
	}

	// Re-encode the header now that Size is known; it is the first field
	// in the index region so this is a fixed-offset patch.
	header.encode(headerBuf, opts.ByteOrder)
	indexBytes := index.Bytes()
	copy(indexBytes[:wire.IndexDataHeaderSize], headerBuf)

	body.Write(indexBytes)

	info := Information{
		Magic:           wire.InformationMagic,
		Version:         1,
		ByteOrder:       opts.ByteOrder,
		IndexDataOffset: indexDataOffset,
		IndexDataSize:   int32(len(indexBytes)),
		LineCount:       int64(len(entries)),
		ByteCount:       int64(body.Len() + wire.InformationSize),
	}
	body.Write(info.encode())

	if int(info.IndexDataSize) <= indexDataSizeMin || int(info.IndexDataSize) >= indexDataSizeMax {
		return nil, fmt.Errorf("dictionary: built index region size %d out of range", info.IndexDataSize)
	}

	return body.Bytes(), nil
}

func boolBit(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func boolBit32(b bool, bit int32) int32 {
	if b {
		return bit
	}
	return 0
}
