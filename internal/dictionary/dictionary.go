// Package dictionary implements the on-disk binary dictionary format and its
// random-access search engine: a 256-bucket fanout table, per-block offset
// metadata, a sparse sorted summary string per fanout bucket, and
// variable-length entries read one block at a time.
//
// A *Dictionary holds exactly one cached block. Lookup proceeds fanout →
// summary-string scan → block read → binary search with a linear fallback,
// matching the original implementation bit for bit (see
// original_source/source/skk/skk_dictionary.hpp for the reference this was
// ported from).
package dictionary

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/yaskkserv/yaskkserv-go/internal/midasi"
	"github.com/yaskkserv/yaskkserv-go/internal/wire"
)

const (
	// MidasiSize is the maximum byte length of a raw query headword.
	MidasiSize = 510

	// encodedMidasiBufferSize is the scratch buffer budget for the encoded
	// form of a query headword; margin leaves room for the fallback raw
	// copy's 0x01 prefix.
	encodedMidasiBufferSize = 520
	encodedMidasiMargin     = 8

	indexDataSizeMin = 1024
	indexDataSizeMax = 256 * 1024
	blockSizeMin     = 32
	blockSizeMax     = 256 * 1024
)

var (
	// ErrBadMagic is returned by Open when the trailer's magic doesn't match.
	ErrBadMagic = errors.New("dictionary: bad information trailer magic")
	// ErrBadIndexSize is returned by Open when the header's declared
	// index/block sizes fall outside the sane ranges the format allows.
	ErrBadIndexSize = errors.New("dictionary: index or block size out of range")
	// ErrPermission is returned by Open when the file's owner/mode fails
	// the startup permission check (§6).
	ErrPermission = errors.New("dictionary: refusing world/group-writable or foreign-owned file")
)

// Entry describes one dictionary hit. Midasi and the candidate byte range
// point into the Dictionary's currently cached block buffer (see Block);
// they are valid only until the next Search/SearchFirstCharacter/
// SearchNextEntry call on the same Dictionary.
type Entry struct {
	Midasi         []byte
	CandidateStart int
	CandidateEnd   int
}

// Candidates returns the entry's candidate bytes, "/cand1/cand2/.../",
// sliced out of the given block buffer (normally Dictionary.Block()).
func (e Entry) Candidates(block []byte) []byte {
	return block[e.CandidateStart:e.CandidateEnd]
}

// SpaceIndex returns the offset, within the block buffer, of the space
// byte separating the headword from its candidates — the byte dispatch's
// in-place '1' mutation (P1) writes into and restores.
func (e Entry) SpaceIndex() int {
	return e.CandidateStart - 1
}

// Dictionary owns one dictionary file's descriptor, header, index tables,
// and single block-sized read buffer.
type Dictionary struct {
	path string
	file *os.File
	mtime time.Time

	header     IndexDataHeader
	byteOrder  wire.Order
	fixedArray [256]FixedArrayEntry

	blocks      []Block      // nil when UsesBlockShort
	blocksShort []BlockShort // nil otherwise
	blockSize   int

	summary             []byte // whole summary-string region
	normalStringSize    int32
	readOffsetStartBase int64 // file offset the normal block region starts at

	cachedOffset int64
	cachedBlock  []byte

	// state carried from the last successful Search*/SearchNextEntry call,
	// enabling SearchNextEntry to resume.
	lastReadOffsetStart int64
	lastStartBlock      int32
	lastBlockLength     int32
	lastBlockIndex      int32
	lastEntryEnd        int // byte offset, in cachedBlock, of the next unread line
	lastOK              bool
}

// Open opens a dictionary file read-only, validates its trailer and index
// header, and loads the fanout table, block descriptors, and summary
// string region into memory. A failure returns a nil *Dictionary and a
// non-nil error; the caller should treat this as a startup-fatal condition
// (§7) for files named on the command line, or a background warning (§7)
// for a hot-reload attempt.
func Open(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dictionary: open %s: %w", path, err)
	}
	closeOnErr := func(err error) (*Dictionary, error) {
		f.Close()
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		return closeOnErr(fmt.Errorf("dictionary: stat %s: %w", path, err))
	}
	if err := CheckPermission(fi); err != nil {
		return closeOnErr(fmt.Errorf("dictionary: %s: %w", path, err))
	}

	trailer := make([]byte, wire.InformationSize)
	if _, err := f.ReadAt(trailer, fi.Size()-wire.InformationSize); err != nil {
		return closeOnErr(fmt.Errorf("dictionary: read trailer of %s: %w", path, err))
	}
	info, ok := decodeInformation(trailer)
	if !ok {
		return closeOnErr(fmt.Errorf("%w: %s", ErrBadMagic, path))
	}

	if info.IndexDataOffset <= 0 ||
		info.IndexDataSize <= indexDataSizeMin ||
		info.IndexDataSize >= indexDataSizeMax {
		return closeOnErr(fmt.Errorf("%w: %s", ErrBadIndexSize, path))
	}

	indexBuf := make([]byte, info.IndexDataSize)
	if _, err := f.ReadAt(indexBuf, int64(info.IndexDataOffset)); err != nil {
		return closeOnErr(fmt.Errorf("dictionary: read index region of %s: %w", path, err))
	}

	header := decodeIndexDataHeader(indexBuf, info.ByteOrder)
	if header.BlockSize < blockSizeMin || header.BlockSize > blockSizeMax {
		return closeOnErr(fmt.Errorf("%w: %s", ErrBadIndexSize, path))
	}

	d := &Dictionary{
		path:                path,
		file:                f,
		mtime:               fi.ModTime(),
		header:              header,
		byteOrder:           info.ByteOrder,
		blockSize:           int(header.BlockSize),
		normalStringSize:    header.NormalStringSize,
		cachedOffset:        -1,
		readOffsetStartBase: 0,
	}

	off := wire.IndexDataHeaderSize
	for i := 0; i < 256; i++ {
		d.fixedArray[i] = decodeFixedArrayEntry(indexBuf[off:off+wire.FixedArrayEntrySize], info.ByteOrder)
		off += wire.FixedArrayEntrySize
	}

	total := int(header.NormalBlockLength + header.SpecialBlockLength)
	if header.UsesBlockShort() {
		d.blocksShort = make([]BlockShort, total)
		for i := 0; i < total; i++ {
			d.blocksShort[i] = decodeBlockShort(indexBuf[off:off+wire.BlockShortSize], info.ByteOrder)
			off += wire.BlockShortSize
		}
	} else {
		d.blocks = make([]Block, total)
		for i := 0; i < total; i++ {
			d.blocks[i] = decodeBlock(indexBuf[off:off+wire.BlockSize], info.ByteOrder)
			off += wire.BlockSize
		}
	}

	if off > len(indexBuf) {
		return closeOnErr(fmt.Errorf("%w: %s (truncated index)", ErrBadIndexSize, path))
	}
	d.summary = indexBuf[off:]

	return d, nil
}

// CheckPermission enforces the startup rule of §6: a dictionary file is
// only accepted if it's owned by root or the running process, and carries
// no group/world write bits.
func CheckPermission(fi fs.FileInfo) error {
	if fi.Mode().Perm()&0o022 != 0 {
		return ErrPermission
	}
	if owner, ok := fileOwner(fi); ok {
		if owner != 0 && owner != uint32(os.Getuid()) {
			return ErrPermission
		}
	}
	return nil
}

// Close releases the dictionary's file descriptor. Safe to call once.
func (d *Dictionary) Close() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

// Path returns the filesystem path this dictionary was opened from.
func (d *Dictionary) Path() string {
	return d.path
}

// Block returns the currently cached block buffer. Entry byte ranges from
// the most recent Search/SearchFirstCharacter/SearchNextEntry call index
// into this slice; it is only valid until the next such call.
func (d *Dictionary) Block() []byte {
	return d.cachedBlock
}

// IsUpdate stats the dictionary's file and reports whether its mtime
// differs from the one recorded at Open; IsUpdate itself never updates
// the recorded mtime. The caller is responsible for closing and
// re-opening when it returns true (§4.2, §5 reload gate).
func (d *Dictionary) IsUpdate() (bool, error) {
	fi, err := os.Stat(d.path)
	if err != nil {
		return false, err
	}
	if !fi.ModTime().Equal(d.mtime) {
		return true, nil
	}
	return false, nil
}

// Search looks up an exact headword match.
func (d *Dictionary) Search(query []byte) (Entry, bool, error) {
	return d.search(query, false)
}

// SearchFirstCharacter returns the first entry of the block whose summary
// could contain query — used to seed a completion scan.
func (d *Dictionary) SearchFirstCharacter(query []byte) (Entry, bool, error) {
	return d.search(query, true)
}

func (d *Dictionary) search(query []byte, first bool) (Entry, bool, error) {
	limit := encodedMidasiBufferSize - encodedMidasiMargin
	encoded := midasi.EncodeOrRaw(query, limit)

	var startBlock, blockLength int32
	var readOffsetStart int64
	var summary []byte

	if midasi.IsSpecialBucket(encoded) {
		startBlock = d.header.NormalBlockLength
		blockLength = d.header.SpecialBlockLength
		readOffsetStart = int64(d.header.SpecialEntryOffset)
		summary = d.summary[d.normalStringSize:]
	} else {
		bucket := midasi.FirstByteBucket(encoded)
		fa := d.fixedArray[bucket]
		if fa.BlockLength == 0 {
			return Entry{}, false, nil
		}
		startBlock = fa.StartBlock
		blockLength = fa.BlockLength
		readOffsetStart = 0
		summary = d.summary[fa.StringDataOffset:]
	}

	for i := int32(0); i < blockLength; i++ {
		end := bytes.IndexByte(summary, ' ')
		var summaryEntry []byte
		if end < 0 {
			summaryEntry = summary
		} else {
			summaryEntry = summary[:end]
		}

		if midasi.Compare(summaryEntry, encoded) >= 0 {
			blockBuf, err := d.loadBlock(readOffsetStart, startBlock+i)
			if err != nil {
				return Entry{}, false, err
			}

			if first {
				entry := entryAt(blockBuf, 0)
				d.rememberPosition(readOffsetStart, startBlock, blockLength, i, entry)
				return entry, true, nil
			}

			if entry, ok := binarySearchBlock(blockBuf, encoded); ok {
				d.rememberPosition(readOffsetStart, startBlock, blockLength, i, entry)
				return entry, true, nil
			}
			if entry, ok := linearSearchBlock(blockBuf, encoded); ok {
				d.rememberPosition(readOffsetStart, startBlock, blockLength, i, entry)
				return entry, true, nil
			}
			return Entry{}, false, nil
		}

		if end < 0 {
			break
		}
		summary = summary[end+1:]
	}
	return Entry{}, false, nil
}

// SearchNextEntry advances past the last entry returned by Search,
// SearchFirstCharacter, or a prior SearchNextEntry, within the same block
// list. Returns false once the block range is exhausted.
func (d *Dictionary) SearchNextEntry() (Entry, bool, error) {
	if !d.lastOK || d.lastBlockIndex >= d.lastBlockLength {
		return Entry{}, false, nil
	}

	blockBuf := d.cachedBlock
	if d.lastEntryEnd >= len(blockBuf) {
		d.lastBlockIndex++
		if d.lastBlockIndex >= d.lastBlockLength {
			d.lastOK = false
			return Entry{}, false, nil
		}
		var err error
		blockBuf, err = d.loadBlock(d.lastReadOffsetStart, d.lastStartBlock+d.lastBlockIndex)
		if err != nil {
			return Entry{}, false, err
		}
		d.lastEntryEnd = 0
	}

	entry := entryAt(blockBuf, d.lastEntryEnd)
	d.lastEntryEnd = entry.CandidateEnd + 1 // past the '\n'
	return entry, true, nil
}

func (d *Dictionary) rememberPosition(readOffsetStart int64, startBlock, blockLength, blockIndex int32, entry Entry) {
	d.lastReadOffsetStart = readOffsetStart
	d.lastStartBlock = startBlock
	d.lastBlockLength = blockLength
	d.lastBlockIndex = blockIndex
	d.lastEntryEnd = entry.CandidateEnd + 1
	d.lastOK = true
}

// loadBlock returns the (possibly cached) buffer for block index idx
// within the block list starting at readOffsetStart.
func (d *Dictionary) loadBlock(readOffsetStart int64, idx int32) ([]byte, error) {
	var fileOffset int64
	var size int

	if d.blocks != nil {
		b := d.blocks[idx]
		fileOffset = readOffsetStart + int64(b.Offset)
		size = int(b.DataSize())
	} else {
		b := d.blocksShort[idx]
		fileOffset = int64(idx) * int64(d.blockSize)
		size = int(b.DataSize)
	}

	if d.cachedOffset == fileOffset && len(d.cachedBlock) == size {
		return d.cachedBlock, nil
	}

	buf := make([]byte, size)
	if _, err := d.file.ReadAt(buf, fileOffset); err != nil {
		return nil, fmt.Errorf("dictionary: read block at %d: %w", fileOffset, err)
	}
	d.cachedOffset = fileOffset
	d.cachedBlock = buf
	return buf, nil
}

// entryAt parses one "HEADWORD SPACE /cand/.../ NEWLINE" line starting at
// pos within a block buffer.
func entryAt(block []byte, pos int) Entry {
	rest := block[pos:]
	spaceIdx := bytes.IndexByte(rest, ' ')
	if spaceIdx < 0 {
		spaceIdx = len(rest)
	}
	candStart := pos + spaceIdx + 1
	nlIdx := bytes.IndexByte(block[candStart:], '\n')
	candEnd := len(block)
	if nlIdx >= 0 {
		candEnd = candStart + nlIdx
	}
	return Entry{
		Midasi:         block[pos : pos+spaceIdx],
		CandidateStart: candStart,
		CandidateEnd:   candEnd,
	}
}

// binarySearchBlock narrows by repeatedly snapping the midpoint forward to
// the next line boundary and comparing headwords. A block's byte midpoint
// rarely lands exactly on a headword boundary, so this is an approximate
// narrowing pass; linearSearchBlock is the correctness backstop.
func binarySearchBlock(block []byte, encoded []byte) (Entry, bool) {
	lo, hi := 0, len(block)
	for lo < hi {
		mid := lo + (hi-lo)/2
		lineStart := mid
		if lineStart != 0 {
			nlIdx := bytes.IndexByte(block[lineStart:], '\n')
			if nlIdx < 0 {
				break
			}
			lineStart += nlIdx + 1
		}
		if lineStart >= len(block) {
			hi = mid
			continue
		}
		entry := entryAt(block, lineStart)
		switch c := midasi.Compare(entry.Midasi, encoded); {
		case c == 0:
			return entry, true
		case c < 0:
			lo = lineStart + 1
		default:
			hi = mid
		}
	}
	return Entry{}, false
}

// linearSearchBlock scans every line in the block in order. It exists
// because the binary search above only snaps to line boundaries
// approximately; this guarantees T1 (search returns the same result as a
// linear scan under the canonical comparison) regardless of how the binary
// pass narrowed.
func linearSearchBlock(block []byte, encoded []byte) (Entry, bool) {
	pos := 0
	for pos < len(block) {
		entry := entryAt(block, pos)
		if midasi.Compare(entry.Midasi, encoded) == 0 {
			return entry, true
		}
		pos = entry.CandidateEnd + 1
	}
	return Entry{}, false
}
