// Package merge implements the candidate merger (§4.3): combining one or
// more "/cand1/cand2/.../" response strings from different dictionaries
// (and optionally a remote IME response) into a single deduplicated
// protocol reply, without copying any candidate bytes out of the buffers
// that produced them.
package merge

import (
	"bytes"
	"errors"
)

// primes are the candidate hash table sizes to choose from, smallest to
// largest, matching §4.3 step 1 exactly.
var primes = []int{1031, 2053, 4099, 8209, 16411, 32771, 65539}

// maxCandidates is the refusal threshold from §4.3 step 1: if the summed
// candidate count exceeds it, the merge is refused outright rather than
// growing further.
const maxCandidates = 32768

// ErrTooManyCandidates is returned when the summed candidate count across
// all inputs exceeds maxCandidates.
var ErrTooManyCandidates = errors.New("merge: candidate count exceeds table capacity")

// segment is a pointer into one of the caller-supplied response buffers;
// Merger never copies candidate bytes.
type segment struct {
	bytes []byte // non-terminator prefix, used as the hash key
	full  []byte // bytes + trailing delimiter, as written to the output
}

// Merger deduplicates candidate segments across one or more responses using
// an open-addressing hash set sized to the expected cardinality. order
// records first-appearance order (T4) separately from the table, since the
// hash table's own slot order is an artifact of probing, not insertion.
type Merger struct {
	table []segment // nil entry == empty slot
	order []segment
	used  int
}

// New sizes a Merger's hash table for an expected total candidate count,
// picking the smallest prime from primes that exceeds it. Returns
// ErrTooManyCandidates if count exceeds maxCandidates.
func New(expectedCount int) (*Merger, error) {
	if expectedCount > maxCandidates {
		return nil, ErrTooManyCandidates
	}
	size := primes[len(primes)-1]
	for _, p := range primes {
		if p > expectedCount {
			size = p
			break
		}
	}
	return &Merger{table: make([]segment, size)}, nil
}

// rollingHash computes the polynomial rolling hash h = h*61 + byte over key,
// matching §4.3's hash function exactly.
func rollingHash(key []byte) uint64 {
	var h uint64
	for _, b := range key {
		h = h*61 + uint64(b)
	}
	return h
}

// AddResponse splits resp on '/' and inserts each non-empty segment,
// skipping ones already present. Segments are compared and hashed only over
// their bytes up to the next '/'; resp must outlive every subsequent Write,
// since Merger stores pointers into it, never copies.
func (m *Merger) AddResponse(resp []byte) {
	for len(resp) > 0 {
		end := bytes.IndexByte(resp, '/')
		if end < 0 {
			// Trailing bytes with no closing delimiter are not a complete
			// segment and are dropped, matching the "/…/…/…/" framing.
			return
		}
		if end == 0 {
			resp = resp[1:]
			continue
		}
		seg := resp[:end]
		m.insert(seg, resp[:end+1])
		resp = resp[end+1:]
	}
}

// AddMidasiResponse is the completion-path variant: candidate terminators
// are '/', NUL, or space instead of just '/'.
func (m *Merger) AddMidasiResponse(resp []byte) {
	for len(resp) > 0 {
		end := bytes.IndexAny(resp, "/\x00 ")
		if end < 0 {
			return
		}
		if end == 0 {
			resp = resp[1:]
			continue
		}
		seg := resp[:end]
		m.insert(seg, resp[:end+1])
		resp = resp[end+1:]
	}
}

// insert adds key (keyed by key's bytes) into the hash table via linear
// probing if not already present, storing full (key + its terminator) as
// the segment to emit on Write.
func (m *Merger) insert(key, full []byte) {
	if len(m.table) == 0 {
		return
	}
	idx := int(rollingHash(key) % uint64(len(m.table)))
	for i := 0; i < len(m.table); i++ {
		probe := (idx + i) % len(m.table)
		slot := m.table[probe]
		if slot.bytes == nil {
			s := segment{bytes: key, full: full}
			m.table[probe] = s
			m.order = append(m.order, s)
			m.used++
			return
		}
		if bytes.Equal(slot.bytes, key) {
			return // already present
		}
	}
	// Table is full; per the sizing contract this should not happen since
	// New rejects inputs that would overflow the chosen prime.
}

// Len reports the number of distinct segments merged so far.
func (m *Merger) Len() int {
	return m.used
}

// Write emits "1/" + every distinct segment, in first-appearance order
// (T4), + "\n" into a buffer sized for Σ candidate bytes plus a small
// header/terminator margin, and returns it.
func (m *Merger) Write() []byte {
	size := 2 + 1 // "1/" + '\n'
	for _, s := range m.order {
		size += len(s.full)
	}
	out := make([]byte, 0, size)
	out = append(out, '1', '/')
	for _, s := range m.order {
		out = append(out, s.full...)
	}
	out = append(out, '\n')
	return out
}
