// Package dispatch implements the request dispatcher (§4.5): parses the
// one-byte command from a slot's buffer and routes it to a lookup,
// completion, version, hostinfo, or close response, reusing the slot's own
// buffers in place wherever the protocol allows it.
package dispatch

import (
	"bytes"
	"fmt"

	"github.com/yaskkserv/yaskkserv-go/internal/dictionary"
	"github.com/yaskkserv/yaskkserv-go/internal/merge"
	"github.com/yaskkserv/yaskkserv-go/internal/midasi"
	"github.com/yaskkserv/yaskkserv-go/internal/pool"
)

// IMELookup is satisfied by an optional remote-IME collaborator
// (internal/imecache.Client). A lookup that misses every local dictionary
// falls back to it before replying not-found.
type IMELookup interface {
	Lookup(query []byte) (candidates []byte, ok bool)
}

// DictionaryHandle is one open dictionary plus whether it participates in
// completion (an IME-only collaborator is skipped for completion, §4.5).
type DictionaryHandle struct {
	Dict              *dictionary.Dictionary
	SkipForCompletion bool
}

// Dispatcher holds the server-wide state a request handler needs: the open
// dictionary set, version/hostinfo strings, completion limits, and an
// optional IME collaborator.
type Dispatcher struct {
	Dictionaries []DictionaryHandle
	Version      string
	Hostname     string

	// CompletionLimit and CompletionBufferSize are server_completion_midasi_length
	// and its output-buffer cap from §4.5/§7, applied while walking
	// search_next_entry.
	CompletionLimit     int
	CompletionBufferSize int

	// CompletionSeparator controls the --server-completion-test
	// slash-vs-space choice (§7); '/' is the default and matches the
	// worked example in §8.
	CompletionSeparator byte
	// CompletionAliasC makes the 'c' command byte behave like '4' (the
	// "hairy variant" alternate-completion alias).
	CompletionAliasC bool

	IME IMELookup
}

// DefaultCompletionLimit and DefaultCompletionBufferSize mirror §7's
// documented defaults.
const (
	DefaultCompletionLimit      = 2048
	DefaultCompletionBufferSize = 256 * 1024
)

// New returns a Dispatcher with the §7 defaults for completion limits and
// the '/' separator.
func New(version, hostname string) *Dispatcher {
	return &Dispatcher{
		Version:              version,
		Hostname:             hostname,
		CompletionLimit:      DefaultCompletionLimit,
		CompletionBufferSize: DefaultCompletionBufferSize,
		CompletionSeparator:  '/',
	}
}

// Handle is a pool.Handler: it parses the command byte and dispatches.
func (d *Dispatcher) Handle(s *pool.Slot) (reply []byte, closeSlot bool) {
	req := s.ReadBuf[:s.ReadProcessIndex]
	if len(req) == 0 {
		return nil, true
	}

	switch cmd := req[0]; {
	case cmd == '0':
		return nil, true
	case cmd == '1':
		return d.lookup(s, req), false
	case cmd == '2':
		return []byte(d.Version), false
	case cmd == '3':
		return d.hostinfo(s), false
	case cmd == '4' || (d.CompletionAliasC && cmd == 'c'):
		return d.completion(req), false
	default:
		return []byte("0\n"), false
	}
}

func argument(req []byte) []byte {
	rest := req[1:]
	if end := bytes.IndexAny(rest, " \n"); end >= 0 {
		return rest[:end]
	}
	return rest
}

// lookup implements §4.5's "Lookup response in place" (P1) for the common
// single-hit case, and falls back to the candidate merger (which must
// copy) when more than one dictionary and/or the IME collaborator produced
// a hit.
func (d *Dispatcher) lookup(s *pool.Slot, req []byte) []byte {
	query := argument(req)

	type hit struct {
		dict  *dictionary.Dictionary
		entry dictionary.Entry
	}
	var hits []hit
	for _, dd := range d.Dictionaries {
		entry, ok, err := dd.Dict.Search(query)
		if err != nil {
			continue // per-dictionary failure degrades to not-found for it (§7)
		}
		if ok {
			hits = append(hits, hit{dict: dd.Dict, entry: entry})
		}
	}

	var imeCandidates []byte
	imeHit := false
	if len(hits) == 0 && d.IME != nil {
		if c, ok := d.IME.Lookup(query); ok {
			imeCandidates = c
			imeHit = true
		}
	}

	switch {
	case len(hits) == 1 && !imeHit:
		return lookupInPlace(hits[0].dict, hits[0].entry)
	case len(hits) > 1 || (len(hits) >= 1 && imeHit):
		count := 0
		for _, h := range hits {
			count += bytes.Count(h.entry.Candidates(h.dict.Block()), []byte{'/'})
		}
		if imeHit {
			count += bytes.Count(imeCandidates, []byte{'/'})
		}
		m, err := merge.New(count)
		if err != nil {
			// Table sizing refused; fall back to the first hit only
			// rather than failing the whole request.
			return lookupInPlace(hits[0].dict, hits[0].entry)
		}
		for _, h := range hits {
			m.AddResponse(h.entry.Candidates(h.dict.Block()))
		}
		if imeHit {
			m.AddResponse(imeCandidates)
		}
		return m.Write()
	case imeHit:
		m, err := merge.New(1)
		if err != nil {
			return notFound(s)
		}
		m.AddResponse(imeCandidates)
		return m.Write()
	default:
		return notFound(s)
	}
}

// lookupInPlace writes '1' over the space byte preceding the candidate
// string inside the dictionary's cached block buffer, copies
// "1" + candidates + '\n' out of it into the returned reply in one append,
// then restores the mutated byte (invariant P1/T5).
func lookupInPlace(dict *dictionary.Dictionary, entry dictionary.Entry) []byte {
	block := dict.Block()
	spaceIdx := entry.SpaceIndex()
	original := block[spaceIdx]
	block[spaceIdx] = '1'
	out := make([]byte, 0, entry.CandidateEnd-spaceIdx+1)
	out = append(out, block[spaceIdx:entry.CandidateEnd]...)
	out = append(out, '\n')
	block[spaceIdx] = original
	return out
}

// notFound implements §4.5's "Not-found response" (P2): a '4' command byte
// followed by the entire original request (including its own command
// byte) and a guaranteed trailing newline, matching the worked example in
// §8 ("1xyz \n" ⇒ "41xyz \n"). Built as the two-slice gather write §9
// allows as an alternative to the in-place overwrite-and-restore trick,
// since the original request bytes must survive unmodified in the output.
func notFound(s *pool.Slot) []byte {
	n := s.ReadProcessIndex
	req := s.ReadBuf[:n]
	needsLF := n == 0 || req[n-1] != '\n'

	out := make([]byte, 0, n+2)
	out = append(out, '4')
	out = append(out, req...)
	if needsLF {
		out = append(out, '\n')
	}
	return out
}

func (d *Dispatcher) hostinfo(s *pool.Slot) []byte {
	addr := ""
	if s.RemoteAddr() != nil {
		addr = s.RemoteAddr().String()
	}
	return []byte(fmt.Sprintf("%s:%s: ", d.Hostname, addr))
}

// completion implements §4.5's completion walk: for every dictionary that
// participates, search the prefix (falling back to search_first_character
// on a miss), iterate search_next_entry while the decoded headword still
// starts with the prefix, skip okuri-ari entries, and deduplicate the
// result across dictionaries via the candidate merger.
func (d *Dispatcher) completion(req []byte) []byte {
	prefix := argument(req)

	limit := d.CompletionLimit
	if limit <= 0 {
		limit = DefaultCompletionLimit
	}
	bufCap := d.CompletionBufferSize
	if bufCap <= 0 {
		bufCap = DefaultCompletionBufferSize
	}

	m, err := merge.New(limit)
	if err != nil {
		m, _ = merge.New(0)
	}

	emitted := 0
	size := 3 // "1/" + '\n'

	for _, dd := range d.Dictionaries {
		if dd.SkipForCompletion {
			continue
		}
		entry, ok, err := dd.Dict.Search(prefix)
		if err != nil {
			continue
		}
		if !ok {
			entry, ok, err = dd.Dict.SearchFirstCharacter(prefix)
			if err != nil || !ok {
				continue
			}
		}

		for {
			if emitted >= limit || size >= bufCap {
				break
			}
			decoded, decOK := midasi.Decode(entry.Midasi, dictionary.MidasiSize)
			if !decOK {
				decoded = stripSpecialPrefix(entry.Midasi)
			}
			if !bytes.HasPrefix(decoded, prefix) {
				break
			}
			if !midasi.OkuriAri(decoded) {
				seg := append(append([]byte{}, decoded...), d.CompletionSeparator)
				before := m.Len()
				m.AddMidasiResponse(seg)
				if m.Len() > before {
					emitted++
					size += len(seg)
				}
			}

			var next dictionary.Entry
			var nextOK bool
			next, nextOK, err = dd.Dict.SearchNextEntry()
			if err != nil || !nextOK {
				break
			}
			entry = next
		}
	}

	return m.Write()
}

func stripSpecialPrefix(encoded []byte) []byte {
	if len(encoded) > 0 && encoded[0] == 0x01 {
		return encoded[1:]
	}
	return encoded
}
