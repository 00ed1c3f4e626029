package dispatch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yaskkserv/yaskkserv-go/internal/dictionary"
	"github.com/yaskkserv/yaskkserv-go/internal/pool"
)

// EUC-JP byte forms used throughout, taken directly from the worked
// examples in spec.md §8: あい = A4 A2 A4 A4, 愛 = B0 A6, 相 = C1 EA.
var (
	ai      = []byte{0xA4, 0xA2, 0xA4, 0xA4}
	kanjiAi = []byte{0xB0, 0xA6}
	kanjiAu = []byte{0xC1, 0xEA}
)

func buildDict(t *testing.T, entries []dictionary.SourceEntry) *dictionary.Dictionary {
	t.Helper()
	data, err := dictionary.Build(entries, dictionary.DefaultBuildOptions())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "test.dict")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	d, err := dictionary.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func candidates(segs ...[]byte) []byte {
	out := []byte("/")
	for _, s := range segs {
		out = append(out, s...)
		out = append(out, '/')
	}
	return out
}

func feed(s *pool.Slot, req []byte) {
	copy(s.ReadBuf[:], req)
	s.ReadProcessIndex = len(req)
}

func TestScenario1NormalLookup(t *testing.T) {
	d := buildDict(t, []dictionary.SourceEntry{
		{Headword: ai, Candidates: candidates(kanjiAi, kanjiAu)},
	})
	disp := New("test", "host")
	disp.Dictionaries = []DictionaryHandle{{Dict: d}}

	s := &pool.Slot{}
	req := append([]byte{'1'}, ai...)
	req = append(req, ' ', '\n')
	feed(s, req)

	reply, closeSlot := disp.Handle(s)
	require.False(t, closeSlot)
	require.Equal(t, "1"+string(candidates(kanjiAi, kanjiAu))+"\n", string(reply))
}

func TestScenario2NotFound(t *testing.T) {
	d := buildDict(t, nil)
	disp := New("test", "host")
	disp.Dictionaries = []DictionaryHandle{{Dict: d}}

	s := &pool.Slot{}
	req := []byte("1xyz \n")
	feed(s, req)

	reply, closeSlot := disp.Handle(s)
	require.False(t, closeSlot)
	require.Equal(t, "41xyz \n", string(reply))
}

func TestScenario3MergeTwoDictionaries(t *testing.T) {
	dictA := buildDict(t, []dictionary.SourceEntry{
		{Headword: ai, Candidates: candidates(kanjiAi)},
	})
	dictB := buildDict(t, []dictionary.SourceEntry{
		{Headword: ai, Candidates: candidates(kanjiAu, kanjiAi)},
	})
	disp := New("test", "host")
	disp.Dictionaries = []DictionaryHandle{{Dict: dictA}, {Dict: dictB}}

	s := &pool.Slot{}
	req := append([]byte{'1'}, ai...)
	req = append(req, ' ', '\n')
	feed(s, req)

	reply, closeSlot := disp.Handle(s)
	require.False(t, closeSlot)
	require.Equal(t, "1"+string(candidates(kanjiAi, kanjiAu))+"\n", string(reply))
}

func TestScenario6IllegalCommand(t *testing.T) {
	disp := New("test", "host")
	s := &pool.Slot{}
	feed(s, []byte("Z\n"))

	reply, closeSlot := disp.Handle(s)
	require.False(t, closeSlot)
	require.Equal(t, "0\n", string(reply))
}

func TestCloseCommand(t *testing.T) {
	disp := New("test", "host")
	s := &pool.Slot{}
	feed(s, []byte("0\n"))

	reply, closeSlot := disp.Handle(s)
	require.True(t, closeSlot)
	require.Nil(t, reply)
}

func TestVersionCommand(t *testing.T) {
	disp := New("yaskkserv-go 1.0", "host")
	s := &pool.Slot{}
	feed(s, []byte("2\n"))

	reply, closeSlot := disp.Handle(s)
	require.False(t, closeSlot)
	require.Equal(t, "yaskkserv-go 1.0", string(reply))
}

// TestBareSingleByteCommandsNeedNoTerminator exercises §6's bare
// single-byte commands ('0'/'2'/'3' sent without a trailing space or
// newline) straight through Handle. The pool layer's matching
// FrameComplete fix (it must not wait for a terminator on these commands)
// is covered directly in internal/pool's own tests.
func TestBareSingleByteCommandsNeedNoTerminator(t *testing.T) {
	disp := New("yaskkserv-go 1.0", "host")

	s := &pool.Slot{}
	feed(s, []byte("2"))
	reply, closeSlot := disp.Handle(s)
	require.False(t, closeSlot)
	require.Equal(t, "yaskkserv-go 1.0", string(reply))

	s = &pool.Slot{}
	feed(s, []byte("0"))
	reply, closeSlot = disp.Handle(s)
	require.True(t, closeSlot)
	require.Nil(t, reply)
}
