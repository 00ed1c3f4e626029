package dictionary

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, entries []SourceEntry, opts BuildOptions) string {
	t.Helper()
	data, err := Build(entries, opts)
	require.NoError(t, err)
	dir := t.TempDir()
	path := filepath.Join(dir, "test.dict")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func entry(headword, candidates string) SourceEntry {
	return SourceEntry{Headword: []byte(headword), Candidates: []byte(candidates)}
}

func TestOpenAndSearchExactMatch(t *testing.T) {
	path := writeFixture(t, []SourceEntry{
		entry("abc", "/cand1/cand2/"),
		entry("xyz", "/other/"),
	}, DefaultBuildOptions())

	d, err := Open(path)
	require.NoError(t, err)
	defer d.Close()

	got, ok, err := d.Search([]byte("abc "))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/cand1/cand2/", string(got.Candidates(d.Block())))
}

func TestSearchNotFound(t *testing.T) {
	path := writeFixture(t, []SourceEntry{entry("abc", "/cand1/")}, DefaultBuildOptions())
	d, err := Open(path)
	require.NoError(t, err)
	defer d.Close()

	_, ok, err := d.Search([]byte("zzz "))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEmptyDictionaryAllLookupsNotFound(t *testing.T) {
	path := writeFixture(t, nil, DefaultBuildOptions())
	d, err := Open(path)
	require.NoError(t, err)
	defer d.Close()

	_, ok, err := d.Search([]byte("anything "))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCompletionWalksPrefixMatches(t *testing.T) {
	path := writeFixture(t, []SourceEntry{
		entry("abc", "/1/"),
		entry("abd", "/2/"),
		entry("abe", "/3/"),
		entry("zzz", "/4/"),
	}, DefaultBuildOptions())
	d, err := Open(path)
	require.NoError(t, err)
	defer d.Close()

	entryHit, ok, err := d.SearchFirstCharacter([]byte("ab "))
	require.NoError(t, err)
	require.True(t, ok)

	var got []string
	got = append(got, string(entryHit.Midasi))
	for {
		next, ok, err := d.SearchNextEntry()
		require.NoError(t, err)
		if !ok {
			break
		}
		if len(next.Midasi) < 2 || string(next.Midasi[:2]) != "ab" {
			break
		}
		got = append(got, string(next.Midasi))
	}
	require.Equal(t, []string{"abc", "abd", "abe"}, got)
}

func TestSearchAcrossManyBlocksWithSmallBlockSize(t *testing.T) {
	var entries []SourceEntry
	words := []string{"aaa", "aab", "aac", "aad", "bbb", "bbc", "ccc", "ddd", "eee", "fff"}
	for _, w := range words {
		entries = append(entries, entry(w, "/"+w+"cand/"))
	}
	opts := DefaultBuildOptions()
	opts.BlockSize = 16 // force many small blocks so search crosses block boundaries
	path := writeFixture(t, entries, opts)

	d, err := Open(path)
	require.NoError(t, err)
	defer d.Close()

	for _, w := range words {
		got, ok, err := d.Search([]byte(w + " "))
		require.NoError(t, err)
		require.Truef(t, ok, "expected to find %q", w)
		require.Equal(t, "/"+w+"cand/", string(got.Candidates(d.Block())))
	}
}

func TestBlockShortLayout(t *testing.T) {
	opts := DefaultBuildOptions()
	opts.UseBlockShort = true
	path := writeFixture(t, []SourceEntry{
		entry("abc", "/cand1/"),
	}, opts)

	d, err := Open(path)
	require.NoError(t, err)
	defer d.Close()
	require.True(t, d.header.UsesBlockShort())

	got, ok, err := d.Search([]byte("abc "))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "/cand1/", string(got.Candidates(d.Block())))
}

// TestBlockShortLayoutMultipleBlocks catches the literal-example trap a
// single-entry fixture hides: BlockShort's file offset is implied as
// block_index * block_size (§3), so with more than one block in a bucket,
// block content must actually sit at those block_size-aligned offsets
// rather than packed contiguously. A small block size forces every entry
// in the "a" bucket into its own block.
func TestBlockShortLayoutMultipleBlocks(t *testing.T) {
	opts := DefaultBuildOptions()
	opts.UseBlockShort = true
	opts.BlockSize = 16

	entries := []SourceEntry{
		entry("aaa0", "/cand0/"),
		entry("aaa1", "/cand1/"),
		entry("aaa2", "/cand2/"),
		entry("aaa3", "/cand3/"),
		entry("aaa4", "/cand4/"),
		entry("aaa5", "/cand5/"),
	}
	path := writeFixture(t, entries, opts)

	d, err := Open(path)
	require.NoError(t, err)
	defer d.Close()
	require.True(t, d.header.UsesBlockShort())

	for _, e := range entries {
		got, ok, err := d.Search(append(append([]byte{}, e.Headword...), ' '))
		require.NoError(t, err)
		require.Truef(t, ok, "expected to find %q", e.Headword)
		require.Equal(t, string(e.Candidates), string(got.Candidates(d.Block())))
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.dict")
	require.NoError(t, os.WriteFile(path, make([]byte, 128), 0o600))
	_, err := Open(path)
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestIsUpdateDetectsMtimeChange(t *testing.T) {
	path := writeFixture(t, []SourceEntry{entry("abc", "/1/")}, DefaultBuildOptions())
	d, err := Open(path)
	require.NoError(t, err)
	defer d.Close()

	changed, err := d.IsUpdate()
	require.NoError(t, err)
	require.False(t, changed)

	data, err := Build([]SourceEntry{entry("abc", "/1/"), entry("def", "/2/")}, DefaultBuildOptions())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))

	changed, err = d.IsUpdate()
	require.NoError(t, err)
	require.True(t, changed)
}
