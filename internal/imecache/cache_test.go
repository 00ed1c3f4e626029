package imecache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTripFastTier(t *testing.T) {
	c := New(4, 4)
	require.NoError(t, c.Put([]byte("あい"), []byte("/愛/相/")))

	v, ok := c.Get([]byte("あい"))
	require.True(t, ok)
	require.Equal(t, "/愛/相/", string(v))

	stats := c.Stats()
	require.Equal(t, 1, stats.FastUsed)
	require.Equal(t, 0, stats.LargeUsed)
}

func TestPutRoutesOversizedKeyToLargeTier(t *testing.T) {
	c := New(4, 4)
	bigKey := make([]byte, FastKeyMax+1)
	for i := range bigKey {
		bigKey[i] = 'a'
	}
	require.NoError(t, c.Put(bigKey, []byte("value")))

	stats := c.Stats()
	require.Equal(t, 0, stats.FastUsed)
	require.Equal(t, 1, stats.LargeUsed)
}

func TestPutFailsWhenTooLargeForEitherTier(t *testing.T) {
	c := New(1, 1)
	bigKey := make([]byte, LargeKeyMax+1)
	err := c.Put(bigKey, []byte("value"))
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestPutOverwritesOldestEntryOnRingWraparound(t *testing.T) {
	c := New(2, 0)
	require.NoError(t, c.Put([]byte("k1"), []byte("v1")))
	require.NoError(t, c.Put([]byte("k2"), []byte("v2")))
	require.NoError(t, c.Put([]byte("k3"), []byte("v3"))) // wraps, evicts k1

	_, ok := c.Get([]byte("k1"))
	require.False(t, ok)

	v, ok := c.Get([]byte("k2"))
	require.True(t, ok)
	require.Equal(t, "v2", string(v))

	v, ok = c.Get([]byte("k3"))
	require.True(t, ok)
	require.Equal(t, "v3", string(v))
}

func TestGetMissReturnsFalse(t *testing.T) {
	c := New(4, 4)
	_, ok := c.Get([]byte("nope"))
	require.False(t, ok)
}

func TestDisabledTierNeverMatches(t *testing.T) {
	c := New(0, 4)
	require.NoError(t, c.Put([]byte("ab"), []byte("cd")))
	stats := c.Stats()
	require.Equal(t, 0, stats.FastEntries)
	require.Equal(t, 1, stats.LargeUsed)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	c := New(4, 4)
	require.NoError(t, c.Put([]byte("あい"), []byte("/愛/相/")))
	require.NoError(t, c.Put([]byte("ab"), []byte("cd")))

	path := filepath.Join(t.TempDir(), "cache.dat")
	require.NoError(t, c.Save(path))

	loaded := New(4, 4)
	require.NoError(t, loaded.Load(path))

	v, ok := loaded.Get([]byte("あい"))
	require.True(t, ok)
	require.Equal(t, "/愛/相/", string(v))

	v, ok = loaded.Get([]byte("ab"))
	require.True(t, ok)
	require.Equal(t, "cd", string(v))
}

func TestLoadRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.dat")
	require.NoError(t, os.WriteFile(path, make([]byte, headerSize+8), 0o644))

	c := New(4, 4)
	err := c.Load(path)
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestLoadTruncatesEntriesExceedingCapacity(t *testing.T) {
	c := New(8, 0)
	for i := 0; i < 8; i++ {
		require.NoError(t, c.Put([]byte{byte('a' + i)}, []byte{byte('0' + i)}))
	}
	path := filepath.Join(t.TempDir(), "cache.dat")
	require.NoError(t, c.Save(path))

	smaller := New(4, 0)
	require.NoError(t, smaller.Load(path))
	require.Equal(t, 4, len(smaller.fast.entries))
}

func TestLoadResetsIndexWhenItExceedsNewCapacity(t *testing.T) {
	c := New(8, 0)
	require.NoError(t, c.Put([]byte("x"), []byte("y")))
	path := filepath.Join(t.TempDir(), "cache.dat")
	require.NoError(t, c.Save(path))

	smaller := New(1, 0)
	require.NoError(t, smaller.Load(path))
	require.Less(t, smaller.fast.index, 1)
}

func TestSignatureIsStableForSameKey(t *testing.T) {
	require.Equal(t, signature([]byte("hello")), signature([]byte("hello")))
	require.NotEqual(t, signature([]byte("hello")), signature([]byte("world")))
}
