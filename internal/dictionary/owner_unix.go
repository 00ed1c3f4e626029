//go:build unix

package dictionary

import (
	"io/fs"
	"syscall"
)

// fileOwner extracts the owning UID from a Unix FileInfo. ok is false when
// the underlying Sys() value isn't a *syscall.Stat_t (e.g. under a fake
// filesystem in tests), in which case the caller skips the ownership check
// and relies on the mode bits alone.
func fileOwner(fi fs.FileInfo) (uid uint32, ok bool) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, false
	}
	return st.Uid, true
}
