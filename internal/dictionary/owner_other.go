//go:build !unix

package dictionary

import "io/fs"

// fileOwner has no portable equivalent outside Unix; the permission check
// falls back to mode bits only.
func fileOwner(fi fs.FileInfo) (uid uint32, ok bool) {
	return 0, false
}
