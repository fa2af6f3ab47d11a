//go:build unix

package fileset

import (
	"os"
	"syscall"
)

// statOwner extracts uid/gid from the platform-specific stat_t on unix
// systems, where ownership is a meaningful part of the cache key.
func statOwner(info os.FileInfo) (uint32, uint32) {
	sys, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0
	}
	return sys.Uid, sys.Gid
}
