//go:build linux

package direntry

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/jmalicki/arsync-sub000/internal/arerr"
)

// CopyRange performs one best-effort kernel-assisted range copy from src
// to dst. It may copy fewer than len bytes (or zero, on cross-filesystem
// pairs) and must be called in a loop by the caller, which falls back to
// read/write when it returns (0, nil, false).
//
// Returns (bytesCopied, err, supported). supported=false means the
// caller should fall back to read/write immediately and stop calling
// CopyRange for the rest of this file (EXDEV/ENOSYS are sticky for a
// given filesystem pair).
func CopyRange(src, dst *os.File, srcOff, dstOff int64, length int) (int64, error, bool) {
	so := srcOff
	do := dstOff
	n, err := unix.CopyFileRange(int(src.Fd()), &so, int(dst.Fd()), &do, length, 0)
	if err != nil {
		switch err {
		case unix.EXDEV, unix.ENOSYS, unix.EOPNOTSUPP:
			return 0, nil, false
		default:
			return 0, arerr.New(arerr.KindIO, dst.Name(), "", err), true
		}
	}
	return int64(n), nil, true
}
