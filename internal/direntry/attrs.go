//go:build linux

package direntry

import (
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/jmalicki/arsync-sub000/internal/arerr"
)

// Mkdir creates a subdirectory relative to dir.
func Mkdir(dir *Handle, name string, perm os.FileMode) error {
	if err := unix.Mkdirat(dir.fd, name, uint32(perm&0o7777)); err != nil {
		if err == unix.EEXIST {
			return arerr.New(arerr.KindAlreadyExists, dir.path, name, err)
		}
		return arerr.New(arerr.KindIO, dir.path, name, err)
	}
	return nil
}

func followFlag(follow bool) int {
	if follow {
		return 0
	}
	return unix.AT_SYMLINK_NOFOLLOW
}

// Chmod sets permission bits on name relative to dir. follow=false asks
// for a no-follow mode change, which the kernel may refuse; every
// failure, including that refusal, is returned as KindPermissions.
func Chmod(dir *Handle, name string, perm os.FileMode, follow bool) error {
	err := unix.Fchmodat(dir.fd, name, uint32(perm&0o7777), followFlag(follow))
	if err != nil {
		return arerr.Wrapf(arerr.KindPermissions, dir.path, name, err, "chmod")
	}
	return nil
}

// Chown sets ownership on name relative to dir.
func Chown(dir *Handle, name string, uid, gid int, follow bool) error {
	if err := unix.Fchownat(dir.fd, name, uid, gid, followFlag(follow)); err != nil {
		return arerr.Wrapf(arerr.KindOwnership, dir.path, name, err, "chown")
	}
	return nil
}

// Utimens sets atime/mtime on name relative to dir to nanosecond
// precision where supported.
func Utimens(dir *Handle, name string, atime, mtime time.Time, follow bool) error {
	ts := [2]unix.Timespec{
		unix.NsecToTimespec(atime.UnixNano()),
		unix.NsecToTimespec(mtime.UnixNano()),
	}
	if err := unix.UtimesNanoAt(dir.fd, name, ts[:], followFlag(follow)); err != nil {
		return arerr.Wrapf(arerr.KindTimes, dir.path, name, err, "utimens")
	}
	return nil
}

// Symlink creates a symlink named name under dir pointing at target.
func Symlink(dir *Handle, name, target string) error {
	if err := unix.Symlinkat(target, dir.fd, name); err != nil {
		if err == unix.EEXIST {
			return arerr.New(arerr.KindAlreadyExists, dir.path, name, err)
		}
		return arerr.New(arerr.KindIO, dir.path, name, err)
	}
	return nil
}

// readlinkInitialBufSize is the metadata-buffer size used for the first
// readlink attempt; a symlink whose target is longer than this retries
// with a progressively larger buffer up to platform PATH_MAX.
const readlinkInitialBufSize = 4096

// Readlink reads the target of symlink name under dir, growing the
// buffer up to unix.PathMax if the first attempt truncates.
func Readlink(dir *Handle, name string, scratch []byte) (string, error) {
	buf := scratch
	if len(buf) == 0 {
		buf = make([]byte, readlinkInitialBufSize)
	}
	for {
		n, err := unix.Readlinkat(dir.fd, name, buf)
		if err != nil {
			return "", arerr.New(arerr.KindIO, dir.path, name, err)
		}
		if n < len(buf) {
			return string(buf[:n]), nil
		}
		if len(buf) >= unix.PathMax {
			return string(buf[:n]), nil
		}
		buf = make([]byte, min(len(buf)*2, unix.PathMax))
	}
}

// Mknod creates a device/FIFO/socket node. On platforms where the kernel
// type isn't supported, the caller should translate ENOTSUP/EPERM into
// arerr.KindUnsupportedKind (mirrored here for the common cases).
func Mknod(dir *Handle, name string, typ FileType, rdev uint64, perm os.FileMode) error {
	var mode uint32
	switch typ {
	case TypeBlockDevice:
		mode = unix.S_IFBLK
	case TypeCharDevice:
		mode = unix.S_IFCHR
	case TypeFIFO:
		mode = unix.S_IFIFO
	case TypeSocket:
		mode = unix.S_IFSOCK
	default:
		return arerr.New(arerr.KindUnsupportedKind, dir.path, name, nil)
	}
	mode |= uint32(perm & 0o7777)
	if err := unix.Mknodat(dir.fd, name, mode, int(rdev)); err != nil {
		if err == unix.EPERM || err == unix.ENOTSUP {
			return arerr.New(arerr.KindUnsupportedKind, dir.path, name, err)
		}
		return arerr.New(arerr.KindIO, dir.path, name, err)
	}
	return nil
}

// Unlink removes name relative to dir (used to clean up a failed
// content-transfer's partially written file, mirroring
// backend/local.go's Update error path).
func Unlink(dir *Handle, name string) error {
	if err := unix.Unlinkat(dir.fd, name, 0); err != nil {
		return arerr.New(arerr.KindIO, dir.path, name, err)
	}
	return nil
}

// Link creates a hardlink at (dstDir, dstName) pointing at the same inode
// as (srcDir, srcName). Both must be within the same mounted filesystem.
func Link(srcDir *Handle, srcName string, dstDir *Handle, dstName string) error {
	if err := unix.Linkat(srcDir.fd, srcName, dstDir.fd, dstName, 0); err != nil {
		if err == unix.EXDEV {
			return arerr.New(arerr.KindCrossDevice, dstDir.path, dstName, err)
		}
		return arerr.New(arerr.KindIO, dstDir.path, dstName, err)
	}
	return nil
}
