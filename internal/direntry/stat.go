//go:build linux

package direntry

import (
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/jmalicki/arsync-sub000/internal/arerr"
)

// FileType enumerates the kinds of directory entry this package can
// preserve.
type FileType int

// File types.
const (
	TypeUnknown FileType = iota
	TypeRegular
	TypeDirectory
	TypeSymlink
	TypeBlockDevice
	TypeCharDevice
	TypeFIFO
	TypeSocket
)

// Metadata is the attribute set recorded for one directory entry,
// fetched exactly once per entry via Stat.
type Metadata struct {
	Type        FileType
	Size        int64
	Mode        os.FileMode // permission bits only
	UID, GID    uint32
	MTime, ATime time.Time
	Device      uint64
	Inode       uint64
	LinkCount   uint64
	Rdev        uint64 // device number, for block/char devices
}

func fileTypeFromMode(m uint32) FileType {
	switch m & unix.S_IFMT {
	case unix.S_IFREG:
		return TypeRegular
	case unix.S_IFDIR:
		return TypeDirectory
	case unix.S_IFLNK:
		return TypeSymlink
	case unix.S_IFBLK:
		return TypeBlockDevice
	case unix.S_IFCHR:
		return TypeCharDevice
	case unix.S_IFIFO:
		return TypeFIFO
	case unix.S_IFSOCK:
		return TypeSocket
	default:
		return TypeUnknown
	}
}

// Stat issues exactly one extended-stat-relative syscall for name under
// dir. Per the "one-stat-per-entry" invariant, callers must cache
// the result and never call Stat again for the same entry. follow=false
// uses lstat semantics (AT_SYMLINK_NOFOLLOW).
func Stat(dir *Handle, name string, follow bool) (Metadata, error) {
	var st unix.Stat_t
	flags := unix.AT_SYMLINK_NOFOLLOW
	if follow {
		flags = 0
	}
	if err := unix.Fstatat(dir.fd, name, &st, flags); err != nil {
		return Metadata{}, classifyStatErr(dir.path, name, err)
	}
	return Metadata{
		Type:      fileTypeFromMode(st.Mode),
		Size:      st.Size,
		Mode:      os.FileMode(st.Mode & 0o7777),
		UID:       st.Uid,
		GID:       st.Gid,
		MTime:     time.Unix(st.Mtim.Sec, st.Mtim.Nsec),
		ATime:     time.Unix(st.Atim.Sec, st.Atim.Nsec),
		Device:    uint64(st.Dev),
		Inode:     st.Ino,
		LinkCount: uint64(st.Nlink),
		Rdev:      uint64(st.Rdev),
	}, nil
}

func classifyStatErr(dir, name string, err error) error {
	switch err {
	case unix.ENOENT:
		return arerr.New(arerr.KindNotFound, dir, name, err)
	case unix.EACCES:
		return arerr.New(arerr.KindPermissionDenied, dir, name, err)
	case unix.ENOTDIR:
		return arerr.New(arerr.KindNotDirectory, dir, name, err)
	default:
		return arerr.New(arerr.KindIO, dir, name, err)
	}
}
