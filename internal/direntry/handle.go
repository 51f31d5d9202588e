//go:build linux

// Package direntry implements the directory-handle layer: pinned
// directory handles plus *at-style operations that take a handle and a
// relative name instead of re-resolving a path from the filesystem root.
// This is the TOCTOU-safety boundary: once a root is opened, nothing
// below it walks a path again.
//
// Grounded on rclone's backend/local (stat_unix.go, linkinfo_unix.go,
// symlink.go, xattr.go), adapted from path-based operations (rclone's
// local backend only ever has one root open at a time) to handle-relative
// operations using golang.org/x/sys/unix's *at syscalls.
package direntry

import (
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/jmalicki/arsync-sub000/internal/arerr"
)

// Handle is an owned kernel-level descriptor for an opened directory plus
// its absolute path, the latter kept for diagnostics only. Created by
// opening the sync roots or a subdirectory; shared by reference among
// all jobs operating below it; dropped when all descendant jobs
// complete.
type Handle struct {
	fd   int
	path string // diagnostics only; never used to re-resolve
	refs atomic.Int32
	once sync.Once
}

// OpenRoot opens absPath as a root directory handle.
func OpenRoot(absPath string) (*Handle, error) {
	fd, err := unix.Open(absPath, unix.O_DIRECTORY|unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, classifyOpenErr(absPath, "", err)
	}
	h := &Handle{fd: fd, path: absPath}
	h.refs.Store(1)
	return h, nil
}

// OpenSubdir opens name relative to dir, refusing to follow a symlink in
// the final path component (O_NOFOLLOW).
func OpenSubdir(dir *Handle, name string) (*Handle, error) {
	fd, err := unix.Openat(dir.fd, name, unix.O_DIRECTORY|unix.O_RDONLY|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, classifyOpenErr(dir.path, name, err)
	}
	h := &Handle{fd: fd, path: dir.path + "/" + name}
	h.refs.Store(1)
	return h, nil
}

// FD returns the underlying file descriptor, for use by operations in
// this package that need unix.*at calls not yet wrapped as methods.
func (h *Handle) FD() int { return h.fd }

// Path returns the absolute path recorded for diagnostics. Never use this
// to re-open or re-resolve anything.
func (h *Handle) Path() string { return h.path }

// Retain increments the reference count, e.g. when a traversal worker
// hands this handle to multiple concurrently-spawned child jobs.
func (h *Handle) Retain() *Handle {
	h.refs.Add(1)
	return h
}

// Release decrements the reference count, closing the underlying
// descriptor when it reaches zero.
func (h *Handle) Release() error {
	if h.refs.Add(-1) > 0 {
		return nil
	}
	var err error
	h.once.Do(func() {
		err = unix.Close(h.fd)
	})
	return err
}

// ReadDirNames lists the entries of dir in directory-reader order,
// without consuming dir's own read position (it opens a fresh "."-relative
// descriptor so the traversal engine can call this exactly once per
// directory handle to enumerate the source directory using only the
// pinned handle).
func (h *Handle) ReadDirNames() ([]string, error) {
	fd, err := unix.Openat(h.fd, ".", unix.O_DIRECTORY|unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, classifyOpenErr(h.path, ".", err)
	}
	f := os.NewFile(uintptr(fd), h.path)
	defer f.Close()
	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, arerr.New(arerr.KindIO, h.path, "", err)
	}
	return names, nil
}

// OpenFile opens name relative to dir with the given flags/mode, refusing a
// symlink final component. Used for regular-file content transfer.
func OpenFile(dir *Handle, name string, flags int, mode os.FileMode) (*os.File, error) {
	fd, err := unix.Openat(dir.fd, name, flags|unix.O_NOFOLLOW|unix.O_CLOEXEC, uint32(mode))
	if err != nil {
		if err == unix.ELOOP {
			return nil, arerr.New(arerr.KindSymlinkNotAllowed, dir.path, name, err)
		}
		return nil, classifyOpenErr(dir.path, name, err)
	}
	return os.NewFile(uintptr(fd), dir.path+"/"+name), nil
}

func classifyOpenErr(dir, name string, err error) error {
	switch err {
	case unix.ENOENT:
		return arerr.New(arerr.KindNotFound, dir, name, err)
	case unix.EACCES, unix.EPERM:
		return arerr.New(arerr.KindPermissionDenied, dir, name, err)
	case unix.ENOTDIR:
		return arerr.New(arerr.KindNotDirectory, dir, name, err)
	case unix.EISDIR:
		return arerr.New(arerr.KindIsDirectory, dir, name, err)
	case unix.ELOOP:
		return arerr.New(arerr.KindSymlinkNotAllowed, dir, name, err)
	case unix.EEXIST:
		return arerr.New(arerr.KindAlreadyExists, dir, name, err)
	default:
		return arerr.New(arerr.KindIO, dir, name, err)
	}
}
