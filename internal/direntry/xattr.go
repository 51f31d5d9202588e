//go:build linux

package direntry

import (
	"syscall"

	"github.com/pkg/xattr"

	"github.com/jmalicki/arsync-sub000/internal/arerr"
)

// XattrList lists the extended attribute names on an open file handle,
// avoiding the path race a path-based listxattr would have.
//
// Grounded on rclone's backend/local/xattr.go, adapted from path-based
// xattr.List/LList calls to the *File-handle variants since this
// package's contract is handle-relative, not path-relative.
func XattrList(f *osFileLike) ([]string, error) {
	names, err := xattr.FList(f.file)
	if err != nil {
		if isXattrUnsupported(err) {
			return nil, nil
		}
		return nil, arerr.Wrapf(arerr.KindXattr, f.dirPath, f.name, err, "listxattr")
	}
	return names, nil
}

// XattrGet reads one extended attribute's value via the open handle.
func XattrGet(f *osFileLike, name string) ([]byte, error) {
	v, err := xattr.FGet(f.file, name)
	if err != nil {
		if isXattrUnsupported(err) {
			return nil, nil
		}
		return nil, arerr.Wrapf(arerr.KindXattr, f.dirPath, f.name, err, "getxattr %q", name)
	}
	return v, nil
}

// XattrSet writes one extended attribute's value via the open handle.
// A permission-denied failure on a single attribute is reported but does
// not abort preservation of the rest of the entry's attributes.
func XattrSet(f *osFileLike, name string, value []byte) error {
	if err := xattr.FSet(f.file, name, value); err != nil {
		if isXattrUnsupported(err) {
			return nil
		}
		return arerr.Wrapf(arerr.KindXattr, f.dirPath, f.name, err, "setxattr %q", name)
	}
	return nil
}

// XattrRemove removes one extended attribute via the open handle.
func XattrRemove(f *osFileLike, name string) error {
	if err := xattr.FRemove(f.file, name); err != nil {
		if isXattrUnsupported(err) {
			return nil
		}
		return arerr.Wrapf(arerr.KindXattr, f.dirPath, f.name, err, "removexattr %q", name)
	}
	return nil
}

// isXattrUnsupported mirrors backend/local/xattr.go's xattrIsNotSupported:
// xattrs can be reported unsupported as ENOTSUP, ENOATTR, or (on some
// platforms) EINVAL.
func isXattrUnsupported(err error) bool {
	xerr, ok := err.(*xattr.Error)
	if !ok {
		return false
	}
	return xerr.Err == syscall.EINVAL || xerr.Err == syscall.ENOTSUP || xerr.Err == xattr.ENOATTR
}
