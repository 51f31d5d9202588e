//go:build linux

package direntry

import "os"

// osFileLike pairs an open *os.File with the diagnostic context (owning
// directory path and relative name) needed to build arerr.Error values
// without re-deriving a path. Constructed by OpenFile's callers via
// WrapFile once they already hold the *os.File.
type osFileLike struct {
	file    *os.File
	dirPath string
	name    string
}

// WrapFile attaches diagnostic context to an already-open file handle so
// the xattr helpers in this package can report errors without a second
// path lookup.
func WrapFile(f *os.File, dir *Handle, name string) *osFileLike {
	return &osFileLike{file: f, dirPath: dir.Path(), name: name}
}

// File returns the underlying *os.File.
func (f *osFileLike) File() *os.File { return f.file }
