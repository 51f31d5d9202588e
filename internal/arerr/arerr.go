// Package arerr defines the error taxonomy shared by every core component.
//
// Every error a caller sees out of the core is a *Error with a Kind drawn
// from this taxonomy, so the CLI/progress collaborators can classify
// failures without string-matching messages.
package arerr

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Kind classifies a failure independent of the underlying OS error type.
type Kind int

// Error kinds.
const (
	KindUnknown Kind = iota
	KindNotFound
	KindAlreadyExists
	KindPermissionDenied
	KindIsDirectory
	KindNotDirectory
	KindUnsupportedKind
	KindCrossDevice
	KindShortRead
	KindShortWrite
	KindXattr
	KindOwnership
	KindPermissions
	KindTimes
	KindHardlinkFallback
	KindCancelled
	KindSymlinkNotAllowed
	KindTypeMismatch
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindIsDirectory:
		return "IsDirectory"
	case KindNotDirectory:
		return "NotDirectory"
	case KindUnsupportedKind:
		return "UnsupportedKind"
	case KindCrossDevice:
		return "CrossDevice"
	case KindShortRead:
		return "ShortRead"
	case KindShortWrite:
		return "ShortWrite"
	case KindXattr:
		return "XattrError"
	case KindOwnership:
		return "OwnershipError"
	case KindPermissions:
		return "PermissionsError"
	case KindTimes:
		return "TimesError"
	case KindHardlinkFallback:
		return "HardlinkFallback"
	case KindCancelled:
		return "Cancelled"
	case KindSymlinkNotAllowed:
		return "SymlinkNotAllowed"
	case KindTypeMismatch:
		return "TypeMismatch"
	case KindIO:
		return "Io"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned by every core operation that
// can fail. Path and Name identify the directory-relative operation that
// failed, for diagnostics only — never used to re-resolve anything.
type Error struct {
	Kind  Kind
	Path  string // absolute path of the containing directory, diagnostics only
	Name  string // name relative to Path
	cause error
}

func (e *Error) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: %s/%s: %v", e.Kind, e.Path, e.Name, e.cause)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.cause)
}

// Unwrap exposes the wrapped cause so errors.Is/As keep working across the
// syscall boundary.
func (e *Error) Unwrap() error { return e.cause }

// New builds a *Error of the given kind wrapping cause with dir/name
// context.
func New(kind Kind, dir, name string, cause error) *Error {
	return &Error{Kind: kind, Path: dir, Name: name, cause: pkgerrors.WithStack(cause)}
}

// Wrapf wraps cause with an additional message, preserving Kind/Path/Name.
func Wrapf(kind Kind, dir, name string, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Path: dir, Name: name, cause: pkgerrors.Wrapf(cause, format, args...)}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or KindUnknown if err is not a
// *Error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}
