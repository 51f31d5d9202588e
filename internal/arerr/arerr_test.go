package arerr

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	err := New(KindNotFound, "/src", "a.txt", os.ErrNotExist)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.True(t, Is(err, KindNotFound))
	assert.False(t, Is(err, KindIO))
	assert.False(t, Is(os.ErrNotExist, KindNotFound))
}

func TestWrapfPreservesKind(t *testing.T) {
	base := New(KindXattr, "/dst", "b.txt", os.ErrPermission)
	wrapped := Wrapf(KindOf(base), "/dst", "b.txt", base, "setting xattr %q", "user.foo")
	require.Error(t, wrapped)
	assert.Equal(t, KindXattr, KindOf(wrapped))
	assert.Contains(t, wrapped.Error(), "b.txt")
}
