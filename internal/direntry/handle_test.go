//go:build linux

package direntry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOpenRootStatMkdirSymlink(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644))

	h, err := OpenRoot(root)
	require.NoError(t, err)
	defer h.Release()

	md, err := Stat(h, "a.txt", false)
	require.NoError(t, err)
	require.Equal(t, TypeRegular, md.Type)
	require.EqualValues(t, 5, md.Size)

	require.NoError(t, Mkdir(h, "sub", 0o755))
	sub, err := OpenSubdir(h, "sub")
	require.NoError(t, err)
	defer sub.Release()

	require.NoError(t, Symlink(h, "link", "a.txt"))
	target, err := Readlink(h, "link", nil)
	require.NoError(t, err)
	require.Equal(t, "a.txt", target)

	linkMD, err := Stat(h, "link", false)
	require.NoError(t, err)
	require.Equal(t, TypeSymlink, linkMD.Type)

	now := time.Now().Truncate(time.Second)
	require.NoError(t, Utimens(h, "a.txt", now, now, true))
	md2, err := Stat(h, "a.txt", false)
	require.NoError(t, err)
	require.WithinDuration(t, now, md2.MTime, time.Second)
}

func TestOpenSubdirRefusesSymlink(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "real"), 0o755))
	require.NoError(t, os.Symlink("real", filepath.Join(root, "link")))

	h, err := OpenRoot(root)
	require.NoError(t, err)
	defer h.Release()

	_, err = OpenSubdir(h, "link")
	require.Error(t, err)
}

func TestLinkCreatesHardlink(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644))
	h, err := OpenRoot(root)
	require.NoError(t, err)
	defer h.Release()

	require.NoError(t, Link(h, "a.txt", h, "b.txt"))
	ma, err := Stat(h, "a.txt", false)
	require.NoError(t, err)
	mb, err := Stat(h, "b.txt", false)
	require.NoError(t, err)
	require.Equal(t, ma.Inode, mb.Inode)
	require.EqualValues(t, 2, mb.LinkCount)
}
