//go:build linux

package copyengine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/xattr"
	"github.com/stretchr/testify/require"

	"github.com/jmalicki/arsync-sub000/internal/arerr"
	"github.com/jmalicki/arsync-sub000/internal/bufpool"
	"github.com/jmalicki/arsync-sub000/internal/direntry"
	"github.com/jmalicki/arsync-sub000/internal/hardlink"
	"github.com/jmalicki/arsync-sub000/internal/stats"
)

// setTestXattr sets a user.* attribute on path, skipping the calling test
// when the underlying filesystem doesn't support that namespace (some
// tmpfs configurations don't) rather than failing on an environment gap.
func setTestXattr(t *testing.T, path, name, value string) {
	t.Helper()
	if err := xattr.Set(path, name, []byte(value)); err != nil {
		t.Skipf("filesystem does not support user xattrs: %v", err)
	}
}

func newTestEngine(opts Options) *Engine {
	return &Engine{
		Opts:  opts,
		Bufs:  bufpool.NewManager(0, 4),
		Links: hardlink.New(),
		Stats: stats.New(),
	}
}

func TestCopySmallRegularFile(t *testing.T) {
	srcRoot := t.TempDir()
	dstRoot := t.TempDir()
	content := []byte("hello, world")
	require.NoError(t, os.WriteFile(filepath.Join(srcRoot, "a.txt"), content, 0o644))

	srcH, err := direntry.OpenRoot(srcRoot)
	require.NoError(t, err)
	defer srcH.Release()
	dstH, err := direntry.OpenRoot(dstRoot)
	require.NoError(t, err)
	defer dstH.Release()

	meta, err := direntry.Stat(srcH, "a.txt", false)
	require.NoError(t, err)

	e := newTestEngine(DefaultOptions())
	j := Job{SrcDir: srcH, DstDir: dstH, Name: "a.txt", Meta: meta, DestRel: "a.txt"}
	require.NoError(t, e.CopyEntry(context.Background(), j))

	got, err := os.ReadFile(filepath.Join(dstRoot, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, content, got)
	require.EqualValues(t, 1, e.Stats.FilesCompleted.Load())
	require.EqualValues(t, len(content), e.Stats.BytesCompleted.Load())
	require.Equal(t, 0, e.Bufs.Outstanding())
}

func TestCopyHardlinkedPairSharesInode(t *testing.T) {
	srcRoot := t.TempDir()
	dstRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcRoot, "x"), []byte("abc"), 0o644))
	require.NoError(t, os.Link(filepath.Join(srcRoot, "x"), filepath.Join(srcRoot, "y")))

	srcH, err := direntry.OpenRoot(srcRoot)
	require.NoError(t, err)
	defer srcH.Release()
	dstH, err := direntry.OpenRoot(dstRoot)
	require.NoError(t, err)
	defer dstH.Release()

	opts := DefaultOptions()
	opts.PreserveHardlinks = true
	e := newTestEngine(opts)

	for _, name := range []string{"x", "y"} {
		meta, err := direntry.Stat(srcH, name, false)
		require.NoError(t, err)
		require.EqualValues(t, 2, meta.LinkCount)
		j := Job{SrcDir: srcH, DstDir: dstH, Name: name, Meta: meta, DestRel: name}
		require.NoError(t, e.CopyEntry(context.Background(), j))
	}

	mx, err := os.Stat(filepath.Join(dstRoot, "x"))
	require.NoError(t, err)
	my, err := os.Stat(filepath.Join(dstRoot, "y"))
	require.NoError(t, err)
	require.True(t, os.SameFile(mx, my))
	require.EqualValues(t, 1, e.Stats.HardlinksCreated.Load())
	require.EqualValues(t, 2, e.Stats.FilesCompleted.Load())
}

func TestCopySymlink(t *testing.T) {
	srcRoot := t.TempDir()
	dstRoot := t.TempDir()
	require.NoError(t, os.Symlink("../elsewhere", filepath.Join(srcRoot, "link")))

	srcH, err := direntry.OpenRoot(srcRoot)
	require.NoError(t, err)
	defer srcH.Release()
	dstH, err := direntry.OpenRoot(dstRoot)
	require.NoError(t, err)
	defer dstH.Release()

	meta, err := direntry.Stat(srcH, "link", false)
	require.NoError(t, err)

	e := newTestEngine(DefaultOptions())
	j := Job{SrcDir: srcH, DstDir: dstH, Name: "link", Meta: meta, DestRel: "link"}
	require.NoError(t, e.CopyEntry(context.Background(), j))

	target, err := os.Readlink(filepath.Join(dstRoot, "link"))
	require.NoError(t, err)
	require.Equal(t, "../elsewhere", target)
}

func TestCopyLargeFileParallel(t *testing.T) {
	srcRoot := t.TempDir()
	dstRoot := t.TempDir()
	chunk := int64(64 * 1024)
	data := make([]byte, 4*chunk)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(filepath.Join(srcRoot, "big"), data, 0o644))

	srcH, err := direntry.OpenRoot(srcRoot)
	require.NoError(t, err)
	defer srcH.Release()
	dstH, err := direntry.OpenRoot(dstRoot)
	require.NoError(t, err)
	defer dstH.Release()

	meta, err := direntry.Stat(srcH, "big", false)
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.ParallelEnabled = true
	opts.ParallelThreshold = chunk
	opts.ParallelChunkSize = chunk
	e := newTestEngine(opts)

	j := Job{SrcDir: srcH, DstDir: dstH, Name: "big", Meta: meta, DestRel: "big"}
	require.NoError(t, e.CopyEntry(context.Background(), j))

	got, err := os.ReadFile(filepath.Join(dstRoot, "big"))
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestCopyRegularFilePreservesXattrs(t *testing.T) {
	srcRoot := t.TempDir()
	dstRoot := t.TempDir()
	filePath := filepath.Join(srcRoot, "a.txt")
	require.NoError(t, os.WriteFile(filePath, []byte("hello"), 0o644))
	setTestXattr(t, filePath, "user.arsync.test", "v1")

	srcH, err := direntry.OpenRoot(srcRoot)
	require.NoError(t, err)
	defer srcH.Release()
	dstH, err := direntry.OpenRoot(dstRoot)
	require.NoError(t, err)
	defer dstH.Release()

	meta, err := direntry.Stat(srcH, "a.txt", false)
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.PreserveXattr = true
	e := newTestEngine(opts)
	j := Job{SrcDir: srcH, DstDir: dstH, Name: "a.txt", Meta: meta, DestRel: "a.txt"}
	require.NoError(t, e.CopyEntry(context.Background(), j))

	got, err := xattr.Get(filepath.Join(dstRoot, "a.txt"), "user.arsync.test")
	require.NoError(t, err)
	require.Equal(t, "v1", string(got))
}

func TestCopyDirectoryPreservesXattrs(t *testing.T) {
	srcRoot := t.TempDir()
	dstRoot := t.TempDir()
	subPath := filepath.Join(srcRoot, "sub")
	require.NoError(t, os.Mkdir(subPath, 0o755))
	setTestXattr(t, subPath, "user.arsync.test", "dirval")

	srcH, err := direntry.OpenRoot(srcRoot)
	require.NoError(t, err)
	defer srcH.Release()
	dstH, err := direntry.OpenRoot(dstRoot)
	require.NoError(t, err)
	defer dstH.Release()

	meta, err := direntry.Stat(srcH, "sub", false)
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.PreserveXattr = true
	e := newTestEngine(opts)
	j := Job{SrcDir: srcH, DstDir: dstH, Name: "sub", Meta: meta, DestRel: "sub"}
	require.NoError(t, e.CopyEntry(context.Background(), j))
	e.ApplyDirectoryAttrs(srcH, dstH, "sub", meta)

	got, err := xattr.Get(filepath.Join(dstRoot, "sub"), "user.arsync.test")
	require.NoError(t, err)
	require.Equal(t, "dirval", string(got))
}

func TestCopyDirectoryOntoExistingFileReportsTypeMismatch(t *testing.T) {
	srcRoot := t.TempDir()
	dstRoot := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(srcRoot, "d"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dstRoot, "d"), []byte("blocker"), 0o644))

	srcH, err := direntry.OpenRoot(srcRoot)
	require.NoError(t, err)
	defer srcH.Release()
	dstH, err := direntry.OpenRoot(dstRoot)
	require.NoError(t, err)
	defer dstH.Release()

	meta, err := direntry.Stat(srcH, "d", false)
	require.NoError(t, err)

	e := newTestEngine(DefaultOptions())
	var gotKind arerr.Kind
	e.OnError = func(path string, kind arerr.Kind, message string) { gotKind = kind }

	j := Job{SrcDir: srcH, DstDir: dstH, Name: "d", Meta: meta, DestRel: "d"}
	err = e.CopyEntry(context.Background(), j)
	require.Error(t, err)
	require.True(t, arerr.Is(err, arerr.KindTypeMismatch))
	require.Equal(t, arerr.KindTypeMismatch, gotKind)

	info, statErr := os.Stat(filepath.Join(dstRoot, "d"))
	require.NoError(t, statErr)
	require.False(t, info.IsDir())
}
