package arsync

import "io"

// FileCopier is the single dynamic-dispatch seam this core exposes for a
// remote-sync collaborator: a stream-oriented view of one file's content
// (read at offset, write at offset, fsync) that such a collaborator could
// implement over a network transport instead of a local file handle.
// No byte format is owned by this core; FileCopier only describes the
// shape a substitute must have.
//
// *os.File already satisfies this interface structurally, which is why
// the local copy engine never needs to wrap it — it holds a concrete
// *os.File so it can also reach the copy_file_range fast path that
// isn't expressible through an interface, and falls back to exactly the
// ReadAt/WriteAt/Sync methods FileCopier names when that fast path is
// unavailable. A remote-sync collaborator's own file type only needs to
// implement FileCopier to reuse the fallback transfer loop's shape;
// wiring an actual network transport is out of scope for this core: the
// delta/rolling-checksum reconstruction it would need belongs to that
// collaborator, not this package.
type FileCopier interface {
	io.ReaderAt
	io.WriterAt
	Sync() error
}
