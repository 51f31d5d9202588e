// Package stats holds the atomically-updated counters for one Sync run.
// All counters use relaxed (no synchronization beyond the atomic op
// itself) ordering: exactness across counters at any instant is not
// required, only eventual correctness once a run completes.
package stats

import (
	"sync"
	"sync/atomic"

	"github.com/jmalicki/arsync-sub000/internal/arerr"
)

// Stats is the live handle on the run-wide counters; Snapshot takes a
// point-in-time copy. The zero value is ready to use.
type Stats struct {
	FilesCompleted       atomic.Int64
	BytesCompleted       atomic.Int64
	DirectoriesCreated   atomic.Int64
	SymlinksCreated      atomic.Int64
	SpecialFilesCreated  atomic.Int64
	HardlinksCreated     atomic.Int64

	errMu      sync.Mutex
	errByKind  map[arerr.Kind]int64
}

// New returns a ready-to-use Stats.
func New() *Stats {
	return &Stats{errByKind: make(map[arerr.Kind]int64)}
}

// AddFile records one completed regular-file copy of n bytes.
func (s *Stats) AddFile(n int64) {
	s.FilesCompleted.Add(1)
	s.BytesCompleted.Add(n)
}

// AddDirectory records one created directory.
func (s *Stats) AddDirectory() { s.DirectoriesCreated.Add(1) }

// AddSymlink records one created symlink.
func (s *Stats) AddSymlink() { s.SymlinksCreated.Add(1) }

// AddSpecial records one created device/fifo/socket node.
func (s *Stats) AddSpecial() { s.SpecialFilesCreated.Add(1) }

// AddHardlink records one hardlink created (as opposed to a content copy).
func (s *Stats) AddHardlink() { s.HardlinksCreated.Add(1) }

// RecordError increments the counter for err's kind and returns it so
// callers can feed it straight to the error callback.
func (s *Stats) RecordError(err error) arerr.Kind {
	kind := arerr.KindOf(err)
	s.errMu.Lock()
	if s.errByKind == nil {
		s.errByKind = make(map[arerr.Kind]int64)
	}
	s.errByKind[kind]++
	s.errMu.Unlock()
	return kind
}

// ErrorsByKind returns a snapshot copy of the per-kind error counts.
func (s *Stats) ErrorsByKind() map[arerr.Kind]int64 {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	out := make(map[arerr.Kind]int64, len(s.errByKind))
	for k, v := range s.errByKind {
		out[k] = v
	}
	return out
}

// TotalErrors sums ErrorsByKind.
func (s *Stats) TotalErrors() int64 {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	var total int64
	for _, v := range s.errByKind {
		total += v
	}
	return total
}

// Snapshot is an immutable, caller-facing view of Stats returned from
// Sync.
type Snapshot struct {
	FilesCompleted      int64
	BytesCompleted      int64
	DirectoriesCreated  int64
	SymlinksCreated     int64
	SpecialFilesCreated int64
	HardlinksCreated    int64
	ErrorsByKind        map[arerr.Kind]int64
}

// Snapshot takes a consistent-enough point-in-time copy of s.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		FilesCompleted:      s.FilesCompleted.Load(),
		BytesCompleted:      s.BytesCompleted.Load(),
		DirectoriesCreated:  s.DirectoriesCreated.Load(),
		SymlinksCreated:     s.SymlinksCreated.Load(),
		SpecialFilesCreated: s.SpecialFilesCreated.Load(),
		HardlinksCreated:    s.HardlinksCreated.Load(),
		ErrorsByKind:        s.ErrorsByKind(),
	}
}
