package arsync

import (
	"time"

	"github.com/jmalicki/arsync-sub000/internal/bufpool"
	"github.com/jmalicki/arsync-sub000/internal/copyengine"
	"github.com/jmalicki/arsync-sub000/internal/metrics"
	"github.com/jmalicki/arsync-sub000/internal/traversal"
)

// Config enumerates every run-level tunable plus the attribute
// preservation flags. The zero value is not meaningful; start from
// DefaultConfig.
type Config struct {
	ConcurrencyLimit      int
	BufferSize            int
	ParallelFileThreshold int64
	ParallelChunkSize     int64
	OneFilesystem         bool
	HardlinkWaitDeadline  time.Duration

	PreservePermissions bool
	PreserveTimes       bool
	PreserveOwnership   bool
	PreserveXattr       bool
	PreserveHardlinks   bool
	FsyncOnClose        bool

	// Metrics, if set, receives a periodic snapshot of this run's Stats
	// as it progresses (see internal/metrics.Collector.Observe). Most
	// callers leave this nil; it exists for embedders that already run a
	// Prometheus registry and want this run's counters folded into it.
	Metrics *metrics.Collector
}

// DefaultConfig mirrors copyengine.DefaultOptions and
// traversal.DefaultOptions, the two internal packages Config is
// translated into.
func DefaultConfig() Config {
	eng := copyengine.DefaultOptions()
	trav := traversal.DefaultOptions()
	return Config{
		ConcurrencyLimit:      trav.ConcurrencyLimit,
		BufferSize:            bufpool.DefaultIOBufferSize,
		ParallelFileThreshold: eng.ParallelThreshold,
		ParallelChunkSize:     eng.ParallelChunkSize,
		OneFilesystem:         trav.OneFilesystem,
		HardlinkWaitDeadline:  eng.HardlinkWaitDeadline,
		PreservePermissions:   eng.PreservePermissions,
		PreserveTimes:         eng.PreserveTimes,
	}
}

// engineOptions translates cfg into the copy engine's own Options, the
// way rclone's NewFs translates a configmap.Mapper into a per-backend
// Options struct.
func (cfg Config) engineOptions() copyengine.Options {
	opts := copyengine.DefaultOptions()
	opts.PreservePermissions = cfg.PreservePermissions
	opts.PreserveTimes = cfg.PreserveTimes
	opts.PreserveOwnership = cfg.PreserveOwnership
	opts.PreserveXattr = cfg.PreserveXattr
	opts.PreserveHardlinks = cfg.PreserveHardlinks
	opts.FsyncOnClose = cfg.FsyncOnClose
	if cfg.ParallelChunkSize > 0 {
		opts.ParallelChunkSize = cfg.ParallelChunkSize
	}
	if cfg.ParallelFileThreshold > 0 {
		opts.ParallelEnabled = true
		opts.ParallelThreshold = cfg.ParallelFileThreshold
	}
	if cfg.HardlinkWaitDeadline > 0 {
		opts.HardlinkWaitDeadline = cfg.HardlinkWaitDeadline
	}
	return opts
}

func (cfg Config) traversalOptions() traversal.Options {
	opts := traversal.DefaultOptions()
	opts.OneFilesystem = cfg.OneFilesystem
	if cfg.ConcurrencyLimit > 0 {
		opts.ConcurrencyLimit = cfg.ConcurrencyLimit
	}
	return opts
}
