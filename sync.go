// Package arsync implements the core of an rsync-compatible directory
// synchronizer: a TOCTOU-safe, concurrent file-copy engine. Sync is the
// single entrypoint; everything else in this package exists to
// configure or observe one call to it.
//
// Grounded throughout on rclone's top-level Fs/sync orchestration shape
// (a typed Options struct translated from caller configuration, a
// shared Stats sink, subject-first logging), generalized here from
// rclone's storage-backend model to the single local-filesystem core
// this package describes.
package arsync

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmalicki/arsync-sub000/internal/arerr"
	"github.com/jmalicki/arsync-sub000/internal/bufpool"
	"github.com/jmalicki/arsync-sub000/internal/copyengine"
	"github.com/jmalicki/arsync-sub000/internal/hardlink"
	"github.com/jmalicki/arsync-sub000/internal/logx"
	"github.com/jmalicki/arsync-sub000/internal/metrics"
	"github.com/jmalicki/arsync-sub000/internal/stats"
	"github.com/jmalicki/arsync-sub000/internal/traversal"
)

// Stats is the final, point-in-time view of a run's counters returned
// by Sync.
type Stats = stats.Snapshot

// ErrorKind classifies a reported failure independent of its message,
// per the error taxonomy.
type ErrorKind = arerr.Kind

// ProgressFunc receives batched (files, bytes) deltas as a run
// progresses. The core chooses the batching interval to avoid
// high-frequency calls.
type ProgressFunc func(filesDelta, bytesDelta int64)

// ErrorFunc receives one structured event per non-fatal failure: the
// entry path, its error kind, and a human-readable message. It may be
// called concurrently from multiple workers.
type ErrorFunc func(path string, kind ErrorKind, message string)

// progressInterval is how often a live Sync call batches counter deltas
// into progress/metrics callbacks.
const progressInterval = 250 * time.Millisecond

// Sync copies sourceRoot into destRoot: a TOCTOU-safe directory-handle
// walk, content transfer with copy_file_range acceleration, ordered
// attribute preservation, and hardlink coordination. It returns the
// final Stats regardless of whether err is non-nil; the core never
// aborts the run for a single entry's failure; only root-open failures,
// cancellation, and an unrecoverable buffer allocation abort early.
func Sync(ctx context.Context, cfg Config, sourceRoot, destRoot string, progress ProgressFunc, onError ErrorFunc) (Stats, error) {
	runID := uuid.NewString()
	log := logx.WithRun(runID)
	log.Infof("sync starting: %s -> %s", sourceRoot, destRoot)

	st := stats.New()
	engine := &copyengine.Engine{
		Opts:  cfg.engineOptions(),
		Bufs:  bufpool.NewManager(cfg.BufferSize, cfg.ConcurrencyLimit),
		Links: hardlink.New(),
		Stats: st,
	}
	if onError != nil {
		engine.OnError = func(path string, kind arerr.Kind, message string) {
			onError(path, ErrorKind(kind), message)
		}
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	reporter := newProgressReporter(progress, cfg.Metrics)
	if reporter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reporter.run(st, stop)
		}()
	}

	err := traversal.Run(ctx, cfg.traversalOptions(), engine, sourceRoot, destRoot)

	close(stop)
	wg.Wait()

	final := st.Snapshot()
	if reporter != nil {
		reporter.flush(final)
	}

	if err != nil {
		log.Warnf("sync ended with error: %v", err)
	} else {
		log.Infof("sync finished: files=%d bytes=%d errors=%d",
			final.FilesCompleted, final.BytesCompleted, st.TotalErrors())
	}
	return final, err
}

// progressReporter batches successive Stats snapshots into
// ProgressFunc deltas and, when configured, feeds the same snapshots to
// a Prometheus collector.
type progressReporter struct {
	fn      ProgressFunc
	metrics *metrics.Collector
	last    stats.Snapshot
}

func newProgressReporter(fn ProgressFunc, m *metrics.Collector) *progressReporter {
	if fn == nil && m == nil {
		return nil
	}
	return &progressReporter{fn: fn, metrics: m}
}

func (r *progressReporter) run(st *stats.Stats, stop <-chan struct{}) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.flush(st.Snapshot())
		case <-stop:
			return
		}
	}
}

func (r *progressReporter) flush(snap stats.Snapshot) {
	if r.fn != nil {
		df := snap.FilesCompleted - r.last.FilesCompleted
		db := snap.BytesCompleted - r.last.BytesCompleted
		if df != 0 || db != 0 {
			r.fn(df, db)
		}
	}
	if r.metrics != nil {
		r.metrics.Observe(snap)
	}
	r.last = snap
}
