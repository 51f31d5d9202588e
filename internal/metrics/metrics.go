// Package metrics mirrors internal/stats.Stats onto Prometheus
// counters, for collaborators that want to scrape a run's progress
// instead of (or in addition to) reading the progress callback.
//
// rclone carries github.com/prometheus/client_golang as a direct
// dependency but wires it from an rc/metrics command this package
// doesn't have a copy of, so this package uses the client_golang
// counter/gauge API directly rather than guessing at an opencensus
// exporter shape it has no example of.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jmalicki/arsync-sub000/internal/stats"
)

// Collector holds one run's worth of Prometheus counters. Every counter
// is cumulative, matching Stats' own monotonic atomics; Observe converts
// successive Snapshot totals into deltas since counters can only go up.
type Collector struct {
	FilesCompleted      prometheus.Counter
	BytesCompleted      prometheus.Counter
	DirectoriesCreated  prometheus.Counter
	SymlinksCreated     prometheus.Counter
	SpecialFilesCreated prometheus.Counter
	HardlinksCreated    prometheus.Counter
	Errors              *prometheus.CounterVec

	mu   sync.Mutex
	last stats.Snapshot
}

// NewCollector builds a Collector and registers it against reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		FilesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arsync", Name: "files_completed_total",
			Help: "Regular files (including hardlinked copies) completed.",
		}),
		BytesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arsync", Name: "bytes_completed_total",
			Help: "Bytes of regular-file content transferred.",
		}),
		DirectoriesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arsync", Name: "directories_created_total",
			Help: "Destination directories created.",
		}),
		SymlinksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arsync", Name: "symlinks_created_total",
			Help: "Symlinks created at the destination.",
		}),
		SpecialFilesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arsync", Name: "special_files_created_total",
			Help: "Device, FIFO, and socket nodes created at the destination.",
		}),
		HardlinksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "arsync", Name: "hardlinks_created_total",
			Help: "Destination entries linked instead of copied.",
		}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arsync", Name: "errors_total",
			Help: "Non-fatal errors, by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(
		c.FilesCompleted, c.BytesCompleted, c.DirectoriesCreated,
		c.SymlinksCreated, c.SpecialFilesCreated, c.HardlinksCreated, c.Errors,
	)
	return c
}

// Observe folds the delta between snap and the previously observed
// snapshot into the registered counters. Safe to call from the same
// goroutine that drives the progress callback, or concurrently with
// other callers.
func (c *Collector) Observe(snap stats.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.FilesCompleted.Add(float64(snap.FilesCompleted - c.last.FilesCompleted))
	c.BytesCompleted.Add(float64(snap.BytesCompleted - c.last.BytesCompleted))
	c.DirectoriesCreated.Add(float64(snap.DirectoriesCreated - c.last.DirectoriesCreated))
	c.SymlinksCreated.Add(float64(snap.SymlinksCreated - c.last.SymlinksCreated))
	c.SpecialFilesCreated.Add(float64(snap.SpecialFilesCreated - c.last.SpecialFilesCreated))
	c.HardlinksCreated.Add(float64(snap.HardlinksCreated - c.last.HardlinksCreated))

	for kind, count := range snap.ErrorsByKind {
		delta := count - c.last.ErrorsByKind[kind]
		if delta > 0 {
			c.Errors.WithLabelValues(kind.String()).Add(float64(delta))
		}
	}
	c.last = snap
}
