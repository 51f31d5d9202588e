package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/jmalicki/arsync-sub000/internal/arerr"
	"github.com/jmalicki/arsync-sub000/internal/stats"
)

func TestObserveAccumulatesDeltas(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.Observe(stats.Snapshot{FilesCompleted: 3, BytesCompleted: 300})
	require.Equal(t, float64(3), testutil.ToFloat64(c.FilesCompleted))
	require.Equal(t, float64(300), testutil.ToFloat64(c.BytesCompleted))

	c.Observe(stats.Snapshot{FilesCompleted: 5, BytesCompleted: 500})
	require.Equal(t, float64(5), testutil.ToFloat64(c.FilesCompleted))
	require.Equal(t, float64(500), testutil.ToFloat64(c.BytesCompleted))
}

func TestObserveTracksErrorsByKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.Observe(stats.Snapshot{ErrorsByKind: map[arerr.Kind]int64{arerr.KindNotFound: 2}})
	require.Equal(t, float64(2), testutil.ToFloat64(c.Errors.WithLabelValues(arerr.KindNotFound.String())))

	c.Observe(stats.Snapshot{ErrorsByKind: map[arerr.Kind]int64{
		arerr.KindNotFound: 2,
		arerr.KindIO:       1,
	}})
	require.Equal(t, float64(2), testutil.ToFloat64(c.Errors.WithLabelValues(arerr.KindNotFound.String())))
	require.Equal(t, float64(1), testutil.ToFloat64(c.Errors.WithLabelValues(arerr.KindIO.String())))
}
