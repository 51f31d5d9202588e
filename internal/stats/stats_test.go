package stats

import (
	"sync"
	"testing"

	"github.com/jmalicki/arsync-sub000/internal/arerr"
	"github.com/stretchr/testify/assert"
)

func TestAddFileAndSnapshot(t *testing.T) {
	s := New()
	s.AddFile(13)
	s.AddFile(100)
	snap := s.Snapshot()
	assert.EqualValues(t, 2, snap.FilesCompleted)
	assert.EqualValues(t, 113, snap.BytesCompleted)
}

func TestRecordErrorConcurrent(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RecordError(arerr.New(arerr.KindPermissionDenied, "/s", "x", nil))
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 100, s.TotalErrors())
	assert.EqualValues(t, 100, s.ErrorsByKind()[arerr.KindPermissionDenied])
}
