package hardlink

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginFirstGetsCopyOutcome(t *testing.T) {
	tr := New()
	key := Key{Device: 1, Inode: 42}
	res := tr.Begin(key, "/dst/a", time.Second)
	assert.Equal(t, OutcomeCopy, res.Outcome)
}

func TestSecondWaitsThenLinks(t *testing.T) {
	tr := New()
	key := Key{Device: 1, Inode: 42}
	first := tr.Begin(key, "/dst/a", time.Second)
	require.Equal(t, OutcomeCopy, first.Outcome)

	var second Result
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		second = tr.Begin(key, "/dst/b", time.Second)
	}()
	time.Sleep(20 * time.Millisecond)
	tr.Confirm(key)
	wg.Wait()

	assert.Equal(t, OutcomeLink, second.Outcome)
	assert.Equal(t, "/dst/a", second.DestPath)
}

func TestAbandonReleasesWaitersAsFallback(t *testing.T) {
	tr := New()
	key := Key{Device: 1, Inode: 7}
	first := tr.Begin(key, "/dst/a", time.Second)
	require.Equal(t, OutcomeCopy, first.Outcome)

	var second Result
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		second = tr.Begin(key, "/dst/b", time.Second)
	}()
	time.Sleep(20 * time.Millisecond)
	tr.Abandon(key)
	wg.Wait()

	assert.Equal(t, OutcomeFallback, second.Outcome)
}

func TestDeadlineExpiryFallsBack(t *testing.T) {
	tr := New()
	key := Key{Device: 1, Inode: 9}
	first := tr.Begin(key, "/dst/a", time.Hour)
	require.Equal(t, OutcomeCopy, first.Outcome)

	res := tr.Begin(key, "/dst/b", 10*time.Millisecond)
	assert.Equal(t, OutcomeFallback, res.Outcome)
}

func TestAbandonThenRetryAllowsFreshCopy(t *testing.T) {
	tr := New()
	key := Key{Device: 2, Inode: 1}
	first := tr.Begin(key, "/dst/a", time.Second)
	require.Equal(t, OutcomeCopy, first.Outcome)
	tr.Abandon(key)

	retry := tr.Begin(key, "/dst/a2", time.Second)
	assert.Equal(t, OutcomeCopy, retry.Outcome)
}
