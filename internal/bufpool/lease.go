package bufpool

import "sync"

// Lease is a scoped acquisition of one buffer. Release always returns the
// buffer to its originating pool, even if called from a deferred panic
// recovery path: it must be safe against panics in async tasks, so
// release always returns the buffer.
type Lease struct {
	pool *Pool
	buf  []byte

	once sync.Once
}

// Bytes returns the buffer's backing bytes. The returned slice is only
// valid until Release is called.
func (l *Lease) Bytes() []byte { return l.buf }

// Release returns the buffer to its pool. Safe to call multiple times;
// only the first call has effect.
func (l *Lease) Release() {
	l.once.Do(func() {
		if l.pool != nil {
			l.pool.Put(l.buf)
		}
	})
}

func newLease(p *Pool) *Lease {
	return &Lease{pool: p, buf: p.Get()}
}
