// Package bufpool implements two buffer pools: a configurable-size I/O
// pool and a fixed 4 KiB metadata pool, each handing out leases that are
// guaranteed to return their backing bytes to the pool on every exit
// path. Nothing is allocated up front: a buffer is allocated on the
// first Get that finds the free list empty and is reused after Put.
//
// The pool contract (Get/Put/InUse/InPool/Alloced, soft-cap growth with a
// throttled warning) mirrors rclone's lib/pool, generalized here to serve
// two independently sized sub-pools from one process instead of one
// pool per transfer.
package bufpool

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jmalicki/arsync-sub000/internal/logx"
)

// Pool is a free-list of same-sized byte slices with soft-cap growth: once
// the configured count is exceeded, Get still allocates (never blocks,
// never fails) but a rate-limited warning is logged.
type Pool struct {
	size     int
	softCap  int
	mu       sync.Mutex
	free     [][]byte
	inUse    int
	alloced  int
	warnLim  *rate.Limiter
}

// New creates a Pool of buffers of the given size, warning once softCap is
// exceeded.
func New(size, softCap int) *Pool {
	return &Pool{
		size:    size,
		softCap: softCap,
		warnLim: rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
}

// Get returns a buffer from the pool, allocating a new one if the pool is
// empty. Never blocks and never fails.
func (p *Pool) Get() []byte {
	p.mu.Lock()
	n := len(p.free)
	if n > 0 {
		b := p.free[n-1]
		p.free = p.free[:n-1]
		p.inUse++
		p.mu.Unlock()
		return b[:p.size]
	}
	p.alloced++
	overCap := p.alloced > p.softCap
	p.inUse++
	p.mu.Unlock()
	if overCap && p.warnLim.Allow() {
		logx.Warnf(nil, "bufpool: grew past soft cap of %d buffers of size %d", p.softCap, p.size)
	}
	return make([]byte, p.size)
}

// Put returns a buffer to the pool.
func (p *Pool) Put(b []byte) {
	p.mu.Lock()
	p.free = append(p.free, b[:cap(b)])
	p.inUse--
	p.mu.Unlock()
}

// InUse returns the number of buffers currently leased out.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

// InPool returns the number of buffers currently idle in the free list.
func (p *Pool) InPool() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Alloced returns the total number of buffers ever allocated, whether
// currently leased or idle. Put keeps every returned buffer on the free
// list, so this count never decreases.
func (p *Pool) Alloced() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alloced
}

// Size returns the buffer size this pool serves.
func (p *Pool) Size() int { return p.size }
