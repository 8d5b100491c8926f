package backend

import (
	"sync"
	"sync/atomic"
)

// Pool is the process-wide replica set. It is append-only: a replica joins
// on registration and is never removed — failure only toggles its alive
// flag. Iteration always goes through a snapshot so the heartbeat sweep and
// the dispatcher tolerate concurrent registration.
//
// The round-robin cursor is a shared monotonic counter. It advances on every
// selection attempt, including skips over dead replicas, which preserves
// fairness across forward calls.
type Pool struct {
	mu       sync.RWMutex
	replicas []Replica

	cursor  atomic.Uint64
	primary atomic.Int64
}

// NewPool returns an empty pool. The primary index is 0: as soon as the
// first replica registers, it is the reference for replay.
func NewPool() *Pool {
	return &Pool{}
}

// Append adds a replica at the tail of the registration order and returns
// its index.
func (p *Pool) Append(r Replica) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replicas = append(p.replicas, r)
	return len(p.replicas) - 1
}

// Snapshot returns the current replica sequence. The backing array is only
// ever appended to, so the returned slice is stable.
func (p *Pool) Snapshot() []Replica {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.replicas[:len(p.replicas):len(p.replicas)]
}

// Len returns the number of registered replicas.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.replicas)
}

// NextIndex advances the round-robin cursor and maps it onto [0, n).
func (p *Pool) NextIndex(n int) int {
	return int((p.cursor.Add(1) - 1) % uint64(n))
}

// Primary returns the index of the replica whose state is the reference for
// journal replay.
func (p *Pool) Primary() int {
	return int(p.primary.Load())
}

// AdvancePrimaryFrom moves the primary to the next position when the
// replica at from was observed dead while holding the role. The
// compare-and-swap keeps a stale failover from clobbering a newer one.
func (p *Pool) AdvancePrimaryFrom(from, n int) {
	if n == 0 {
		return
	}
	p.primary.CompareAndSwap(int64(from), int64((from+1)%n))
}
