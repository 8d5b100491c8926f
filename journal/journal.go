// Package journal keeps the in-memory replication log of the proxy.
//
// Every request the dispatcher attempts to replicate is appended here before
// the first network attempt. The log therefore overcounts on failure, but a
// replica replayed from it can never miss a request that any other replica
// may have observed. Entries are never deduplicated and never persisted —
// replay is expected to be idempotent on the backend side.
package journal

import "sync"

// Journal is a thread-safe append-only ordered log of encoded requests.
type Journal struct {
	mu      sync.Mutex
	entries []string
}

// New returns an empty journal.
func New() *Journal {
	return &Journal{}
}

// Append adds entry at the tail of the log.
func (j *Journal) Append(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

// Len returns the current number of entries.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// TailFrom returns a copy of the entries from offset to the tail. Offset 0
// yields the full journal; an offset at or past the end yields nil. The copy
// is independent, so replay can iterate it without blocking writers.
func (j *Journal) TailFrom(offset int) []string {
	j.mu.Lock()
	defer j.mu.Unlock()

	if offset < 0 {
		offset = 0
	}
	if offset >= len(j.entries) {
		return nil
	}
	tail := make([]string, len(j.entries)-offset)
	copy(tail, j.entries[offset:])
	return tail
}
