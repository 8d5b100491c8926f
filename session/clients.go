package session

import "sync"

// Table maps push addresses to live client sessions so backend-originated
// SEND_MESSAGE traffic can reach the right socket. Entries exist only while
// the owning session is connected: the insert happens on the session's first
// CLIENT_REQ and the removal is part of its guaranteed exit path. The table
// borrows the session — it never extends the socket's lifetime.
type Table struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewTable returns an empty client table.
func NewTable() *Table {
	return &Table{sessions: make(map[string]*Session)}
}

// Insert adds s under addr if absent and reports whether it inserted.
func (t *Table) Insert(addr string, s *Session) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sessions[addr]; ok {
		return false
	}
	t.sessions[addr] = s
	return true
}

// Lookup returns the session registered under addr.
func (t *Table) Lookup(addr string) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[addr]
	return s, ok
}

// Remove drops the entry for addr. Only the owning session's exit path
// calls this.
func (t *Table) Remove(addr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, addr)
}

// Len returns the number of connected push targets.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}
