// Package backend manages the replica endpoints behind the proxy: the
// per-replica network handle and the registration-ordered pool the
// dispatcher and the heartbeat sweep share.
package backend

import "context"

// Replica is the capability set of a backend endpoint. The dispatcher and
// the membership manager program against this interface; tests substitute a
// scripted implementation that returns configured responses without sockets.
type Replica interface {
	// Addr returns the host:port the replica serves on.
	Addr() string

	// Probe attempts a TCP connect within the probe timeout and reports
	// success. It never mutates liveness — the caller decides what a
	// failed probe means.
	Probe() bool

	// SendAndAwaitAck delivers one request and returns the replica's
	// response line. See Endpoint for the retry and ACK contract.
	SendAndAwaitAck(request string) (string, error)

	// Replay streams journal entries in order to the replica over a single
	// connection, awaiting no acknowledgements.
	Replay(ctx context.Context, entries []string) error

	MarkDead()
	MarkAlive()
	IsAlive() bool

	// Synced reports whether the replica has been caught up with the
	// journal. MarkSynced is set after a successful replay, or when the
	// sweep adopts a fresh primary or sole replica as the reference, and is
	// never cleared — failure only toggles liveness.
	Synced() bool
	MarkSynced()
}
