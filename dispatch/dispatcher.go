// Package dispatch routes client requests onto the replica pool.
//
// Forward flow:
//
//	Forward(req)
//	  → middleware chain (logging, metrics)
//	  → journal.Append            — before the first network attempt
//	  → pool.NextIndex            — shared round-robin cursor
//	  → replica.SendAndAwaitAck   — 3 attempts with back-off
//	  → on error: MarkDead, advance to the next candidate
//
// Delivery is at-least-once: a request may have been attempted against a
// dead-now-resurrected replica before succeeding elsewhere. The journal
// records exactly one entry per Forward call regardless.
package dispatch

import (
	"context"

	"go.uber.org/zap"

	"msgproxy/backend"
	"msgproxy/journal"
	"msgproxy/middleware"
	"msgproxy/wire"
)

// Dispatcher owns the forward path from session handlers to replicas.
type Dispatcher struct {
	pool    *backend.Pool
	journal *journal.Journal
	log     *zap.Logger
	handler middleware.HandlerFunc
}

// New builds a dispatcher over pool and journal. Middlewares wrap the
// forward path in the order given, outermost first.
func New(pool *backend.Pool, jnl *journal.Journal, log *zap.Logger, mws ...middleware.Middleware) *Dispatcher {
	d := &Dispatcher{
		pool:    pool,
		journal: jnl,
		log:     log,
	}
	d.handler = middleware.Chain(mws...)(d.forward)
	return d
}

// Forward runs the request through the middleware chain into the forward
// path and returns the response line for the client.
func (d *Dispatcher) Forward(ctx context.Context, req *wire.Request) string {
	return d.handler(ctx, req)
}

// forward is the innermost handler: journal append, then bounded round-robin
// failover across the snapshot.
func (d *Dispatcher) forward(ctx context.Context, req *wire.Request) string {
	// Pre-append: the journal must cover every request any replica may
	// have observed, so the entry lands before the first attempt — and
	// even when no backend is available to attempt at all.
	d.journal.Append(req.Encode())

	snap := d.pool.Snapshot()
	n := len(snap)
	if n == 0 {
		return wire.TokenNoBackends
	}

	for attempt := 0; attempt < n; attempt++ {
		idx := d.pool.NextIndex(n)
		replica := snap[idx]
		if !replica.IsAlive() {
			continue
		}

		resp, err := replica.SendAndAwaitAck(req.Encode())
		if err != nil {
			replica.MarkDead()
			d.log.Warn("backend failed, failing over",
				zap.String("backend", replica.Addr()),
				zap.Error(err),
			)
			continue
		}
		return resp
	}
	return wire.TokenAllDown
}
