package backend

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"msgproxy/wire"
)

// ErrUnreachable is returned by SendAndAwaitAck once every attempt against a
// replica has failed. It wraps the last underlying transport or protocol
// error.
var ErrUnreachable = errors.New("backend unreachable")

const (
	dialTimeout  = 1 * time.Second
	readTimeout  = 1 * time.Second
	sendAttempts = 3
	retryBackoff = 200 * time.Millisecond

	// Replay pacing: a recovering replica is fed journal entries through a
	// token bucket instead of a raw burst, so catch-up traffic cannot
	// starve its live request handling.
	replayRate  = 200
	replayBurst = 50
)

// Endpoint is the network handle for one backend replica. Every request
// opens a fresh connection — the proxy keeps no connection state toward the
// backend — and the two-line ACK protocol guards against half-open sockets
// silently swallowing data.
//
// The alive and synced flags are atomic: they are read by the dispatcher on
// every forward while the heartbeat sweep writes them. Relaxed visibility is
// fine, the next sweep re-converges.
type Endpoint struct {
	host string
	port string

	alive  atomic.Bool
	synced atomic.Bool

	dialTimeout time.Duration
	readTimeout time.Duration
	backoff     time.Duration
	replayLimit *rate.Limiter
}

// NewEndpoint creates the handle for a replica at host:port. A new endpoint
// starts live and fresh (not yet synced) — the REGISTERED state.
func NewEndpoint(host, port string) *Endpoint {
	e := &Endpoint{
		host:        host,
		port:        port,
		dialTimeout: dialTimeout,
		readTimeout: readTimeout,
		backoff:     retryBackoff,
		replayLimit: rate.NewLimiter(rate.Limit(replayRate), replayBurst),
	}
	e.alive.Store(true)
	return e
}

// Addr returns the replica's dialable host:port.
func (e *Endpoint) Addr() string {
	return net.JoinHostPort(e.host, e.port)
}

// Probe attempts a TCP connect within the dial timeout. It reports the
// outcome without touching the alive flag.
func (e *Endpoint) Probe() bool {
	conn, err := net.DialTimeout("tcp", e.Addr(), e.dialTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// SendAndAwaitAck opens a fresh connection, writes request terminated by a
// newline, expects the literal "ACK" line (case-insensitive), then reads and
// returns the next line as the effective response.
//
// Any failure — connect, timeout, wrong ACK, EOF — retries the whole
// operation, up to three attempts with a 200 ms back-off in between. The
// terminal error wraps ErrUnreachable with the last underlying cause.
func (e *Endpoint) SendAndAwaitAck(request string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < sendAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(e.backoff)
		}
		resp, err := e.exchange(request)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("%w: %s: %v", ErrUnreachable, e.Addr(), lastErr)
}

// exchange performs one attempt of the ACK protocol on its own connection.
func (e *Endpoint) exchange(request string) (string, error) {
	conn, err := net.DialTimeout("tcp", e.Addr(), e.dialTimeout)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(request + "\n")); err != nil {
		return "", err
	}

	r := bufio.NewReader(conn)

	if err := conn.SetReadDeadline(time.Now().Add(e.readTimeout)); err != nil {
		return "", err
	}
	ack, err := wire.ReadLine(r)
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(ack, wire.TokenAck) {
		return "", fmt.Errorf("expected ACK, got %q", ack)
	}

	if err := conn.SetReadDeadline(time.Now().Add(e.readTimeout)); err != nil {
		return "", err
	}
	return wire.ReadLine(r)
}

// Replay streams the given journal entries, in order, over one connection.
// No acknowledgements are awaited: each entry is a fully-qualified request
// the replica has either already applied or will apply. A transport error
// aborts the replay and leaves the replica fresh for the next sweep.
func (e *Endpoint) Replay(ctx context.Context, entries []string) error {
	if len(entries) == 0 {
		return nil
	}

	conn, err := net.DialTimeout("tcp", e.Addr(), e.dialTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	for _, entry := range entries {
		if err := e.replayLimit.Wait(ctx); err != nil {
			return err
		}
		if _, err := conn.Write([]byte(entry + "\n")); err != nil {
			return err
		}
	}
	return nil
}

func (e *Endpoint) MarkDead()     { e.alive.Store(false) }
func (e *Endpoint) MarkAlive()    { e.alive.Store(true) }
func (e *Endpoint) IsAlive() bool { return e.alive.Load() }

func (e *Endpoint) Synced() bool { return e.synced.Load() }
func (e *Endpoint) MarkSynced()  { e.synced.Store(true) }
