// Package proxy owns the listening endpoint: it accepts connections and
// hands each one to a session handler goroutine. No throttling, no
// backpressure — handlers are cheap.
package proxy

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"msgproxy/session"
)

// Proxy is the accept loop plus graceful shutdown around it.
type Proxy struct {
	handler  *session.Handler
	log      *zap.Logger
	listener net.Listener
	wg       sync.WaitGroup
	shutdown atomic.Bool
}

// New builds a proxy serving connections through handler.
func New(handler *session.Handler, log *zap.Logger) *Proxy {
	return &Proxy{
		handler: handler,
		log:     log,
	}
}

// Serve listens on addr and accepts until Shutdown. It returns nil when the
// listener was closed by Shutdown, the accept error otherwise.
func (p *Proxy) Serve(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	p.listener = listener
	p.log.Info("proxy listening", zap.String("addr", addr))

	for {
		conn, err := listener.Accept()
		if err != nil {
			// Shutdown closes the listener; distinguish that from a
			// real accept failure via the flag set beforehand.
			if p.shutdown.Load() {
				return nil
			}
			return err
		}

		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.handler.Handle(ctx, conn)
		}()
	}
}

// Addr returns the bound listen address, once Serve has bound it. Useful
// when the configured port is 0.
func (p *Proxy) Addr() net.Addr {
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

// Shutdown stops accepting, then waits up to timeout for in-flight sessions
// to drain. Sessions end when their sockets close; there is no cooperative
// cancellation on the data path.
func (p *Proxy) Shutdown(timeout time.Duration) error {
	// Flag first: closing the listener fires the Accept error before
	// Serve could otherwise observe the intent.
	p.shutdown.Store(true)
	if p.listener != nil {
		p.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for sessions to drain")
	}
}
