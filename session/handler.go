// Package session handles one accepted proxy connection: it reads header
// lines in a loop, tags the operation, and routes it to the dispatcher, the
// replica pool, or another connected client.
package session

import (
	"bufio"
	"context"
	"net"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"msgproxy/backend"
	"msgproxy/dispatch"
	"msgproxy/metrics"
	"msgproxy/wire"
)

// Session is the per-connection state. The write mutex serializes the
// session's own replies against GET_MESSAGE pushes arriving from other
// handlers on the same socket.
type Session struct {
	id   string
	conn net.Conn
	r    *bufio.Reader

	writeMu sync.Mutex

	// pushAddr is the synthesized address this session occupies in the
	// client table, empty until the first CLIENT_REQ registers it. Only
	// the owning handler goroutine writes it.
	pushAddr string
}

// writeLines writes the given lines, each newline-terminated, as one locked
// write so concurrent pushes cannot interleave a two-line reply.
func (s *Session) writeLines(lines ...string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	var buf []byte
	for _, line := range lines {
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	_, err := s.conn.Write(buf)
	return err
}

// Handler serves accepted connections. One Handle call per connection, each
// on its own goroutine.
type Handler struct {
	dispatcher *dispatch.Dispatcher
	pool       *backend.Pool
	clients    *Table
	metrics    *metrics.Metrics
	log        *zap.Logger
}

// NewHandler wires a session handler over the shared proxy state.
func NewHandler(d *dispatch.Dispatcher, pool *backend.Pool, clients *Table, m *metrics.Metrics, log *zap.Logger) *Handler {
	return &Handler{
		dispatcher: d,
		pool:       pool,
		clients:    clients,
		metrics:    m,
		log:        log,
	}
}

// Register admits a replica at host:port into the pool. The wire-level
// REGISTER operation and the discovery sources both land here.
func (h *Handler) Register(host, port string) {
	ep := backend.NewEndpoint(host, port)
	idx := h.pool.Append(ep)
	h.log.Info("backend registered",
		zap.String("backend", ep.Addr()),
		zap.Int("index", idx),
	)
}

// Handle runs the session until the peer disconnects or an I/O error ends
// it. A single connection may carry many operations; REGISTER is the
// exception and closes after one.
func (h *Handler) Handle(ctx context.Context, conn net.Conn) {
	s := &Session{
		id:   uuid.NewString(),
		conn: conn,
		r:    bufio.NewReader(conn),
	}
	log := h.log.With(
		zap.String("session", s.id),
		zap.String("remote", conn.RemoteAddr().String()),
	)

	defer conn.Close()
	defer h.exit(ctx, s, log)

	for {
		header, err := wire.ReadLine(s.r)
		if err != nil {
			return
		}

		switch op := wire.ParseOp(header); op {
		case wire.OpRegister:
			h.handleRegister(s, header)
			return // registration is one-shot
		case wire.OpClientReq:
			if h.handleClientReq(ctx, s, header) != nil {
				return
			}
		case wire.OpMessage:
			if h.handleMessage(ctx, s, header) != nil {
				return
			}
		case wire.OpSendMessage:
			if h.handleSendMessage(s, header, log) != nil {
				return
			}
		default:
			if s.writeLines(wire.TokenUnknownOp) != nil {
				return
			}
		}
	}
}

func (h *Handler) handleRegister(s *Session, header string) {
	host := wire.ParseField(header, wire.KeyIP)
	port := wire.ParseField(header, wire.KeyPort)
	h.Register(host, port)
	s.writeLines(wire.TokenRegisterAck)
}

func (h *Handler) handleClientReq(ctx context.Context, s *Session, header string) error {
	body, err := wire.ReadLine(s.r)
	if err != nil {
		return err
	}

	addr := wire.ParseField(header, wire.KeyAddress)
	if addr == "" {
		addr = synthesizeAddr(s.conn.RemoteAddr())
		if h.clients.Insert(addr, s) {
			s.pushAddr = addr
			h.metrics.ConnectedClients.Inc()
		}
	}

	req := &wire.Request{
		Header: header + ";" + wire.KeyAddress + ":" + addr,
		Body:   body,
	}
	resp := h.dispatcher.Forward(ctx, req)
	return s.writeLines(wire.TokenResponse, resp)
}

func (h *Handler) handleMessage(ctx context.Context, s *Session, header string) error {
	body, err := wire.ReadLine(s.r)
	if err != nil {
		return err
	}
	resp := h.dispatcher.Forward(ctx, &wire.Request{Header: header, Body: body})
	return s.writeLines(resp)
}

func (h *Handler) handleSendMessage(s *Session, header string, log *zap.Logger) error {
	body, err := wire.ReadLine(s.r)
	if err != nil {
		return err
	}

	addr := wire.ParseField(header, wire.KeyAddress)
	target, ok := h.clients.Lookup(addr)
	if !ok {
		return s.writeLines(wire.TokenResendError)
	}
	if err := target.writeLines(wire.TokenGetMessage, body); err != nil {
		// The target socket is going away; its own handler will clean the
		// table entry up. The originator just learns delivery failed.
		log.Warn("push to client failed", zap.String("address", addr), zap.Error(err))
		return s.writeLines(wire.TokenResendError)
	}
	return s.writeLines(wire.TokenAck)
}

// exit is the session's guaranteed cleanup path: drop the push registration
// and tell the backends the client is gone.
func (h *Handler) exit(ctx context.Context, s *Session, log *zap.Logger) {
	if s.pushAddr == "" {
		return
	}
	h.clients.Remove(s.pushAddr)
	h.metrics.ConnectedClients.Dec()

	disconnect := &wire.Request{
		Header: wire.EncodeHeader(
			wire.Field{Key: wire.KeyOperation, Value: wire.OpDisconnect.String()},
			wire.Field{Key: wire.KeyAddress, Value: s.pushAddr},
		),
	}
	h.dispatcher.Forward(ctx, disconnect)
	log.Debug("client disconnected", zap.String("address", s.pushAddr))
}

// synthesizeAddr derives the push address from the client's TCP endpoint:
// host concatenated with port, no separator (see wire.JoinAddr).
func synthesizeAddr(remote net.Addr) string {
	host, port, err := net.SplitHostPort(remote.String())
	if err != nil {
		return remote.String()
	}
	return wire.JoinAddr(host, port)
}
