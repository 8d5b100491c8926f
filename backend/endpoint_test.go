package backend

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// newTestEndpoint builds an Endpoint for addr with timeouts shrunk so
// failure paths don't stretch the test run.
func newTestEndpoint(t *testing.T, addr string) *Endpoint {
	t.Helper()
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatal(err)
	}
	e := NewEndpoint(host, port)
	e.dialTimeout = 500 * time.Millisecond
	e.readTimeout = 100 * time.Millisecond
	e.backoff = 10 * time.Millisecond
	return e
}

// ackServer accepts connections and answers the first line of each one with
// ackLine + "\n" + response + "\n", then closes it.
func ackServer(t *testing.T, ackLine, response string) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				r := bufio.NewReader(c)
				if _, err := r.ReadString('\n'); err != nil {
					return
				}
				c.Write([]byte(ackLine + "\n" + response + "\n"))
			}(conn)
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return ln
}

func TestProbe(t *testing.T) {
	ln := ackServer(t, "ACK", "OK")
	e := newTestEndpoint(t, ln.Addr().String())

	if !e.Probe() {
		t.Fatal("expect probe success against live listener")
	}

	// Probe reports, the caller decides: a successful probe must not
	// resurrect a dead-marked replica by itself.
	e.MarkDead()
	e.Probe()
	if e.IsAlive() {
		t.Fatal("probe must not mutate the alive flag")
	}

	addr := ln.Addr().String()
	ln.Close()
	dead := newTestEndpoint(t, addr)
	if dead.Probe() {
		t.Fatal("expect probe failure against closed listener")
	}
}

func TestSendAndAwaitAck(t *testing.T) {
	ln := ackServer(t, "ACK", "OK:world")
	e := newTestEndpoint(t, ln.Addr().String())

	resp, err := e.SendAndAwaitAck("OPERACION:MESSAGE\nhello")
	if err != nil {
		t.Fatal(err)
	}
	if resp != "OK:world" {
		t.Fatalf("expect OK:world, got %q", resp)
	}
}

func TestSendAndAwaitAckCaseInsensitive(t *testing.T) {
	ln := ackServer(t, "ack", "fine")
	e := newTestEndpoint(t, ln.Addr().String())

	resp, err := e.SendAndAwaitAck("ping")
	if err != nil {
		t.Fatal(err)
	}
	if resp != "fine" {
		t.Fatalf("expect fine, got %q", resp)
	}
}

func TestSendAndAwaitAckWrongAck(t *testing.T) {
	ln := ackServer(t, "NAK", "ignored")
	e := newTestEndpoint(t, ln.Addr().String())

	if _, err := e.SendAndAwaitAck("ping"); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expect ErrUnreachable, got %v", err)
	}
}

// A backend that accepts but never ACKs must be attempted exactly three
// times — a fourth attempt is never made.
func TestSendAndAwaitAckAttemptBound(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	var accepts atomic.Int32
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			accepts.Add(1)
			// Hold the connection open without writing anything so the
			// client read times out.
			go func(c net.Conn) {
				time.Sleep(time.Second)
				c.Close()
			}(conn)
		}
	}()

	e := newTestEndpoint(t, ln.Addr().String())
	_, err = e.SendAndAwaitAck("ping")
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expect ErrUnreachable, got %v", err)
	}

	// Let the accept loop catch up with the last dial, then confirm no
	// fourth attempt ever arrives.
	deadline := time.Now().Add(time.Second)
	for accepts.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if got := accepts.Load(); got != 3 {
		t.Fatalf("expect exactly 3 attempts, got %d", got)
	}
}

func TestSendAndAwaitAckConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	e := newTestEndpoint(t, addr)
	if _, err := e.SendAndAwaitAck("ping"); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expect ErrUnreachable, got %v", err)
	}
}

func TestReplay(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	received := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		var all strings.Builder
		conn.SetReadDeadline(time.Now().Add(time.Second))
		for {
			n, err := conn.Read(buf)
			all.Write(buf[:n])
			if err != nil {
				break
			}
		}
		received <- all.String()
	}()

	e := newTestEndpoint(t, ln.Addr().String())
	entries := []string{"OPERACION:MESSAGE\nfirst", "OPERACION:MESSAGE\nsecond"}
	if err := e.Replay(context.Background(), entries); err != nil {
		t.Fatal(err)
	}

	got := <-received
	want := "OPERACION:MESSAGE\nfirst\nOPERACION:MESSAGE\nsecond\n"
	if got != want {
		t.Fatalf("expect %q, got %q", want, got)
	}
}

func TestReplayEmptyJournalSkipsDial(t *testing.T) {
	// No listener at all — an empty replay must still succeed.
	e := NewEndpoint("127.0.0.1", "1")
	if err := e.Replay(context.Background(), nil); err != nil {
		t.Fatalf("empty replay should not dial: %v", err)
	}
}

func TestReplayTransportError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	e := newTestEndpoint(t, addr)
	if err := e.Replay(context.Background(), []string{"entry"}); err == nil {
		t.Fatal("expect error replaying to closed listener")
	}
}

func TestStateFlags(t *testing.T) {
	e := NewEndpoint("127.0.0.1", "9001")

	// REGISTERED: live and fresh.
	if !e.IsAlive() {
		t.Fatal("new endpoint must start alive")
	}
	if e.Synced() {
		t.Fatal("new endpoint must start fresh")
	}

	e.MarkDead()
	if e.IsAlive() {
		t.Fatal("expect dead after MarkDead")
	}
	e.MarkAlive()
	e.MarkSynced()
	if !e.IsAlive() || !e.Synced() {
		t.Fatal("expect alive and synced")
	}
}
