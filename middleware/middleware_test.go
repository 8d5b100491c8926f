package middleware

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"msgproxy/metrics"
	"msgproxy/wire"
)

func echoHandler(ctx context.Context, req *wire.Request) string {
	return "OK:" + req.Body
}

func TestChainOrder(t *testing.T) {
	var trace []string
	tag := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *wire.Request) string {
				trace = append(trace, name+".before")
				resp := next(ctx, req)
				trace = append(trace, name+".after")
				return resp
			}
		}
	}

	handler := Chain(tag("outer"), tag("inner"))(echoHandler)
	resp := handler(context.Background(), &wire.Request{Header: "OPERACION:MESSAGE", Body: "x"})
	if resp != "OK:x" {
		t.Fatalf("expect OK:x, got %q", resp)
	}

	want := []string{"outer.before", "inner.before", "inner.after", "outer.after"}
	if len(trace) != len(want) {
		t.Fatalf("expect %v, got %v", want, trace)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("expect %v, got %v", want, trace)
		}
	}
}

func TestChainEmpty(t *testing.T) {
	handler := Chain()(echoHandler)
	if resp := handler(context.Background(), &wire.Request{Body: "y"}); resp != "OK:y" {
		t.Fatalf("empty chain must pass through, got %q", resp)
	}
}

func TestLoggingPassesThrough(t *testing.T) {
	handler := Logging(zap.NewNop())(echoHandler)
	req := &wire.Request{Header: "OPERACION:CLIENT_REQ;USER:alice", Body: "hello"}
	if resp := handler(context.Background(), req); resp != "OK:hello" {
		t.Fatalf("expect OK:hello, got %q", resp)
	}
}

func TestMetricsPassesThrough(t *testing.T) {
	m := metrics.New()
	failing := func(ctx context.Context, req *wire.Request) string {
		return wire.TokenAllDown
	}

	handler := Metrics(m)(failing)
	req := &wire.Request{Header: "OPERACION:MESSAGE", Body: "b"}
	if resp := handler(context.Background(), req); resp != wire.TokenAllDown {
		t.Fatalf("expect all-down token, got %q", resp)
	}

	handler = Metrics(m)(echoHandler)
	if resp := handler(context.Background(), req); resp != "OK:b" {
		t.Fatalf("expect OK:b, got %q", resp)
	}
}
