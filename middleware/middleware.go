// Package middleware implements the onion-model chain wrapped around the
// dispatcher's forward path.
//
// Middleware adds cross-cutting concerns (logging, metrics) without touching
// the forward logic itself:
//
//	Chain(A, B)(forward)  →  A(B(forward))
//
//	Request:   A.before → B.before → forward
//	Response:  forward → B.after → A.after
//
// A middleware may short-circuit by returning a response line without calling
// next.
package middleware

import (
	"context"

	"msgproxy/wire"
)

// HandlerFunc takes a request and produces the response line the client will
// see. The dispatcher's forward is the innermost HandlerFunc; every layer
// above it shares the signature.
type HandlerFunc func(ctx context.Context, req *wire.Request) string

// Middleware wraps a handler in a new handler.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares into one. It builds right to left so the first
// middleware in the list is the outermost layer.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
