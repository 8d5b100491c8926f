package middleware

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"msgproxy/wire"
)

// Logging records operation, duration, and the error token (if any) for each
// forwarded request.
func Logging(log *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *wire.Request) string {
			start := time.Now()
			resp := next(ctx, req)

			fields := []zap.Field{
				zap.Stringer("op", req.Operation()),
				zap.Duration("duration", time.Since(start)),
			}
			if strings.HasPrefix(resp, "ERROR") {
				log.Warn("forward failed", append(fields, zap.String("token", resp))...)
			} else {
				log.Debug("forwarded", fields...)
			}
			return resp
		}
	}
}
