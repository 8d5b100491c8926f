package middleware

import (
	"context"
	"time"

	"msgproxy/metrics"
	"msgproxy/wire"
)

// Metrics counts forwards by outcome and observes end-to-end latency.
func Metrics(m *metrics.Metrics) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *wire.Request) string {
			start := time.Now()
			resp := next(ctx, req)
			m.ForwardDuration.Observe(time.Since(start).Seconds())

			switch resp {
			case wire.TokenNoBackends:
				m.ForwardsTotal.WithLabelValues(metrics.OutcomeNoBackends).Inc()
			case wire.TokenAllDown:
				m.ForwardsTotal.WithLabelValues(metrics.OutcomeAllDown).Inc()
			default:
				m.ForwardsTotal.WithLabelValues(metrics.OutcomeOK).Inc()
			}
			return resp
		}
	}
}
