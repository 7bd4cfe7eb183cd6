package shardindex

import (
	"context"
	"log/slog"
	"time"
)

// Middleware wraps a Transport.
type Middleware func(Transport) Transport

// Chain applies middlewares so that the first one is outermost.
func Chain(t Transport, mws ...Middleware) Transport {
	for i := len(mws) - 1; i >= 0; i-- {
		t = mws[i](t)
	}
	return t
}

// WithTimeout bounds each fetch. Zero disables it.
func WithTimeout(d time.Duration) Middleware {
	return func(next Transport) Transport {
		return TransportFunc(func(ctx context.Context, address string) ([]byte, error) {
			if d > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}
			return next.Fetch(ctx, address)
		})
	}
}

// WithCallLogging logs each fetch with its duration and size.
func WithCallLogging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Transport) Transport {
		return TransportFunc(func(ctx context.Context, address string) ([]byte, error) {
			start := time.Now()
			data, err := next.Fetch(ctx, address)
			dur := time.Since(start)
			if err != nil {
				logger.WarnContext(ctx, "shard fetch failed",
					"address", address,
					"duration_ms", dur.Milliseconds(),
					"error", err)
			} else {
				logger.DebugContext(ctx, "shard fetch ok",
					"address", address,
					"duration_ms", dur.Milliseconds(),
					"bytes", len(data))
			}
			return data, err
		})
	}
}
