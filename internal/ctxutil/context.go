// Package ctxutil builds the request contexts threaded through every
// DHT packet handler: an optional trace ID for cross-node correlation
// and an optional hop counter, following the teacher's NewContext
// functional-options shape.
package ctxutil

import (
	"context"
	"errors"
	"time"

	"netlab/internal/trace"
)

// unexported keys to avoid collisions
type traceKey struct{}
type hopsKey struct{}

// ContextOption configures the behavior of NewContext. Multiple
// options can be combined.
type ContextOption func(*ctxConfig)

type ctxConfig struct {
	withTrace bool
	withHops  bool
	nodeID    string
	timeout   time.Duration
}

// WithTrace enables attaching a fresh trace ID derived from nodeID.
func WithTrace(nodeID string) ContextOption {
	return func(cfg *ctxConfig) {
		cfg.withTrace = true
		cfg.nodeID = nodeID
	}
}

// WithTimeout applies a deadline of d to the created context. The
// caller must invoke the returned cancel function.
func WithTimeout(d time.Duration) ContextOption {
	return func(cfg *ctxConfig) {
		cfg.timeout = d
	}
}

// WithHops initializes the hop counter at 0.
func WithHops() ContextOption {
	return func(cfg *ctxConfig) {
		cfg.withHops = true
	}
}

// NewContext builds a context.Background() derivative configured by
// opts, returning a no-op cancel function when no timeout was set.
func NewContext(opts ...ContextOption) (context.Context, context.CancelFunc) {
	cfg := &ctxConfig{}
	for _, o := range opts {
		o(cfg)
	}

	var ctx context.Context
	cancel := func() {}
	if cfg.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), cfg.timeout)
	} else {
		ctx = context.Background()
	}
	if cfg.withTrace {
		ctx, _ = trace.AttachTraceID(ctx, cfg.nodeID)
	}
	if cfg.withHops {
		ctx = context.WithValue(ctx, hopsKey{}, 0)
	}

	return ctx, cancel
}

// TraceIDFromContext returns the trace ID carried by ctx, or "" if none.
func TraceIDFromContext(ctx context.Context) string {
	return trace.GetTraceID(ctx)
}

// EnsureTraceID attaches a fresh trace ID derived from nodeID if ctx
// doesn't already carry one, returning the (possibly unchanged) context.
func EnsureTraceID(ctx context.Context, nodeID string) context.Context {
	if id := trace.GetTraceID(ctx); id == "" {
		ctx, _ = trace.AttachTraceID(ctx, nodeID)
	}
	return ctx
}

// HopsFromContext returns the current hop counter, or -1 if unset.
func HopsFromContext(ctx context.Context) int {
	val := ctx.Value(hopsKey{})
	if hops, ok := val.(int); ok {
		return hops
	}
	return -1
}

// IncHops increments the hop counter if present. A counter of -1
// ("don't count") is left unchanged, as is a context with no counter.
func IncHops(ctx context.Context) context.Context {
	val := ctx.Value(hopsKey{})
	if hops, ok := val.(int); ok {
		if hops == -1 {
			return ctx
		}
		return context.WithValue(ctx, hopsKey{}, hops+1)
	}
	return ctx
}

// ErrCanceled and ErrDeadlineExceeded are returned by CheckContext in
// place of the teacher's gRPC status errors, since packet handlers in
// this module reply over plain UDP rather than RPC.
var (
	ErrCanceled         = errors.New("request was canceled by client")
	ErrDeadlineExceeded = errors.New("request deadline exceeded")
)

// CheckContext reports whether ctx has already been canceled or its
// deadline has expired, returning nil when it is still active. Call
// this at the start of a packet handler before doing any work.
func CheckContext(ctx context.Context) error {
	switch err := ctx.Err(); {
	case errors.Is(err, context.Canceled):
		return ErrCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrDeadlineExceeded
	default:
		return nil
	}
}
