// Package trace generates globally unique, sortable trace IDs used to
// correlate a DHT/Forwarder/RDT operation across every node it touches,
// grounded on the teacher's ULID-based trace.go.
package trace

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

type traceKey struct{}

// GenerateTraceID returns a new trace ID of the form "<nodeID>-<ULID>".
func GenerateTraceID(nodeID string) string {
	t := time.Now().UTC()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	return fmt.Sprintf("%s-%s", nodeID, id.String())
}

// AttachTraceID generates a trace ID rooted at nodeID and stores it in
// ctx, returning both the derived context and the trace ID itself.
func AttachTraceID(ctx context.Context, nodeID string) (context.Context, string) {
	traceID := GenerateTraceID(nodeID)
	return context.WithValue(ctx, traceKey{}, traceID), traceID
}

// GetTraceID returns the trace ID carried by ctx, or "" if none.
func GetTraceID(ctx context.Context) string {
	if v := ctx.Value(traceKey{}); v != nil {
		if id, ok := v.(string); ok && id != "" {
			return id
		}
	}
	return ""
}
