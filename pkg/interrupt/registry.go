// Package interrupt implements the InterruptRegistry described in §4.10:
// a process-wide (or, with the redis backend, cluster-wide) map from
// hardware_id to an InterruptMark, set by the gRPC endpoint on
// half-close or an explicit interrupt message, and polled by
// RequestOrchestrator between yields so it can break its loop within
// one yield boundary.
package interrupt

import (
	"context"
	"time"
)

// DefaultTTL is the mark lifetime named in §4.10 when the caller does
// not configure one explicitly.
const DefaultTTL = 5 * time.Second

// Registry is the capability RequestOrchestrator and the gRPC handler
// depend on. Both the memory and redis backends satisfy it.
type Registry interface {
	Mark(ctx context.Context, hardwareID string) error
	IsMarked(ctx context.Context, hardwareID string) (bool, error)
	Clear(ctx context.Context, hardwareID string) error
}
