package reader

import (
	"context"

	"codeberg.org/tyrven/vitalsd/internal/metric"
)

// Reader performs one synchronous probe of a single hardware metric.
// Probes are side-effect-free from the caller's perspective; a reader
// may keep private counter snapshots between probes (utilization and
// energy deltas need them). Missing hardware is never an error: it maps
// to an Unsupported outcome, and privilege barriers map to
// AccessDenied, so the sampling loop stays metric-agnostic.
type Reader interface {
	// Metric identifies the quantity this reader probes.
	Metric() metric.ID

	// Probe performs one read. It must return promptly; the caller
	// enforces a timeout and treats overruns as transient failures.
	Probe(ctx context.Context) metric.Outcome
}

// Releaser is implemented by readers that hold a device or driver
// handle. The lifecycle controller calls Release when the last observer
// of the reader's loop detaches.
type Releaser interface {
	Release() error
}
