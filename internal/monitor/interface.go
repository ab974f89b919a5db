// Package monitor runs the sampling loops and owns the read model they
// publish. Each attached metric gets one goroutine that probes its
// reader on a fixed cadence, feeds the capability gate, maintains the
// bounded history, and publishes an atomic per-metric view. Observers
// attach and detach through the Controller; sampling for a metric runs
// only while at least one observer holds an attachment.
package monitor

import (
	"time"

	"codeberg.org/tyrven/vitalsd/internal/capability"
	"codeberg.org/tyrven/vitalsd/internal/metric"
	"codeberg.org/tyrven/vitalsd/internal/reader"
	"codeberg.org/tyrven/vitalsd/internal/series"
)

const (
	// DefaultProbeTimeout bounds a single probe; an overrun counts as a
	// transient failure for that tick.
	DefaultProbeTimeout = 500 * time.Millisecond

	// DefaultWindow is the history retention applied when a spec names
	// no policy.
	DefaultWindow = 30 * time.Second
)

// Spec describes one sampling loop: which reader to probe, how often,
// and how much history to retain. Exactly one retention policy applies;
// set MaxPoints for a count bound or Window for a duration bound, not
// both. With neither set, DefaultWindow applies.
type Spec struct {
	Reader       reader.Reader
	Period       time.Duration
	ProbeTimeout time.Duration
	MaxPoints    int
	Window       time.Duration
}

// MetricView is the published state of one metric: its capability
// state, the latest sample, and the retained history. Latest survives
// failed ticks so observers never see a hole; UpdatedAt tells them how
// fresh it is. Views handed to subscribers are read-only by contract;
// Snapshot returns deep copies.
type MetricView struct {
	Metric    metric.ID
	State     capability.State
	Latest    metric.Sample
	HasLatest bool
	UpdatedAt int64
	Points    []series.Point
}

// Snapshot is the full read model: one view per actively monitored
// metric. Metrics whose loops have been torn down are absent.
type Snapshot map[metric.ID]MetricView

// Update notifies a subscriber that one metric's view changed.
type Update struct {
	Metric metric.ID
	View   MetricView
}
