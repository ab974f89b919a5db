package monitor

import (
	"context"
	"time"

	"codeberg.org/tyrven/vitalsd/internal/capability"
	"codeberg.org/tyrven/vitalsd/internal/logger"
	"codeberg.org/tyrven/vitalsd/internal/metric"
	"codeberg.org/tyrven/vitalsd/internal/series"
)

// loop owns everything for one metric: reader, gate, history, latest
// sample. Nothing here is shared; the publisher receives copies.
type loop struct {
	spec      Spec
	id        metric.ID
	gate      *capability.Gate
	history   *series.Series
	pub       *Publisher
	latest    metric.Sample
	hasLatest bool
	updatedAt int64
}

func newLoop(spec Spec, pub *Publisher) *loop {
	var history *series.Series
	switch {
	case spec.MaxPoints > 0:
		history = series.NewCountBound(spec.MaxPoints)
	case spec.Window > 0:
		history = series.NewDurationBound(spec.Window)
	default:
		history = series.NewDurationBound(DefaultWindow)
	}

	return &loop{
		spec:    spec,
		id:      spec.Reader.Metric(),
		gate:    capability.NewGate(),
		history: history,
		pub:     pub,
	}
}

// run ticks until the context is canceled or the gate turns terminal.
// The first probe fires immediately so slow cadences do not leave the
// metric in Loading for a whole period. On a terminal gate the
// goroutine exits early; the published view keeps showing the terminal
// state until the loop is torn down.
func (l *loop) run(ctx context.Context) {
	l.pub.publish(l.view())

	l.tick(ctx)
	if !l.gate.ShouldProbe() {
		return
	}

	ticker := time.NewTicker(l.spec.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
			if !l.gate.ShouldProbe() {
				return
			}
		}
	}
}

// tick performs one probe and publishes the resulting view. A failed
// probe leaves the previous latest sample in place and appends nothing;
// it only ages out stale history and updates the capability state.
func (l *loop) tick(ctx context.Context) {
	outcome := l.probe(ctx)
	if ctx.Err() != nil {
		// Tearing down; a canceled probe is not a real observation.
		return
	}

	state, changed := l.gate.Observe(outcome)
	if changed {
		logger.Info().
			Str("metric", l.id.String()).
			Str("state", state.String()).
			Msg("Capability state changed")
	}

	now := time.Now().UnixMilli()
	if sample, ok := outcome.Sample(); ok {
		if sample.HasValue {
			if err := l.history.Append(now, sample.Value); err != nil {
				logger.Debug().
					Str("metric", l.id.String()).
					Int64("timestamp", now).
					Err(err).
					Msg("Dropped non-monotonic point")
			}
		}
		l.latest = sample
		l.hasLatest = true
		l.updatedAt = now
	} else {
		l.history.Prune(now)
		if err := outcome.Err(); err != nil {
			logger.Debug().
				Str("metric", l.id.String()).
				Str("status", outcome.Status().String()).
				Err(err).
				Msg("Probe produced no sample")
		}
	}

	l.pub.publish(l.view())
}

// probe runs the reader under the spec's timeout. An overrun counts as
// a transient failure; the stuck probe finishes on its own time in the
// background.
func (l *loop) probe(ctx context.Context) metric.Outcome {
	timeout := l.spec.ProbeTimeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan metric.Outcome, 1)
	go func() {
		done <- l.spec.Reader.Probe(pctx)
	}()

	select {
	case outcome := <-done:
		return outcome
	case <-pctx.Done():
		return metric.Failed(pctx.Err())
	}
}

func (l *loop) view() MetricView {
	return MetricView{
		Metric:    l.id,
		State:     l.gate.State(),
		Latest:    l.latest,
		HasLatest: l.hasLatest,
		UpdatedAt: l.updatedAt,
		Points:    l.history.Points(),
	}
}
