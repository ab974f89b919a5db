package monitor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"codeberg.org/tyrven/vitalsd/internal/capability"
	"codeberg.org/tyrven/vitalsd/internal/errors"
	"codeberg.org/tyrven/vitalsd/internal/metric"
	"codeberg.org/tyrven/vitalsd/internal/monitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPeriod = 10 * time.Millisecond
	waitFor    = 2 * time.Second
	pollEvery  = 5 * time.Millisecond
)

// fakeReader replays a scripted outcome sequence; the last outcome
// repeats once the script runs out.
type fakeReader struct {
	id      metric.ID
	delay   time.Duration
	mu      sync.Mutex
	script  []metric.Outcome
	probes  int
	release int
}

func newFakeReader(id metric.ID, script ...metric.Outcome) *fakeReader {
	return &fakeReader{id: id, script: script}
}

func (f *fakeReader) Metric() metric.ID {
	return f.id
}

func (f *fakeReader) Probe(ctx context.Context) metric.Outcome {
	f.mu.Lock()
	i := f.probes
	f.probes++
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	outcome := f.script[i]
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}

	return outcome
}

func (f *fakeReader) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.release++

	return nil
}

func (f *fakeReader) Probes() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.probes
}

func (f *fakeReader) Releases() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.release
}

func attachSampling(t *testing.T, ctrl *monitor.Controller, r *fakeReader) *monitor.Attachment {
	t.Helper()

	att, err := ctrl.Attach(monitor.Spec{Reader: r, Period: testPeriod})
	require.NoError(t, err)

	return att
}

func waitForState(t *testing.T, pub *monitor.Publisher, id metric.ID, want capability.State) {
	t.Helper()

	require.Eventually(t, func() bool {
		view, ok := pub.View(id)

		return ok && view.State == want
	}, waitFor, pollEvery, "metric %s never reached %s", id, want)
}

func waitForPoints(t *testing.T, pub *monitor.Publisher, id metric.ID, n int) {
	t.Helper()

	require.Eventually(t, func() bool {
		view, ok := pub.View(id)

		return ok && len(view.Points) >= n
	}, waitFor, pollEvery, "metric %s never buffered %d points", id, n)
}

func TestAttachSamplesAndPublishes(t *testing.T) {
	pub := monitor.NewPublisher()
	ctrl := monitor.NewController(pub)

	r := newFakeReader(metric.Power, metric.Value(metric.Scalar(42)))
	att := attachSampling(t, ctrl, r)
	defer att.Close()

	waitForState(t, pub, metric.Power, capability.Available)
	waitForPoints(t, pub, metric.Power, 2)

	view, ok := pub.View(metric.Power)
	require.True(t, ok)
	assert.True(t, view.HasLatest)
	assert.InDelta(t, 42.0, view.Latest.Value, 1e-9)
	assert.Positive(t, view.UpdatedAt)
}

func TestReferenceCountedLifecycle(t *testing.T) {
	pub := monitor.NewPublisher()
	ctrl := monitor.NewController(pub)

	r := newFakeReader(metric.CPUUtilization, metric.Value(metric.Scalar(10)))

	first := attachSampling(t, ctrl, r)
	second := attachSampling(t, ctrl, r)
	third := attachSampling(t, ctrl, r)
	assert.Equal(t, 3, ctrl.Refs(metric.CPUUtilization))

	waitForPoints(t, pub, metric.CPUUtilization, 1)

	// N-1 detaches leave the loop running
	require.NoError(t, first.Close())
	require.NoError(t, second.Close())
	assert.Equal(t, 1, ctrl.Refs(metric.CPUUtilization))

	before := r.Probes()
	require.Eventually(t, func() bool {
		return r.Probes() > before
	}, waitFor, pollEvery, "loop must keep sampling while one attachment remains")

	// The Nth detach stops the loop, drops the view, releases the reader
	require.NoError(t, third.Close())
	assert.Equal(t, 0, ctrl.Refs(metric.CPUUtilization))
	_, ok := pub.View(metric.CPUUtilization)
	assert.False(t, ok, "teardown drops the published view")
	assert.Equal(t, 1, r.Releases())

	stopped := r.Probes()
	time.Sleep(5 * testPeriod)
	assert.Equal(t, stopped, r.Probes(), "no probes after teardown")
}

func TestReattachStartsFreshBuffer(t *testing.T) {
	pub := monitor.NewPublisher()
	ctrl := monitor.NewController(pub)

	r := newFakeReader(metric.Power, metric.Value(metric.Scalar(7)))

	att := attachSampling(t, ctrl, r)
	waitForPoints(t, pub, metric.Power, 3)
	require.NoError(t, att.Close())

	detachedAt := time.Now().UnixMilli()

	att = attachSampling(t, ctrl, r)
	defer att.Close()
	waitForPoints(t, pub, metric.Power, 1)

	view, ok := pub.View(metric.Power)
	require.True(t, ok)
	for _, p := range view.Points {
		assert.GreaterOrEqual(t, p.Timestamp, detachedAt, "old history must not survive re-attach")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	pub := monitor.NewPublisher()
	ctrl := monitor.NewController(pub)

	r := newFakeReader(metric.Power, metric.Value(metric.Scalar(1)))
	att := attachSampling(t, ctrl, r)
	other := attachSampling(t, ctrl, r)

	require.NoError(t, att.Close())
	require.NoError(t, att.Close())
	assert.Equal(t, 1, ctrl.Refs(metric.Power), "double close must not double-detach")

	require.NoError(t, other.Close())
	assert.Equal(t, 0, ctrl.Refs(metric.Power))
}

func TestTerminalGateProbesOnce(t *testing.T) {
	pub := monitor.NewPublisher()
	ctrl := monitor.NewController(pub)

	r := newFakeReader(metric.GPUFrequency, metric.Unsupported(nil))
	att := attachSampling(t, ctrl, r)
	defer att.Close()

	waitForState(t, pub, metric.GPUFrequency, capability.NotSupported)

	time.Sleep(5 * testPeriod)
	assert.Equal(t, 1, r.Probes(), "terminal capability must end probing")

	// The terminal state stays visible until the observer detaches
	view, ok := pub.View(metric.GPUFrequency)
	require.True(t, ok)
	assert.Equal(t, capability.NotSupported, view.State)
	assert.False(t, view.HasLatest)
}

func TestAccessDeniedProbesOnce(t *testing.T) {
	pub := monitor.NewPublisher()
	ctrl := monitor.NewController(pub)

	r := newFakeReader(metric.CPUFrequency, metric.AccessDenied(nil))
	att := attachSampling(t, ctrl, r)
	defer att.Close()

	waitForState(t, pub, metric.CPUFrequency, capability.RequiresElevatedAccess)

	time.Sleep(5 * testPeriod)
	assert.Equal(t, 1, r.Probes())
}

func TestTransientErrorRecovers(t *testing.T) {
	pub := monitor.NewPublisher()
	ctrl := monitor.NewController(pub)

	r := newFakeReader(metric.CPUTemperature,
		metric.Failed(context.DeadlineExceeded),
		metric.Failed(context.DeadlineExceeded),
		metric.Value(metric.Scalar(55)),
	)
	att := attachSampling(t, ctrl, r)
	defer att.Close()

	waitForState(t, pub, metric.CPUTemperature, capability.Error)
	waitForState(t, pub, metric.CPUTemperature, capability.Available)

	assert.GreaterOrEqual(t, r.Probes(), 3, "transient errors retry on the normal cadence")
}

func TestFailedTickKeepsLatest(t *testing.T) {
	pub := monitor.NewPublisher()
	ctrl := monitor.NewController(pub)

	r := newFakeReader(metric.Power,
		metric.Value(metric.Scalar(12)),
		metric.Failed(context.DeadlineExceeded),
	)
	att := attachSampling(t, ctrl, r)
	defer att.Close()

	waitForState(t, pub, metric.Power, capability.Available)
	waitForState(t, pub, metric.Power, capability.Error)

	view, ok := pub.View(metric.Power)
	require.True(t, ok)
	assert.True(t, view.HasLatest, "failures never punch a hole in the latest value")
	assert.InDelta(t, 12.0, view.Latest.Value, 1e-9)
}

func TestFailureTicksAgeOutHistory(t *testing.T) {
	pub := monitor.NewPublisher()
	ctrl := monitor.NewController(pub)

	r := newFakeReader(metric.Power,
		metric.Value(metric.Scalar(3)),
		metric.Failed(context.DeadlineExceeded),
	)
	att, err := ctrl.Attach(monitor.Spec{
		Reader: r,
		Period: testPeriod,
		Window: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	defer att.Close()

	waitForPoints(t, pub, metric.Power, 1)

	// Only failures follow, so pruning alone must age the point out
	require.Eventually(t, func() bool {
		view, ok := pub.View(metric.Power)

		return ok && len(view.Points) == 0
	}, waitFor, pollEvery, "silent history must age out rather than freeze")

	view, _ := pub.View(metric.Power)
	assert.True(t, view.HasLatest, "latest survives even after history ages out")
}

func TestProbeTimeoutIsTransient(t *testing.T) {
	pub := monitor.NewPublisher()
	ctrl := monitor.NewController(pub)

	r := newFakeReader(metric.BatteryTemperature, metric.Value(metric.Scalar(30)))
	r.delay = 100 * time.Millisecond

	att, err := ctrl.Attach(monitor.Spec{
		Reader:       r,
		Period:       30 * time.Millisecond,
		ProbeTimeout: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	defer att.Close()

	waitForState(t, pub, metric.BatteryTemperature, capability.Error)

	view, _ := pub.View(metric.BatteryTemperature)
	assert.False(t, view.HasLatest, "timed-out probes must not publish values")
}

func TestLabelOnlySamplesSkipHistory(t *testing.T) {
	pub := monitor.NewPublisher()
	ctrl := monitor.NewController(pub)

	r := newFakeReader(metric.CPUGovernor, metric.Value(metric.Labeled("schedutil")))
	att := attachSampling(t, ctrl, r)
	defer att.Close()

	waitForState(t, pub, metric.CPUGovernor, capability.Available)
	require.Eventually(t, func() bool {
		return r.Probes() >= 3
	}, waitFor, pollEvery)

	view, ok := pub.View(metric.CPUGovernor)
	require.True(t, ok)
	assert.True(t, view.HasLatest)
	assert.Equal(t, "schedutil", view.Latest.Label)
	assert.Empty(t, view.Points, "text samples have no place on a graph")
}

func TestAttachValidation(t *testing.T) {
	ctrl := monitor.NewController(monitor.NewPublisher())

	_, err := ctrl.Attach(monitor.Spec{Period: testPeriod})
	require.Error(t, err)
	code, ok := errors.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, monitor.ErrInvalidSpec, code)

	_, err = ctrl.Attach(monitor.Spec{Reader: newFakeReader("bogus", metric.Value(metric.Scalar(1))), Period: testPeriod})
	require.Error(t, err)
	code, _ = errors.CodeOf(err)
	assert.Equal(t, monitor.ErrUnknownMetric, code)

	_, err = ctrl.Attach(monitor.Spec{Reader: newFakeReader(metric.Power, metric.Value(metric.Scalar(1)))})
	require.Error(t, err, "a zero period is invalid")

	_, err = ctrl.Attach(monitor.Spec{
		Reader:    newFakeReader(metric.Power, metric.Value(metric.Scalar(1))),
		Period:    testPeriod,
		MaxPoints: 10,
		Window:    time.Second,
	})
	require.Error(t, err, "retention policies are mutually exclusive")
}

func TestShutdownStopsEverything(t *testing.T) {
	pub := monitor.NewPublisher()
	ctrl := monitor.NewController(pub)

	power := newFakeReader(metric.Power, metric.Value(metric.Scalar(1)))
	temp := newFakeReader(metric.CPUTemperature, metric.Value(metric.Scalar(2)))

	attPower := attachSampling(t, ctrl, power)
	attTemp := attachSampling(t, ctrl, temp)

	waitForPoints(t, pub, metric.Power, 1)
	waitForPoints(t, pub, metric.CPUTemperature, 1)

	ctrl.Shutdown()

	assert.Empty(t, pub.Snapshot())
	assert.Equal(t, 1, power.Releases())
	assert.Equal(t, 1, temp.Releases())

	// Stale attachments close without effect
	require.NoError(t, attPower.Close())
	require.NoError(t, attTemp.Close())
}

func TestSlowSubscriberNeverStallsLoops(t *testing.T) {
	pub := monitor.NewPublisher()
	ctrl := monitor.NewController(pub)

	// Subscribe with a tiny buffer and never drain it
	_, cancel := pub.Subscribe(1)
	defer cancel()

	r := newFakeReader(metric.Power, metric.Value(metric.Scalar(9)))
	att := attachSampling(t, ctrl, r)
	defer att.Close()

	require.Eventually(t, func() bool {
		return r.Probes() >= 5
	}, waitFor, pollEvery, "a full subscriber buffer must drop updates, not block sampling")
}
