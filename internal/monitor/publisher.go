package monitor

import (
	"sync"

	"codeberg.org/tyrven/vitalsd/internal/metric"
	"codeberg.org/tyrven/vitalsd/internal/series"
)

// Publisher is the single point of shared state between sampling loops
// and observers. A loop publishes its metric's whole view in one call,
// so a reader can never observe a fresh latest value paired with a
// stale buffer for the same metric.
type Publisher struct {
	mu        sync.RWMutex
	views     map[metric.ID]MetricView
	subs      map[int]chan Update
	nextSubID int
}

func NewPublisher() *Publisher {
	return &Publisher{
		views: make(map[metric.ID]MetricView),
		subs:  make(map[int]chan Update),
	}
}

// publish replaces one metric's view and fans the update out. Sends are
// non-blocking: a subscriber that stops draining loses updates, never
// stalls a loop.
func (p *Publisher) publish(view MetricView) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.views[view.Metric] = view

	update := Update{Metric: view.Metric, View: view}
	for _, ch := range p.subs {
		select {
		case ch <- update:
		default:
		}
	}
}

// drop removes a metric's view when its loop is torn down.
func (p *Publisher) drop(id metric.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.views, id)
}

// View returns the current view of one metric.
func (p *Publisher) View(id metric.ID) (MetricView, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	view, ok := p.views[id]
	if ok {
		view.Points = copyPoints(view.Points)
	}

	return view, ok
}

// Snapshot returns a deep copy of the whole read model.
func (p *Publisher) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snap := make(Snapshot, len(p.views))
	for id, view := range p.views {
		view.Points = copyPoints(view.Points)
		snap[id] = view
	}

	return snap
}

// Subscribe registers an update channel with the given buffer size. The
// returned cancel func unregisters and closes the channel; it is safe
// to call more than once.
func (p *Publisher) Subscribe(buffer int) (<-chan Update, func()) {
	if buffer < 1 {
		buffer = 1
	}

	p.mu.Lock()
	id := p.nextSubID
	p.nextSubID++
	ch := make(chan Update, buffer)
	p.subs[id] = ch
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
			close(ch)
		})
	}

	return ch, cancel
}

func copyPoints(points []series.Point) []series.Point {
	if points == nil {
		return nil
	}

	out := make([]series.Point, len(points))
	copy(out, points)

	return out
}
