package monitor

import (
	"context"
	"sync"

	"codeberg.org/tyrven/vitalsd/internal/errors"
	"codeberg.org/tyrven/vitalsd/internal/logger"
	"codeberg.org/tyrven/vitalsd/internal/metric"
	"codeberg.org/tyrven/vitalsd/internal/reader"
)

// Controller maps observer attach/detach events to loop start/stop. At
// most one loop per metric runs system-wide; a second attach for the
// same metric raises a reference count instead of starting a duplicate.
// The loop stops, and its reader's handle is released, when the count
// returns to zero.
//
// Attach and detach serialize on one mutex, and a final detach holds it
// until the loop goroutine has exited. Teardown therefore blocks for at
// most one probe timeout; callers on interactive paths should detach
// from a background goroutine if that matters to them.
type Controller struct {
	pub    *Publisher
	mu     sync.Mutex
	active map[metric.ID]*activeLoop
}

type activeLoop struct {
	spec   Spec
	refs   int
	cancel context.CancelFunc
	done   chan struct{}
}

func NewController(pub *Publisher) *Controller {
	return &Controller{
		pub:    pub,
		active: make(map[metric.ID]*activeLoop),
	}
}

// Attachment is one observer's hold on a metric's sampling loop.
type Attachment struct {
	controller *Controller
	id         metric.ID
	once       sync.Once
}

// Metric identifies the loop this attachment holds open.
func (a *Attachment) Metric() metric.ID {
	return a.id
}

// Close detaches. Closing the last attachment for a metric stops its
// loop, drops its published view, and releases the reader's handle.
// Safe to call more than once; only the first call detaches.
func (a *Attachment) Close() error {
	a.once.Do(func() {
		a.controller.detach(a.id)
	})

	return nil
}

// Attach starts sampling the spec's metric, or joins the loop already
// running for it. When a loop is already active the existing spec wins;
// the new spec's cadence and retention are ignored. Every successful
// Attach must be paired with a Close.
func (c *Controller) Attach(spec Spec) (*Attachment, error) {
	if err := validateSpec(spec); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id := spec.Reader.Metric()
	if al, ok := c.active[id]; ok {
		al.refs++

		return &Attachment{controller: c, id: id}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	al := &activeLoop{
		spec:   spec,
		refs:   1,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.active[id] = al

	l := newLoop(spec, c.pub)
	go func() {
		defer close(al.done)
		l.run(ctx)
	}()

	logger.Debug().
		Str("metric", id.String()).
		Dur("period", spec.Period).
		Msg("Sampling loop started")

	return &Attachment{controller: c, id: id}, nil
}

func (c *Controller) detach(id metric.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	al, ok := c.active[id]
	if !ok {
		return
	}

	al.refs--
	if al.refs > 0 {
		return
	}

	delete(c.active, id)
	c.stop(id, al)
}

// stop tears one loop down: cancel, wait for the goroutine, drop the
// published view, release the reader. Callers hold c.mu.
func (c *Controller) stop(id metric.ID, al *activeLoop) {
	al.cancel()
	<-al.done
	c.pub.drop(id)

	if releaser, ok := al.spec.Reader.(reader.Releaser); ok {
		if err := releaser.Release(); err != nil {
			errFactory := errors.New()
			logger.ErrorWithCode(errFactory.Wrap(ErrReaderRelease, err)).
				Str("metric", id.String()).
				Send()
		}
	}

	logger.Debug().
		Str("metric", id.String()).
		Msg("Sampling loop stopped")
}

// Refs reports the current attachment count for a metric. Zero means no
// loop is running.
func (c *Controller) Refs(id metric.ID) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if al, ok := c.active[id]; ok {
		return al.refs
	}

	return 0
}

// Shutdown force-stops every loop regardless of outstanding
// attachments. Later Close calls on stale attachments are no-ops.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, al := range c.active {
		delete(c.active, id)
		c.stop(id, al)
	}
}

func validateSpec(spec Spec) error {
	errFactory := errors.New()

	if spec.Reader == nil {
		return errFactory.WithMessage(ErrInvalidSpec, "spec has no reader")
	}
	if !spec.Reader.Metric().Valid() {
		return errFactory.WithData(ErrUnknownMetric, struct {
			Metric string
		}{Metric: spec.Reader.Metric().String()})
	}
	if spec.Period <= 0 {
		return errFactory.WithMessage(ErrInvalidSpec, "sampling period must be positive")
	}
	if spec.MaxPoints < 0 {
		return errFactory.WithMessage(ErrInvalidSpec, "max points must not be negative")
	}
	if spec.MaxPoints > 0 && spec.Window > 0 {
		return errFactory.WithMessage(ErrInvalidSpec, "count and duration retention are mutually exclusive")
	}

	return nil
}
