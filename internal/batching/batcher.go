package batching

import (
	"context"
	"sync/atomic"
	"time"
)

// Batcher owns one ring and its dispatcher. It is created once at startup,
// shared by reference across all submitting goroutines and closed at
// shutdown after in-flight batches have drained.
type Batcher struct {
	cfg      Config
	ring     *Ring
	disp     *dispatcher
	slotSize int

	closed atomic.Bool
	active atomic.Int64
}

// New validates cfg, applies defaults and starts the dispatcher.
func New(cfg Config) (*Batcher, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	bt := &Batcher{
		cfg:      cfg,
		slotSize: cfg.InputShape.Bytes(),
	}
	bt.ring = newRing(cfg.RingSize, cfg.Capacity, bt.slotSize)
	bt.disp = newDispatcher(bt.ring, cfg, &bt.active)
	go bt.disp.run()
	cfg.Logger.Debug().
		Str("ring", cfg.Name).
		Int("capacity", cfg.Capacity).
		Int("ring_size", cfg.RingSize).
		Dur("max_wait", cfg.MaxWait).
		Str("input", cfg.InputShape.String()).
		Msg("batcher started")
	return bt, nil
}

// Name is the configured ring name.
func (bt *Batcher) Name() string { return bt.cfg.Name }

// InputShape is the per-sample input shape.
func (bt *Batcher) InputShape() Shape { return bt.cfg.InputShape }

// OutputShape is the per-sample output shape, if configured.
func (bt *Batcher) OutputShape() Shape { return bt.cfg.OutputShape }

// Ring exposes the underlying ring for inspection.
func (bt *Batcher) Ring() *Ring { return bt.ring }

// Enqueue reserves a slot, copies input into it and returns the handle to
// wait on. It blocks only when the ring is saturated and the admission policy
// is AdmissionBlock.
func (bt *Batcher) Enqueue(ctx context.Context, input []byte) (*Handle, error) {
	if len(input) != bt.slotSize {
		return nil, shapeMismatchError{got: len(input), want: bt.slotSize}
	}
	if err := ctx.Err(); err != nil {
		return nil, cancelledError{cause: err}
	}
	// Paired with Close: closed is stored before active is read there.
	bt.active.Add(1)
	defer bt.active.Add(-1)
	if bt.closed.Load() {
		return nil, bt.reject(rejectedError{reason: "shutting down"})
	}
	for {
		b, idx, gen, err := bt.admit(ctx)
		if err != nil {
			return nil, bt.reject(err)
		}
		h := newHandle(idx, gen)
		if err := b.write(idx, gen, input, h); err == nil {
			return h, nil
		}
		// The batch was recycled under a stalled writer; reserve again.
	}
}

// Submit enqueues input and waits for its result.
func (bt *Batcher) Submit(ctx context.Context, input []byte) (Result, error) {
	h, err := bt.Enqueue(ctx, input)
	if err != nil {
		return Result{}, err
	}
	return h.Wait(ctx)
}

func (bt *Batcher) reject(err error) error {
	name := EventRequestRejected
	if IsCancelled(err) {
		name = EventRequestCancelled
	}
	bt.cfg.Publisher.Publish(Event{Name: name, Ring: bt.cfg.Name, Fields: map[string]any{"reason": err.Error()}})
	return err
}

// Closed reports whether Close has been called.
func (bt *Batcher) Closed() bool { return bt.closed.Load() }

// Close stops admissions, dispatches every partial batch and waits for all
// in-flight batches to drain. If ctx ends first, running executor calls are
// cancelled and Close still waits for their results to be delivered before
// returning ctx's error.
func (bt *Batcher) Close(ctx context.Context) error {
	if bt.closed.CompareAndSwap(false, true) {
		bt.ring.broadcast()
		bt.disp.draining.Store(true)
		bt.ring.kick()
	}
	select {
	case <-bt.disp.done:
		return nil
	case <-ctx.Done():
		bt.disp.cancelExec()
		<-bt.disp.done
		return ctx.Err()
	}
}

// Snapshot returns a racy but consistent-per-batch view for status reporting.
func (bt *Batcher) Snapshot() RingSnapshot {
	s := bt.ring.snapshot()
	s.Name = bt.cfg.Name
	s.Closed = bt.closed.Load()
	return s
}

// MaxWait is the effective partial-batch deadline.
func (bt *Batcher) MaxWait() time.Duration { return bt.cfg.MaxWait }
