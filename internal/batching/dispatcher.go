package batching

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

const (
	// spins before the dispatcher starts sleeping while writers finish copying
	maxSpins = 64
	spinWait = 20 * time.Microsecond
	// poll interval while draining with submitters still in flight
	drainPoll = 200 * time.Microsecond
)

// Close reasons reported on dispatch events.
const (
	ReasonFull     = "full"
	ReasonTimeout  = "timeout"
	ReasonShutdown = "shutdown"
)

// dispatcher is the single consumer of one ring. It closes batches that are
// full or past their deadline, hands them to the executor and delivers the
// results.
type dispatcher struct {
	ring *Ring
	cfg  Config
	log  zerolog.Logger
	sem  *semaphore.Weighted

	// execCtx is passed to every executor call; cancelled on forced stop.
	execCtx    context.Context
	cancelExec context.CancelFunc

	draining atomic.Bool
	// active counts submitters between admission and commit.
	active *atomic.Int64
	done   chan struct{}
}

func newDispatcher(r *Ring, cfg Config, active *atomic.Int64) *dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &dispatcher{
		ring:       r,
		cfg:        cfg,
		log:        cfg.Logger.With().Str("ring", cfg.Name).Logger(),
		sem:        semaphore.NewWeighted(int64(cfg.MaxInflight)),
		execCtx:    ctx,
		cancelExec: cancel,
		active:     active,
		done:       make(chan struct{}),
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	defer d.cancelExec()
	// Executors publish after their last delivery; wait for every permit.
	defer func() { _ = d.sem.Acquire(context.Background(), int64(d.cfg.MaxInflight)) }()
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	spins := 0
	for {
		next, again := d.scan(time.Now())
		draining := d.draining.Load()
		if draining && d.active.Load() == 0 && d.ring.idle() {
			d.log.Debug().Msg("dispatcher drained")
			return
		}
		if again {
			spins++
			if spins < maxSpins {
				runtime.Gosched()
			} else {
				time.Sleep(spinWait)
			}
			continue
		}
		spins = 0

		var wait time.Duration
		switch {
		case draining:
			wait = drainPoll
		case !next.IsZero():
			wait = time.Until(next)
			if wait <= 0 {
				continue
			}
		}
		if wait > 0 {
			timer.Reset(wait)
		} else {
			timer.Stop()
		}
		select {
		case <-d.ring.wake:
		case <-timer.C:
		}
	}
}

// scan walks every batch once. It returns the earliest pending deadline and
// whether a batch is waiting on writers that are still copying.
func (d *dispatcher) scan(now time.Time) (next time.Time, again bool) {
	draining := d.draining.Load()
	for _, b := range d.ring.batches {
		w := b.load()
		switch w.state() {
		case StateFilling:
			if w.cursor() == 0 {
				continue
			}
			if w.cursor() < b.capacity && !draining {
				first := b.firstAt.Load()
				if first == 0 {
					// the reserver kicks once it has recorded the time
					continue
				}
				deadline := time.Unix(0, first).Add(d.cfg.MaxWait)
				if now.Before(deadline) {
					if next.IsZero() || deadline.Before(next) {
						next = deadline
					}
					continue
				}
			}
			if !b.TryClose(true) {
				again = true
				continue
			}
			if !d.tryDispatch(b) {
				again = true
			}
		case StateClosing:
			if !d.tryDispatch(b) {
				again = true
			}
		}
	}
	return next, again
}

// tryDispatch starts the executor for a Closing batch whose writes are all
// committed.
func (d *dispatcher) tryDispatch(b *Batch) bool {
	count, gen, ok := b.beginDispatch()
	if !ok {
		return false
	}
	reason := ReasonTimeout
	switch {
	case count == b.capacity:
		reason = ReasonFull
	case d.draining.Load():
		reason = ReasonShutdown
	}
	d.cfg.Publisher.Publish(Event{
		Name:   EventBatchClosed,
		Ring:   d.cfg.Name,
		Fields: map[string]any{"size": count, "reason": reason, "generation": gen},
	})
	// Blocks while MaxInflight executor calls are running.
	_ = d.sem.Acquire(context.Background(), 1)
	go func() {
		defer d.sem.Release(1)
		d.execute(b, count, gen, reason)
		d.ring.kick()
	}()
	return true
}

func (d *dispatcher) execute(b *Batch, count int, gen uint64, reason string) {
	start := time.Now()
	outs, err := d.call(Input{
		Data:       b.inputs(count),
		Count:      count,
		Shape:      d.cfg.InputShape,
		Generation: gen,
	})
	if err == nil {
		err = d.checkOutputs(outs, count)
	}
	elapsed := time.Since(start)
	b.beginDrain()

	dropped := 0
	// The last delivery resets the batch into generation gen+1.
	defer d.cfg.Publisher.Publish(Event{
		Name:   EventBatchRecycled,
		Ring:   d.cfg.Name,
		Fields: map[string]any{"generation": gen + 1},
	})
	if err != nil {
		ee := &ExecutorError{Generation: gen, Count: count, Err: err}
		for i := 0; i < count; i++ {
			if !b.deliver(i, count, nil, ee) {
				dropped++
			}
		}
		d.log.Warn().Err(err).Int("size", count).Uint64("generation", gen).Str("reason", reason).Msg("batch failed")
		d.publish(EventBatchFailed, count, reason, elapsed, dropped)
		return
	}
	for i := 0; i < count; i++ {
		if !b.deliver(i, count, outs[i], nil) {
			dropped++
		}
	}
	d.log.Debug().Int("size", count).Uint64("generation", gen).Str("reason", reason).Dur("dur", elapsed).Msg("batch dispatched")
	d.publish(EventBatchDispatched, count, reason, elapsed, dropped)
}

// call runs the executor, converting a panic into an error so the batch is
// still drained.
func (d *dispatcher) call(in Input) (outs [][]byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return d.cfg.Executor.Run(d.execCtx, in)
}

func (d *dispatcher) checkOutputs(outs [][]byte, count int) error {
	if len(outs) != count {
		return fmt.Errorf("executor returned %d outputs for %d inputs", len(outs), count)
	}
	if len(d.cfg.OutputShape.Dims) == 0 {
		return nil
	}
	want := d.cfg.OutputShape.Bytes()
	for i, o := range outs {
		if len(o) != want {
			return fmt.Errorf("output %d is %d bytes, shape needs %d", i, len(o), want)
		}
	}
	return nil
}

func (d *dispatcher) publish(name string, size int, reason string, elapsed time.Duration, dropped int) {
	d.cfg.Publisher.Publish(Event{
		Name: name,
		Ring: d.cfg.Name,
		Fields: map[string]any{
			"size":     size,
			"reason":   reason,
			"duration": elapsed,
			"dropped":  dropped,
		},
	})
}
