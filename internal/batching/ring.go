package batching

import (
	"sync/atomic"
)

// Ring is a fixed circular array of batches. current only ever moves forward;
// current%len(batches) is the batch new writers try first.
type Ring struct {
	batches []*Batch
	current atomic.Uint64

	// wake nudges the dispatcher; senders never block.
	wake chan struct{}

	// recycled is closed and replaced whenever a batch returns to Filling
	// while writers are waiting for one.
	recycled atomic.Pointer[chan struct{}]
	waiters  atomic.Int32
}

func newRing(size, capacity, slotSize int) *Ring {
	r := &Ring{
		batches: make([]*Batch, size),
		wake:    make(chan struct{}, 1),
	}
	for i := range r.batches {
		r.batches[i] = newBatch(i, capacity, slotSize, r.notifyRecycled)
	}
	ch := make(chan struct{})
	r.recycled.Store(&ch)
	return r
}

// Size is the number of batches in the ring.
func (r *Ring) Size() int { return len(r.batches) }

// Batch returns the batch at position i.
func (r *Ring) Batch(i int) *Batch { return r.batches[i] }

func (r *Ring) at(cursor uint64) *Batch { return r.batches[cursor%uint64(len(r.batches))] }

func (r *Ring) kick() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// reserve claims a slot in the current batch, advancing the ring past full
// or closed batches. It fails with errFull only when the next batch is not
// ready for a fresh generation, i.e. the ring is saturated.
func (r *Ring) reserve() (*Batch, int, uint64, error) {
	for {
		cur := r.current.Load()
		b := r.at(cur)
		idx, gen, err := b.reserve()
		if err == nil {
			if idx == b.capacity-1 {
				b.TryClose(false)
			}
			if idx == 0 || idx == b.capacity-1 {
				r.kick()
			}
			return b, idx, gen, nil
		}
		if !r.at(cur + 1).acceptsWrites() {
			if r.current.Load() != cur {
				continue
			}
			return nil, 0, 0, errFull
		}
		// Losers of this CAS see the new cursor on the next iteration.
		r.current.CompareAndSwap(cur, cur+1)
	}
}

// recycledChan returns the channel that will be closed on the next recycle.
func (r *Ring) recycledChan() <-chan struct{} { return *r.recycled.Load() }

func (r *Ring) notifyRecycled() {
	if r.waiters.Load() > 0 {
		r.broadcast()
	}
}

func (r *Ring) broadcast() {
	ch := make(chan struct{})
	old := r.recycled.Swap(&ch)
	close(*old)
}

func (r *Ring) idle() bool {
	for _, b := range r.batches {
		if !b.idle() {
			return false
		}
	}
	return true
}

func (r *Ring) snapshot() RingSnapshot {
	s := RingSnapshot{
		Current:  r.current.Load() % uint64(len(r.batches)),
		Capacity: r.batches[0].capacity,
		Batches:  make([]BatchSnapshot, len(r.batches)),
	}
	for i, b := range r.batches {
		s.Batches[i] = b.snapshot()
	}
	return s
}
