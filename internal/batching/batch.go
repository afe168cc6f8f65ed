package batching

import (
	"sync/atomic"
	"time"
)

// Batch is a fixed-capacity group of slots that cycles through
// Filling -> Closing -> Dispatching -> Draining -> Filling(next generation).
// All bookkeeping lives in one packed atomic word so state and cursor can
// never tear.
type Batch struct {
	w        atomic.Uint64
	pos      int
	capacity int
	slotSize int

	// arena holds capacity input slots back to back; allocated once.
	arena []byte
	// handles[i] is published by the commit CAS of slot i and cleared before
	// the delivery CAS of slot i.
	handles []*Handle

	// firstAt is the unix-nano time of the first reservation of the current
	// generation, 0 when not yet recorded.
	firstAt atomic.Int64

	onRecycle func()
}

func newBatch(pos, capacity, slotSize int, onRecycle func()) *Batch {
	return &Batch{
		pos:       pos,
		capacity:  capacity,
		slotSize:  slotSize,
		arena:     make([]byte, capacity*slotSize),
		handles:   make([]*Handle, capacity),
		onRecycle: onRecycle,
	}
}

func (b *Batch) load() word { return word(b.w.Load()) }

func (b *Batch) cas(old, nw word) bool { return b.w.CompareAndSwap(uint64(old), uint64(nw)) }

// Capacity is the maximum number of slots per generation.
func (b *Batch) Capacity() int { return b.capacity }

// State is the current lifecycle state.
func (b *Batch) State() State { return b.load().state() }

// Generation is the current generation.
func (b *Batch) Generation() uint64 { return b.load().gen() }

// Slot returns the input region of slot i. Only the reserver of i may write
// it, and only before committing.
func (b *Batch) Slot(i int) []byte {
	return b.arena[i*b.slotSize : (i+1)*b.slotSize : (i+1)*b.slotSize]
}

// acceptsWrites reports whether a reservation could currently succeed.
func (b *Batch) acceptsWrites() bool {
	w := b.load()
	return w.state() == StateFilling && w.cursor() < b.capacity
}

// idle reports a Filling batch with no reservations.
func (b *Batch) idle() bool {
	w := b.load()
	return w.state() == StateFilling && w.cursor() == 0
}

// reserve claims the next free slot of the current generation. It never
// blocks; it fails with errFull once the cursor reached capacity or the batch
// left Filling.
func (b *Batch) reserve() (int, uint64, error) {
	for {
		old := b.load()
		if old.state() != StateFilling || old.cursor() >= b.capacity {
			return 0, 0, errFull
		}
		if b.cas(old, old.withCursor(old.cursor()+1)) {
			if old.cursor() == 0 {
				b.firstAt.Store(time.Now().UnixNano())
			}
			return old.cursor(), old.gen(), nil
		}
	}
}

// write copies the input into slot index and commits the reservation. A commit
// against a recycled generation is refused with errStale.
func (b *Batch) write(index int, gen uint64, input []byte, h *Handle) error {
	copy(b.Slot(index), input)
	b.handles[index] = h
	for {
		old := b.load()
		st := old.state()
		if old.gen() != gen || (st != StateFilling && st != StateClosing) {
			return errStale
		}
		if b.cas(old, old.withCompleted(old.completed()+1)) {
			return nil
		}
	}
}

// TryClose moves Filling to Closing when the batch is full, or when
// timeoutElapsed and at least one slot is reserved. Exactly one caller wins.
func (b *Batch) TryClose(timeoutElapsed bool) bool {
	for {
		old := b.load()
		if old.state() != StateFilling {
			return false
		}
		c := old.cursor()
		if c < b.capacity && !(timeoutElapsed && c > 0) {
			return false
		}
		if b.cas(old, old.withState(StateClosing)) {
			return true
		}
	}
}

// AllWritesDone reports whether every reserved slot has been committed.
func (b *Batch) AllWritesDone() bool {
	w := b.load()
	return w.completed() == w.cursor()
}

// beginDispatch moves Closing to Dispatching once all writes are done and
// returns the number of filled slots.
func (b *Batch) beginDispatch() (int, uint64, bool) {
	old := b.load()
	if old.state() != StateClosing || old.completed() != old.cursor() || old.cursor() == 0 {
		return 0, 0, false
	}
	if !b.cas(old, old.withState(StateDispatching)) {
		return 0, 0, false
	}
	b.firstAt.Store(0)
	return old.cursor(), old.gen(), true
}

// inputs is the contiguous region holding the first count slots.
func (b *Batch) inputs(count int) []byte { return b.arena[:count*b.slotSize] }

// beginDrain moves Dispatching to Draining. The completed field now counts
// outstanding deliveries.
func (b *Batch) beginDrain() bool {
	for {
		old := b.load()
		if old.state() != StateDispatching {
			return false
		}
		if b.cas(old, old.withState(StateDraining)) {
			return true
		}
	}
}

// deliver hands slot index its result and signals its handle. The delivery
// that leaves no outstanding slots also resets the batch for the next
// generation, in the same CAS. It reports whether the caller was still
// waiting.
func (b *Batch) deliver(index, batchSize int, out []byte, err error) bool {
	h := b.handles[index]
	b.handles[index] = nil
	waiting := false
	if h != nil {
		waiting = h.deliver(out, batchSize, err)
	}
	for {
		old := b.load()
		if old.state() != StateDraining || old.completed() == 0 {
			return waiting
		}
		left := old.completed() - 1
		nw := old.withCompleted(left)
		if left == 0 {
			nw = old.recycled()
		}
		if b.cas(old, nw) {
			if left == 0 && b.onRecycle != nil {
				b.onRecycle()
			}
			return waiting
		}
	}
}

// snapshot is a racy read used for status reporting only.
func (b *Batch) snapshot() BatchSnapshot {
	w := b.load()
	return BatchSnapshot{
		Index:      b.pos,
		State:      w.state().String(),
		Cursor:     w.cursor(),
		Completed:  w.completed(),
		Generation: w.gen(),
	}
}
