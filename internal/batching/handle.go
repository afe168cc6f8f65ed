package batching

import (
	"context"
	"sync/atomic"
)

const (
	handlePending uint32 = iota
	handleDelivering
	handleDelivered
	handleCancelled
)

// Result is what a caller receives for its slot.
type Result struct {
	Output     []byte
	Index      int
	Generation uint64
	BatchSize  int
}

// Handle is the caller's side of one reserved slot. It is signalled exactly
// once by the dispatcher; a cancelled handle silently drops its result.
// A Handle belongs to a single reservation and is never reused.
type Handle struct {
	index int
	gen   uint64
	state atomic.Uint32
	done  chan struct{}

	// written once by deliver before done is closed
	out       []byte
	err       error
	batchSize int
}

func newHandle(index int, gen uint64) *Handle {
	return &Handle{index: index, gen: gen, done: make(chan struct{})}
}

// Index is the slot index within the batch generation.
func (h *Handle) Index() int { return h.index }

// Generation is the batch generation the slot was reserved in.
func (h *Handle) Generation() uint64 { return h.gen }

// Done is closed once the result has been delivered. It is never closed for
// a handle cancelled before delivery.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Cancel stops the caller from receiving the result. It reports false when the
// result is already being, or has been, delivered.
func (h *Handle) Cancel() bool {
	return h.state.CompareAndSwap(handlePending, handleCancelled)
}

// Result returns the delivered result. It must only be called after Done is
// closed.
func (h *Handle) Result() (Result, error) {
	if h.err != nil {
		return Result{}, h.err
	}
	return Result{Output: h.out, Index: h.index, Generation: h.gen, BatchSize: h.batchSize}, nil
}

// Wait blocks until the result is delivered or ctx is done. When ctx wins the
// race the handle is cancelled; when delivery already started, Wait returns
// the delivered result instead.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
		return h.Result()
	case <-ctx.Done():
		if h.Cancel() {
			return Result{}, cancelledError{cause: ctx.Err()}
		}
		<-h.done
		return h.Result()
	}
}

// deliver reports whether the caller was still waiting.
func (h *Handle) deliver(out []byte, batchSize int, err error) bool {
	if !h.state.CompareAndSwap(handlePending, handleDelivering) {
		return false
	}
	h.out, h.batchSize, h.err = out, batchSize, err
	h.state.Store(handleDelivered)
	close(h.done)
	return true
}
