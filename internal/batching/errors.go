package batching

import (
	"errors"
	"fmt"
)

// errFull is local to a batch and never leaves the ring: it triggers a ring
// advance.
var errFull = errors.New("batch full")

// errStale reports a commit against a generation that has been recycled.
var errStale = errors.New("stale batch generation")

// rejectedError signals a saturated or closed ring (maps to 429).
type rejectedError struct{ reason string }

func (e rejectedError) Error() string { return "rejected: " + e.reason }

// IsRejected reports whether err indicates admission was refused.
func IsRejected(err error) bool {
	var re rejectedError
	return errors.As(err, &re)
}

// ExecutorError is delivered to every caller of a batch whose executor call
// failed. Err is the executor's error.
type ExecutorError struct {
	Generation uint64
	Count      int
	Err        error
}

func (e *ExecutorError) Error() string {
	return fmt.Sprintf("executor failed on batch of %d: %v", e.Count, e.Err)
}

func (e *ExecutorError) Unwrap() error { return e.Err }

// IsExecutorFailed reports whether err came from a failed executor call.
func IsExecutorFailed(err error) bool {
	var ee *ExecutorError
	return errors.As(err, &ee)
}

// cancelledError is returned to a caller that stopped waiting. The slot is
// still executed; its result is dropped.
type cancelledError struct{ cause error }

func (e cancelledError) Error() string {
	if e.cause == nil {
		return "cancelled"
	}
	return "cancelled: " + e.cause.Error()
}

func (e cancelledError) Unwrap() error { return e.cause }

// IsCancelled reports whether err indicates the caller cancelled its request.
func IsCancelled(err error) bool {
	var ce cancelledError
	return errors.As(err, &ce)
}

// shapeMismatchError rejects an input whose size does not match the shape.
type shapeMismatchError struct{ got, want int }

func (e shapeMismatchError) Error() string {
	return fmt.Sprintf("input is %d bytes, shape needs %d", e.got, e.want)
}

// IsShapeMismatch reports whether err indicates a wrongly sized input.
func IsShapeMismatch(err error) bool {
	var se shapeMismatchError
	return errors.As(err, &se)
}
