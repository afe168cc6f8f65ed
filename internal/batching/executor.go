package batching

import "context"

// Input is one dispatched batch as seen by an Executor.
type Input struct {
	// Data holds Count samples of Shape back to back. It aliases batch memory
	// that is reused after Run returns; executors must not retain it.
	Data       []byte
	Count      int
	Shape      Shape
	Generation uint64
}

// Sample returns sample i of the batch.
func (in Input) Sample(i int) []byte {
	n := in.Shape.Bytes()
	return in.Data[i*n : (i+1)*n]
}

// Executor runs one batch. It must accept Count <= capacity and return exactly
// Count outputs, matched to inputs by index. Ownership of the returned slices
// passes to the callers.
type Executor interface {
	Run(ctx context.Context, in Input) ([][]byte, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, in Input) ([][]byte, error)

func (f ExecutorFunc) Run(ctx context.Context, in Input) ([][]byte, error) { return f(ctx, in) }
