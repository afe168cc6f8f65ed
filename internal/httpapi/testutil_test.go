package httpapi

import (
	"context"
	"errors"
	"testing"
	"time"

	"batchd/internal/batching"
	"batchd/internal/executor"
	"batchd/pkg/types"
)

var vec4 = batching.Shape{Dims: []int{4}, DType: batching.Float32}

type mockService struct {
	shape  batching.Shape
	status types.StatusResponse
	ready  bool
	err    error
	submit func(ctx context.Context, input []byte) (batching.Result, error)
}

func (m *mockService) Submit(ctx context.Context, input []byte) (batching.Result, error) {
	if m.submit != nil {
		return m.submit(ctx, input)
	}
	if m.err != nil {
		return batching.Result{}, m.err
	}
	out := append([]byte(nil), input...)
	return batching.Result{Output: out, Index: 2, Generation: 9, BatchSize: 3}, nil
}

func (m *mockService) InputShape() batching.Shape {
	if len(m.shape.Dims) == 0 {
		return vec4
	}
	return m.shape
}
func (m *mockService) OutputShape() batching.Shape   { return batching.Shape{} }
func (m *mockService) Status() types.StatusResponse { return m.status }
func (m *mockService) Ready() bool                  { return m.ready }

type mockHTTPError struct {
	msg  string
	code int
}

func (e mockHTTPError) Error() string   { return e.msg }
func (e mockHTTPError) StatusCode() int { return e.code }

// newPool starts a real pool over vec4 samples.
func newPool(t *testing.T, cfg batching.Config) *batching.Pool {
	t.Helper()
	if len(cfg.InputShape.Dims) == 0 {
		cfg.InputShape = vec4
	}
	if cfg.Executor == nil {
		cfg.Executor = executor.Scale{Mul: 2}
	}
	p, err := batching.NewPool(1, cfg)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = p.Close(ctx)
	})
	return p
}

// batchErrors produces one real error of each submission kind.
func batchErrors(t *testing.T) (rejected, failed, cancelled, mismatch error) {
	t.Helper()
	sample := make([]byte, vec4.Bytes())

	closed := newPool(t, batching.Config{})
	_ = closed.Close(context.Background())
	_, rejected = closed.Submit(context.Background(), sample)

	boom := batching.ExecutorFunc(func(ctx context.Context, in batching.Input) ([][]byte, error) {
		return nil, errors.New("device lost")
	})
	failing := newPool(t, batching.Config{Capacity: 1, Executor: boom})
	_, failed = failing.Submit(context.Background(), sample)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, cancelled = failing.Submit(ctx, sample)
	_, mismatch = failing.Submit(context.Background(), []byte{1})

	if !batching.IsRejected(rejected) || !batching.IsExecutorFailed(failed) ||
		!batching.IsCancelled(cancelled) || !batching.IsShapeMismatch(mismatch) {
		t.Fatalf("unexpected errors: %v / %v / %v / %v", rejected, failed, cancelled, mismatch)
	}
	return rejected, failed, cancelled, mismatch
}
