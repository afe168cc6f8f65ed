package batching

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testShape is two float32 elements: 8 bytes per sample.
var testShape = Shape{Dims: []int{2}, DType: Float32}

// sample returns a testShape-sized input filled with v.
func sample(v byte) []byte { return bytes.Repeat([]byte{v}, testShape.Bytes()) }

// recordingExecutor adds one to every input byte and records batch sizes.
type recordingExecutor struct {
	mu     sync.Mutex
	sizes  []int
	calls  atomic.Int32
	err    error
	gate   chan struct{} // if set, Run waits for a value or close
	inputs [][]byte
}

func (e *recordingExecutor) Run(ctx context.Context, in Input) ([][]byte, error) {
	e.calls.Add(1)
	if e.gate != nil {
		select {
		case <-e.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	e.mu.Lock()
	e.sizes = append(e.sizes, in.Count)
	for i := 0; i < in.Count; i++ {
		e.inputs = append(e.inputs, append([]byte(nil), in.Sample(i)...))
	}
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	outs := make([][]byte, in.Count)
	for i := range outs {
		s := in.Sample(i)
		o := make([]byte, len(s))
		for j := range s {
			o[j] = s[j] + 1
		}
		outs[i] = o
	}
	return outs, nil
}

func (e *recordingExecutor) Sizes() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.sizes...)
}

func newTestBatcher(t *testing.T, cfg Config) *Batcher {
	t.Helper()
	if len(cfg.InputShape.Dims) == 0 {
		cfg.InputShape = testShape
	}
	bt, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = bt.Close(ctx)
	})
	return bt
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return c
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
