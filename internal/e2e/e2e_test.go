package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"batchd/internal/batching"
	"batchd/internal/config"
	"batchd/internal/executor"
	"batchd/pkg/types"
)

func vecConfig() config.Config {
	cfg := config.Defaults()
	cfg.Batch.InputShape = []int{4}
	cfg.Batch.OutputShape = []int{4}
	cfg.Executor.Kind = executor.KindScale
	cfg.Executor.Mul = 2
	return cfg
}

// TestE2E_ConcurrentRequestsShareBatches sends a burst of requests and checks
// every caller gets its own transformed sample back while batches form.
func TestE2E_ConcurrentRequestsShareBatches(t *testing.T) {
	cfg := vecConfig()
	cfg.Batch.Capacity = 8
	cfg.Batch.MaxWaitMs = 200
	srv, _ := newServer(t, cfg, nil)

	const n = 32
	var wg sync.WaitGroup
	sizes := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v := float32(i)
			code, out := infer(t, srv.URL, []float32{v, v + 1, v + 2, v + 3})
			if code != http.StatusOK {
				t.Errorf("request %d: status %d", i, code)
				return
			}
			want := []float32{2 * v, 2*v + 2, 2*v + 4, 2*v + 6}
			for j := range want {
				if out.Output[j] != want[j] {
					t.Errorf("request %d: output %v, want %v", i, out.Output, want)
					return
				}
			}
			if out.Slot < 0 || out.Slot >= out.BatchSize || out.BatchSize > 8 {
				t.Errorf("request %d: slot %d of batch %d", i, out.Slot, out.BatchSize)
			}
			sizes[i] = out.BatchSize
		}(i)
	}
	wg.Wait()

	batched := false
	for _, s := range sizes {
		if s > 1 {
			batched = true
		}
	}
	if !batched {
		t.Fatalf("no request shared a batch: %v", sizes)
	}
}

// TestE2E_Backpressure429 saturates a tiny ring and expects 429 with
// Retry-After, then recovery once the executor releases.
func TestE2E_Backpressure429(t *testing.T) {
	cfg := vecConfig()
	cfg.Batch.Capacity = 1
	cfg.Batch.RingSize = 2
	gate := make(chan struct{})
	exec := executor.Func(func(ctx context.Context, in batching.Input) ([][]byte, error) {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return executor.Echo{}.Run(ctx, in)
	})
	srv, _ := newServer(t, cfg, exec)

	codes := make(chan int, 2)
	for i := 0; i < 2; i++ {
		go func() {
			code, _ := infer(t, srv.URL, []float32{1, 2, 3, 4})
			codes <- code
		}()
	}
	waitFor(t, 2*time.Second, "both batches in flight", func() bool {
		for _, b := range status(t, srv.URL).Rings[0].Batches {
			if b.State == "filling" {
				return false
			}
		}
		return true
	})

	resp, body := httpPostJSON(t, srv.URL+"/v1/infer", []byte(`{"input":[1,2,3,4]}`))
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d body=%s", resp.StatusCode, body)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatalf("429 without Retry-After")
	}
	var er types.ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil || er.Code != http.StatusTooManyRequests {
		t.Fatalf("error body %s (%v)", body, err)
	}

	close(gate)
	for i := 0; i < 2; i++ {
		if c := <-codes; c != http.StatusOK {
			t.Fatalf("in-flight request got %d", c)
		}
	}
	if code, _ := infer(t, srv.URL, []float32{1, 2, 3, 4}); code != http.StatusOK {
		t.Fatalf("after recovery: %d", code)
	}
}

func TestE2E_StatusAndDrain(t *testing.T) {
	cfg := vecConfig()
	cfg.Rings = 2
	cfg.Batch.Capacity = 4
	srv, pool := newServer(t, cfg, nil)

	st := status(t, srv.URL)
	if st.State != "ready" || len(st.Rings) != 2 {
		t.Fatalf("status %+v", st)
	}
	if st.InputShape != "float32[4]" {
		t.Fatalf("input shape %q", st.InputShape)
	}
	for _, r := range st.Rings {
		if r.Capacity != 4 || len(r.Batches) != cfg.Batch.RingSize {
			t.Fatalf("ring %+v", r)
		}
	}
	if resp, _ := httpGet(t, srv.URL+"/readyz"); resp.StatusCode != http.StatusOK {
		t.Fatalf("/readyz %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if resp, _ := httpGet(t, srv.URL+"/readyz"); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("/readyz after close %d", resp.StatusCode)
	}
	if st := status(t, srv.URL); st.State != "draining" {
		t.Fatalf("state after close %q", st.State)
	}
	if code, _ := infer(t, srv.URL, []float32{1, 2, 3, 4}); code != http.StatusTooManyRequests {
		t.Fatalf("infer after close: %d", code)
	}
}

// TestE2E_RemoteExecutor puts a fake model server behind the remote executor.
func TestE2E_RemoteExecutor(t *testing.T) {
	var mu sync.Mutex
	var counts []string
	model := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		counts = append(counts, r.Header.Get(executor.HeaderBatchCount))
		mu.Unlock()
		b, _ := io.ReadAll(r.Body)
		vals, err := executor.DecodeFloat32(b)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for i := range vals {
			vals[i] = -vals[i]
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(executor.EncodeFloat32(vals))
	}))
	defer model.Close()

	cfg := vecConfig()
	cfg.Executor.Kind = executor.KindRemote
	cfg.Executor.URL = model.URL
	srv, _ := newServer(t, cfg, nil)

	code, out := infer(t, srv.URL, []float32{1, -2, 3, -4})
	if code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	want := []float32{-1, 2, -3, 4}
	for i := range want {
		if out.Output[i] != want[i] {
			t.Fatalf("output %v, want %v", out.Output, want)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if len(counts) != 1 || counts[0] != "1" {
		t.Fatalf("model saw batch counts %v", counts)
	}
}

func TestE2E_RemoteFailureIs502(t *testing.T) {
	model := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer model.Close()

	cfg := vecConfig()
	cfg.Executor.Kind = executor.KindRemote
	cfg.Executor.URL = model.URL
	srv, _ := newServer(t, cfg, nil)

	resp, body := httpPostJSON(t, srv.URL+"/v1/infer", []byte(`{"input":[1,2,3,4]}`))
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d body=%s", resp.StatusCode, body)
	}
	waitFor(t, 2*time.Second, "failed batch metric", func() bool {
		_, body := httpGet(t, srv.URL+"/metrics")
		return strings.Contains(string(body), `batchd_batch_executed_total{outcome="error"`)
	})
}
