package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"batchd/internal/batching"
	"batchd/internal/config"
	"batchd/internal/executor"
	"batchd/internal/httpapi"
	"batchd/internal/metrics"
	"batchd/pkg/types"
)

// newServer starts the HTTP API over a real pool built from cfg. A non-nil
// exec replaces the executor named in cfg.
func newServer(t *testing.T, cfg config.Config, exec batching.Executor) (*httptest.Server, *batching.Pool) {
	t.Helper()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	log := zerolog.Nop()
	if exec == nil {
		var err error
		exec, err = executor.New(executor.Options{
			Kind:    cfg.Executor.Kind,
			Mul:     cfg.Executor.Mul,
			Add:     cfg.Executor.Add,
			URL:     cfg.Executor.URL,
			Timeout: time.Duration(cfg.Executor.TimeoutMs) * time.Millisecond,
			Logger:  &log,
		})
		if err != nil {
			t.Fatalf("executor: %v", err)
		}
	}
	bc, err := cfg.BatchingConfig(exec, metrics.Publisher{}, &log)
	if err != nil {
		t.Fatalf("batching config: %v", err)
	}
	pool, err := batching.NewPool(cfg.Rings, bc)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	srv := httptest.NewServer(httpapi.NewMux(pool))
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pool.Close(ctx)
	})
	return srv, pool
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

// infer posts one float sample and decodes a 200 response.
func infer(t *testing.T, base string, input []float32) (int, types.InferResponse) {
	t.Helper()
	payload, _ := json.Marshal(types.InferRequest{Input: input})
	resp, body := httpPostJSON(t, base+"/v1/infer", payload)
	var out types.InferResponse
	if resp.StatusCode == http.StatusOK {
		if err := json.Unmarshal(body, &out); err != nil {
			t.Fatalf("infer json: %v body=%s", err, body)
		}
	}
	return resp.StatusCode, out
}

func status(t *testing.T, base string) types.StatusResponse {
	t.Helper()
	resp, body := httpGet(t, base+"/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/status %d %s", resp.StatusCode, body)
	}
	var st types.StatusResponse
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("/status json: %v body=%s", err, body)
	}
	return st
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
