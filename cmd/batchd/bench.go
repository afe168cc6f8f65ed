package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"batchd/internal/batching"
	"batchd/internal/config"
)

type benchOptions struct {
	requests    int
	concurrency int
}

func newBenchCmd(opts *options) *cobra.Command {
	bo := &benchOptions{}
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Drive an in-process pool and report batching throughput",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return runBench(cmd.Context(), cmd.OutOrStdout(), cfg, log, *bo)
		},
	}
	cmd.Flags().IntVar(&bo.requests, "requests", 10000, "Total requests to submit")
	cmd.Flags().IntVar(&bo.concurrency, "concurrency", 64, "Concurrent submitters")
	addBatchFlags(cmd, opts)
	return cmd
}

// batchCounter tallies dispatched batches and their sizes.
type batchCounter struct {
	batches atomic.Int64
	samples atomic.Int64
}

func (c *batchCounter) Publish(e batching.Event) {
	if e.Name != batching.EventBatchDispatched {
		return
	}
	c.batches.Add(1)
	if n, ok := e.Fields["size"].(int); ok {
		c.samples.Add(int64(n))
	}
}

type benchReport struct {
	Requests  int
	OK        int
	Rejected  int
	Failed    int
	Elapsed   time.Duration
	P50, P99  time.Duration
	Batches   int64
	MeanBatch float64
}

func runBench(ctx context.Context, w io.Writer, cfg config.Config, log zerolog.Logger, bo benchOptions) error {
	if bo.requests <= 0 || bo.concurrency <= 0 {
		return fmt.Errorf("requests and concurrency must be positive")
	}
	rep, err := bench(ctx, cfg, log, bo)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "requests     %d (ok %d, rejected %d, failed %d)\n", rep.Requests, rep.OK, rep.Rejected, rep.Failed)
	fmt.Fprintf(w, "elapsed      %s\n", rep.Elapsed.Round(time.Microsecond))
	fmt.Fprintf(w, "throughput   %.0f req/s\n", float64(rep.OK)/rep.Elapsed.Seconds())
	fmt.Fprintf(w, "latency      p50 %s  p99 %s\n", rep.P50, rep.P99)
	fmt.Fprintf(w, "batches      %d (mean size %.2f)\n", rep.Batches, rep.MeanBatch)
	return nil
}

func bench(ctx context.Context, cfg config.Config, log zerolog.Logger, bo benchOptions) (benchReport, error) {
	counter := &batchCounter{}
	pool, err := buildPool(cfg, log, counter)
	if err != nil {
		return benchReport{}, err
	}
	input := make([]byte, pool.InputShape().Bytes())

	var (
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, bo.requests)
		rejected  atomic.Int64
		failed    atomic.Int64
		next      atomic.Int64
	)
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < bo.concurrency; i++ {
		g.Go(func() error {
			for next.Add(1) <= int64(bo.requests) {
				t0 := time.Now()
				_, err := pool.Submit(gctx, input)
				d := time.Since(t0)
				switch {
				case err == nil:
					mu.Lock()
					latencies = append(latencies, d)
					mu.Unlock()
				case batching.IsRejected(err):
					rejected.Add(1)
				case gctx.Err() != nil:
					return gctx.Err()
				default:
					failed.Add(1)
				}
			}
			return nil
		})
	}
	werr := g.Wait()
	elapsed := time.Since(start)

	cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Close(cctx); err != nil {
		return benchReport{}, err
	}
	if werr != nil {
		return benchReport{}, werr
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	rep := benchReport{
		Requests: bo.requests,
		OK:       len(latencies),
		Rejected: int(rejected.Load()),
		Failed:   int(failed.Load()),
		Elapsed:  elapsed,
		P50:      percentile(latencies, 0.50),
		P99:      percentile(latencies, 0.99),
		Batches:  counter.batches.Load(),
	}
	if rep.Batches > 0 {
		rep.MeanBatch = float64(counter.samples.Load()) / float64(rep.Batches)
	}
	return rep, nil
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, q float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	i := int(q * float64(len(sorted)-1))
	return sorted[i]
}
