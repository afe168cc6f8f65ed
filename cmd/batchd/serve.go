package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"batchd/internal/batching"
	"batchd/internal/config"
	"batchd/internal/executor"
	"batchd/internal/httpapi"
	"batchd/internal/metrics"
)

func newServeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the batched inference HTTP API",
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
			return serve(cmd.Context(), cfg, log)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", config.Defaults().Addr, "HTTP listen address; BATCHD_ADDR also sets it")
	cmd.Flags().StringVar(&opts.corsOrigin, "cors-origins", "", "Comma-separated allowed CORS origins; enables CORS")
	cmd.Flags().Float64Var(&opts.rateLimit, "rate-limit", 0, "Ingress limit for /v1/infer in requests per second (0 = off)")
	addBatchFlags(cmd, opts)
	return cmd
}

// buildPool wires executor, metrics and rings from cfg.
func buildPool(cfg config.Config, log zerolog.Logger, next batching.EventPublisher) (*batching.Pool, error) {
	exec, err := executor.New(executor.Options{
		Kind:       cfg.Executor.Kind,
		Mul:        cfg.Executor.Mul,
		Add:        cfg.Executor.Add,
		URL:        cfg.Executor.URL,
		Timeout:    time.Duration(cfg.Executor.TimeoutMs) * time.Millisecond,
		RetryCount: cfg.Executor.RetryCount,
		Logger:     &log,
	})
	if err != nil {
		return nil, err
	}
	bc, err := cfg.BatchingConfig(exec, metrics.Publisher{Next: next}, &log)
	if err != nil {
		return nil, err
	}
	return batching.NewPool(cfg.Rings, bc)
}

// serve runs the HTTP server until ctx ends or a signal arrives, then drains:
// the pool stops admitting and flushes pending batches before the listener
// finishes in-flight handlers.
func serve(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	pool, err := buildPool(cfg, log, nil)
	if err != nil {
		return err
	}
	if err := prometheus.Register(metrics.NewRingCollector(pool.Snapshot)); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return err
		}
	}

	base, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetLogger(log)
	httpapi.SetBaseContext(base)
	httpapi.SetMaxBodyBytes(cfg.HTTP.MaxBodyBytes)
	httpapi.SetInferTimeout(time.Duration(cfg.HTTP.InferTimeoutMs) * time.Millisecond)
	httpapi.SetCORSOptions(cfg.HTTP.CORSEnabled, cfg.HTTP.CORSOrigins, nil, nil)
	httpapi.SetRateLimit(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst)

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		_ = pool.Close(context.Background())
		return err
	}
	srv := &http.Server{
		Handler:           httpapi.NewMux(pool),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().
			Str("addr", ln.Addr().String()).
			Int("rings", cfg.Rings).
			Int("capacity", cfg.Batch.Capacity).
			Int("ring_size", cfg.Batch.RingSize).
			Str("input_shape", pool.InputShape().String()).
			Str("executor", cfg.Executor.Kind).
			Msg("batchd listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownMs)*time.Millisecond)
		defer cancel()
		perr := pool.Close(sctx)
		herr := srv.Shutdown(sctx)
		cancelBase()
		if perr != nil {
			log.Warn().Err(perr).Msg("pool drain incomplete")
		}
		return errors.Join(perr, herr)
	})
	err = g.Wait()
	log.Info().Err(err).Msg("stopped")
	return err
}
