package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"batchd/internal/config"
)

// options holds flag values shared by serve and bench. Flags only override
// the loaded configuration when set explicitly.
type options struct {
	configPath string
	logLevel   string
	logFormat  string

	addr               string
	rings              int
	capacity           int
	ringSize           int
	maxWaitMs          int
	maxInflight        int
	admission          string
	admissionTimeoutMs int
	inputShape         string
	outputShape        string
	dtype              string

	executor   string
	remoteURL  string
	scaleMul   float32
	scaleAdd   float32
	corsOrigin string
	rateLimit  float64
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "batchd",
		Short:         "Micro-batching inference front end",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("BATCHD_CONFIG"), "Config file (.yaml, .toml or .json); defaults to BATCHD_CONFIG")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level: trace|debug|info|warn|error")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "json", "Log format: json|console")

	root.AddCommand(newServeCmd(opts), newBenchCmd(opts), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the batchd version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "batchd", version)
		},
	}
}

// addBatchFlags registers the batching flags on cmd.
func addBatchFlags(cmd *cobra.Command, opts *options) {
	d := config.Defaults()
	f := cmd.Flags()
	f.IntVar(&opts.rings, "rings", d.Rings, "Number of independent batch rings")
	f.IntVar(&opts.capacity, "capacity", d.Batch.Capacity, "Slots per batch")
	f.IntVar(&opts.ringSize, "ring-size", d.Batch.RingSize, "Batches per ring (at least 2)")
	f.IntVar(&opts.maxWaitMs, "max-wait-ms", d.Batch.MaxWaitMs, "Max wait before a partial batch is dispatched")
	f.IntVar(&opts.maxInflight, "max-inflight", d.Batch.MaxInflight, "Concurrent executor calls per ring")
	f.StringVar(&opts.admission, "admission", d.Batch.Admission, "Saturated ring policy: reject|block")
	f.IntVar(&opts.admissionTimeoutMs, "admission-timeout-ms", d.Batch.AdmissionTimeoutMs, "Max wait for a free batch with --admission=block")
	f.StringVar(&opts.inputShape, "input-shape", joinInts(d.Batch.InputShape), "Per-sample input dims, e.g. 3,224,224")
	f.StringVar(&opts.outputShape, "output-shape", "", "Per-sample output dims; enables output size checks")
	f.StringVar(&opts.dtype, "dtype", d.Batch.DType, "Element type: float32|float16|int32|int8|uint8")
	f.StringVar(&opts.executor, "executor", d.Executor.Kind, "Executor: echo|scale|remote")
	f.StringVar(&opts.remoteURL, "remote-url", "", "Batch endpoint for --executor=remote")
	f.Float32Var(&opts.scaleMul, "scale-mul", d.Executor.Mul, "Multiplier for --executor=scale")
	f.Float32Var(&opts.scaleAdd, "scale-add", d.Executor.Add, "Offset for --executor=scale")
}

// loadConfig resolves defaults < file < environment < explicit flags.
func loadConfig(cmd *cobra.Command, opts *options) (config.Config, error) {
	cfg := config.Defaults()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return cfg, err
		}
	}
	if v := os.Getenv("BATCHD_ADDR"); v != "" {
		cfg.Addr = v
	}

	changed := cmd.Flags().Changed
	if changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if changed("log-format") {
		cfg.LogFormat = opts.logFormat
	}
	if changed("addr") {
		cfg.Addr = opts.addr
	}
	if changed("rings") {
		cfg.Rings = opts.rings
	}
	if changed("capacity") {
		cfg.Batch.Capacity = opts.capacity
	}
	if changed("ring-size") {
		cfg.Batch.RingSize = opts.ringSize
	}
	if changed("max-wait-ms") {
		cfg.Batch.MaxWaitMs = opts.maxWaitMs
	}
	if changed("max-inflight") {
		cfg.Batch.MaxInflight = opts.maxInflight
	}
	if changed("admission") {
		cfg.Batch.Admission = opts.admission
	}
	if changed("admission-timeout-ms") {
		cfg.Batch.AdmissionTimeoutMs = opts.admissionTimeoutMs
	}
	if changed("dtype") {
		cfg.Batch.DType = opts.dtype
	}
	if changed("executor") {
		cfg.Executor.Kind = opts.executor
	}
	if changed("remote-url") {
		cfg.Executor.URL = opts.remoteURL
	}
	if changed("scale-mul") {
		cfg.Executor.Mul = opts.scaleMul
	}
	if changed("scale-add") {
		cfg.Executor.Add = opts.scaleAdd
	}
	if changed("cors-origins") {
		cfg.HTTP.CORSOrigins = splitCSV(opts.corsOrigin)
		cfg.HTTP.CORSEnabled = len(cfg.HTTP.CORSOrigins) > 0
	}
	if changed("rate-limit") {
		cfg.HTTP.RateLimitRPS = opts.rateLimit
	}
	var err error
	if changed("input-shape") {
		if cfg.Batch.InputShape, err = parseShape(opts.inputShape); err != nil {
			return cfg, fmt.Errorf("--input-shape: %w", err)
		}
	}
	if changed("output-shape") {
		if cfg.Batch.OutputShape, err = parseShape(opts.outputShape); err != nil {
			return cfg, fmt.Errorf("--output-shape: %w", err)
		}
	}
	return cfg, cfg.Validate()
}

// newLogger builds the process logger.
func newLogger(level, format string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("service", "batchd").Logger(), nil
}
