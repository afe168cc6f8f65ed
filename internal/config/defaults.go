package config

import (
	"fmt"
	"time"

	"batchd/internal/batching"

	"github.com/rs/zerolog"
)

// Defaults returns the configuration used when no file is given.
func Defaults() Config {
	return Config{
		Addr:      ":8080",
		LogLevel:  "info",
		LogFormat: "json",
		Rings:     1,
		Batch: BatchConfig{
			Capacity:           32,
			RingSize:           4,
			MaxWaitMs:          5,
			MaxInflight:        1,
			Admission:          string(batching.AdmissionReject),
			AdmissionTimeoutMs: 100,
			InputShape:         []int{4},
			DType:              string(batching.Float32),
		},
		Executor: ExecutorConfig{
			Kind:      "echo",
			TimeoutMs: 10000,
			Mul:       1,
		},
		HTTP: HTTPConfig{
			RateLimitBurst: 1,
			InferTimeoutMs: 30000,
			MaxBodyBytes:   8 << 20,
			ShutdownMs:     10000,
		},
	}
}

// Validate checks values the batching layer cannot default on its own.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.Rings < 1 {
		return fmt.Errorf("rings must be at least 1, got %d", c.Rings)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log_format must be json or console, got %q", c.LogFormat)
	}
	if c.Batch.Capacity < 1 || c.Batch.Capacity > batching.MaxCapacity {
		return fmt.Errorf("batch.capacity must be in [1, %d], got %d", batching.MaxCapacity, c.Batch.Capacity)
	}
	if c.Batch.RingSize < 2 {
		return fmt.Errorf("batch.ring_size must be at least 2, got %d", c.Batch.RingSize)
	}
	if c.Batch.MaxWaitMs < 0 || c.Batch.AdmissionTimeoutMs < 0 {
		return fmt.Errorf("batch durations must not be negative")
	}
	if len(c.Batch.InputShape) == 0 {
		return fmt.Errorf("batch.input_shape is required")
	}
	if _, err := batching.ParseDType(c.Batch.DType); err != nil {
		return fmt.Errorf("batch.dtype: %w", err)
	}
	if _, err := batching.ParseAdmission(c.Batch.Admission); err != nil {
		return fmt.Errorf("batch.admission: %w", err)
	}
	if c.Executor.Kind == "remote" && c.Executor.URL == "" {
		return fmt.Errorf("executor.url is required for the remote executor")
	}
	if c.HTTP.RateLimitRPS < 0 {
		return fmt.Errorf("http.rate_limit_rps must not be negative")
	}
	return nil
}

// BatchingConfig converts the file form into a batching.Config. The caller
// supplies executor, publisher and logger.
func (c Config) BatchingConfig(exec batching.Executor, pub batching.EventPublisher, log *zerolog.Logger) (batching.Config, error) {
	dt, err := batching.ParseDType(c.Batch.DType)
	if err != nil {
		return batching.Config{}, err
	}
	adm, err := batching.ParseAdmission(c.Batch.Admission)
	if err != nil {
		return batching.Config{}, err
	}
	bc := batching.Config{
		Name:             "ring",
		Capacity:         c.Batch.Capacity,
		RingSize:         c.Batch.RingSize,
		MaxWait:          ms(c.Batch.MaxWaitMs),
		MaxInflight:      c.Batch.MaxInflight,
		Admission:        adm,
		AdmissionTimeout: ms(c.Batch.AdmissionTimeoutMs),
		InputShape:       batching.Shape{Dims: append([]int(nil), c.Batch.InputShape...), DType: dt},
		Executor:         exec,
		Publisher:        pub,
		Logger:           log,
	}
	if len(c.Batch.OutputShape) > 0 {
		bc.OutputShape = batching.Shape{Dims: append([]int(nil), c.Batch.OutputShape...), DType: dt}
	}
	return bc, nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
