package batching

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Defaults applied when corresponding Config fields are unset.
const (
	defaultCapacity         = 32
	defaultRingSize         = 4
	defaultMaxWait          = 5 * time.Millisecond
	defaultMaxInflight      = 1
	defaultAdmissionTimeout = 100 * time.Millisecond
)

// Config encapsulates all tunables for one Batcher.
type Config struct {
	// Name labels events and log lines of this ring.
	Name string
	// Capacity is the maximum batch size C.
	Capacity int
	// RingSize is the number of batches N; at least 2.
	RingSize int
	// MaxWait bounds how long a partial batch waits after its first
	// reservation before it is dispatched anyway.
	MaxWait time.Duration
	// MaxInflight bounds concurrent executor calls for this ring.
	MaxInflight int
	// Admission decides what a writer does when the ring is saturated.
	Admission        AdmissionPolicy
	AdmissionTimeout time.Duration

	InputShape Shape
	// OutputShape is optional; when set, executor outputs are size-checked.
	OutputShape Shape

	Executor  Executor
	Publisher EventPublisher
	Logger    *zerolog.Logger
}

// withDefaults returns a copy with unset fields replaced by package defaults.
func (c Config) withDefaults() Config {
	if c.Capacity <= 0 {
		c.Capacity = defaultCapacity
	}
	if c.RingSize <= 0 {
		c.RingSize = defaultRingSize
	}
	if c.MaxWait <= 0 {
		c.MaxWait = defaultMaxWait
	}
	if c.MaxInflight <= 0 {
		c.MaxInflight = defaultMaxInflight
	}
	if c.Admission == "" {
		c.Admission = AdmissionReject
	}
	if c.AdmissionTimeout <= 0 {
		c.AdmissionTimeout = defaultAdmissionTimeout
	}
	if c.InputShape.DType == "" {
		c.InputShape.DType = Float32
	}
	if len(c.OutputShape.Dims) > 0 && c.OutputShape.DType == "" {
		c.OutputShape.DType = c.InputShape.DType
	}
	if c.Publisher == nil {
		c.Publisher = noopPublisher{}
	}
	if c.Logger == nil {
		l := zerolog.Nop()
		c.Logger = &l
	}
	return c
}

func (c Config) validate() error {
	if c.Capacity > MaxCapacity {
		return fmt.Errorf("capacity %d exceeds maximum %d", c.Capacity, MaxCapacity)
	}
	if c.RingSize < 2 {
		return fmt.Errorf("ring size %d, need at least 2", c.RingSize)
	}
	if err := c.InputShape.validate(); err != nil {
		return fmt.Errorf("input shape: %w", err)
	}
	if len(c.OutputShape.Dims) > 0 {
		if err := c.OutputShape.validate(); err != nil {
			return fmt.Errorf("output shape: %w", err)
		}
	}
	if _, err := ParseAdmission(string(c.Admission)); err != nil {
		return err
	}
	if c.Executor == nil {
		return fmt.Errorf("executor is required")
	}
	return nil
}
