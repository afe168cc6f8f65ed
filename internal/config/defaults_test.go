package config

import (
	"testing"
	"time"

	"batchd/internal/batching"
)

func TestDefaults_Valid(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]func(*Config){
		"no addr":        func(c *Config) { c.Addr = "" },
		"zero rings":     func(c *Config) { c.Rings = 0 },
		"bad level":      func(c *Config) { c.LogLevel = "loud" },
		"bad format":     func(c *Config) { c.LogFormat = "xml" },
		"capacity":       func(c *Config) { c.Batch.Capacity = 0 },
		"huge capacity":  func(c *Config) { c.Batch.Capacity = batching.MaxCapacity + 1 },
		"ring size":      func(c *Config) { c.Batch.RingSize = 1 },
		"negative wait":  func(c *Config) { c.Batch.MaxWaitMs = -1 },
		"no shape":       func(c *Config) { c.Batch.InputShape = nil },
		"dtype":          func(c *Config) { c.Batch.DType = "bf17" },
		"admission":      func(c *Config) { c.Batch.Admission = "queue" },
		"remote w/o url": func(c *Config) { c.Executor.Kind = "remote" },
		"negative rps":   func(c *Config) { c.HTTP.RateLimitRPS = -1 },
	}
	for name, mutate := range cases {
		c := Defaults()
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestBatchingConfig_Converts(t *testing.T) {
	c := Defaults()
	c.Batch.MaxWaitMs = 7
	c.Batch.Admission = "block"
	c.Batch.AdmissionTimeoutMs = 250
	c.Batch.InputShape = []int{2, 3}
	c.Batch.OutputShape = []int{5}
	c.Batch.DType = "float16"

	bc, err := c.BatchingConfig(nil, nil, nil)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if bc.MaxWait != 7*time.Millisecond || bc.AdmissionTimeout != 250*time.Millisecond || bc.Admission != batching.AdmissionBlock {
		t.Fatalf("unexpected timing/admission: %+v", bc)
	}
	if bc.InputShape.Bytes() != 12 || bc.OutputShape.Bytes() != 10 || bc.OutputShape.DType != batching.Float16 {
		t.Fatalf("unexpected shapes: in=%s out=%s", bc.InputShape, bc.OutputShape)
	}

	// the conversion must not alias the config's slices
	c.Batch.InputShape[0] = 99
	if bc.InputShape.Dims[0] != 2 {
		t.Fatalf("input shape aliases config")
	}
}
