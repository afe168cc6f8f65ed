package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the daemon. Load starts from Defaults,
// so keys missing from the file keep their default values.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`
	// Rings is the number of independent batch rings behind the endpoint.
	Rings int `json:"rings" yaml:"rings" toml:"rings"`

	Batch    BatchConfig    `json:"batch" yaml:"batch" toml:"batch"`
	Executor ExecutorConfig `json:"executor" yaml:"executor" toml:"executor"`
	HTTP     HTTPConfig     `json:"http" yaml:"http" toml:"http"`
}

// BatchConfig mirrors batching.Config with file-friendly types.
type BatchConfig struct {
	Capacity           int    `json:"capacity" yaml:"capacity" toml:"capacity"`
	RingSize           int    `json:"ring_size" yaml:"ring_size" toml:"ring_size"`
	MaxWaitMs          int    `json:"max_wait_ms" yaml:"max_wait_ms" toml:"max_wait_ms"`
	MaxInflight        int    `json:"max_inflight" yaml:"max_inflight" toml:"max_inflight"`
	Admission          string `json:"admission" yaml:"admission" toml:"admission"`
	AdmissionTimeoutMs int    `json:"admission_timeout_ms" yaml:"admission_timeout_ms" toml:"admission_timeout_ms"`
	InputShape         []int  `json:"input_shape" yaml:"input_shape" toml:"input_shape"`
	OutputShape        []int  `json:"output_shape" yaml:"output_shape" toml:"output_shape"`
	DType              string `json:"dtype" yaml:"dtype" toml:"dtype"`
}

// ExecutorConfig selects the executor behind every ring.
type ExecutorConfig struct {
	Kind       string  `json:"kind" yaml:"kind" toml:"kind"`
	URL        string  `json:"url" yaml:"url" toml:"url"`
	TimeoutMs  int     `json:"timeout_ms" yaml:"timeout_ms" toml:"timeout_ms"`
	RetryCount int     `json:"retry_count" yaml:"retry_count" toml:"retry_count"`
	Mul        float32 `json:"mul" yaml:"mul" toml:"mul"`
	Add        float32 `json:"add" yaml:"add" toml:"add"`
}

// HTTPConfig holds transport options.
type HTTPConfig struct {
	CORSEnabled    bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins    []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	RateLimitRPS   float64  `json:"rate_limit_rps" yaml:"rate_limit_rps" toml:"rate_limit_rps"`
	RateLimitBurst int      `json:"rate_limit_burst" yaml:"rate_limit_burst" toml:"rate_limit_burst"`
	InferTimeoutMs int      `json:"infer_timeout_ms" yaml:"infer_timeout_ms" toml:"infer_timeout_ms"`
	MaxBodyBytes   int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	ShutdownMs     int      `json:"shutdown_timeout_ms" yaml:"shutdown_timeout_ms" toml:"shutdown_timeout_ms"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml. A leading ~ in path is expanded.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	path, err := ExpandHome(path)
	if err != nil {
		return cfg, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}
