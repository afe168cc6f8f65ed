package executor

import (
	"fmt"
	"strings"
	"time"

	"batchd/internal/batching"

	"github.com/rs/zerolog"
)

// Kinds accepted by New.
const (
	KindEcho   = "echo"
	KindScale  = "scale"
	KindRemote = "remote"
)

// Func adapts a plain function to batching.Executor.
type Func = batching.ExecutorFunc

// Options selects and configures an executor.
type Options struct {
	Kind string

	// Scale parameters: y = Mul*x + Add per float32 element.
	Mul float32
	Add float32

	// Remote parameters.
	URL        string
	Timeout    time.Duration
	RetryCount int

	Logger *zerolog.Logger
}

// New builds the executor named by opts.Kind.
func New(opts Options) (batching.Executor, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Kind)) {
	case "", KindEcho:
		return Echo{}, nil
	case KindScale:
		mul := opts.Mul
		if mul == 0 {
			mul = 1
		}
		return Scale{Mul: mul, Add: opts.Add}, nil
	case KindRemote:
		return NewRemote(RemoteConfig{
			URL:        opts.URL,
			Timeout:    opts.Timeout,
			RetryCount: opts.RetryCount,
			Logger:     opts.Logger,
		})
	default:
		return nil, fmt.Errorf("unknown executor %q (want echo, scale or remote)", opts.Kind)
	}
}
