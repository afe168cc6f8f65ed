package httpapi

import (
	"time"

	"golang.org/x/time/rate"
)

const defaultMaxBodyBytes int64 = 8 << 20

// maxBodyBytes bounds request bodies on /v1/infer.
var maxBodyBytes = defaultMaxBodyBytes

// SetMaxBodyBytes allows configuring the maximum request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
		return
	}
	maxBodyBytes = n
}

// inferTimeout bounds how long one /v1/infer request may wait for its
// result. Zero means no additional timeout beyond server/connection timeouts.
var inferTimeout time.Duration

// SetInferTimeout sets the infer timeout (0 disables).
func SetInferTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	inferTimeout = d
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}

// ingress is the optional process-wide limiter in front of /v1/infer.
var ingress *rate.Limiter

// SetRateLimit installs an ingress limit of rps requests per second with the
// given burst. rps <= 0 removes the limit.
func SetRateLimit(rps float64, burst int) {
	if rps <= 0 {
		ingress = nil
		return
	}
	if burst < 1 {
		burst = 1
	}
	ingress = rate.NewLimiter(rate.Limit(rps), burst)
}
