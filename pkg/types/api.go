package types

// InferRequest is the JSON body of POST /v1/infer. Exactly one of Input or
// Data must be set.
type InferRequest struct {
	// Sample as float32 values, for float32 models.
	// example: [0.1,0.2,0.3,0.4]
	Input []float32 `json:"input,omitempty" example:"0.1,0.2,0.3,0.4"`
	// Sample as raw little-endian bytes, base64 encoded. Any dtype.
	Data []byte `json:"data,omitempty" swaggertype:"string" format:"base64"`
}

// InferResponse is returned by POST /v1/infer for JSON requests.
type InferResponse struct {
	// Output as float32 values, when the request used input.
	Output []float32 `json:"output,omitempty"`
	// Output as raw bytes, base64 encoded, when the request used data.
	Data []byte `json:"data,omitempty" swaggertype:"string" format:"base64"`
	// Number of requests executed together with this one.
	// example: 8
	BatchSize int `json:"batch_size" example:"8"`
	// Slot index of this request within its batch.
	// example: 3
	Slot int `json:"slot" example:"3"`
	// Batch generation the request was served in.
	// example: 1042
	Generation uint64 `json:"generation" example:"1042"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// BatchStatus describes one batch of a ring for /status.
type BatchStatus struct {
	// Position of the batch in its ring.
	Index int `json:"index"`
	// Lifecycle state: filling, closing, dispatching or draining.
	// example: filling
	State string `json:"state" example:"filling"`
	// Reserved slots in the current generation.
	Cursor int `json:"cursor"`
	// Committed writes while filling, outstanding deliveries while draining.
	Completed int `json:"completed"`
	// Current generation.
	Generation uint64 `json:"generation"`
}

// RingStatus describes one ring for /status.
type RingStatus struct {
	// example: ring-0
	Name string `json:"name" example:"ring-0"`
	// Index of the batch new requests go to first.
	Current uint64 `json:"current"`
	// Slots per batch.
	// example: 32
	Capacity int           `json:"capacity" example:"32"`
	Closed   bool          `json:"closed"`
	Batches  []BatchStatus `json:"batches"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Overall state: ready or draining.
	// example: ready
	State string `json:"state" example:"ready"`
	// Per-sample input shape.
	// example: float32[4]
	InputShape string `json:"input_shape" example:"float32[4]"`
	// Per-sample output shape, empty when unchecked.
	OutputShape string       `json:"output_shape,omitempty"`
	Rings       []RingStatus `json:"rings"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
