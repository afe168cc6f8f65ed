package httpapi

import (
	"encoding/json"
	"net/http"

	"batchd/internal/batching"
	"batchd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusFor maps submission errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case batching.IsShapeMismatch(err):
		return http.StatusBadRequest
	case batching.IsRejected(err):
		return http.StatusTooManyRequests
	case batching.IsCancelled(err):
		return http.StatusRequestTimeout
	case batching.IsExecutorFailed(err):
		return http.StatusBadGateway
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
