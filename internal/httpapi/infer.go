package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"batchd/internal/batching"
	"batchd/internal/executor"
	"batchd/pkg/types"
)

// Response headers on /v1/infer.
const (
	HeaderBatchSize  = "X-Batch-Size"
	HeaderBatchSlot  = "X-Batch-Slot"
	HeaderGeneration = "X-Batch-Generation"
)

const (
	contentJSON  = "application/json"
	contentOctet = "application/octet-stream"
)

// inferHandler godoc
// @Summary      Run one sample through the batcher
// @Description  Accepts a JSON body (input as float32 values or data as base64 bytes) or a raw application/octet-stream sample. The request joins a micro-batch and returns once the batch has executed.
// @Tags         inference
// @Accept       json
// @Accept       octet-stream
// @Produce      json
// @Produce      octet-stream
// @Param        request  body      types.InferRequest  true  "Sample"
// @Success      200      {object}  types.InferResponse
// @Failure      400      {object}  types.ErrorResponse
// @Failure      408      {object}  types.ErrorResponse
// @Failure      415      {object}  types.ErrorResponse
// @Failure      429      {object}  types.ErrorResponse
// @Failure      502      {object}  types.ErrorResponse
// @Router       /v1/infer [post]
func inferHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || (mt != contentJSON && mt != contentOctet) {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json or application/octet-stream")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

		var (
			input    []byte
			asFloats bool
		)
		if mt == contentOctet {
			input, err = io.ReadAll(r.Body)
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, "failed to read body")
				return
			}
		} else {
			input, asFloats, err = decodeJSONInput(r.Body, svc.InputShape())
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, err.Error())
				return
			}
		}

		lg := newInferLog(r)
		// Join server base context with request context so shutdown cancels work too.
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if inferTimeout > 0 {
			var tcancel context.CancelFunc
			ctx, tcancel = context.WithTimeout(ctx, inferTimeout)
			defer tcancel()
		}

		res, err := svc.Submit(ctx, input)
		if err != nil {
			// Client went away; nobody is left to answer.
			if r.Context().Err() != nil {
				lg.end(499, err, 0, 0)
				return
			}
			status := statusFor(err)
			if status == http.StatusTooManyRequests {
				IncrementBackpressure("ring_saturated")
				w.Header().Set("Retry-After", "1")
			}
			writeJSONError(w, status, err.Error())
			lg.end(status, err, 0, 0)
			return
		}

		w.Header().Set(HeaderBatchSize, strconv.Itoa(res.BatchSize))
		w.Header().Set(HeaderBatchSlot, strconv.Itoa(res.Index))
		w.Header().Set(HeaderGeneration, strconv.FormatUint(res.Generation, 10))
		if mt == contentOctet {
			w.Header().Set("Content-Type", contentOctet)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(res.Output)
			lg.end(http.StatusOK, nil, res.BatchSize, res.Index)
			return
		}

		resp := types.InferResponse{BatchSize: res.BatchSize, Slot: res.Index, Generation: res.Generation}
		if asFloats {
			resp.Output, err = executor.DecodeFloat32(res.Output)
			if err != nil {
				writeJSONError(w, http.StatusBadGateway, err.Error())
				lg.end(http.StatusBadGateway, err, 0, 0)
				return
			}
		} else {
			resp.Data = res.Output
		}
		w.Header().Set("Content-Type", contentJSON)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
			return
		}
		lg.end(http.StatusOK, nil, res.BatchSize, res.Index)
	}
}

// decodeJSONInput returns the raw sample bytes of a JSON request and whether
// the caller sent float32 values.
func decodeJSONInput(body io.Reader, shape batching.Shape) ([]byte, bool, error) {
	var req types.InferRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, false, fmt.Errorf("body exceeds %d bytes", mbe.Limit)
		}
		return nil, false, errors.New("invalid JSON body")
	}
	switch {
	case len(req.Input) > 0 && len(req.Data) > 0:
		return nil, false, errors.New("set either input or data, not both")
	case len(req.Input) > 0:
		if shape.DType != batching.Float32 {
			return nil, false, fmt.Errorf("input values need a float32 model, this one takes %s; send data instead", shape.DType)
		}
		return executor.EncodeFloat32(req.Input), true, nil
	case len(req.Data) > 0:
		return req.Data, false, nil
	default:
		return nil, false, errors.New("input or data is required")
	}
}
