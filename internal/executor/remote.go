package executor

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"batchd/internal/batching"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Headers exchanged with a remote backend. The request body is Count samples
// back to back; the response body must be Count equally sized outputs.
const (
	HeaderBatchCount = "X-Batch-Count"
	HeaderInputShape = "X-Input-Shape"
	HeaderGeneration = "X-Batch-Generation"
)

// RemoteConfig configures a Remote executor.
type RemoteConfig struct {
	URL     string
	Timeout time.Duration
	// RetryCount retries transport errors only; HTTP error responses fail the
	// batch immediately.
	RetryCount int
	Logger     *zerolog.Logger
}

// Remote posts each batch to an HTTP inference backend as one
// application/octet-stream request.
type Remote struct {
	client *resty.Client
	url    string
}

// NewRemote builds a Remote executor. Timeout defaults to 10s.
func NewRemote(cfg RemoteConfig) (*Remote, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("remote executor: url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = cfg.Logger.With().Str("executor", KindRemote).Logger()
	}

	client := resty.New()
	client.SetLogger(restyLogger{log})
	client.
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/octet-stream").
		SetHeader("Accept", "application/octet-stream").
		SetHeader("User-Agent", "batchd")
	if cfg.RetryCount > 0 {
		client.
			SetRetryCount(cfg.RetryCount).
			SetRetryWaitTime(50 * time.Millisecond).
			SetRetryMaxWaitTime(time.Second).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				// transport errors only
				return err != nil
			})
	}
	client.OnBeforeRequest(func(c *resty.Client, req *resty.Request) error {
		log.Debug().Str("url", req.URL).Str("count", req.Header.Get(HeaderBatchCount)).Msg("remote batch request")
		return nil
	})
	client.OnAfterResponse(func(c *resty.Client, resp *resty.Response) error {
		log.Debug().Int("status", resp.StatusCode()).Dur("took", resp.Time()).Msg("remote batch response")
		return nil
	})
	client.OnError(func(req *resty.Request, err error) {
		log.Warn().Err(err).Str("url", req.URL).Msg("remote batch request failed")
	})
	return &Remote{client: client, url: cfg.URL}, nil
}

func (r *Remote) Run(ctx context.Context, in batching.Input) ([][]byte, error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader(HeaderBatchCount, strconv.Itoa(in.Count)).
		SetHeader(HeaderInputShape, in.Shape.String()).
		SetHeader(HeaderGeneration, strconv.FormatUint(in.Generation, 10)).
		SetBody(in.Data[:in.Count*in.Shape.Bytes()]).
		Post(r.url)
	if err != nil {
		return nil, fmt.Errorf("remote executor: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("remote executor: status %d: %s", resp.StatusCode(), truncate(resp.String(), 200))
	}
	body := resp.Body()
	if in.Count == 0 || len(body)%in.Count != 0 {
		return nil, fmt.Errorf("remote executor: %d response bytes do not split into %d outputs", len(body), in.Count)
	}
	size := len(body) / in.Count
	outs := make([][]byte, in.Count)
	for i := range outs {
		outs[i] = body[i*size : (i+1)*size : (i+1)*size]
	}
	return outs, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// restyLogger routes resty's internal logging through zerolog.
type restyLogger struct{ log zerolog.Logger }

func (l restyLogger) Errorf(format string, v ...interface{}) { l.log.Error().Msgf(format, v...) }
func (l restyLogger) Warnf(format string, v ...interface{})  { l.log.Warn().Msgf(format, v...) }
func (l restyLogger) Debugf(format string, v ...interface{}) { l.log.Debug().Msgf(format, v...) }
