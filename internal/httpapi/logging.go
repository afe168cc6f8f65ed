package httpapi

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is an optional structured logger. If unset, falls back to log.Printf.
var zlog *zerolog.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = &l }

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch s {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// global default, read once
var defaultLogLevel = parseLevel(os.Getenv("BATCHD_HTTP_LOG_LEVEL"))

func requestLogLevel(r *http.Request) LogLevel {
	// Per-request overrides
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// inferLog emits the start/end lines of one infer request.
type inferLog struct {
	r     *http.Request
	lvl   LogLevel
	start time.Time
}

func newInferLog(r *http.Request) *inferLog {
	l := &inferLog{r: r, lvl: requestLogLevel(r), start: time.Now()}
	if l.lvl >= LevelInfo {
		if zlog != nil {
			z := zlog.Info().Str("path", r.URL.Path).Str("content_type", r.Header.Get("Content-Type"))
			if rid := middleware.GetReqID(r.Context()); rid != "" {
				z = z.Str("request_id", rid)
			}
			z.Msg("infer start")
		} else {
			log.Printf("infer start path=%s", r.URL.Path)
		}
	}
	return l
}

// end logs the outcome. Errors are logged at LevelError and above, successes
// at LevelInfo and above; batch placement details only at LevelDebug.
func (l *inferLog) end(status int, err error, batchSize, slot int) {
	if l.lvl == LevelOff || (err == nil && l.lvl < LevelInfo) {
		return
	}
	dur := time.Since(l.start)
	if zlog == nil {
		log.Printf("infer end status=%d dur=%s err=%v", status, dur, err)
		return
	}
	z := zlog.Info().Int("status", status).Dur("dur", dur)
	if rid := middleware.GetReqID(l.r.Context()); rid != "" {
		z = z.Str("request_id", rid)
	}
	if l.lvl >= LevelDebug && err == nil {
		z = z.Int("batch_size", batchSize).Int("slot", slot)
	}
	if err != nil {
		z = z.Err(err)
	}
	z.Msg("infer end")
}
