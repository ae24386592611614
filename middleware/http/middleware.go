// Package http provides net/http middleware for webhook endpoints
package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/mihaimyh/subsync/pkg/subsync"
)

// Config holds middleware configuration
type Config struct {
	// Logger receives one entry per request (required)
	Logger subsync.Logger

	// SkipPaths are not logged, e.g. health checks
	SkipPaths []string
}

// statusRecorder captures the status code written by the wrapped handler
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Middleware logs one line per request. Panic recovery is left to
// middleware.Recoverer, which should sit inside this one so the 500 it
// writes is logged. The request id from middleware.RequestID is included
// when present. Request bodies and headers are never logged since they
// carry signatures.
func Middleware(config Config) func(http.Handler) http.Handler {
	if config.Logger == nil {
		config.Logger = &subsync.NoopLogger{}
	}
	skip := make(map[string]struct{}, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			fields := []subsync.Field{
				{Key: "method", Value: r.Method},
				{Key: "path", Value: r.URL.Path},
				{Key: "status", Value: status},
				{Key: "bytes", Value: rec.bytes},
				{Key: "duration_ms", Value: time.Since(start).Milliseconds()},
			}
			if id := middleware.GetReqID(r.Context()); id != "" {
				fields = append(fields, subsync.Field{Key: "request_id", Value: id})
			}
			if status >= http.StatusInternalServerError {
				config.Logger.Error("http request", fields...)
			} else {
				config.Logger.Info("http request", fields...)
			}
		})
	}
}
