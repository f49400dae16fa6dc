package util

import (
	"net/http"
	"strings"
	"time"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// RequestObserver receives the outcome of every logged request.
type RequestObserver func(r *http.Request, status int, elapsed time.Duration)

// RequestLogConfig tunes WithRequestLog.
type RequestLogConfig struct {
	Service        string
	TrustedProxies *TrustedProxies
	Observers      []RequestObserver
}

// WithRequestLog emits one structured "http_request" line per request
// through the request-scoped logger, then notifies observers.
func WithRequestLog(cfg RequestLogConfig, next http.Handler) http.Handler {
	service := strings.TrimSpace(cfg.Service)
	if service == "" {
		service = "unknown"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		LoggerFromContext(r.Context()).Info(
			"http_request",
			"service", service,
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"client_ip", ClientIP(r, cfg.TrustedProxies),
			"request_id", RequestIDFromRequest(r),
		)
		for _, observe := range cfg.Observers {
			if observe != nil {
				observe(r, status, elapsed)
			}
		}
	})
}
