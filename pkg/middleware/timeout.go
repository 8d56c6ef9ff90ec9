package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Timeout caps how long a handler may run. When the deadline passes before
// the handler has written anything, the client receives a 504 and the
// handler's eventual output is discarded.
func Timeout(limit time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), limit)
			defer cancel()

			gw := &guardedWriter{ResponseWriter: w}
			finished := make(chan struct{})
			go func() {
				defer close(finished)
				next.ServeHTTP(gw, r.WithContext(ctx))
			}()

			select {
			case <-finished:
			case <-ctx.Done():
				if gw.claimTimeout() {
					slog.Warn("request exceeded time limit",
						"method", r.Method,
						"path", r.URL.Path,
						"limit", limit,
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusGatewayTimeout)
					_, _ = w.Write([]byte(`{"error":"request timed out"}`))
				}
			}
		})
	}
}

// Ownership states for the response writer.
const (
	ownerNone int32 = iota
	ownerHandler
	ownerTimeout
)

// guardedWriter hands the response to exactly one writer: either the wrapped
// handler or the timeout path, whichever claims it first. Once the timeout
// path owns the response, handler writes are silently dropped.
type guardedWriter struct {
	http.ResponseWriter
	owner atomic.Int32
}

func (gw *guardedWriter) claimTimeout() bool {
	return gw.owner.CompareAndSwap(ownerNone, ownerTimeout)
}

func (gw *guardedWriter) claimHandler() bool {
	return gw.owner.CompareAndSwap(ownerNone, ownerHandler) || gw.owner.Load() == ownerHandler
}

func (gw *guardedWriter) WriteHeader(code int) {
	if gw.claimHandler() {
		gw.ResponseWriter.WriteHeader(code)
	}
}

func (gw *guardedWriter) Write(b []byte) (int, error) {
	if !gw.claimHandler() {
		return len(b), nil
	}
	return gw.ResponseWriter.Write(b)
}
