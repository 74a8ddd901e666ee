package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchengine/pkg/logger"
)

// Timeout bounds handler time. When the deadline passes before the handler
// has started its response, the client gets 504 and anything the handler
// writes afterwards is discarded. Handlers see the deadline through the
// request context, which is how a long search stops early.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			r = r.WithContext(ctx)

			tw := &timeoutWriter{w: w, h: make(http.Header)}
			done := make(chan struct{})
			panicked := make(chan any, 1)
			go func() {
				defer func() {
					if p := recover(); p != nil {
						panicked <- p
					}
				}()
				next.ServeHTTP(tw, r)
				close(done)
			}()
			select {
			case <-done:
			case p := <-panicked:
				panic(p)
			case <-ctx.Done():
				if !tw.expire() {
					// Already streaming; let the handler finish with the
					// real writer.
					select {
					case <-done:
					case p := <-panicked:
						panic(p)
					}
					return
				}
				logger.FromContext(r.Context()).Warn("request timed out",
					"method", r.Method, "path", r.URL.Path, "timeout", timeout)
			}
		})
	}
}

// timeoutWriter buffers headers so the handler goroutine never touches the
// real header map once the timeout response may be in progress.
type timeoutWriter struct {
	w  http.ResponseWriter
	h  http.Header
	mu sync.Mutex

	wroteHeader bool
	timedOut    bool
}

func (tw *timeoutWriter) Header() http.Header { return tw.h }

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.writeHeaderLocked(code)
}

func (tw *timeoutWriter) writeHeaderLocked(code int) {
	if tw.timedOut || tw.wroteHeader {
		return
	}
	tw.wroteHeader = true
	dst := tw.w.Header()
	for k, v := range tw.h {
		dst[k] = v
	}
	tw.w.WriteHeader(code)
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return 0, http.ErrHandlerTimeout
	}
	tw.writeHeaderLocked(http.StatusOK)
	return tw.w.Write(b)
}

// expire writes the 504 unless the handler already responded. It reports
// whether the timeout response was sent.
func (tw *timeoutWriter) expire() bool {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.wroteHeader {
		return false
	}
	tw.timedOut = true
	tw.w.Header().Set("Content-Type", "application/json")
	tw.w.WriteHeader(http.StatusGatewayTimeout)
	tw.w.Write([]byte(`{"error":"request timeout"}`))
	return true
}
