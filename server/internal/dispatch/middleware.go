package dispatch

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sensillum/sensillum/server/internal/metrics"
	"github.com/sensillum/sensillum/server/internal/respond"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestID returns the id the access log assigned to the request, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// statusWriter records the status code. It forwards Hijack and Flush so the
// session handlers can take over the connection.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (sw *statusWriter) WriteHeader(code int) {
	if sw.status == 0 {
		sw.status = code
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if sw.status == 0 {
		sw.status = http.StatusOK
	}
	n, err := sw.ResponseWriter.Write(b)
	sw.bytes += int64(n)
	return n, err
}

func (sw *statusWriter) Flush() {
	sw.FlushError() //nolint:errcheck
}

// FlushError lets http.ResponseController report a failed flush.
func (sw *statusWriter) FlushError() error {
	if sw.status == 0 {
		sw.status = http.StatusOK
	}
	return http.NewResponseController(sw.ResponseWriter).Flush()
}

func (sw *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := sw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("dispatch: response writer does not support hijacking")
	}
	conn, rw, err := hj.Hijack()
	if err == nil && sw.status == 0 {
		sw.status = http.StatusSwitchingProtocols
	}
	return conn, rw, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// Logging assigns a request id, logs each completed request and counts it in
// m by matched route pattern. m may be nil.
func Logging(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			id := uuid.NewString()

			// A route context created here survives routing, so the matched
			// pattern is readable after next returns.
			rctx := chi.NewRouteContext()
			ctx := context.WithValue(r.Context(), requestIDKey, id)
			ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)

			sw := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(sw, r.WithContext(ctx))

			status := sw.status
			if status == 0 {
				status = http.StatusOK
			}
			route := rctx.RoutePattern()
			if route == "" {
				route = "unmatched"
			}

			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}
			slog.Log(ctx, level, "request completed",
				"method", r.Method,
				"path", r.URL.EscapedPath(),
				"route", route,
				"proto", r.Proto,
				"status", status,
				"bytes", sw.bytes,
				"latency_ms", time.Since(start).Milliseconds(),
				"request_id", id,
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
			m.ObserveRequest(route, status)
		})
	}
}

// Recovery turns a handler panic into a generic 500. http.ErrAbortHandler is
// re-raised so net/http can abort the response silently.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			slog.ErrorContext(r.Context(), "panic in handler",
				"err", rec,
				"request_id", RequestID(r.Context()),
				"method", r.Method,
				"path", r.URL.EscapedPath(),
				"stack", string(debug.Stack()),
			)
			respond.InternalError(w)
		}()
		next.ServeHTTP(w, r)
	})
}
