package log

import (
	"bufio"
	"context"
	"errors"
	"github.com/google/uuid"
	"net"
	"net/http"
	"time"
)

type contextKey struct{}
type requestIdKey struct{}

func Middleware(next http.Handler) http.Handler {
	fn := func(respWriter http.ResponseWriter, r *http.Request) {
		w := wrapped(respWriter)
		t := time.Now()
		logFields := make(map[string]any)
		requestId := r.Header.Get("X-Request-Id")
		if requestId == "" {
			requestId = uuid.New().String()
			r.Header.Set("X-Request-Id", requestId)
		}
		ctx := context.WithValue(r.Context(), contextKey{}, logFields)
		ctx = context.WithValue(ctx, requestIdKey{}, requestId)
		next.ServeHTTP(w, r.WithContext(ctx))
		New().
			WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("latency", time.Since(t).Round(time.Millisecond).String()).
			WithField("status", w.Status()).
			WithField("encoding", w.Header().Get("Content-Encoding")).
			WithField("request_id", requestId).
			WithFields(logFields).
			Info("access")
	}

	return http.HandlerFunc(fn)
}

// RequestId returns the id the logging middleware assigned to the request,
// or "" outside of it.
func RequestId(ctx context.Context) string {
	id, _ := ctx.Value(requestIdKey{}).(string)
	return id
}

type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func wrapped(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w}
}

func (rw *responseWriter) Status() int {
	if !rw.wroteHeader {
		return http.StatusOK
	}
	return rw.status
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}

	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
	rw.wroteHeader = true
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("wrapped response writer doesn't support hijack")
	}
	return h.Hijack()
}
