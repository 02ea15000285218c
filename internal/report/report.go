package report

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/modfin/cspd/internal/log"
	"github.com/modfin/cspd/internal/metrics"
)

// Sink receives the raw body of every accepted violation report.
type Sink func(r *http.Request, report string)

// LogSink writes the report as a warning.
func LogSink(r *http.Request, report string) {
	log.New().
		WithField("report", report).
		WithField("path", r.URL.Path).
		WithField("user_agent", r.UserAgent()).
		WithField("request_id", log.RequestId(r.Context())).
		Warn("csp violation")
}

type Option func(*handler)

// WithMaxBytes rejects reports larger than n bytes, after decompression.
func WithMaxBytes(n int64) Option {
	return func(h *handler) {
		h.maxBytes = n
	}
}

// WithOutcome is called once per POST with one of the metrics outcomes.
func WithOutcome(fn func(outcome string)) Option {
	return func(h *handler) {
		h.outcome = fn
	}
}

type handler struct {
	sink     Sink
	maxBytes int64
	outcome  func(string)
}

// Handler accepts POSTed violation reports and hands the body, unparsed, to
// sink. Nothing is written on success.
func Handler(sink Sink, opts ...Option) http.Handler {
	h := &handler{sink: sink, outcome: func(string) {}}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := h.read(w, r)
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, errTooLarge) || errors.As(err, &maxErr):
		log.New().WithError(err).AddToContext(r.Context())
		h.outcome(metrics.TooLarge)
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	case errors.Is(err, errBadEncoding) || errors.Is(err, gzip.ErrHeader) || errors.Is(err, gzip.ErrChecksum):
		log.New().WithError(err).AddToContext(r.Context())
		h.outcome(metrics.ReadError)
		w.WriteHeader(http.StatusBadRequest)
		return
	case err != nil:
		log.New().WithError(err).AddToContext(r.Context())
		h.outcome(metrics.ReadError)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	h.sink(r, body)
	h.outcome(metrics.Logged)
}

var (
	errTooLarge    = errors.New("report: body too large")
	errBadEncoding = errors.New("report: bad gzip body")
)

func (h *handler) read(w http.ResponseWriter, r *http.Request) (string, error) {
	var body io.Reader = r.Body
	if h.maxBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}
	gzipped := strings.EqualFold(strings.TrimSpace(r.Header.Get("Content-Encoding")), "gzip")
	if gzipped {
		zr, err := gzip.NewReader(body)
		if err != nil {
			return "", fmt.Errorf("%w: %v", errBadEncoding, err)
		}
		defer zr.Close()
		body = zr
	}
	if h.maxBytes > 0 {
		body = io.LimitReader(body, h.maxBytes+1)
	}
	b, err := io.ReadAll(body)
	if gzipped && errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("%w: truncated stream", errBadEncoding)
	}
	if err != nil {
		return "", fmt.Errorf("report: reading body: %w", err)
	}
	if h.maxBytes > 0 && int64(len(b)) > h.maxBytes {
		return "", errTooLarge
	}
	return string(b), nil
}
