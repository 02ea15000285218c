package log

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareRequestId(t *testing.T) {
	var got string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = RequestId(r.Context())
		New().WithField("handler_field", "x").AddToContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "abc")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "abc", got)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, got)
	assert.NotEqual(t, "abc", got)
}

func TestResponseWriterStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	w := wrapped(rec)
	assert.Equal(t, http.StatusOK, w.Status())

	w.WriteHeader(http.StatusNotFound)
	w.WriteHeader(http.StatusInternalServerError)
	assert.Equal(t, http.StatusNotFound, w.Status())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventLine(t *testing.T) {
	e := New().WithField("a", 1).WithError(assert.AnError).(*event)
	e.level = "warn"
	e.msg = "hello"
	assert.JSONEq(t,
		`{"a":1,"error_message":"`+assert.AnError.Error()+`","level":"warn","msg":"hello","timestamp":"0001-01-01T00:00:00Z"}`,
		string(e.line()))
}
