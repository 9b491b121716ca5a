package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------- statusWriter ----------

func TestStatusWriterCapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	ww := &statusWriter{ResponseWriter: rec, status: http.StatusOK}

	ww.WriteHeader(http.StatusTeapot)

	assert.Equal(t, http.StatusTeapot, ww.status)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestStatusWriterFlushPassesThrough(t *testing.T) {
	rec := httptest.NewRecorder()
	ww := &statusWriter{ResponseWriter: rec, status: http.StatusOK}

	var flusher http.Flusher = ww
	flusher.Flush()

	assert.True(t, rec.Flushed)
}

// ---------- Metrics ----------

func TestMetricsKeepsHandlerFlushable(t *testing.T) {
	var sawFlusher bool
	h := Metrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawFlusher = w.(http.Flusher)
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.True(t, sawFlusher, "streaming handlers need a Flusher downstream of the middleware")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

// ---------- RequestLogger ----------

func TestRequestLoggerEmitsOneLine(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	h := chimw.RequestID(RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/backups", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "request", line["message"])
	assert.Equal(t, "POST", line["method"])
	assert.Equal(t, "/api/v1/backups", line["path"])
	assert.Equal(t, float64(http.StatusCreated), line["status"])
	assert.NotEmpty(t, line["request_id"])
}

func TestRequestLoggerInjectsContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	var ctxLogger *zerolog.Logger
	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxLogger = zerolog.Ctx(r.Context())
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.NotNil(t, ctxLogger)
	assert.NotEqual(t, zerolog.Disabled, ctxLogger.GetLevel(),
		"handlers should see the request-scoped logger, not the disabled default")
}
