package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLoggerNormalizesRoutes(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	handler := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest("POST", "/identity/123456/heartbeat", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	require.Contains(t, out, `"route":"/identity/:code"`)
	require.NotContains(t, out, "123456")
	require.Contains(t, out, `"status":200`)
	require.Contains(t, out, `"bytes":2`)
	require.Contains(t, out, `"level":"info"`)
}

func TestLoggerWarnsOnServerError(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	handler := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	req := httptest.NewRequest("GET", "/health", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.Contains(t, buf.String(), `"level":"warn"`)
}

func TestMetricsWriterKeepsFlusher(t *testing.T) {
	var flushed bool
	handler := Metrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		require.True(t, ok, "response writer lost Flusher")
		w.Write([]byte("chunk"))
		f.Flush()
		flushed = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	require.True(t, flushed)
	require.True(t, rec.Flushed)
}

func TestNormalizePath(t *testing.T) {
	require.Equal(t, "/identity/:code", normalizePath("/identity/424242"))
	require.Equal(t, "/messages/:code", normalizePath("/messages/424242"))
	require.Equal(t, "/identity", normalizePath("/identity"))
	require.Equal(t, "/health", normalizePath("/health"))
}
