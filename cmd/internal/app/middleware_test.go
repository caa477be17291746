package app

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusClass(t *testing.T) {
	cases := map[int]string{
		101: "1xx",
		200: "2xx",
		204: "2xx",
		302: "3xx",
		401: "4xx",
		429: "4xx",
		503: "5xx",
		0:   "unknown",
	}
	for status, want := range cases {
		assert.Equal(t, want, statusClass(status), "status %d", status)
	}
}

func TestRequestLogMeta(t *testing.T) {
	lvl, class := requestLogMeta(http.StatusOK)
	assert.Equal(t, slog.LevelInfo, lvl)
	assert.Equal(t, "2xx", class)

	lvl, _ = requestLogMeta(http.StatusUnauthorized)
	assert.Equal(t, slog.LevelWarn, lvl)

	lvl, _ = requestLogMeta(http.StatusServiceUnavailable)
	assert.Equal(t, slog.LevelError, lvl)
}

func newLoggedMux(t *testing.T) (http.Handler, *bytes.Buffer, *httpMetrics) {
	t.Helper()
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	mux := http.NewServeMux()
	mux.HandleFunc("/echo-id", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(RequestIDFrom(r.Context())))
	})
	mux.HandleFunc("/fail", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.WriteHeader(http.StatusOK)
	})

	m := newHTTPMetrics(prometheus.NewRegistry())
	return WithRequestLogging(mux, log, m), &buf, m
}

func TestWithRequestLogging_GeneratesRequestID(t *testing.T) {
	h, buf, _ := newLoggedMux(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/echo-id", nil))

	id := rec.Header().Get(requestIDHeader)
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, rec.Body.String())
	assert.Contains(t, buf.String(), `"request_id":"`+id+`"`)
}

func TestWithRequestLogging_KeepsCallerRequestID(t *testing.T) {
	h, _, _ := newLoggedMux(t)

	req := httptest.NewRequest(http.MethodGet, "/echo-id", nil)
	req.Header.Set(requestIDHeader, "edge-7f3a")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "edge-7f3a", rec.Header().Get(requestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/echo-id", nil)
	req.Header.Set(requestIDHeader, "has space")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.NotEqual(t, "has space", rec.Header().Get(requestIDHeader))
}

func TestWithRequestLogging_LogsFirstStatusAndCounts(t *testing.T) {
	h, buf, m := newLoggedMux(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/fail", nil)
	req.Header.Set("Authorization", "Bearer secret-value")
	h.ServeHTTP(rec, req)

	out := buf.String()
	assert.Contains(t, out, `"status":502`)
	assert.Contains(t, out, `"level":"ERROR"`)
	assert.NotContains(t, out, "secret-value")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/fail", "5xx")))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "unmatched", "4xx")))
}

func TestCleanRequestID(t *testing.T) {
	assert.Equal(t, "abc-123", cleanRequestID(" abc-123 "))
	assert.Empty(t, cleanRequestID(strings.Repeat("x", 129)))
	assert.Empty(t, cleanRequestID("tab\there"))
}
