package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/aview/convert", "/aview/convert"},
		{"/aview/pdf/5d41402abc4b2a76b9719d911017c592.pdf", "/aview/pdf/{filename}"},
		{"/aview/html/abc.html", "/aview/html/{filename}"},
		{"/aview/cache/abc.png", "/aview/cache/{filename}"},
		{"/stats/daily/2025-06-01", "/stats/daily/{date}"},
		{"/aview/pdf/", "other"},
		{"/aview/pdf/a/b.pdf", "other"},
		{"/wp-admin/install.php", "other"},
		{"/metrics", "/metrics"},
	}

	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, хотели %q", tt.path, got, tt.want)
		}
	}
}

func TestMetricsMiddleware_StatusCaptured(t *testing.T) {
	h := MetricsMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/aview/convert", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("статус должен проходить насквозь: получено %d", rec.Code)
	}
}

func TestRequestLogger_LevelByStatus(t *testing.T) {
	tests := []struct {
		path      string
		status    int
		wantLevel string
	}{
		{"/aview/convert", http.StatusOK, "INFO"},
		{"/aview/convert", http.StatusBadRequest, "WARN"},
		{"/aview/convert", http.StatusBadGateway, "ERROR"},
		{"/health/ready", http.StatusOK, "DEBUG"},
		{"/health/ready", http.StatusServiceUnavailable, "ERROR"},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

		h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte("body"))
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("запись лога не JSON: %v (%s)", err, buf.String())
		}
		if entry["level"] != tt.wantLevel {
			t.Errorf("%s %d: уровень %v, хотели %s", tt.path, tt.status, entry["level"], tt.wantLevel)
		}
		if entry["bytes"] != float64(4) {
			t.Errorf("bytes: получено %v", entry["bytes"])
		}
	}
}
