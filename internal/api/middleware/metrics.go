// metrics.go — Prometheus HTTP метрики docview.
// Регистрирует метрики: dv_http_requests_total, dv_http_request_duration_seconds.
// Бизнес-метрики (dv_conversions_total, dv_sweep_* и др.) регистрируются
// в соответствующих пакетах.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dv_http_requests_total",
			Help: "Общее количество HTTP-запросов к docview",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dv_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к docview в секундах",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Имена файлов и даты заменяются шаблонами
			// для предотвращения роста кардинальности
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// paramPrefixes — маршруты с параметром в последнем сегменте.
var paramPrefixes = []struct {
	prefix string
	label  string
}{
	{"/aview/pdf/", "/aview/pdf/{filename}"},
	{"/aview/html/", "/aview/html/{filename}"},
	{"/aview/cache/", "/aview/cache/{filename}"},
	{"/stats/daily/", "/stats/daily/{date}"},
}

// knownPaths — маршруты без параметров.
var knownPaths = map[string]bool{
	"/aview/convert":     true,
	"/aview/view":        true,
	"/api/cache/cleanup": true,
	"/api/cache/stats":   true,
	"/stats/dashboard":   true,
	"/stats/export":      true,
	"/health/live":       true,
	"/health/ready":      true,
	"/metrics":           true,
	"/openapi.yaml":      true,
}

// normalizePath приводит путь к шаблону маршрута.
// /aview/pdf/5d41402abc4b2a76b9719d911017c592.pdf → /aview/pdf/{filename}
// Неизвестные пути схлопываются в "other".
func normalizePath(path string) string {
	if knownPaths[path] {
		return path
	}
	for _, p := range paramPrefixes {
		if rest, ok := strings.CutPrefix(path, p.prefix); ok && rest != "" && !strings.Contains(rest, "/") {
			return p.label
		}
	}
	return "other"
}
