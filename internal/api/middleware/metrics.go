// metrics.go — Prometheus HTTP метрики Quarantine Module.
// Регистрирует метрики: qr_http_requests_total, qr_http_request_duration_seconds.
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
			Name: "qr_http_requests_total",
			Help: "Общее количество HTTP-запросов к Quarantine Module",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qr_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Quarantine Module в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// UUID в пути заменяются на {id} для ограничения кардинальности
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			status := strconv.Itoa(wrapped.statusCode)
			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(time.Since(start).Seconds())
		})
	}
}

// responseWriter — обёртка для перехвата статус-кода и размера ответа.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// uuidLen — длина UUID в канонической записи.
const uuidLen = 36

// normalizePath заменяет UUID-сегменты пути на {id}.
// /api/v1/files/a1b2c3d4-.../approve → /api/v1/files/{id}/approve
func normalizePath(path string) string {
	prefixes := []string{"/api/v1/scans/", "/api/v1/files/"}

	for _, prefix := range prefixes {
		if !strings.HasPrefix(path, prefix) || len(path) < len(prefix)+uuidLen {
			continue
		}
		if !looksLikeUUID(path[len(prefix) : len(prefix)+uuidLen]) {
			continue
		}
		suffix := path[len(prefix)+uuidLen:]
		switch suffix {
		case "", "/approve", "/reject", "/audit":
			return prefix + "{id}" + suffix
		default:
			return prefix + "{id}/other"
		}
	}
	return path
}

func looksLikeUUID(s string) bool {
	if len(s) != uuidLen {
		return false
	}
	for i, c := range s {
		switch i {
		case 8, 13, 18, 23:
			if c != '-' {
				return false
			}
		default:
			if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
				return false
			}
		}
	}
	return true
}
