// metrics.go — Prometheus-метрики конвейера карантина.
package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	filesScannedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qr_files_scanned_total",
		Help: "Количество просканированных файлов по итоговому статусу",
	}, []string{"status"}) // clean, held

	findingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qr_findings_total",
		Help: "Количество находок по этапу и уровню серьёзности",
	}, []string{"stage", "severity"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "qr_stage_duration_seconds",
		Help:    "Длительность выполнения этапа сканирования",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms … ~41s
	}, []string{"stage"})

	jobsInProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "qr_jobs_in_progress",
		Help: "Количество выполняющихся заданий сканирования",
	})

	reviewsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qr_reviews_total",
		Help: "Количество решений проверки",
	}, []string{"action"}) // approve, reject

	jobCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qr_job_cache_hits_total",
		Help: "Попадания в кэш сводок завершённых заданий",
	})
	jobCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qr_job_cache_misses_total",
		Help: "Промахи кэша сводок завершённых заданий",
	})
)
