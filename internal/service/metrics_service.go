package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    *prometheus.HistogramVec
	cacheWrite      prometheus.Observer
	cacheLookups    *prometheus.CounterVec
	snapshotLoads   *prometheus.CounterVec
	snapshotSize    prometheus.Gauge
	scans           *prometheus.CounterVec
	checkins        *prometheus.CounterVec

	cacheHitCount  uint64
	cacheMissCount uint64
	requestCount   uint64
	scanCount      uint64
	scanFailures   uint64

	checkinFailures   uint64
	checkinsAbandoned uint64
}

// MetricsSnapshot summarises counters for the health endpoint.
type MetricsSnapshot struct {
	RequestsTotal uint64    `json:"requestsTotal"`
	CacheHits     uint64    `json:"cacheHits"`
	CacheMisses   uint64    `json:"cacheMisses"`
	CacheHitRatio float64   `json:"cacheHitRatio"`
	ScansTotal    uint64    `json:"scansTotal"`
	ScanFailures  uint64    `json:"scanFailures"`
	// CheckinFailures counts failed attempts; CheckinsAbandoned counts
	// check-ins no retry will be made for.
	CheckinFailures   uint64    `json:"checkinFailures"`
	CheckinsAbandoned uint64    `json:"checkinsAbandoned"`
	Goroutines        int       `json:"goroutines"`
	GeneratedAt       time.Time `json:"generatedAt"`
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	}, []string{"cache"})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by cache and result",
	}, []string{"cache", "result"})

	snapshotLoads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rfid_snapshot_loads_total",
		Help: "Tag population loads by outcome (fresh, stale, error)",
	}, []string{"outcome"})

	snapshotSize := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rfid_snapshot_tags",
		Help: "Number of tags in the current population snapshot",
	})

	scans := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rfid_scans_total",
		Help: "Station transitions by station and outcome",
	}, []string{"station", "outcome"})

	checkins := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tito_checkins_total",
		Help: "Ticketing check-ins by outcome",
	}, []string{"outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheLookups,
		snapshotLoads, snapshotSize, scans, checkins, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheLookups:    cacheLookups,
		snapshotLoads:   snapshotLoads,
		snapshotSize:    snapshotSize,
		scans:           scans,
		checkins:        checkins,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
}

// RecordCacheOperation records a lookup against the named cache.
func (m *MetricsService) RecordCacheOperation(cache string, hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.WithLabelValues(cache).Observe(duration.Seconds())
	result := "miss"
	if hit {
		result = "hit"
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordSnapshotLoad counts a population load and the resulting snapshot size.
func (m *MetricsService) RecordSnapshotLoad(outcome string, size int) {
	if m == nil {
		return
	}
	m.snapshotLoads.WithLabelValues(outcome).Inc()
	if size >= 0 {
		m.snapshotSize.Set(float64(size))
	}
}

// RecordScan counts a station transition attempt.
func (m *MetricsService) RecordScan(station string, success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
		atomic.AddUint64(&m.scanFailures, 1)
	}
	atomic.AddUint64(&m.scanCount, 1)
	m.scans.WithLabelValues(station, outcome).Inc()
}

// RecordCheckin counts a ticketing check-in attempt.
func (m *MetricsService) RecordCheckin(outcome string) {
	if m == nil {
		return
	}
	switch outcome {
	case "failure":
		atomic.AddUint64(&m.checkinFailures, 1)
	case "abandoned":
		atomic.AddUint64(&m.checkinsAbandoned, 1)
	}
	m.checkins.WithLabelValues(outcome).Inc()
}

// Snapshot returns aggregated counters.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{GeneratedAt: time.Now().UTC()}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	var ratio float64
	if total := hits + misses; total > 0 {
		ratio = float64(hits) / float64(total)
	}
	return MetricsSnapshot{
		RequestsTotal: atomic.LoadUint64(&m.requestCount),
		CacheHits:     hits,
		CacheMisses:   misses,
		CacheHitRatio: ratio,
		ScansTotal:    atomic.LoadUint64(&m.scanCount),
		ScanFailures:  atomic.LoadUint64(&m.scanFailures),

		CheckinFailures:   atomic.LoadUint64(&m.checkinFailures),
		CheckinsAbandoned: atomic.LoadUint64(&m.checkinsAbandoned),
		Goroutines:        runtime.NumGoroutine(),
		GeneratedAt:       time.Now().UTC(),
	}
}
