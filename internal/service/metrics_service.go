package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the token
// engine and the HTTP surface.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	tokensIssued    *prometheus.CounterVec
	refreshRotated  prometheus.Counter
	replayRejected  prometheus.Counter
	revocations     prometheus.Counter
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
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

	tokensIssued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_tokens_issued_total",
		Help: "Total tokens issued by kind",
	}, []string{"kind"})

	refreshRotated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_refresh_rotations_total",
		Help: "Total successful refresh token rotations",
	})

	replayRejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_refresh_replays_rejected_total",
		Help: "Total refresh exchanges rejected as replayed, expired, or unknown",
	})

	revocations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_revocations_total",
		Help: "Total access tokens blacklisted before natural expiry",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_revocation_cache_hits_total",
		Help: "Total revocation lookups answered by the cache",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_revocation_cache_misses_total",
		Help: "Total revocation lookups that fell through to the store",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, tokensIssued, refreshRotated, replayRejected, revocations, cacheHits, cacheMisses, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		tokensIssued:    tokensIssued,
		refreshRotated:  refreshRotated,
		replayRejected:  replayRejected,
		revocations:     revocations,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records a completed HTTP request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, strconv.Itoa(status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// IncTokenIssued counts an issued token of the given kind (access, refresh).
func (s *MetricsService) IncTokenIssued(kind string) {
	s.tokensIssued.WithLabelValues(kind).Inc()
}

// IncRefreshRotated counts a successful rotation.
func (s *MetricsService) IncRefreshRotated() { s.refreshRotated.Inc() }

// IncReplayRejected counts a rejected refresh exchange.
func (s *MetricsService) IncReplayRejected() { s.replayRejected.Inc() }

// IncRevocation counts a blacklisted access token.
func (s *MetricsService) IncRevocation() { s.revocations.Inc() }

// IncCacheHit counts a revocation lookup served from cache.
func (s *MetricsService) IncCacheHit() { s.cacheHits.Inc() }

// IncCacheMiss counts a revocation lookup that hit the store.
func (s *MetricsService) IncCacheMiss() { s.cacheMisses.Inc() }
