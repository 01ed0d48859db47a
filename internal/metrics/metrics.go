package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the market-data pipeline.
type Metrics struct {
	// Ingest side
	TradesPublished    prometheus.Counter
	QuotesPublished    prometheus.Counter
	ValidationFailures *prometheus.CounterVec // labels: entity
	IngestPersistFails *prometheus.CounterVec // labels: entity
	IngestPublishFails *prometheus.CounterVec // labels: entity

	// Aggregator
	PrintsConsumed prometheus.Counter
	LatePrints     prometheus.Counter
	CandlesEmitted *prometheus.CounterVec // labels: interval_ms
	IngestDur      prometheus.Histogram

	// Emitter sinks
	PersistFailed prometheus.Counter
	PublishFailed prometheus.Counter
	CacheFailed   prometheus.Counter
	PersistDur    prometheus.Histogram
}

// New registers and returns all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		TradesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_trades_published_total",
			Help: "Prints validated, stored, and published to the bus",
		}),
		QuotesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_quotes_published_total",
			Help: "Quotes validated, stored, and published to the bus",
		}),
		ValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_validation_failures_total",
			Help: "Entities rejected by schema validation",
		}, []string{"entity"}),
		IngestPersistFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_ingest_persist_failures_total",
			Help: "Store writes failed on the ingest path (publish skipped)",
		}, []string{"entity"}),
		IngestPublishFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_ingest_publish_failures_total",
			Help: "Bus publishes failed on the ingest path",
		}, []string{"entity"}),

		PrintsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_prints_consumed_total",
			Help: "Prints consumed from the durable print stream",
		}),
		LatePrints: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_late_prints_total",
			Help: "Prints dropped because their window closed behind the watermark",
		}),
		CandlesEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_candles_emitted_total",
			Help: "Candles emitted and persisted (by interval)",
		}, []string{"interval_ms"}),
		IngestDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipeline_aggregate_duration_seconds",
			Help:    "Aggregator fold latency per print",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),

		PersistFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_candle_persist_failed_total",
			Help: "Candle store inserts failed (bus and cache skipped)",
		}),
		PublishFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_candle_publish_failed_total",
			Help: "Candle bus publishes failed",
		}),
		CacheFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_candle_cache_failed_total",
			Help: "Candle cache updates failed",
		}),
		PersistDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipeline_candle_persist_duration_seconds",
			Help:    "Candle store insert latency",
			Buckets: prometheus.DefBuckets,
		}),
	}

	prometheus.MustRegister(
		m.TradesPublished,
		m.QuotesPublished,
		m.ValidationFailures,
		m.IngestPersistFails,
		m.IngestPublishFails,
		m.PrintsConsumed,
		m.LatePrints,
		m.CandlesEmitted,
		m.IngestDur,
		m.PersistFailed,
		m.PublishFailed,
		m.CacheFailed,
		m.PersistDur,
	)

	return m
}

// Pinger is the probe surface a dependency exposes for liveness checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus represents the service health.
type HealthStatus struct {
	mu sync.RWMutex

	BusConnected   bool      `json:"bus_connected"`
	StoreConnected bool      `json:"store_connected"`
	CacheConnected bool      `json:"cache_connected"`
	LastEventTime  time.Time `json:"last_event_time"`
	IntervalsMS    []int64   `json:"intervals_ms"`

	StoreLatencyMs float64   `json:"store_latency_ms"`
	CacheLatencyMs float64   `json:"cache_latency_ms"`
	LastCheckAt    time.Time `json:"last_check_at"`
	StartedAt      time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetBusConnected(v bool) {
	h.mu.Lock()
	h.BusConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetStoreConnected(v bool) {
	h.mu.Lock()
	h.StoreConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetCacheConnected(v bool) {
	h.mu.Lock()
	h.CacheConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastEventTime(t time.Time) {
	h.mu.Lock()
	h.LastEventTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetIntervals(intervals []int64) {
	h.mu.Lock()
	h.IntervalsMS = intervals
	h.mu.Unlock()
}

// CheckStore pings the columnar store and records latency + connectivity.
func (h *HealthStatus) CheckStore(ctx context.Context, store Pinger) {
	start := time.Now()
	err := store.Ping(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.StoreConnected = err == nil
	h.StoreLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckCache pings the hot cache and records latency + connectivity.
func (h *HealthStatus) CheckCache(ctx context.Context, cache Pinger) {
	start := time.Now()
	err := cache.Ping(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.CacheConnected = err == nil
	h.CacheLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Nil pingers are skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, store, cache Pinger, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if store != nil {
					h.CheckStore(probeCtx, store)
				}
				if cache != nil {
					h.CheckCache(probeCtx, cache)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.BusConnected || !h.StoreConnected {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.BusConnected && !h.StoreConnected {
		overallStatus = "unhealthy"
	}

	eventAge := ""
	if !h.LastEventTime.IsZero() {
		eventAge = time.Since(h.LastEventTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status         string  `json:"status"`
		Uptime         string  `json:"uptime"`
		BusConnected   bool    `json:"bus_connected"`
		StoreConnected bool    `json:"store_connected"`
		StoreLatencyMs float64 `json:"store_latency_ms"`
		CacheConnected bool    `json:"cache_connected"`
		CacheLatencyMs float64 `json:"cache_latency_ms"`
		LastEventTime  string  `json:"last_event_time"`
		EventAge       string  `json:"event_age"`
		IntervalsMS    []int64 `json:"intervals_ms"`
		LastCheckAt    string  `json:"last_check_at"`
	}{
		Status:         overallStatus,
		Uptime:         time.Since(h.StartedAt).Round(time.Second).String(),
		BusConnected:   h.BusConnected,
		StoreConnected: h.StoreConnected,
		StoreLatencyMs: h.StoreLatencyMs,
		CacheConnected: h.CacheConnected,
		CacheLatencyMs: h.CacheLatencyMs,
		LastEventTime:  h.LastEventTime.Format(time.RFC3339),
		EventAge:       eventAge,
		IntervalsMS:    h.IntervalsMS,
		LastCheckAt:    h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
