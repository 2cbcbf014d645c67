// Package metrics provides Prometheus instrumentation for the market engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesTotal counts committed market trades, partitioned by side.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quemvence_trades_total",
		Help: "Total number of market trades committed",
	}, []string{"side"})

	// TradeLatency tracks trade commit latency.
	TradeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quemvence_trade_latency_seconds",
		Help:    "Trade commit latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// ActiveCandidates tracks the number of open candidate markets.
	ActiveCandidates = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quemvence_active_candidates",
		Help: "Number of active candidate markets",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quemvence_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quemvence_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quemvence_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// SupplyRejections counts trades rejected by the per-side supply cap.
	SupplyRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quemvence_supply_rejections_total",
		Help: "Trades rejected because a side's supply cap was reached",
	})

	// MarketVolume tracks cumulative traded volume per candidate.
	MarketVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quemvence_market_volume_total",
		Help: "Cumulative trade volume in tokens",
	}, []string{"candidate_id", "side"})

	// SimulatedTrades counts trades placed by the simulation driver.
	SimulatedTrades = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quemvence_simulated_trades_total",
		Help: "Trades committed by the market simulator",
	})

	// PostCommitWriteFailures counts history and ledger writes that
	// failed after supply was already advanced, partitioned by write.
	PostCommitWriteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quemvence_post_commit_write_failures_total",
		Help: "Secondary store writes that failed after a trade committed",
	}, []string{"write"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; route shapes here are flat
		// enough that cardinality stays bounded.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
