// Package metrics provides Prometheus instrumentation for the trading
// engine: per-product trade counters, liquidation/settlement counters,
// quote-fetch latency, open-position gauges, and the standard HTTP
// request instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesTotal counts spot buy/sell executions, partitioned by side.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossengine_spot_trades_total",
		Help: "Total number of spot trades executed",
	}, []string{"side"})

	// FuturesOpensTotal counts futures position opens, partitioned by side.
	FuturesOpensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossengine_futures_opens_total",
		Help: "Total number of futures positions opened",
	}, []string{"side"})

	// LiquidationsTotal counts forced futures liquidations.
	LiquidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crossengine_liquidations_total",
		Help: "Total number of forced futures liquidations",
	})

	// OptionsSettlementsTotal counts expiry settlements, partitioned by
	// whether the contract expired ITM or OTM.
	OptionsSettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossengine_options_settlements_total",
		Help: "Total number of option expiry settlements",
	}, []string{"outcome"})

	// QuoteFetchLatency tracks vendor fetch duration, partitioned by
	// vendor and cache outcome.
	QuoteFetchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crossengine_quote_fetch_latency_seconds",
		Help:    "Quote vendor fetch latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"vendor", "result"})

	// OpenFuturesPositions tracks the number of open leveraged positions.
	OpenFuturesPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crossengine_open_futures_positions",
		Help: "Number of currently open futures positions",
	})

	// OpenOptionsPositions tracks the number of open long option positions.
	OpenOptionsPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crossengine_open_options_positions",
		Help: "Number of currently open option positions",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crossengine_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crossengine_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crossengine_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
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

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
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
