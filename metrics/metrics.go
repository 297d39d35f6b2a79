// Package metrics provides Prometheus instrumentation for the agent.
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
	// TradesTotal counts executed trades, partitioned by wallet and side.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_trades_total",
		Help: "Total number of trades executed",
	}, []string{"wallet", "side"})

	// RejectionsTotal counts signals the risk gate turned away.
	RejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_risk_rejections_total",
		Help: "Signals rejected by the risk gate",
	}, []string{"wallet"})

	// ExecuteDuration tracks end-to-end pipeline latency.
	ExecuteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agent_execute_duration_seconds",
		Help:    "Signal execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// EquityTotalUSD mirrors the ledger's total equity.
	EquityTotalUSD = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agent_equity_total_usd",
		Help: "Total equity across all wallets in USD",
	})

	// RealizedTodayUSD mirrors today's realized PnL across wallets.
	RealizedTodayUSD = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agent_realized_today_usd",
		Help: "Realized PnL today across all wallets in USD",
	})

	// FlowTransfersTotal counts applied flow transfers per rule.
	FlowTransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_flow_transfers_total",
		Help: "Inter-wallet transfers applied by flow rules",
	}, []string{"rule", "type"})

	// KillSwitchActive is 1 while the hard stop is latched.
	KillSwitchActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agent_kill_switch_active",
		Help: "Whether the risk kill switch is latched",
	})

	// WebSocketClients tracks connected dashboard clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agent_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts status server requests.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agent_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics around the status server.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
