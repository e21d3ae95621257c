// Package metrics holds process-wide Prometheus collectors and the per-strategy metric sink.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MarketDataTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "market_data_messages_total", Help: "Market data messages decoded from the channel"},
		[]string{"kind", "symbol"},
	)
	FeedEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "feed_events_total", Help: "Books and trades produced by the venue feed"},
		[]string{"provider", "kind", "symbol"},
	)
	DroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "market_data_dropped_total", Help: "Channel messages dropped before dispatch"},
		[]string{"reason"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Signals emitted by strategies"},
		[]string{"strategy", "symbol", "side"},
	)
	FillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fills_total", Help: "Fills routed back to strategies"},
		[]string{"strategy", "symbol"},
	)
	DispatchSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_seconds",
			Help:    "Time spent dispatching one tick to all strategies",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
		},
	)
)

func init() {
	prometheus.MustRegister(MarketDataTotal, FeedEventsTotal, DroppedTotal, SignalsTotal, FillsTotal, DispatchSeconds)
}

// Serve exposes /metrics on addr in the background.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
