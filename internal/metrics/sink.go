package metrics

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Sink stores a strategy's counters and gauges. It is owned by one strategy instance.
type Sink struct {
	mu     sync.RWMutex
	values map[string]float64
}

// NewSink returns an empty sink.
func NewSink() *Sink {
	return &Sink{values: make(map[string]float64)}
}

// Key builds the composite per-symbol key {name}_{symbol}.
func Key(name, symbol string) string { return name + "_" + symbol }

// Inc adds one to a counter.
func (s *Sink) Inc(key string) { s.Add(key, 1) }

// Add adds delta to a counter.
func (s *Sink) Add(key string, delta float64) {
	s.mu.Lock()
	s.values[key] += delta
	s.mu.Unlock()
}

// Set overwrites a gauge.
func (s *Sink) Set(key string, value float64) {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
}

// SetFor overwrites the per-symbol gauge {name}_{symbol}.
func (s *Sink) SetFor(name, symbol string, value float64) { s.Set(Key(name, symbol), value) }

// Get reads a single value.
func (s *Sink) Get(key string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Snapshot returns a copy of every value.
func (s *Sink) Snapshot() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Reset clears all values.
func (s *Sink) Reset() {
	s.mu.Lock()
	s.values = make(map[string]float64)
	s.mu.Unlock()
}

// SinkCollector exports a Sink through Prometheus as untyped samples.
type SinkCollector struct {
	desc *prometheus.Desc
	sink *Sink
}

// NewSinkCollector wraps sink for registration with a prometheus.Registerer.
// The strategy name is a constant label so several collectors can share one registry.
func NewSinkCollector(strategy string, sink *Sink) *SinkCollector {
	desc := prometheus.NewDesc(
		"strategy_metric",
		"Strategy counters and gauges keyed by metric name",
		[]string{"key"},
		prometheus.Labels{"strategy": strategy},
	)
	return &SinkCollector{desc: desc, sink: sink}
}

// Describe implements prometheus.Collector.
func (c *SinkCollector) Describe(ch chan<- *prometheus.Desc) { ch <- c.desc }

// Collect implements prometheus.Collector.
func (c *SinkCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.sink.Snapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.UntypedValue, snap[k], k)
	}
}
