// Package strategy hosts the strategy lifecycle and the built-in signal generators.
package strategy

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stratengine/internal/metrics"
	"stratengine/internal/signal"
)

// ErrNotInitialized is returned by Start before a successful Init.
var ErrNotInitialized = errors.New("strategy not initialized")

// State is the lifecycle position of a strategy instance.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Metric keys maintained by the runtime itself.
const (
	MetricInitializedAt       = "initialized_at"
	MetricStartedAt           = "started_at"
	MetricStoppedAt           = "stopped_at"
	MetricMarketDataProcessed = "market_data_processed"
	MetricSignalsGenerated    = "signals_generated"
	MetricFillsReceived       = "fills_received"
	MetricPositionUpdates     = "position_updates"
)

// Logic is the strategy-specific part of an instance. The runtime serializes every call and only forwards
// events while Running, so implementations need no locking of their own.
type Logic interface {
	Type() string
	// Configure resets derived state for a fresh Init.
	Configure(cfg Config) error
	OnMarketData(md signal.MarketData, env *Env) []signal.Signal
	OnFill(f signal.Fill, env *Env)
	OnPositionUpdate(p signal.Position, env *Env)
}

// Defaulter lets a Logic supply its own defaults for unset options.
type Defaulter interface {
	Defaults() Config
}

// Env is the per-instance state handed to Logic on each call.
type Env struct {
	Strategy string
	Config   Config
	Metrics  *metrics.Sink
	Log      zerolog.Logger

	now        func() time.Time
	lastMicros int64
}

// Now returns the runtime clock.
func (e *Env) Now() time.Time { return e.now() }

// NextID returns {strategy}_{symbol}_{micros}. The micros component is bumped when needed so ids from one
// instance are strictly increasing.
func (e *Env) NextID(symbol string) string {
	us := e.now().UnixMicro()
	if us <= e.lastMicros {
		us = e.lastMicros + 1
	}
	e.lastMicros = us
	return fmt.Sprintf("%s_%s_%d", e.Strategy, symbol, us)
}

// Option adjusts a Runtime.
type Option func(*Runtime)

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Runtime) { r.env.now = now }
}

// Runtime owns one strategy instance: its lifecycle, metrics and logic.
type Runtime struct {
	mu    sync.Mutex
	logic Logic
	state State
	env   Env
}

// NewRuntime wraps logic under the instance name.
func NewRuntime(name string, logic Logic, log zerolog.Logger, opts ...Option) *Runtime {
	r := &Runtime{
		logic: logic,
		env: Env{
			Strategy: name,
			Metrics:  metrics.NewSink(),
			Log:      log.With().Str("strategy", name).Str("type", logic.Type()).Logger(),
			now:      time.Now,
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns the instance name.
func (r *Runtime) Name() string { return r.env.Strategy }

// Type returns the logic's type identifier.
func (r *Runtime) Type() string { return r.logic.Type() }

// State returns the current lifecycle state.
func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Config returns the effective configuration from the last successful Init.
func (r *Runtime) Config() Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.env.Config
}

// Init applies defaults, validates, resets metrics and derived state, and moves to Initialized.
// A stopped or running instance can be re-initialized; it ends up Initialized either way.
func (r *Runtime) Init(cfg Config) error {
	defaults := DefaultConfig()
	if d, ok := r.logic.(Defaulter); ok {
		defaults = d.Defaults()
	}
	cfg = cfg.WithDefaults(defaults)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("init %s: %w", r.env.Strategy, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.logic.Configure(cfg); err != nil {
		return fmt.Errorf("init %s: %w", r.env.Strategy, err)
	}
	r.env.Config = cfg
	r.env.Metrics.Reset()
	r.env.Metrics.Set(MetricInitializedAt, unixSeconds(r.env.now()))
	r.state = StateInitialized
	r.env.Log.Info().
		Int("lookback_period", cfg.LookbackPeriod).
		Float64("threshold", cfg.Threshold).
		Float64("order_quantity", cfg.OrderQuantity).
		Msg("strategy initialized")
	return nil
}

// Start moves Initialized or Stopped to Running. Starting a running instance is a no-op.
func (r *Runtime) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case StateUninitialized:
		return fmt.Errorf("start %s: %w", r.env.Strategy, ErrNotInitialized)
	case StateRunning:
		return nil
	}
	r.state = StateRunning
	r.env.Metrics.Set(MetricStartedAt, unixSeconds(r.env.now()))
	r.env.Log.Info().Msg("strategy started")
	return nil
}

// Stop moves Running to Stopped. Stopping in any other state is a no-op.
func (r *Runtime) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRunning {
		return nil
	}
	r.state = StateStopped
	r.env.Metrics.Set(MetricStoppedAt, unixSeconds(r.env.now()))
	r.env.Log.Info().Msg("strategy stopped")
	return nil
}

// OnMarketData forwards a tick to the logic. Outside Running it returns nil and changes nothing.
func (r *Runtime) OnMarketData(md signal.MarketData) []signal.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRunning {
		return nil
	}
	r.env.Metrics.Inc(MetricMarketDataProcessed)
	sigs := r.logic.OnMarketData(md, &r.env)
	if len(sigs) > 0 {
		r.env.Metrics.Add(MetricSignalsGenerated, float64(len(sigs)))
	}
	return sigs
}

// OnFill forwards an execution report. Ignored outside Running.
func (r *Runtime) OnFill(f signal.Fill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRunning {
		return
	}
	r.env.Metrics.Inc(MetricFillsReceived)
	r.logic.OnFill(f, &r.env)
}

// OnPositionUpdate forwards a position snapshot. Ignored outside Running.
func (r *Runtime) OnPositionUpdate(p signal.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRunning {
		return
	}
	r.env.Metrics.Inc(MetricPositionUpdates)
	r.logic.OnPositionUpdate(p, &r.env)
}

// Metrics returns a snapshot of the instance's counters and gauges.
func (r *Runtime) Metrics() map[string]float64 { return r.env.Metrics.Snapshot() }

// Sink exposes the live metric sink for exporters.
func (r *Runtime) Sink() *metrics.Sink { return r.env.Metrics }

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
