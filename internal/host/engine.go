package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"stratengine/internal/channel"
	"stratengine/internal/metrics"
	"stratengine/internal/signal"
	"stratengine/internal/strategy"
)

var (
	ErrDuplicateStrategy = errors.New("duplicate strategy name")
	ErrUnknownStrategy   = errors.New("unknown strategy")
)

// Strategy is the surface the engine drives. *strategy.Runtime implements it.
type Strategy interface {
	Name() string
	State() strategy.State
	Start() error
	Stop() error
	OnMarketData(md signal.MarketData) []signal.Signal
	OnFill(f signal.Fill)
	OnPositionUpdate(p signal.Position)
	Metrics() map[string]float64
}

// SignalSink receives every emitted signal, in emission order.
type SignalSink interface {
	Submit(ctx context.Context, sig signal.Signal) error
}

// TickObserver sees every tick before strategies do.
type TickObserver interface {
	Observe(md signal.MarketData)
}

type entry struct {
	strat   Strategy
	symbols map[string]struct{}
}

func (e *entry) wants(symbol string) bool {
	if len(e.symbols) == 0 {
		return true
	}
	_, ok := e.symbols[symbol]
	return ok
}

// Engine dispatches ticks to strategy instances and forwards their signals to a sink.
// Strategies are visited in registration order.
type Engine struct {
	log     zerolog.Logger
	tracker *Tracker
	sink    SignalSink

	mu        sync.RWMutex
	entries   []*entry
	byName    map[string]*entry
	observers []TickObserver
}

// NewEngine builds an engine. A nil sink discards signals.
func NewEngine(sink SignalSink, log zerolog.Logger) *Engine {
	return &Engine{
		log:     log.With().Str("component", "engine").Logger(),
		tracker: NewTracker(),
		sink:    sink,
		byName:  make(map[string]*entry),
	}
}

// SetSink replaces the signal sink. Call before dispatch starts.
func (e *Engine) SetSink(sink SignalSink) {
	e.mu.Lock()
	e.sink = sink
	e.mu.Unlock()
}

// AddObserver registers o to see every dispatched tick.
func (e *Engine) AddObserver(o TickObserver) {
	e.mu.Lock()
	e.observers = append(e.observers, o)
	e.mu.Unlock()
}

// Add registers s for the given symbols; no symbols means every symbol. Symbols are matched uppercased.
func (e *Engine) Add(s Strategy, symbols ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.byName[s.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateStrategy, s.Name())
	}
	en := &entry{strat: s, symbols: make(map[string]struct{}, len(symbols))}
	for _, sym := range symbols {
		if sym = strings.ToUpper(strings.TrimSpace(sym)); sym != "" {
			en.symbols[sym] = struct{}{}
		}
	}
	e.entries = append(e.entries, en)
	e.byName[s.Name()] = en
	return nil
}

// Strategy looks up an instance by name.
func (e *Engine) Strategy(name string) (Strategy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	en, ok := e.byName[name]
	if !ok {
		return nil, false
	}
	return en.strat, true
}

// Symbols returns the union of explicit symbol filters, sorted.
func (e *Engine) Symbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	set := make(map[string]struct{})
	for _, en := range e.entries {
		for sym := range en.symbols {
			set[sym] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for sym := range set {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// StartAll starts every instance and reports all failures together.
func (e *Engine) StartAll() error {
	var errs []error
	for _, en := range e.snapshot() {
		if err := en.strat.Start(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StopAll stops every instance.
func (e *Engine) StopAll() {
	for _, en := range e.snapshot() {
		_ = en.strat.Stop()
	}
}

// HandleEvent converts a channel event into a tick and dispatches it. It matches channel.Handler.
func (e *Engine) HandleEvent(ctx context.Context, ev channel.Event) error {
	md, err := e.tracker.FromEvent(ev)
	if errors.Is(err, ErrNoPrice) {
		metrics.DroppedTotal.WithLabelValues("no_price").Inc()
		return nil
	}
	if err != nil {
		metrics.DroppedTotal.WithLabelValues("invalid_event").Inc()
		return err
	}
	return e.Dispatch(ctx, md)
}

// Dispatch hands md to each interested strategy in turn, then submits the tick's signals highest
// priority first; equal priorities keep strategy registration order. Sink failures are collected and
// never stop the remaining signals.
func (e *Engine) Dispatch(ctx context.Context, md signal.MarketData) error {
	timer := prometheus.NewTimer(metrics.DispatchSeconds)
	defer timer.ObserveDuration()

	e.mu.RLock()
	sink := e.sink
	observers := e.observers
	e.mu.RUnlock()
	for _, o := range observers {
		o.Observe(md)
	}

	var batch []signal.Signal
	for _, en := range e.snapshot() {
		if !en.wants(md.Symbol) {
			continue
		}
		batch = append(batch, en.strat.OnMarketData(md)...)
	}
	sort.SliceStable(batch, func(i, j int) bool { return batch[i].Priority > batch[j].Priority })

	var errs []error
	for _, sig := range batch {
		metrics.SignalsTotal.WithLabelValues(sig.Strategy, sig.Symbol, string(sig.Side)).Inc()
		e.log.Info().
			Str("id", sig.ID).
			Str("strategy", sig.Strategy).
			Str("symbol", sig.Symbol).
			Str("side", string(sig.Side)).
			Int("priority", sig.Priority).
			Float64("qty", sig.Quantity).
			Msg("signal")
		if sink == nil {
			continue
		}
		if err := sink.Submit(ctx, sig); err != nil {
			errs = append(errs, fmt.Errorf("submit %s: %w", sig.ID, err))
		}
	}
	return errors.Join(errs...)
}

// HandleFill routes f to the named strategy, or to every strategy when f.Strategy is empty.
func (e *Engine) HandleFill(f signal.Fill) error {
	targets, err := e.route(f.Strategy)
	if err != nil {
		return err
	}
	for _, s := range targets {
		metrics.FillsTotal.WithLabelValues(s.Name(), f.Symbol).Inc()
		s.OnFill(f)
	}
	return nil
}

// HandlePosition routes p like HandleFill.
func (e *Engine) HandlePosition(p signal.Position) error {
	targets, err := e.route(p.Strategy)
	if err != nil {
		return err
	}
	for _, s := range targets {
		s.OnPositionUpdate(p)
	}
	return nil
}

// Metrics returns a snapshot of every instance's metrics keyed by strategy name.
func (e *Engine) Metrics() map[string]map[string]float64 {
	out := make(map[string]map[string]float64)
	for _, en := range e.snapshot() {
		out[en.strat.Name()] = en.strat.Metrics()
	}
	return out
}

func (e *Engine) route(name string) ([]Strategy, error) {
	if name == "" {
		entries := e.snapshot()
		out := make([]Strategy, 0, len(entries))
		for _, en := range entries {
			out = append(out, en.strat)
		}
		return out, nil
	}
	s, ok := e.Strategy(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	return []Strategy{s}, nil
}

// snapshot copies the entry list so no engine lock is held while strategies or the sink run.
func (e *Engine) snapshot() []*entry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*entry, len(e.entries))
	copy(out, e.entries)
	return out
}
