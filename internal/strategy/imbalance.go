package strategy

import (
	"math"
	"time"

	"stratengine/internal/signal"
)

const TypeImbalance = "book_imbalance"

// Imbalance blends top-of-book size imbalance with short-horizon price momentum over a time window.
type Imbalance struct {
	cfg    Config
	series map[string][]signal.MarketData
}

func NewImbalance() *Imbalance {
	return &Imbalance{series: make(map[string][]signal.MarketData)}
}

func (s *Imbalance) Type() string { return TypeImbalance }

func (s *Imbalance) Defaults() Config {
	return Config{
		LookbackPeriod: DefaultLookbackPeriod,
		Threshold:      0.25,
		OrderQuantity:  DefaultOrderQuantity,
		WindowSecs:     60,
	}
}

func (s *Imbalance) Configure(cfg Config) error {
	s.cfg = cfg
	s.series = make(map[string][]signal.MarketData)
	return nil
}

func (s *Imbalance) OnMarketData(md signal.MarketData, env *Env) []signal.Signal {
	if md.Symbol == "" || md.LastPrice <= 0 {
		return nil
	}
	window := time.Duration(s.cfg.WindowSecs) * time.Second
	ticks := trimWindow(append(s.series[md.Symbol], md), md.Timestamp, window)
	s.series[md.Symbol] = ticks

	obi := bookImbalance(md)
	mom := 0.0
	if anchor := ticks[0].LastPrice; anchor > 0 {
		mom = clamp(math.Tanh((md.LastPrice-anchor)/anchor*3), -1, 1)
	}
	score := 0.6*obi + 0.4*mom
	env.Metrics.SetFor("imbalance", md.Symbol, obi)
	env.Metrics.SetFor("score", md.Symbol, score)
	if math.Abs(score) < s.cfg.Threshold {
		return nil
	}

	side := signal.SideBuy
	if score < 0 {
		side = signal.SideSell
	}
	meta := signal.Metadata{Reason: signal.ReasonBookImbalance}.
		With("imbalance", obi).
		With("score", score)
	sig, err := signal.NewSignal(
		env.NextID(md.Symbol), env.Strategy, md.Symbol,
		side, signal.OrderTypeMarket, s.cfg.OrderQuantity, 0,
		priorityFor(score), env.Now(), meta,
	)
	if err != nil {
		env.Log.Warn().Err(err).Str("symbol", md.Symbol).Msg("discarding invalid signal")
		return nil
	}
	return []signal.Signal{sig}
}

func (s *Imbalance) OnFill(f signal.Fill, env *Env) { recordFill(f, env) }

func (s *Imbalance) OnPositionUpdate(p signal.Position, env *Env) { recordPosition(p, env) }

// bookImbalance is (bidSize - askSize) / (bidSize + askSize), zero for an empty top of book.
func bookImbalance(md signal.MarketData) float64 {
	total := md.BidSize + md.AskSize
	if total <= 0 {
		return 0
	}
	return clamp((md.BidSize-md.AskSize)/total, -1, 1)
}

// priorityFor maps a score magnitude in [0,1] to a signal priority.
func priorityFor(score float64) int {
	switch a := math.Abs(score); {
	case a >= 0.9:
		return signal.PriorityCritical
	case a >= 0.6:
		return signal.PriorityHigh
	default:
		return signal.PriorityMedium
	}
}

// trimWindow drops ticks at or before now-window, always keeping the newest.
func trimWindow(ticks []signal.MarketData, now time.Time, window time.Duration) []signal.MarketData {
	cutoff := now.Add(-window)
	idx := 0
	for idx < len(ticks)-1 && !ticks[idx].Timestamp.After(cutoff) {
		idx++
	}
	return ticks[idx:]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
