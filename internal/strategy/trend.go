package strategy

import (
	"math"
	"time"

	"stratengine/internal/signal"
)

const TypeTrend = "trend"

// Trend emits signals when the percent change over a time window exceeds Threshold and the traded
// notional inside the window is at least MinVolume.
type Trend struct {
	cfg          Config
	observations map[string][]signal.MarketData
}

func NewTrend() *Trend {
	return &Trend{observations: make(map[string][]signal.MarketData)}
}

func (t *Trend) Type() string { return TypeTrend }

func (t *Trend) Defaults() Config {
	return Config{
		LookbackPeriod: DefaultLookbackPeriod,
		Threshold:      0.05,
		OrderQuantity:  DefaultOrderQuantity,
		WindowSecs:     180,
	}
}

func (t *Trend) Configure(cfg Config) error {
	t.cfg = cfg
	t.observations = make(map[string][]signal.MarketData)
	return nil
}

func (t *Trend) OnMarketData(md signal.MarketData, env *Env) []signal.Signal {
	if md.Symbol == "" || md.LastPrice <= 0 {
		return nil
	}
	window := time.Duration(t.cfg.WindowSecs) * time.Second
	series := trimWindow(append(t.observations[md.Symbol], md), md.Timestamp, window)
	t.observations[md.Symbol] = series

	oldest := series[0]
	if len(series) < 2 || oldest.LastPrice <= 0 {
		return nil
	}
	change := (md.LastPrice - oldest.LastPrice) / oldest.LastPrice
	// Volume is cumulative per symbol, so the window's traded size is the difference of its ends.
	notional := math.Abs(md.Volume-oldest.Volume) * md.LastPrice
	env.Metrics.SetFor("change", md.Symbol, change)

	if math.Abs(change) < t.cfg.Threshold {
		return nil
	}
	if t.cfg.MinVolume > 0 && notional < t.cfg.MinVolume {
		return nil
	}

	side, reason := signal.SideBuy, signal.ReasonTrendUp
	if change < 0 {
		side, reason = signal.SideSell, signal.ReasonTrendDown
	}
	meta := signal.Metadata{Reason: reason}.
		With("change", change).
		With("notional", notional)
	sig, err := signal.NewSignal(
		env.NextID(md.Symbol), env.Strategy, md.Symbol,
		side, signal.OrderTypeMarket, t.cfg.OrderQuantity, 0,
		signal.PriorityMedium, env.Now(), meta,
	)
	if err != nil {
		env.Log.Warn().Err(err).Str("symbol", md.Symbol).Msg("discarding invalid signal")
		return nil
	}
	return []signal.Signal{sig}
}

func (t *Trend) OnFill(f signal.Fill, env *Env) { recordFill(f, env) }

func (t *Trend) OnPositionUpdate(p signal.Position, env *Env) { recordPosition(p, env) }
