package strategy

import (
	"stratengine/internal/signal"
)

// TypeMomentum identifies the sliding-window momentum generator.
const TypeMomentum = "momentum"

// Momentum emits a market order when the relative price change across a per-symbol window of the last
// LookbackPeriod ticks crosses Threshold.
type Momentum struct {
	cfg     Config
	windows map[string]*Window
}

// NewMomentum returns an unconfigured momentum generator.
func NewMomentum() *Momentum {
	return &Momentum{windows: make(map[string]*Window)}
}

func (m *Momentum) Type() string { return TypeMomentum }

// Configure discards all price history.
func (m *Momentum) Configure(cfg Config) error {
	m.cfg = cfg
	m.windows = make(map[string]*Window)
	return nil
}

// Window returns the live window for symbol, or nil if none has been seen.
func (m *Momentum) Window(symbol string) *Window { return m.windows[symbol] }

func (m *Momentum) OnMarketData(md signal.MarketData, env *Env) []signal.Signal {
	if md.Symbol == "" {
		return nil
	}
	w := m.windows[md.Symbol]
	if w == nil {
		w = NewWindow(m.cfg.LookbackPeriod)
		m.windows[md.Symbol] = w
	}
	w.Push(md.LastPrice)

	momentum, ok := w.Momentum()
	if !ok {
		return nil
	}
	env.Metrics.SetFor("momentum", md.Symbol, momentum)

	var (
		side   signal.Side
		reason signal.Reason
	)
	switch {
	case momentum > m.cfg.Threshold:
		side, reason = signal.SideBuy, signal.ReasonPositiveMomentum
	case momentum < -m.cfg.Threshold:
		side, reason = signal.SideSell, signal.ReasonNegativeMomentum
	default:
		return nil
	}

	sig, err := signal.NewSignal(
		env.NextID(md.Symbol), env.Strategy, md.Symbol,
		side, signal.OrderTypeMarket, m.cfg.OrderQuantity, 0,
		signal.PriorityMedium, env.Now(),
		signal.MomentumMetadata(momentum, reason),
	)
	if err != nil {
		env.Log.Warn().Err(err).Str("symbol", md.Symbol).Msg("discarding invalid signal")
		return nil
	}
	env.Log.Debug().
		Str("symbol", md.Symbol).
		Str("side", string(side)).
		Float64("momentum", momentum).
		Msg("momentum signal")
	return []signal.Signal{sig}
}

func (m *Momentum) OnFill(f signal.Fill, env *Env) {
	recordFill(f, env)
}

func (m *Momentum) OnPositionUpdate(p signal.Position, env *Env) {
	recordPosition(p, env)
}

func recordFill(f signal.Fill, env *Env) {
	env.Metrics.Set("last_fill_price", f.Price)
	env.Metrics.Set("last_fill_time", unixSeconds(env.Now()))
}

func recordPosition(p signal.Position, env *Env) {
	if p.Symbol == "" {
		return
	}
	env.Metrics.SetFor("position", p.Symbol, p.Quantity)
	env.Metrics.SetFor("pnl", p.Symbol, p.TotalPnL())
}
