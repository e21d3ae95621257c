// Package risk applies pre-trade limits to strategy signals.
package risk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stratengine/internal/metrics"
	"stratengine/internal/signal"
)

var (
	// ErrLimitExceeded is returned for signals above a size, position or loss cap.
	ErrLimitExceeded = errors.New("risk limit exceeded")
	// ErrSymbolNotAllowed is returned for blocked symbols or symbols outside the allow list.
	ErrSymbolNotAllowed = errors.New("symbol not allowed")
	// ErrRateLimited is returned when the order rate window is full.
	ErrRateLimited = errors.New("order rate limit exceeded")
)

// Limits holds the pre-trade caps. A zero value disables the corresponding check.
type Limits struct {
	MaxNotionalPerTrade float64  `yaml:"max_notional_per_trade"`
	MaxPositionSize     float64  `yaml:"max_position_size"`
	MaxDailyLoss        float64  `yaml:"max_daily_loss"`
	MaxOrdersPerSecond  int      `yaml:"max_orders_per_second"`
	MaxOrdersPerMinute  int      `yaml:"max_orders_per_minute"`
	AllowedSymbols      []string `yaml:"allowed_symbols,omitempty"`
	BlockedSymbols      []string `yaml:"blocked_symbols,omitempty"`
}

func (l Limits) Allow(notional float64) bool {
	return l.MaxNotionalPerTrade <= 0 || notional <= l.MaxNotionalPerTrade
}

// Validate rejects negative caps.
func (l Limits) Validate() error {
	switch {
	case l.MaxNotionalPerTrade < 0:
		return fmt.Errorf("max_notional_per_trade %v is negative", l.MaxNotionalPerTrade)
	case l.MaxPositionSize < 0:
		return fmt.Errorf("max_position_size %v is negative", l.MaxPositionSize)
	case l.MaxDailyLoss < 0:
		return fmt.Errorf("max_daily_loss %v is negative", l.MaxDailyLoss)
	case l.MaxOrdersPerSecond < 0 || l.MaxOrdersPerMinute < 0:
		return errors.New("order rate limits must not be negative")
	}
	return nil
}

// Submitter is the downstream signal consumer.
type Submitter interface {
	Submit(ctx context.Context, sig signal.Signal) error
}

// Marker supplies reference prices for market signals.
type Marker interface {
	Mark(symbol string) (float64, bool)
}

// Guard checks each signal against Limits and the positions and PnL it has been told about, then
// forwards the survivors to the next submitter. It is safe for concurrent use.
type Guard struct {
	limits  Limits
	marks   Marker
	next    Submitter
	log     zerolog.Logger
	now     func() time.Time
	allowed map[string]struct{}
	blocked map[string]struct{}

	mu        sync.Mutex
	positions map[string]float64
	pnl       map[string]float64
	dayStart  float64
	orders    []time.Time
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithMarks supplies reference prices for market signals.
func WithMarks(m Marker) GuardOption { return func(g *Guard) { g.marks = m } }

func WithLogger(log zerolog.Logger) GuardOption {
	return func(g *Guard) { g.log = log.With().Str("component", "risk").Logger() }
}

func WithClock(now func() time.Time) GuardOption { return func(g *Guard) { g.now = now } }

// NewGuard builds a guard in front of next.
func NewGuard(limits Limits, next Submitter, opts ...GuardOption) *Guard {
	g := &Guard{
		limits:    limits,
		next:      next,
		log:       zerolog.Nop(),
		now:       time.Now,
		allowed:   symbolSet(limits.AllowedSymbols),
		blocked:   symbolSet(limits.BlockedSymbols),
		positions: make(map[string]float64),
		pnl:       make(map[string]float64),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Submit runs every check in order and forwards the signal when all pass. A forwarded signal counts
// toward the rate window whatever the downstream result. A market signal with no mark passes the
// notional check unpriced.
func (g *Guard) Submit(ctx context.Context, sig signal.Signal) error {
	if err := g.check(sig); err != nil {
		g.log.Info().Err(err).Str("id", sig.ID).Str("strategy", sig.Strategy).Msg("signal rejected")
		return err
	}
	return g.next.Submit(ctx, sig)
}

func (g *Guard) check(sig signal.Signal) error {
	sym := strings.ToUpper(sig.Symbol)
	if _, ok := g.blocked[sym]; ok {
		return g.reject("symbol", fmt.Errorf("%w: %s is blocked", ErrSymbolNotAllowed, sym))
	}
	if len(g.allowed) > 0 {
		if _, ok := g.allowed[sym]; !ok {
			return g.reject("symbol", fmt.Errorf("%w: %s is not in the allow list", ErrSymbolNotAllowed, sym))
		}
	}

	price := sig.Price
	if price == 0 && g.marks != nil {
		price, _ = g.marks.Mark(sig.Symbol)
	}
	if notional := price * sig.Quantity; !g.limits.Allow(notional) {
		return g.reject("notional", fmt.Errorf("%w: %s notional %.2f > %.2f", ErrLimitExceeded, sig.ID, notional, g.limits.MaxNotionalPerTrade))
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if limit := g.limits.MaxPositionSize; limit > 0 {
		next := g.positions[sym]
		if sig.Side == signal.SideBuy {
			next += sig.Quantity
		} else {
			next -= sig.Quantity
		}
		if math.Abs(next) > limit {
			return g.reject("position", fmt.Errorf("%w: %s position %.4f > %.4f", ErrLimitExceeded, sym, math.Abs(next), limit))
		}
	}
	if limit := g.limits.MaxDailyLoss; limit > 0 {
		if loss := -g.dailyPnLLocked(); loss > limit {
			return g.reject("daily_loss", fmt.Errorf("%w: daily loss %.2f > %.2f", ErrLimitExceeded, loss, limit))
		}
	}

	now := g.now()
	g.trimOrdersLocked(now)
	if n := g.limits.MaxOrdersPerSecond; n > 0 && g.countSinceLocked(now.Add(-time.Second)) >= n {
		return g.reject("rate", fmt.Errorf("%w: %d orders/second", ErrRateLimited, n))
	}
	if n := g.limits.MaxOrdersPerMinute; n > 0 && len(g.orders) >= n {
		return g.reject("rate", fmt.Errorf("%w: %d orders/minute", ErrRateLimited, n))
	}
	g.orders = append(g.orders, now)
	return nil
}

func (g *Guard) reject(check string, err error) error {
	metrics.DroppedTotal.WithLabelValues("risk_" + check).Inc()
	return err
}

func (g *Guard) trimOrdersLocked(now time.Time) {
	cutoff := now.Add(-time.Minute)
	i := 0
	for i < len(g.orders) && !g.orders[i].After(cutoff) {
		i++
	}
	g.orders = g.orders[i:]
}

func (g *Guard) countSinceLocked(cutoff time.Time) int {
	n := 0
	for i := len(g.orders) - 1; i >= 0 && g.orders[i].After(cutoff); i-- {
		n++
	}
	return n
}

func (g *Guard) dailyPnLLocked() float64 {
	total := 0.0
	for _, v := range g.pnl {
		total += v
	}
	return total - g.dayStart
}

// HandleFill is part of the feedback surface; positions come from HandlePosition.
func (g *Guard) HandleFill(signal.Fill) error { return nil }

// HandlePosition records the position, signed by Side (Quantity's own sign when Side is empty), and the
// total PnL for the symbol.
func (g *Guard) HandlePosition(p signal.Position) error {
	sym := strings.ToUpper(p.Symbol)
	qty := p.Quantity
	switch p.Side {
	case signal.PositionLong:
		qty = math.Abs(qty)
	case signal.PositionShort:
		qty = -math.Abs(qty)
	case signal.PositionFlat:
		qty = 0
	}
	g.mu.Lock()
	g.positions[sym] = qty
	g.pnl[sym] = p.TotalPnL()
	g.mu.Unlock()
	return nil
}

// Position returns the last reported signed position for symbol.
func (g *Guard) Position(symbol string) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.positions[strings.ToUpper(symbol)]
}

// DailyPnL is total reported PnL since the last ResetDaily.
func (g *Guard) DailyPnL() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dailyPnLLocked()
}

// ResetDaily starts a new loss window from the current reported PnL.
func (g *Guard) ResetDaily() {
	g.mu.Lock()
	g.dayStart = 0
	for _, v := range g.pnl {
		g.dayStart += v
	}
	g.mu.Unlock()
	g.log.Info().Msg("daily risk counters reset")
}

func symbolSet(symbols []string) map[string]struct{} {
	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}
