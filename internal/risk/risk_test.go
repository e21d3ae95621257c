package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"stratengine/internal/signal"
)

func TestAllow(t *testing.T) {
	limits := Limits{MaxNotionalPerTrade: 50}
	if !limits.Allow(49.9) {
		t.Fatalf("expected notional under limit to pass")
	}
	if limits.Allow(50.1) {
		t.Fatalf("expected notional above limit to fail")
	}
	if !(Limits{}).Allow(1e9) {
		t.Fatalf("zero cap should disable the check")
	}
}

type marks map[string]float64

func (m marks) Mark(symbol string) (float64, bool) {
	px, ok := m[symbol]
	return px, ok
}

type countSubmitter struct{ n int }

func (c *countSubmitter) Submit(context.Context, signal.Signal) error {
	c.n++
	return nil
}

func buy(id, sym string, qty float64) signal.Signal {
	return signal.Signal{ID: id, Symbol: sym, Side: signal.SideBuy, Quantity: qty}
}

func TestGuardNotional(t *testing.T) {
	next := &countSubmitter{}
	g := NewGuard(Limits{MaxNotionalPerTrade: 1000}, next, WithMarks(marks{"BTCUSDT": 50}))
	ctx := context.Background()

	if err := g.Submit(ctx, buy("a", "BTCUSDT", 10)); err != nil {
		t.Fatalf("500 notional should pass: %v", err)
	}
	if err := g.Submit(ctx, buy("b", "BTCUSDT", 30)); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
	limit := buy("c", "BTCUSDT", 1)
	limit.Price = 2000
	if err := g.Submit(ctx, limit); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("limit price should be used, got %v", err)
	}
	if next.n != 1 {
		t.Fatalf("expected one forwarded signal, got %d", next.n)
	}
}

func TestGuardSymbols(t *testing.T) {
	next := &countSubmitter{}
	g := NewGuard(Limits{AllowedSymbols: []string{"btcusdt", "ETHUSDT"}, BlockedSymbols: []string{"ETHUSDT"}}, next)
	ctx := context.Background()

	if err := g.Submit(ctx, buy("a", "BTCUSDT", 1)); err != nil {
		t.Fatalf("allowed symbol rejected: %v", err)
	}
	if err := g.Submit(ctx, buy("b", "ETHUSDT", 1)); !errors.Is(err, ErrSymbolNotAllowed) {
		t.Fatalf("blocked symbol should win over the allow list, got %v", err)
	}
	if err := g.Submit(ctx, buy("c", "SOLUSDT", 1)); !errors.Is(err, ErrSymbolNotAllowed) {
		t.Fatalf("symbol outside the allow list should fail, got %v", err)
	}
	if next.n != 1 {
		t.Fatalf("expected one forwarded signal, got %d", next.n)
	}
}

func TestGuardPositionSizeFromReports(t *testing.T) {
	next := &countSubmitter{}
	g := NewGuard(Limits{MaxPositionSize: 5}, next)
	ctx := context.Background()

	if err := g.HandlePosition(signal.Position{Symbol: "BTCUSDT", Side: signal.PositionLong, Quantity: 4}); err != nil {
		t.Fatalf("position: %v", err)
	}
	if got := g.Position("btcusdt"); got != 4 {
		t.Fatalf("expected position 4, got %v", got)
	}
	if err := g.Submit(ctx, buy("a", "BTCUSDT", 2)); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("4+2 should breach 5, got %v", err)
	}
	sell := signal.Signal{ID: "b", Symbol: "BTCUSDT", Side: signal.SideSell, Quantity: 6}
	if err := g.Submit(ctx, sell); err != nil {
		t.Fatalf("4-6 = -2 is inside the cap: %v", err)
	}

	_ = g.HandlePosition(signal.Position{Symbol: "BTCUSDT", Side: signal.PositionShort, Quantity: 4})
	if got := g.Position("BTCUSDT"); got != -4 {
		t.Fatalf("short positions should be negative, got %v", got)
	}
	_ = g.HandlePosition(signal.Position{Symbol: "BTCUSDT", Side: signal.PositionFlat, Quantity: 4})
	if got := g.Position("BTCUSDT"); got != 0 {
		t.Fatalf("flat should clear the position, got %v", got)
	}
}

func TestGuardDailyLoss(t *testing.T) {
	next := &countSubmitter{}
	g := NewGuard(Limits{MaxDailyLoss: 100}, next)
	ctx := context.Background()

	_ = g.HandlePosition(signal.Position{Symbol: "BTCUSDT", RealizedPnL: -80, UnrealizedPnL: -30})
	if got := g.DailyPnL(); got != -110 {
		t.Fatalf("expected daily pnl -110, got %v", got)
	}
	if err := g.Submit(ctx, buy("a", "BTCUSDT", 1)); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected daily loss rejection, got %v", err)
	}

	g.ResetDaily()
	if got := g.DailyPnL(); got != 0 {
		t.Fatalf("reset should zero the window, got %v", got)
	}
	if err := g.Submit(ctx, buy("b", "BTCUSDT", 1)); err != nil {
		t.Fatalf("signal after reset rejected: %v", err)
	}
}

func TestGuardOrderRate(t *testing.T) {
	now := time.Unix(1700000000, 0)
	next := &countSubmitter{}
	g := NewGuard(Limits{MaxOrdersPerSecond: 2, MaxOrdersPerMinute: 3}, next, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := g.Submit(ctx, buy("a", "BTCUSDT", 1)); err != nil {
			t.Fatalf("order %d rejected: %v", i, err)
		}
	}
	if err := g.Submit(ctx, buy("b", "BTCUSDT", 1)); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("third order in a second should be limited, got %v", err)
	}

	now = now.Add(1500 * time.Millisecond)
	if err := g.Submit(ctx, buy("c", "BTCUSDT", 1)); err != nil {
		t.Fatalf("next second should pass: %v", err)
	}
	if err := g.Submit(ctx, buy("d", "BTCUSDT", 1)); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("fourth order in a minute should be limited, got %v", err)
	}

	now = now.Add(time.Minute)
	if err := g.Submit(ctx, buy("e", "BTCUSDT", 1)); err != nil {
		t.Fatalf("window should have rolled over: %v", err)
	}
	if next.n != 4 {
		t.Fatalf("expected 4 forwarded, got %d", next.n)
	}
}

func TestLimitsValidate(t *testing.T) {
	if err := (Limits{MaxPositionSize: -1}).Validate(); err == nil {
		t.Fatalf("expected error for negative position cap")
	}
	if err := (Limits{MaxNotionalPerTrade: 10, MaxOrdersPerSecond: 1}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
