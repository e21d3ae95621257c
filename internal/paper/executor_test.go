package paper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"stratengine/internal/signal"
)

type captureFeedback struct {
	fills     []signal.Fill
	positions []signal.Position
}

func (c *captureFeedback) HandleFill(f signal.Fill) error {
	c.fills = append(c.fills, f)
	return nil
}

func (c *captureFeedback) HandlePosition(p signal.Position) error {
	c.positions = append(c.positions, p)
	return nil
}

func marketSignal(t *testing.T, id string, side signal.Side, qty float64) signal.Signal {
	t.Helper()
	sig, err := signal.NewSignal(id, "mom", "BTCUSDT", side, signal.OrderTypeMarket, qty, 0, 0, time.Now(), signal.Metadata{})
	if err != nil {
		t.Fatalf("NewSignal: %v", err)
	}
	return sig
}

func TestExecutorFillsAtMarkAndFeedsBack(t *testing.T) {
	fb := &captureFeedback{}
	ledger := NewLedger(4)
	exec := NewExecutor(NewAccount(10_000, 0), zerolog.Nop(), WithRecorder(ledger), WithFeedback(fb), WithFeeBps(10))
	ctx := context.Background()

	if err := exec.Submit(ctx, marketSignal(t, "s1", signal.SideBuy, 1)); !errors.Is(err, ErrNoMark) {
		t.Fatalf("expected ErrNoMark before any tick, got %v", err)
	}

	exec.Observe(signal.MarketData{Symbol: "BTCUSDT", LastPrice: 100})
	if err := exec.Submit(ctx, marketSignal(t, "s2", signal.SideBuy, 2)); err != nil {
		t.Fatalf("submit buy: %v", err)
	}
	exec.Observe(signal.MarketData{Symbol: "BTCUSDT", LastPrice: 110})
	if err := exec.Submit(ctx, marketSignal(t, "s3", signal.SideSell, 2)); err != nil {
		t.Fatalf("submit sell: %v", err)
	}

	if len(fb.fills) != 2 || len(fb.positions) != 2 {
		t.Fatalf("expected 2 fills and 2 positions, got %d/%d", len(fb.fills), len(fb.positions))
	}
	first := fb.fills[0]
	if first.OrderID != "s2" || first.Price != 100 || first.Strategy != "mom" || first.FillID != "paper-1" {
		t.Fatalf("unexpected fill %+v", first)
	}
	if first.Fee < 0.1999 || first.Fee > 0.2001 {
		t.Fatalf("expected 10bps fee on 200 notional, got %v", first.Fee)
	}
	if fb.positions[0].Side != signal.PositionLong || fb.positions[0].Quantity != 2 {
		t.Fatalf("unexpected open position %+v", fb.positions[0])
	}
	closed := fb.positions[1]
	if closed.Side != signal.PositionFlat || closed.RealizedPnL != 20 {
		t.Fatalf("unexpected closed position %+v", closed)
	}
	if len(ledger.Snapshot()) != 2 {
		t.Fatalf("ledger should hold both fills")
	}
}

func TestExecutorRejectsUncoveredSell(t *testing.T) {
	exec := NewExecutor(NewAccount(1000, 0), zerolog.Nop())
	exec.Observe(signal.MarketData{Symbol: "BTCUSDT", LastPrice: 100})
	err := exec.Submit(context.Background(), marketSignal(t, "s1", signal.SideSell, 1))
	if !errors.Is(err, ErrInsufficientPosition) {
		t.Fatalf("expected ErrInsufficientPosition, got %v", err)
	}
}
