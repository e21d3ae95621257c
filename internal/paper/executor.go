package paper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stratengine/internal/signal"
)

// ErrNoMark is returned when a market signal arrives before any price for its symbol.
var ErrNoMark = errors.New("no mark price")

// Feedback receives the execution reports produced by paper fills.
type Feedback interface {
	HandleFill(f signal.Fill) error
	HandlePosition(p signal.Position) error
}

// Executor fills signals against an Account at the last observed price.
type Executor struct {
	account  *Account
	log      zerolog.Logger
	recorder FillRecorder
	feedback Feedback
	feeRate  float64
	now      func() time.Time

	mu    sync.Mutex
	marks map[string]float64
	seq   uint64
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

func WithRecorder(r FillRecorder) ExecutorOption { return func(e *Executor) { e.recorder = r } }

func WithFeedback(f Feedback) ExecutorOption { return func(e *Executor) { e.feedback = f } }

// WithFeeBps charges bps of notional on every fill.
func WithFeeBps(bps float64) ExecutorOption {
	return func(e *Executor) { e.feeRate = bps / 10_000 }
}

func WithExecutorClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

func NewExecutor(account *Account, log zerolog.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		account: account,
		log:     log.With().Str("component", "paper").Logger(),
		now:     time.Now,
		marks:   make(map[string]float64),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetFeedback attaches the feedback target after construction.
func (e *Executor) SetFeedback(f Feedback) {
	e.mu.Lock()
	e.feedback = f
	e.mu.Unlock()
}

// Observe records the tick's last price as the symbol's mark.
func (e *Executor) Observe(md signal.MarketData) {
	if md.LastPrice <= 0 {
		return
	}
	e.mu.Lock()
	e.marks[md.Symbol] = md.LastPrice
	e.mu.Unlock()
}

// Mark returns the last observed price for symbol.
func (e *Executor) Mark(symbol string) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	px, ok := e.marks[symbol]
	return px, ok
}

// Submit fills sig immediately. Limit signals fill at their own price; market signals at the mark.
func (e *Executor) Submit(ctx context.Context, sig signal.Signal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	price := sig.Price
	if sig.OrderType == signal.OrderTypeMarket {
		mark, ok := e.Mark(sig.Symbol)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNoMark, sig.Symbol)
		}
		price = mark
	}
	if err := e.account.MarketFill(sig.Symbol, sig.Side, sig.Quantity, price); err != nil {
		e.log.Info().Err(err).Str("id", sig.ID).Str("sym", sig.Symbol).Str("side", string(sig.Side)).Msg("paper order rejected")
		return fmt.Errorf("paper fill %s: %w", sig.ID, err)
	}

	e.mu.Lock()
	e.seq++
	fillID := fmt.Sprintf("paper-%d", e.seq)
	feedback := e.feedback
	e.mu.Unlock()

	now := e.now()
	fill := signal.Fill{
		FillID:    fillID,
		OrderID:   sig.ID,
		Symbol:    sig.Symbol,
		Side:      sig.Side,
		Price:     price,
		Quantity:  sig.Quantity,
		Fee:       price * sig.Quantity * e.feeRate,
		Timestamp: now,
		Strategy:  sig.Strategy,
	}
	if e.recorder != nil {
		e.recorder.Record(fill)
	}
	e.log.Info().
		Str("fill", fill.FillID).
		Str("order", fill.OrderID).
		Str("sym", fill.Symbol).
		Str("side", string(fill.Side)).
		Float64("qty", fill.Quantity).
		Float64("px", fill.Price).
		Msg("paper fill")

	if feedback == nil {
		return nil
	}
	if err := feedback.HandleFill(fill); err != nil {
		return fmt.Errorf("fill feedback: %w", err)
	}
	pos := e.account.Report(sig.Symbol, sig.Strategy, price, now)
	if err := feedback.HandlePosition(pos); err != nil {
		return fmt.Errorf("position feedback: %w", err)
	}
	return nil
}
