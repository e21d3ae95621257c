// Package execution hands strategy signals to the downstream order system.
package execution

import (
	"context"

	"github.com/rs/zerolog"

	"stratengine/internal/signal"
)

// Executor is a logger-backed signal sink. Order placement lives in the external execution system; this
// is the hand-off point.
type Executor struct{ log zerolog.Logger }

// NewExecutor wraps a zerolog logger for signal submissions.
func NewExecutor(log zerolog.Logger) *Executor {
	return &Executor{log: log.With().Str("component", "executor").Logger()}
}

// Submit logs the signal.
func (executor *Executor) Submit(ctx context.Context, sig signal.Signal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	executor.log.Info().
		Str("id", sig.ID).
		Str("strategy", sig.Strategy).
		Str("sym", sig.Symbol).
		Str("side", string(sig.Side)).
		Str("type", string(sig.OrderType)).
		Float64("qty", sig.Quantity).
		Float64("px", sig.Price).
		Int("priority", sig.Priority).
		Msg("submit signal (stub)")
	return nil
}
