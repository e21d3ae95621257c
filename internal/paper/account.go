package paper

import (
	"errors"
	"sync"
	"time"

	"stratengine/internal/signal"
)

var (
	ErrInvalidOrder         = errors.New("quantity and price must be positive")
	ErrInsufficientCash     = errors.New("insufficient cash for buy")
	ErrPositionLimit        = errors.New("position limit exceeded")
	ErrInsufficientPosition = errors.New("insufficient position to sell")
	ErrUnknownSide          = errors.New("unknown order side")
)

// FillRecorder captures paper fills for later inspection.
type FillRecorder interface {
	Record(signal.Fill)
}

const epsilon = 1e-9

type positionState struct {
	Qty      float64
	AvgCost  float64
	Realized float64
}

// Account tracks virtual cash, realized PnL, and per-symbol positions while trading in paper mode.
type Account struct {
	mu                   sync.Mutex
	startingCash         float64
	cash                 float64
	realizedPnL          float64
	maxPositionPerSymbol float64
	positions            map[string]positionState
}

// PositionSnapshot exposes a read-only view of a single symbol position.
type PositionSnapshot struct {
	Qty         float64
	AvgCost     float64
	MarketValue float64
	Unrealized  float64
}

// Snapshot represents a thread-safe view of the account state, optionally marked to market using provided prices.
type Snapshot struct {
	Cash        float64
	RealizedPnL float64
	Equity      float64
	Positions   map[string]PositionSnapshot
}

// NewAccount constructs an account populated with starting cash and optional position cap.
func NewAccount(startingCash, maxPositionPerSymbol float64) *Account {
	return &Account{
		startingCash:         startingCash,
		cash:                 startingCash,
		maxPositionPerSymbol: maxPositionPerSymbol,
		positions:            make(map[string]positionState),
	}
}

// StartingCash returns the initial bankroll used to compute drawdown.
func (a *Account) StartingCash() float64 { return a.startingCash }

// MarketFill attempts to execute a market order at the provided price, mutating balances if successful.
func (a *Account) MarketFill(symbol string, side signal.Side, qty, price float64) error {
	if qty <= 0 || price <= 0 {
		return ErrInvalidOrder
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	state := a.positions[symbol]
	notional := qty * price

	switch side {
	case signal.SideBuy:
		if notional > a.cash+epsilon {
			return ErrInsufficientCash
		}
		newQty := state.Qty + qty
		if a.maxPositionPerSymbol > 0 && newQty > a.maxPositionPerSymbol+epsilon {
			return ErrPositionLimit
		}
		newAvg := price
		if newQty > 0 {
			newAvg = ((state.AvgCost * state.Qty) + notional) / newQty
		}
		a.cash -= notional
		a.positions[symbol] = positionState{Qty: newQty, AvgCost: newAvg, Realized: state.Realized}

	case signal.SideSell:
		if state.Qty <= 0 || state.Qty+epsilon < qty {
			return ErrInsufficientPosition
		}
		realized := (price - state.AvgCost) * qty
		a.realizedPnL += realized
		a.cash += notional
		newQty := state.Qty - qty
		if newQty <= epsilon {
			newQty = 0
		}
		// Flat symbols stay in the map so their realized PnL keeps being reported.
		a.positions[symbol] = positionState{Qty: newQty, AvgCost: state.AvgCost, Realized: state.Realized + realized}

	default:
		return ErrUnknownSide
	}
	return nil
}

// Snapshot returns a copy of balances, optionally marked using the supplied prices map.
func (a *Account) Snapshot(prices map[string]float64) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	positions := make(map[string]PositionSnapshot, len(a.positions))
	equity := a.cash
	for sym, pos := range a.positions {
		if pos.Qty == 0 {
			continue
		}
		mark := prices[sym]
		marketValue := pos.Qty * mark
		unrealized := (mark - pos.AvgCost) * pos.Qty
		if mark == 0 {
			marketValue = 0
			unrealized = 0
		}
		positions[sym] = PositionSnapshot{
			Qty:         pos.Qty,
			AvgCost:     pos.AvgCost,
			MarketValue: marketValue,
			Unrealized:  unrealized,
		}
		equity += marketValue
	}

	return Snapshot{
		Cash:        a.cash,
		RealizedPnL: a.realizedPnL,
		Equity:      equity,
		Positions:   positions,
	}
}

// AvailableCash reports free cash that can be deployed into new longs.
func (a *Account) AvailableCash() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cash
}

// Position returns the current position size for the supplied symbol.
func (a *Account) Position(symbol string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.positions[symbol].Qty
}

// Report builds the position record fed back to strategies, marked at mark when positive.
func (a *Account) Report(symbol, strategy string, mark float64, ts time.Time) signal.Position {
	a.mu.Lock()
	state := a.positions[symbol]
	a.mu.Unlock()

	p := signal.Position{
		Symbol:        symbol,
		Side:          signal.PositionFlat,
		Quantity:      state.Qty,
		AvgEntryPrice: state.AvgCost,
		CurrentPrice:  mark,
		RealizedPnL:   state.Realized,
		Timestamp:     ts,
		Strategy:      strategy,
	}
	if state.Qty > 0 {
		p.Side = signal.PositionLong
		if mark > 0 {
			p.UnrealizedPnL = (mark - state.AvgCost) * state.Qty
		}
	}
	return p
}

// RealizedPnL returns total closed-trade profit and loss.
func (a *Account) RealizedPnL() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.realizedPnL
}
