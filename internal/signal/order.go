package signal

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidSignal is returned when a Signal violates its construction rules.
var ErrInvalidSignal = errors.New("invalid signal")

// Side enumerates trade directions.
type Side string

const (
	// SideBuy requests a long order.
	SideBuy Side = "buy"
	// SideSell requests a short or closing order.
	SideSell Side = "sell"
)

// OrderType enumerates the order types a signal may request.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// Priority levels follow the execution system convention: higher is more urgent.
const (
	PriorityLow      = 1
	PriorityMedium   = 5
	PriorityHigh     = 8
	PriorityCritical = 10
)

// Signal is a strategy's request to trade. Once returned from a strategy it belongs to the execution collaborator.
type Signal struct {
	ID        string    `json:"id"`
	Strategy  string    `json:"strategy"`
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	OrderType OrderType `json:"order_type"`
	Quantity  float64   `json:"quantity"`
	Price     float64   `json:"price,omitempty"`
	Priority  int       `json:"priority"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  Metadata  `json:"metadata"`
}

// NewSignal builds and validates a signal. price is ignored for market orders.
func NewSignal(id, strategy, symbol string, side Side, orderType OrderType, quantity, price float64, priority int, ts time.Time, meta Metadata) (Signal, error) {
	if orderType == OrderTypeMarket {
		price = 0
	}
	if priority == 0 {
		priority = PriorityMedium
	}
	sig := Signal{
		ID:        id,
		Strategy:  strategy,
		Symbol:    symbol,
		Side:      side,
		OrderType: orderType,
		Quantity:  quantity,
		Price:     price,
		Priority:  priority,
		Timestamp: ts,
		Metadata:  meta,
	}
	if err := sig.Validate(); err != nil {
		return Signal{}, err
	}
	return sig, nil
}

// Validate checks the invariants of a signal.
func (s Signal) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidSignal)
	}
	if s.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidSignal)
	}
	if s.Side != SideBuy && s.Side != SideSell {
		return fmt.Errorf("%w: side %q", ErrInvalidSignal, s.Side)
	}
	if s.Quantity <= 0 {
		return fmt.Errorf("%w: quantity %v must be positive", ErrInvalidSignal, s.Quantity)
	}
	switch s.OrderType {
	case OrderTypeMarket:
		if s.Price != 0 {
			return fmt.Errorf("%w: market order carries price", ErrInvalidSignal)
		}
	case OrderTypeLimit:
		if s.Price <= 0 {
			return fmt.Errorf("%w: limit order requires a positive price", ErrInvalidSignal)
		}
	default:
		return fmt.Errorf("%w: order type %q", ErrInvalidSignal, s.OrderType)
	}
	if s.Priority < PriorityLow || s.Priority > PriorityCritical {
		return fmt.Errorf("%w: priority %d out of range", ErrInvalidSignal, s.Priority)
	}
	return nil
}
