// Package book turns published order book snapshots into a validated, sorted price-level view.
package book

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"stratengine/internal/signal"
)

var (
	// ErrInvalidPrice rejects a snapshot whose price key is not a non-negative decimal.
	ErrInvalidPrice = errors.New("invalid price level")
	// ErrInvalidQuantity rejects a snapshot with a negative level quantity.
	ErrInvalidQuantity = errors.New("invalid level quantity")
	// ErrDuplicateLevel rejects a snapshot with two keys of equal numeric value (e.g. "100" and "100.0").
	// Repeated raw JSON keys are caught with the same error while decoding.
	ErrDuplicateLevel = signal.ErrDuplicateLevel
	// ErrNoSpread is returned when either side of the book is empty.
	ErrNoSpread = errors.New("no spread available")
)

var bpsFactor = decimal.NewFromInt(10_000)

// Level is one aggregated price level.
type Level struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Spread is best ask minus best bid, absolute and in basis points of the best bid.
type Spread struct {
	Value decimal.Decimal
	Bps   decimal.Decimal
}

// View is an immutable, sorted order book for one symbol. Bids are kept best (highest) first, asks best (lowest) first.
type View struct {
	symbol    string
	timestamp signal.Micros
	bids      []Level
	asks      []Level
}

// New parses every price key of the snapshot. A single bad key rejects the whole snapshot.
func New(snap signal.OrderBookSnapshot) (*View, error) {
	bids, err := parseSide(snap.Bids, true)
	if err != nil {
		return nil, fmt.Errorf("%s bids: %w", snap.Symbol, err)
	}
	asks, err := parseSide(snap.Asks, false)
	if err != nil {
		return nil, fmt.Errorf("%s asks: %w", snap.Symbol, err)
	}
	return &View{symbol: snap.Symbol, timestamp: snap.Timestamp, bids: bids, asks: asks}, nil
}

func parseSide(levels map[string]decimal.Decimal, descending bool) ([]Level, error) {
	out := make([]Level, 0, len(levels))
	for key, qty := range levels {
		px, err := decimal.NewFromString(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPrice, key)
		}
		if px.IsNegative() {
			return nil, fmt.Errorf("%w: %q is negative", ErrInvalidPrice, key)
		}
		if qty.IsNegative() {
			return nil, fmt.Errorf("%w: %s at %q", ErrInvalidQuantity, qty, key)
		}
		out = append(out, Level{Price: px, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price.GreaterThan(out[j].Price)
		}
		return out[i].Price.LessThan(out[j].Price)
	})
	for i := 1; i < len(out); i++ {
		if out[i].Price.Equal(out[i-1].Price) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateLevel, out[i].Price)
		}
	}
	return out, nil
}

// Symbol returns the book's ticker.
func (v *View) Symbol() string { return v.symbol }

// Timestamp returns the publisher timestamp in microseconds.
func (v *View) Timestamp() signal.Micros { return v.timestamp }

// Depth reports the number of levels per side.
func (v *View) Depth() (bids, asks int) { return len(v.bids), len(v.asks) }

// TopLevels returns up to n levels per side, best price first.
func (v *View) TopLevels(n int) (bids, asks []Level) {
	return top(v.bids, n), top(v.asks, n)
}

func top(levels []Level, n int) []Level {
	if n <= 0 {
		return []Level{}
	}
	if n > len(levels) {
		n = len(levels)
	}
	out := make([]Level, n)
	copy(out, levels[:n])
	return out
}

// BestBid returns the highest bid, if any.
func (v *View) BestBid() (Level, bool) {
	if len(v.bids) == 0 {
		return Level{}, false
	}
	return v.bids[0], true
}

// BestAsk returns the lowest ask, if any.
func (v *View) BestAsk() (Level, bool) {
	if len(v.asks) == 0 {
		return Level{}, false
	}
	return v.asks[0], true
}

// Mid returns the midpoint of the best bid and ask.
func (v *View) Mid() (decimal.Decimal, error) {
	bid, okBid := v.BestBid()
	ask, okAsk := v.BestAsk()
	if !okBid || !okAsk {
		return decimal.Zero, ErrNoSpread
	}
	return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2)), nil
}

// Spread computes best ask minus best bid. Bps is zero when the best bid is zero.
func (v *View) Spread() (Spread, error) {
	bid, okBid := v.BestBid()
	ask, okAsk := v.BestAsk()
	if !okBid || !okAsk {
		return Spread{}, ErrNoSpread
	}
	value := ask.Price.Sub(bid.Price)
	bps := decimal.Zero
	if !bid.Price.IsZero() {
		bps = value.Div(bid.Price).Mul(bpsFactor)
	}
	return Spread{Value: value, Bps: bps}, nil
}
