// Package host turns channel events into strategy ticks and routes the results.
package host

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"stratengine/internal/book"
	"stratengine/internal/channel"
	"stratengine/internal/signal"
)

var (
	// ErrInvalidTrade is returned for trades without a positive price.
	ErrInvalidTrade = errors.New("invalid trade")
	// ErrNoPrice is returned for a book that leaves the symbol without any reference price. The top of
	// book is still recorded so the next tick carries it.
	ErrNoPrice = errors.New("no reference price")
)

type symbolState struct {
	seq       uint64
	last      float64
	haveTrade bool
	volume    float64
	bid       float64
	bidSize   float64
	ask       float64
	askSize   float64
}

// Tracker keeps per-symbol top of book, last trade and cumulative volume, and stamps each tick with a
// per-symbol sequence number.
type Tracker struct {
	mu      sync.Mutex
	symbols map[string]*symbolState
}

func NewTracker() *Tracker {
	return &Tracker{symbols: make(map[string]*symbolState)}
}

// FromEvent converts ev into a tick. A rejected event leaves the tracker unchanged.
func (t *Tracker) FromEvent(ev channel.Event) (signal.MarketData, error) {
	switch {
	case ev.Book != nil:
		return t.fromBook(*ev.Book)
	case ev.Trade != nil:
		return t.fromTrade(*ev.Trade)
	default:
		return signal.MarketData{}, fmt.Errorf("tracker: empty %s event", ev.Kind)
	}
}

func (t *Tracker) fromBook(snap signal.OrderBookSnapshot) (signal.MarketData, error) {
	view, err := book.New(snap)
	if err != nil {
		return signal.MarketData{}, fmt.Errorf("order book %s: %w", snap.Symbol, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.state(snap.Symbol)
	st.bid, st.bidSize, st.ask, st.askSize = 0, 0, 0, 0
	if lvl, ok := view.BestBid(); ok {
		st.bid, _ = lvl.Price.Float64()
		st.bidSize, _ = lvl.Quantity.Float64()
	}
	if lvl, ok := view.BestAsk(); ok {
		st.ask, _ = lvl.Price.Float64()
		st.askSize, _ = lvl.Quantity.Float64()
	}
	if !st.haveTrade {
		if mid, err := view.Mid(); err == nil {
			st.last, _ = mid.Float64()
		}
	}
	if st.last <= 0 {
		return signal.MarketData{}, fmt.Errorf("%w: %s", ErrNoPrice, snap.Symbol)
	}
	return st.tick(snap.Symbol, view.Timestamp().Time()), nil
}

func (t *Tracker) fromTrade(tr signal.Trade) (signal.MarketData, error) {
	if tr.Price <= 0 || tr.Symbol == "" {
		return signal.MarketData{}, fmt.Errorf("%w: %s price %v", ErrInvalidTrade, tr.Symbol, tr.Price)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.state(tr.Symbol)
	st.last = tr.Price
	st.haveTrade = true
	st.volume += tr.Quantity
	return st.tick(tr.Symbol, tr.Timestamp.Time()), nil
}

func (t *Tracker) state(symbol string) *symbolState {
	st := t.symbols[symbol]
	if st == nil {
		st = &symbolState{}
		t.symbols[symbol] = st
	}
	return st
}

func (st *symbolState) tick(symbol string, ts time.Time) signal.MarketData {
	st.seq++
	return signal.MarketData{
		Symbol:    symbol,
		Timestamp: ts,
		Sequence:  st.seq,
		LastPrice: st.last,
		BidPrice:  st.bid,
		BidSize:   st.bidSize,
		AskPrice:  st.ask,
		AskSize:   st.askSize,
		Volume:    st.volume,
		Type:      signal.KindTick,
	}
}
