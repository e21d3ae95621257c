// Package signal standardizes payloads shared between the market data channel, the strategy runtime, and execution.
package signal

import (
	"time"

	"github.com/shopspring/decimal"
)

// Micros is a timestamp in microseconds since the Unix epoch. Order book payloads use this unit.
type Micros int64

// Time converts the value to a time.Time.
func (m Micros) Time() time.Time { return time.UnixMicro(int64(m)) }

// Millis is a timestamp in milliseconds since the Unix epoch. Trade payloads use this unit.
type Millis int64

// Time converts the value to a time.Time.
func (m Millis) Time() time.Time { return time.UnixMilli(int64(m)) }

// OrderBookSnapshot is a full book for one symbol as published on orderbook:{symbol}.
// Price keys are decimal strings and are neither sorted nor validated here; see package book.
type OrderBookSnapshot struct {
	Symbol    string                     `json:"symbol"`
	Timestamp Micros                     `json:"timestamp"`
	Bids      map[string]decimal.Decimal `json:"bids"`
	Asks      map[string]decimal.Decimal `json:"asks"`
}

// Trade is a single print as published on trades:{symbol}.
type Trade struct {
	Symbol       string  `json:"symbol"`
	TradeID      uint64  `json:"trade_id,omitempty"`
	Price        float64 `json:"price"`
	Quantity     float64 `json:"quantity"`
	Timestamp    Millis  `json:"timestamp"`
	IsBuyerMaker bool    `json:"is_buyer_maker"`
}

// AggressorSide reports which side initiated the trade. A buyer-maker print means the taker sold.
func (t Trade) AggressorSide() Side {
	if t.IsBuyerMaker {
		return SideSell
	}
	return SideBuy
}

// KindTick is the only MarketData kind produced by the host.
const KindTick = "tick"

// MarketData is the tick handed to strategies.
type MarketData struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Sequence  uint64    `json:"sequence"`

	LastPrice float64 `json:"last_price"`
	BidPrice  float64 `json:"bid_price"`
	BidSize   float64 `json:"bid_size"`
	AskPrice  float64 `json:"ask_price"`
	AskSize   float64 `json:"ask_size"`
	Volume    float64 `json:"volume"`

	Type string `json:"type"`
}
