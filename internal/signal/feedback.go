package signal

import "time"

// Fill confirms that part or all of an order executed.
type Fill struct {
	FillID    string    `json:"fill_id"`
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	Fee       float64   `json:"fee"`
	Timestamp time.Time `json:"timestamp"`
	Strategy  string    `json:"strategy"`
}

// PositionSide describes the direction of an open position.
type PositionSide string

const (
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
	PositionFlat  PositionSide = "flat"
)

// Position is a per-symbol position view delivered by the position tracker.
type Position struct {
	Symbol        string       `json:"symbol"`
	Side          PositionSide `json:"side"`
	Quantity      float64      `json:"quantity"`
	AvgEntryPrice float64      `json:"avg_entry_price"`
	CurrentPrice  float64      `json:"current_price"`
	UnrealizedPnL float64      `json:"unrealized_pnl"`
	RealizedPnL   float64      `json:"realized_pnl"`
	Timestamp     time.Time    `json:"timestamp"`
	Strategy      string       `json:"strategy"`
}

// TotalPnL sums realized and unrealized profit.
func (p Position) TotalPnL() float64 { return p.UnrealizedPnL + p.RealizedPnL }
