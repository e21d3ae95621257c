// Package tape formats trade prints for display.
package tape

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"stratengine/internal/signal"
)

// Side labels shown on the tape.
const (
	LabelBuy  = "BUY"
	LabelSell = "SELL"
)

// Record is the display form of one trade.
type Record struct {
	Symbol   string
	Side     string
	Price    float64
	Quantity float64
	Time     time.Time
}

// Format maps a trade to a record. Trade timestamps are milliseconds; loc defaults to time.Local.
func Format(t signal.Trade, loc *time.Location) Record {
	if loc == nil {
		loc = time.Local
	}
	side := LabelBuy
	if t.IsBuyerMaker {
		side = LabelSell
	}
	return Record{
		Symbol:   t.Symbol,
		Side:     side,
		Price:    t.Price,
		Quantity: t.Quantity,
		Time:     t.Timestamp.Time().In(loc),
	}
}

// BookTimeLayout keeps the microsecond precision of order book timestamps.
const BookTimeLayout = "15:04:05.000000"

// FormatBookTime renders an order book timestamp, which is in microseconds, unlike trade timestamps.
// loc defaults to time.Local.
func FormatBookTime(ts signal.Micros, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return ts.Time().In(loc).Format(BookTimeLayout)
}

// String renders the record as a single tape line.
func (r Record) String() string {
	p := message.NewPrinter(language.English)
	return p.Sprintf("[%s] %s %-4s %10.4f @ $%10.2f", r.Time.Format("15:04:05"), r.Symbol, r.Side, r.Quantity, r.Price)
}
