package book

import (
	"io"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"stratengine/internal/tape"
)

// Render writes a console view of the book: asks high to low above the divider, bids high to low below it.
func (v *View) Render(w io.Writer, depth int, loc *time.Location) error {
	p := message.NewPrinter(language.English)
	rule := strings.Repeat("=", 60)
	bids, asks := v.TopLevels(depth)

	var b strings.Builder
	b.WriteString("\n" + rule + "\n")
	p.Fprintf(&b, "Symbol: %s | Time: %s\n", v.symbol, tape.FormatBookTime(v.timestamp, loc))
	b.WriteString(rule + "\n")

	b.WriteString("\nAsks (sellers):\n")
	for i := len(asks) - 1; i >= 0; i-- {
		p.Fprintf(&b, "  %12.2f | %10.4f\n", asks[i].Price.InexactFloat64(), asks[i].Quantity.InexactFloat64())
	}
	b.WriteString("\n" + strings.Repeat("-", 40) + "\n")
	b.WriteString("\nBids (buyers):\n")
	for _, lvl := range bids {
		p.Fprintf(&b, "  %12.2f | %10.4f\n", lvl.Price.InexactFloat64(), lvl.Quantity.InexactFloat64())
	}
	if spread, err := v.Spread(); err == nil {
		p.Fprintf(&b, "\nSpread: $%.2f (%.2f bps)\n", spread.Value.InexactFloat64(), spread.Bps.InexactFloat64())
	}

	_, err := io.WriteString(w, b.String())
	return err
}
