package tape

import (
	"strings"
	"testing"
	"time"

	"stratengine/internal/signal"
)

func TestFormatSideFromMakerFlag(t *testing.T) {
	if got := Format(signal.Trade{IsBuyerMaker: true}, time.UTC).Side; got != LabelSell {
		t.Fatalf("expected SELL for buyer maker, got %s", got)
	}
	if got := Format(signal.Trade{IsBuyerMaker: false}, time.UTC).Side; got != LabelBuy {
		t.Fatalf("expected BUY for seller maker, got %s", got)
	}
}

func TestFormatUsesMilliseconds(t *testing.T) {
	want := time.Date(2024, 3, 1, 12, 30, 45, 250*int(time.Millisecond), time.UTC)
	rec := Format(signal.Trade{Symbol: "BTCUSDT", Timestamp: signal.Millis(want.UnixMilli())}, time.UTC)
	if !rec.Time.Equal(want) {
		t.Fatalf("expected %v, got %v", want, rec.Time)
	}
	if rec.Time.Location() != time.UTC {
		t.Fatalf("expected UTC location, got %v", rec.Time.Location())
	}
}

func TestFormatBookTimeUsesMicroseconds(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 45, 123456*int(time.Microsecond), time.UTC)
	if got := FormatBookTime(signal.Micros(ts.UnixMicro()), time.UTC); got != "12:30:45.123456" {
		t.Fatalf("expected microsecond precision, got %s", got)
	}
	if got := FormatBookTime(signal.Micros(ts.UnixMilli()), time.UTC); got == "12:30:45.123456" {
		t.Fatalf("a millisecond value must not be read as the same instant")
	}
}

func TestRecordString(t *testing.T) {
	ts := time.Date(2024, 3, 1, 9, 5, 7, 0, time.UTC)
	rec := Format(signal.Trade{
		Symbol:    "ETHUSDT",
		Price:     312.5,
		Quantity:  0.25,
		Timestamp: signal.Millis(ts.UnixMilli()),
	}, time.UTC)

	line := rec.String()
	if !strings.HasPrefix(line, "[09:05:07] ETHUSDT BUY ") {
		t.Fatalf("unexpected prefix: %q", line)
	}
	if !strings.Contains(line, "0.2500 @ $") || !strings.HasSuffix(line, "312.50") {
		t.Fatalf("unexpected numbers: %q", line)
	}
}
