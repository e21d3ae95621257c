package book

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"stratengine/internal/signal"
)

func levels(kv ...string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i]] = decimal.RequireFromString(kv[i+1])
	}
	return out
}

func TestTopLevelsOrdersNumerically(t *testing.T) {
	snap := signal.OrderBookSnapshot{
		Symbol: "BTCUSDT",
		Bids:   levels("99.5", "1", "100", "2", "9.99", "3", "1000", "4", "98", "5", "97.25", "6", "101", "7"),
		Asks:   levels("1010", "1", "102", "2", "1005", "3", "103.5", "4", "110", "5", "104", "6", "200", "7"),
	}
	view, err := New(snap)
	require.NoError(t, err)

	bids, asks := view.TopLevels(5)
	require.Len(t, bids, 5)
	require.Len(t, asks, 5)

	for i := 1; i < len(bids); i++ {
		require.True(t, bids[i-1].Price.GreaterThan(bids[i].Price), "bids not strictly descending at %d", i)
	}
	for i := 1; i < len(asks); i++ {
		require.True(t, asks[i-1].Price.LessThan(asks[i].Price), "asks not strictly ascending at %d", i)
	}
	require.Equal(t, "1000", bids[0].Price.String())
	require.Equal(t, "102", asks[0].Price.String())
}

func TestTopLevelsShortBook(t *testing.T) {
	view, err := New(signal.OrderBookSnapshot{Bids: levels("1", "1"), Asks: levels()})
	require.NoError(t, err)

	bids, asks := view.TopLevels(5)
	require.Len(t, bids, 1)
	require.Empty(t, asks)

	bids, _ = view.TopLevels(0)
	require.Empty(t, bids)
}

func TestSpread(t *testing.T) {
	view, err := New(signal.OrderBookSnapshot{Bids: levels("100", "1"), Asks: levels("101", "1")})
	require.NoError(t, err)

	spread, err := view.Spread()
	require.NoError(t, err)
	require.True(t, spread.Value.Equal(decimal.RequireFromString("1.00")), "spread %s", spread.Value)
	require.True(t, spread.Bps.Equal(decimal.RequireFromString("100.00")), "bps %s", spread.Bps)

	mid, err := view.Mid()
	require.NoError(t, err)
	require.Equal(t, "100.5", mid.String())
}

func TestSpreadEmptySide(t *testing.T) {
	view, err := New(signal.OrderBookSnapshot{Bids: levels("100", "1")})
	require.NoError(t, err)

	_, err = view.Spread()
	require.ErrorIs(t, err, ErrNoSpread)
	_, err = view.Mid()
	require.ErrorIs(t, err, ErrNoSpread)
}

func TestSpreadZeroBid(t *testing.T) {
	view, err := New(signal.OrderBookSnapshot{Bids: levels("0", "1"), Asks: levels("1", "1")})
	require.NoError(t, err)

	spread, err := view.Spread()
	require.NoError(t, err)
	require.True(t, spread.Bps.IsZero())
	require.Equal(t, "1", spread.Value.String())
}

func TestNewRejectsMalformedSnapshot(t *testing.T) {
	cases := map[string]signal.OrderBookSnapshot{
		"garbage key":  {Bids: levels("100", "1"), Asks: levels("abc", "1")},
		"negative key": {Bids: levels("-1", "1")},
		"empty key":    {Asks: levels("", "1")},
	}
	for name, snap := range cases {
		t.Run(name, func(t *testing.T) {
			view, err := New(snap)
			require.ErrorIs(t, err, ErrInvalidPrice)
			require.Nil(t, view)
		})
	}
}

func TestNewRejectsDuplicateNumericLevels(t *testing.T) {
	_, err := New(signal.OrderBookSnapshot{Bids: levels("100", "1", "100.0", "2")})
	require.ErrorIs(t, err, ErrDuplicateLevel)
}

func TestNewRejectsNegativeQuantity(t *testing.T) {
	view, err := New(signal.OrderBookSnapshot{Bids: levels("100", "1"), Asks: levels("101", "-3")})
	require.ErrorIs(t, err, ErrInvalidQuantity)
	require.Nil(t, view)

	_, err = New(signal.OrderBookSnapshot{Bids: levels("100", "0")})
	require.NoError(t, err, "zero quantity is a valid, empty level")
}

func TestRender(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 678000, time.UTC)
	view, err := New(signal.OrderBookSnapshot{
		Symbol:    "BTCUSDT",
		Timestamp: signal.Micros(ts.UnixMicro()),
		Bids:      levels("100", "1", "99", "2"),
		Asks:      levels("101", "1", "102", "2"),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, view.Render(&buf, 5, time.UTC))
	out := buf.String()

	require.Contains(t, out, "Symbol: BTCUSDT | Time: 03:04:05.000678")
	require.Contains(t, out, "Spread: $1.00 (100.00 bps)")
	// best ask sits directly above the divider
	divider := strings.Index(out, strings.Repeat("-", 40))
	require.Greater(t, strings.LastIndex(out[:divider], "101.00"), strings.LastIndex(out[:divider], "102.00"))
	require.Less(t, strings.Index(out, fmt.Sprintf("%12.2f", 100.0)), strings.Index(out, fmt.Sprintf("%12.2f", 99.0)))
}
