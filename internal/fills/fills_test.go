package fills

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"stratengine/internal/signal"
)

type captureSink struct {
	fills     []signal.Fill
	positions []signal.Position
}

func (c *captureSink) HandleFill(f signal.Fill) error {
	c.fills = append(c.fills, f)
	return nil
}

func (c *captureSink) HandlePosition(p signal.Position) error {
	c.positions = append(c.positions, p)
	return nil
}

func TestHandleRoutesBySubject(t *testing.T) {
	sink := &captureSink{}
	l := NewListener(nil, Subjects{Fills: "fills", Positions: "positions"}, sink, zerolog.Nop())

	require.NoError(t, l.Handle("fills", []byte(`{"fill_id":"f1","order_id":"o1","symbol":"BTCUSDT","side":"buy","price":100,"quantity":1,"strategy":"mom","timestamp":"2024-01-01T00:00:00Z"}`)))
	require.NoError(t, l.Handle("positions", []byte(`{"symbol":"BTCUSDT","side":"long","quantity":1,"unrealized_pnl":2,"realized_pnl":3,"strategy":"mom"}`)))

	require.Len(t, sink.fills, 1)
	require.Equal(t, signal.SideBuy, sink.fills[0].Side)
	require.Equal(t, "mom", sink.fills[0].Strategy)
	require.Len(t, sink.positions, 1)
	require.Equal(t, 5.0, sink.positions[0].TotalPnL())

	require.Error(t, l.Handle("other", []byte(`{}`)))
}

func TestDecodeRejectsIncompleteRecords(t *testing.T) {
	_, err := DecodeFill([]byte(`{"fill_id":"f1","quantity":1}`))
	require.Error(t, err)
	_, err = DecodeFill([]byte(`{"symbol":"BTCUSDT","quantity":0}`))
	require.Error(t, err)
	_, err = DecodeFill([]byte(`not json`))
	require.Error(t, err)
	_, err = DecodePosition([]byte(`{"quantity":1}`))
	require.Error(t, err)
}

type failingSink struct{ captureSink }

func (f *failingSink) HandleFill(fill signal.Fill) error {
	_ = f.captureSink.HandleFill(fill)
	return errors.New("unknown strategy")
}

func TestTeeReachesEverySink(t *testing.T) {
	first := &failingSink{}
	second := &captureSink{}
	tee := Tee{first, second}

	err := tee.HandleFill(signal.Fill{Symbol: "BTCUSDT", Quantity: 1})
	require.ErrorContains(t, err, "unknown strategy")
	require.Len(t, first.fills, 1)
	require.Len(t, second.fills, 1, "a failing sink must not hide the fill from later sinks")

	require.NoError(t, tee.HandlePosition(signal.Position{Symbol: "BTCUSDT"}))
	require.Len(t, first.positions, 1)
	require.Len(t, second.positions, 1)
}
