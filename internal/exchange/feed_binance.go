package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"stratengine/internal/channel"
	"stratengine/internal/signal"
)

type binanceEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type binanceTrade struct {
	Symbol       string `json:"s"`
	TradeID      uint64 `json:"t"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

type binanceDepth struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

func (f *Feed) binanceStreams() []string {
	symbols := f.snapshotSymbols()
	streams := make([]string, 0, 2*len(symbols))
	for _, sym := range symbols {
		lower := strings.ToLower(sym)
		streams = append(streams, lower+"@trade", fmt.Sprintf("%s@depth%d@100ms", lower, f.depth))
	}
	return streams
}

func (f *Feed) runBinance(ctx context.Context, out chan<- channel.Event) error {
	streams := f.binanceStreams()
	if len(streams) == 0 {
		return fmt.Errorf("binance feed requires at least one symbol")
	}

	url := fmt.Sprintf("%s?streams=%s", f.binanceURL, strings.Join(streams, "/"))
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := f.consumeBinanceStream(ctx, url, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Warn().Err(err).Dur("backoff", backoff).Msg("binance feed disconnected, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
			continue
		}
		return nil
	}
}

func (f *Feed) consumeBinanceStream(ctx context.Context, url string, out chan<- channel.Event) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	f.log.Info().Strs("symbols", f.snapshotSymbols()).Msg("connected market data feed")

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					f.log.Warn().Err(err).Msg("binance ping failed")
					return
				}
			case <-pingCtx.Done():
				// Unblock ReadMessage on cancellation.
				_ = conn.Close()
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		ev, err := decodeBinance(message, time.Now())
		if err != nil {
			f.log.Warn().Err(err).Msg("failed to decode binance message")
			continue
		}
		if err := f.emit(ctx, out, ev); err != nil {
			return err
		}
	}
}

// decodeBinance turns one combined-stream frame into an event. Depth frames carry no timestamp, so
// received is used.
func decodeBinance(message []byte, received time.Time) (channel.Event, error) {
	var env binanceEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		return channel.Event{}, err
	}
	symbol := parseBinanceSymbol(env.Stream)
	if symbol == "" {
		return channel.Event{}, fmt.Errorf("binance: empty stream name")
	}

	switch {
	case strings.Contains(env.Stream, "@depth"):
		var d binanceDepth
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return channel.Event{}, fmt.Errorf("binance depth: %w", err)
		}
		bids, err := depthSide(d.Bids)
		if err != nil {
			return channel.Event{}, err
		}
		asks, err := depthSide(d.Asks)
		if err != nil {
			return channel.Event{}, err
		}
		snap := &signal.OrderBookSnapshot{
			Symbol:    symbol,
			Timestamp: signal.Micros(received.UnixMicro()),
			Bids:      bids,
			Asks:      asks,
		}
		return channel.Event{Kind: channel.KindOrderBook, Symbol: symbol, Book: snap}, nil

	case strings.HasSuffix(env.Stream, "@trade"):
		var t binanceTrade
		if err := json.Unmarshal(env.Data, &t); err != nil {
			return channel.Event{}, fmt.Errorf("binance trade: %w", err)
		}
		px, err := strconv.ParseFloat(t.Price, 64)
		if err != nil {
			return channel.Event{}, fmt.Errorf("invalid price from binance: %w", err)
		}
		qty, err := strconv.ParseFloat(t.Quantity, 64)
		if err != nil {
			return channel.Event{}, fmt.Errorf("invalid quantity from binance: %w", err)
		}
		tr := &signal.Trade{
			Symbol:       symbol,
			TradeID:      t.TradeID,
			Price:        px,
			Quantity:     qty,
			Timestamp:    signal.Millis(t.TradeTime),
			IsBuyerMaker: t.IsBuyerMaker,
		}
		return channel.Event{Kind: channel.KindTrade, Symbol: symbol, Trade: tr}, nil

	default:
		return channel.Event{}, fmt.Errorf("binance: unsupported stream %q", env.Stream)
	}
}

// depthSide keeps the venue's price strings as keys and drops empty levels.
func depthSide(levels [][2]string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(levels))
	for _, lvl := range levels {
		qty, err := decimal.NewFromString(lvl[1])
		if err != nil {
			return nil, fmt.Errorf("binance depth quantity %q: %w", lvl[1], err)
		}
		if qty.IsZero() {
			continue
		}
		out[lvl[0]] = qty
	}
	return out, nil
}

func parseBinanceSymbol(stream string) string {
	parts := strings.Split(stream, "@")
	if len(parts) == 0 || parts[0] == "" {
		return strings.ToUpper(stream)
	}
	return strings.ToUpper(parts[0])
}
