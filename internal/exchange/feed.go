// Package exchange hosts venue connectors that produce order book snapshots and trade prints.
package exchange

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stratengine/internal/channel"
	"stratengine/internal/metrics"
	"stratengine/internal/signal"
)

const (
	// ProviderStub emits seeded synthetic books and trades (useful for tests/offline work).
	ProviderStub = "stub"
	// ProviderBinance streams live trades and partial depth from Binance public websockets.
	ProviderBinance = "binance"
)

const (
	defaultStubInterval = 500 * time.Millisecond
	defaultDepth        = 5
	defaultBinanceURL   = "wss://stream.binance.com:9443/stream"
)

// Feed represents a pluggable market data stream implementation.
type Feed struct {
	provider     string
	symbols      []string
	log          zerolog.Logger
	stubInterval time.Duration
	stubSeed     int64
	depth        int
	binanceURL   string
	mu           sync.RWMutex
}

// Option configures Feed construction parameters.
type Option func(*Feed)

// WithStubInterval overrides the synthetic feed cadence.
func WithStubInterval(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.stubInterval = d
		}
	}
}

// WithStubSeed fixes the synthetic random walk.
func WithStubSeed(seed int64) Option {
	return func(f *Feed) { f.stubSeed = seed }
}

// WithDepth sets the number of book levels per side. Binance accepts 5, 10 or 20.
func WithDepth(levels int) Option {
	return func(f *Feed) {
		if levels > 0 {
			f.depth = levels
		}
	}
}

// WithBinanceURL overrides the combined-stream endpoint.
func WithBinanceURL(url string) Option {
	return func(f *Feed) {
		if url != "" {
			f.binanceURL = strings.TrimSuffix(url, "/")
		}
	}
}

// NewFeed constructs a feed backed by the requested provider.
func NewFeed(provider string, symbols []string, log zerolog.Logger, opts ...Option) *Feed {
	if provider == "" {
		provider = ProviderStub
	}
	f := &Feed{
		provider:     strings.ToLower(provider),
		log:          log.With().Str("provider", strings.ToLower(provider)).Logger(),
		stubInterval: defaultStubInterval,
		stubSeed:     1,
		depth:        defaultDepth,
		binanceURL:   defaultBinanceURL,
	}
	f.setSymbols(symbols)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SetSymbols replaces the tracked symbol list (deduplicated, uppercased, sorted for determinism).
func (f *Feed) SetSymbols(symbols []string) {
	f.setSymbols(symbols)
}

// Symbols returns the tracked symbols.
func (f *Feed) Symbols() []string { return f.snapshotSymbols() }

func (f *Feed) setSymbols(symbols []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	unique := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		unique[sym] = struct{}{}
	}
	f.symbols = make([]string, 0, len(unique))
	for sym := range unique {
		f.symbols = append(f.symbols, sym)
	}
	sort.Strings(f.symbols)
}

func (f *Feed) snapshotSymbols() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, len(f.symbols))
	copy(out, f.symbols)
	return out
}

// Run pushes events onto out until the context is canceled.
func (f *Feed) Run(ctx context.Context, out chan<- channel.Event) error {
	switch f.provider {
	case ProviderBinance:
		return f.runBinance(ctx, out)
	default:
		return f.runStub(ctx, out)
	}
}

func (f *Feed) emit(ctx context.Context, out chan<- channel.Event, ev channel.Event) error {
	select {
	case out <- ev:
		metrics.FeedEventsTotal.WithLabelValues(f.provider, string(ev.Kind), ev.Symbol).Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Feed) runStub(ctx context.Context, out chan<- channel.Event) error {
	ticker := time.NewTicker(f.stubInterval)
	defer ticker.Stop()

	rng := rand.New(rand.NewSource(f.stubSeed))
	prices := make(map[string]float64)
	var tradeID uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ts := <-ticker.C:
			for _, s := range f.snapshotSymbols() {
				px, ok := prices[s]
				if !ok {
					px = 100
				}
				px *= 1 + (rng.Float64()-0.5)*0.01
				prices[s] = px

				if err := f.emit(ctx, out, stubBook(s, px, f.depth, ts)); err != nil {
					return err
				}
				tradeID++
				tr := &signal.Trade{
					Symbol:       s,
					TradeID:      tradeID,
					Price:        px,
					Quantity:     0.1 + rng.Float64(),
					Timestamp:    signal.Millis(ts.UnixMilli()),
					IsBuyerMaker: rng.Intn(2) == 0,
				}
				if err := f.emit(ctx, out, channel.Event{Kind: channel.KindTrade, Symbol: s, Trade: tr}); err != nil {
					return err
				}
			}
		}
	}
}

// stubBook builds depth levels a tick apart around mid.
func stubBook(symbol string, mid float64, depth int, ts time.Time) channel.Event {
	snap := &signal.OrderBookSnapshot{
		Symbol:    symbol,
		Timestamp: signal.Micros(ts.UnixMicro()),
		Bids:      make(map[string]decimal.Decimal, depth),
		Asks:      make(map[string]decimal.Decimal, depth),
	}
	center := decimal.NewFromFloat(mid).Round(2)
	step := decimal.New(1, -2)
	for i := 1; i <= depth; i++ {
		off := step.Mul(decimal.NewFromInt(int64(i)))
		qty := decimal.NewFromInt(int64(i))
		snap.Bids[center.Sub(off).StringFixed(2)] = qty
		snap.Asks[center.Add(off).StringFixed(2)] = qty
	}
	return channel.Event{Kind: channel.KindOrderBook, Symbol: symbol, Book: snap}
}
