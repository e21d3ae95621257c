// Package channel implements the market data pub/sub contract: channel naming, payload decoding and the
// cancellable subscriber loop over a pluggable transport.
package channel

import "strings"

// Kind identifies the payload carried by a channel.
type Kind string

const (
	KindOrderBook Kind = "orderbook"
	KindTrade     Kind = "trades"
)

const sep = ":"

// OrderBookChannel returns orderbook:{symbol}.
func OrderBookChannel(symbol string) string { return string(KindOrderBook) + sep + symbol }

// TradeChannel returns trades:{symbol}.
func TradeChannel(symbol string) string { return string(KindTrade) + sep + symbol }

// ChannelsFor returns the channel pair for each symbol, order book first.
func ChannelsFor(symbols ...string) []string {
	out := make([]string, 0, 2*len(symbols))
	for _, s := range symbols {
		out = append(out, OrderBookChannel(s), TradeChannel(s))
	}
	return out
}

// ParseChannel splits a channel name into its kind and symbol. ok is false for anything that is not an
// order book or trade channel with a non-empty symbol.
func ParseChannel(name string) (kind Kind, symbol string, ok bool) {
	prefix, symbol, found := strings.Cut(name, sep)
	if !found || symbol == "" {
		return "", "", false
	}
	switch Kind(prefix) {
	case KindOrderBook, KindTrade:
		return Kind(prefix), symbol, true
	default:
		return "", "", false
	}
}
