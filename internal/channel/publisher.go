package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"stratengine/internal/signal"
)

var errNoSymbol = errors.New("publish: empty symbol")

// Publisher encodes snapshots and trades onto their channels.
type Publisher struct {
	transport Transport
}

func NewPublisher(t Transport) *Publisher { return &Publisher{transport: t} }

// PublishBook sends snap on orderbook:{symbol}.
func (p *Publisher) PublishBook(ctx context.Context, snap signal.OrderBookSnapshot) error {
	if snap.Symbol == "" {
		return errNoSymbol
	}
	return p.publish(ctx, OrderBookChannel(snap.Symbol), snap)
}

// PublishTrade sends tr on trades:{symbol}.
func (p *Publisher) PublishTrade(ctx context.Context, tr signal.Trade) error {
	if tr.Symbol == "" {
		return errNoSymbol
	}
	return p.publish(ctx, TradeChannel(tr.Symbol), tr)
}

// PublishEvent sends whichever payload ev carries.
func (p *Publisher) PublishEvent(ctx context.Context, ev Event) error {
	switch {
	case ev.Book != nil:
		return p.PublishBook(ctx, *ev.Book)
	case ev.Trade != nil:
		return p.PublishTrade(ctx, *ev.Trade)
	default:
		return fmt.Errorf("publish: empty %s event", ev.Kind)
	}
}

func (p *Publisher) publish(ctx context.Context, channel string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", channel, err)
	}
	return p.transport.Publish(ctx, channel, payload)
}
