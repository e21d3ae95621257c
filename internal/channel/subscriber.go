package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stratengine/internal/metrics"
	"stratengine/internal/signal"
)

const unsubscribeTimeout = 2 * time.Second

// Event is one decoded market data message. Exactly one of Book and Trade is set, according to Kind.
type Event struct {
	Kind   Kind
	Symbol string
	Book   *signal.OrderBookSnapshot
	Trade  *signal.Trade
}

// Handler consumes events one at a time. A returned error is logged and the loop continues.
type Handler func(ctx context.Context, ev Event) error

// Subscriber multiplexes the channel pairs for a set of symbols onto a single receive loop.
type Subscriber struct {
	transport Transport
	log       zerolog.Logger

	mu       sync.Mutex
	sub      Subscription
	channels map[string]struct{}
}

// NewSubscriber builds a subscriber over transport. Each subscriber gets its own session id in logs.
func NewSubscriber(transport Transport, log zerolog.Logger) *Subscriber {
	return &Subscriber{
		transport: transport,
		log:       log.With().Str("component", "subscriber").Str("session", uuid.NewString()).Logger(),
		channels:  make(map[string]struct{}),
	}
}

// Subscribe adds the order book and trade channels for symbols. Symbols already subscribed are skipped;
// the network is only touched for channels that are new.
func (s *Subscriber) Subscribe(ctx context.Context, symbols ...string) error {
	s.mu.Lock()
	var fresh []string
	for _, c := range ChannelsFor(symbols...) {
		if _, ok := s.channels[c]; !ok {
			fresh = append(fresh, c)
		}
	}
	sub := s.sub
	s.mu.Unlock()
	if len(fresh) == 0 {
		return nil
	}

	if sub == nil {
		created, err := s.transport.Subscribe(ctx, fresh...)
		if err != nil {
			return fmt.Errorf("subscribe %v: %w", fresh, err)
		}
		s.mu.Lock()
		if s.sub != nil {
			// Lost a race with a concurrent Subscribe or Run; fold into the winner.
			s.mu.Unlock()
			_ = created.Close()
			return s.Subscribe(ctx, symbols...)
		}
		s.sub = created
		s.mu.Unlock()
	} else if err := sub.Subscribe(ctx, fresh...); err != nil {
		return fmt.Errorf("subscribe %v: %w", fresh, err)
	}

	s.mu.Lock()
	for _, c := range fresh {
		s.channels[c] = struct{}{}
	}
	s.mu.Unlock()
	s.log.Debug().Strs("channels", fresh).Msg("subscribed")
	return nil
}

// Unsubscribe removes the channels for symbols. Messages for them that are already in flight are dropped.
func (s *Subscriber) Unsubscribe(ctx context.Context, symbols ...string) error {
	s.mu.Lock()
	var gone []string
	for _, c := range ChannelsFor(symbols...) {
		if _, ok := s.channels[c]; ok {
			delete(s.channels, c)
			gone = append(gone, c)
		}
	}
	sub := s.sub
	s.mu.Unlock()
	if len(gone) == 0 || sub == nil {
		return nil
	}
	if err := sub.Unsubscribe(ctx, gone...); err != nil {
		return fmt.Errorf("unsubscribe %v: %w", gone, err)
	}
	s.log.Debug().Strs("channels", gone).Msg("unsubscribed")
	return nil
}

// Channels lists the active channel names in sorted order.
func (s *Subscriber) Channels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.channels))
	for c := range s.channels {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Run blocks on the receive point and hands each decoded event to h, sequentially. Cancelling ctx
// unsubscribes, closes the subscription and returns nil. A transport failure returns a *DisconnectError;
// there is no automatic retry.
func (s *Subscriber) Run(ctx context.Context, h Handler) error {
	sub, err := s.ensure(ctx)
	if err != nil {
		return err
	}
	defer s.shutdown(sub)

	for {
		env, err := sub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn().Err(err).Msg("receive failed")
			return &DisconnectError{Err: err}
		}
		if env.Type != TypeMessage {
			s.log.Trace().Str("type", env.Type).Str("channel", env.Channel).Int("count", env.Count).Msg("control message")
			continue
		}
		ev, ok := s.decode(env)
		if !ok {
			continue
		}
		if err := h(ctx, ev); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn().Err(err).Str("channel", env.Channel).Msg("handler failed")
		}
	}
}

func (s *Subscriber) ensure(ctx context.Context) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		return s.sub, nil
	}
	sub, err := s.transport.Subscribe(ctx)
	if err != nil {
		return nil, &DisconnectError{Err: err}
	}
	s.sub = sub
	return sub, nil
}

func (s *Subscriber) shutdown(sub Subscription) {
	s.mu.Lock()
	channels := make([]string, 0, len(s.channels))
	for c := range s.channels {
		channels = append(channels, c)
	}
	s.channels = make(map[string]struct{})
	s.sub = nil
	s.mu.Unlock()

	if len(channels) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), unsubscribeTimeout)
		if err := sub.Unsubscribe(ctx, channels...); err != nil {
			s.log.Debug().Err(err).Msg("unsubscribe on shutdown")
		}
		cancel()
	}
	if err := sub.Close(); err != nil {
		s.log.Debug().Err(err).Msg("close subscription")
	}
	s.log.Info().Int("channels", len(channels)).Msg("subscriber stopped")
}

func (s *Subscriber) active(channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.channels[channel]
	return ok
}

func (s *Subscriber) decode(env Envelope) (Event, bool) {
	kind, symbol, ok := ParseChannel(env.Channel)
	if !ok {
		metrics.DroppedTotal.WithLabelValues("unknown_channel").Inc()
		return Event{}, false
	}
	if !s.active(env.Channel) {
		metrics.DroppedTotal.WithLabelValues("unsubscribed").Inc()
		return Event{}, false
	}
	ev, err := DecodeEvent(kind, symbol, env.Payload)
	if err != nil {
		metrics.DroppedTotal.WithLabelValues("decode").Inc()
		s.log.Warn().Err(err).Str("channel", env.Channel).Msg("dropping undecodable payload")
		return Event{}, false
	}
	metrics.MarketDataTotal.WithLabelValues(string(kind), symbol).Inc()
	return ev, true
}

// DecodeEvent parses a payload by field name. A missing symbol is taken from the channel.
func DecodeEvent(kind Kind, symbol string, payload []byte) (Event, error) {
	ev := Event{Kind: kind, Symbol: symbol}
	switch kind {
	case KindOrderBook:
		var snap signal.OrderBookSnapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			return Event{}, fmt.Errorf("decode order book: %w", err)
		}
		if snap.Symbol == "" {
			snap.Symbol = symbol
		}
		ev.Book = &snap
	case KindTrade:
		var tr signal.Trade
		if err := json.Unmarshal(payload, &tr); err != nil {
			return Event{}, fmt.Errorf("decode trade: %w", err)
		}
		if tr.Symbol == "" {
			tr.Symbol = symbol
		}
		ev.Trade = &tr
	default:
		return Event{}, fmt.Errorf("decode: unknown kind %q", kind)
	}
	return ev, nil
}
