package channel

import (
	"context"
	"sync"

	"stratengine/internal/metrics"
)

const defaultMemoryBuffer = 1024

// MemoryBus is an in-process Transport. Delivery is FIFO per subscription; a subscriber whose buffer is
// full misses the message, matching the at-most-once contract of the network transport.
type MemoryBus struct {
	mu     sync.Mutex
	subs   map[*memorySubscription]struct{}
	buffer int
	closed bool
}

// MemoryOption configures a MemoryBus.
type MemoryOption func(*MemoryBus)

// WithBuffer sets the per-subscription queue length.
func WithBuffer(n int) MemoryOption {
	return func(b *MemoryBus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// NewMemoryBus returns an empty bus.
func NewMemoryBus(opts ...MemoryOption) *MemoryBus {
	b := &MemoryBus{subs: make(map[*memorySubscription]struct{}), buffer: defaultMemoryBuffer}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *MemoryBus) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	s := &memorySubscription{
		bus:      b,
		channels: make(map[string]struct{}),
		queue:    make(chan Envelope, b.buffer),
		done:     make(chan struct{}),
	}
	b.subs[s] = struct{}{}
	s.addLocked(channels)
	return s, nil
}

// Publish delivers payload to every current subscriber of channel. Messages published before a
// subscription exists are never seen by it.
func (b *MemoryBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	for s := range b.subs {
		if _, ok := s.channels[channel]; !ok {
			continue
		}
		msg := make([]byte, len(payload))
		copy(msg, payload)
		s.deliver(Envelope{Type: TypeMessage, Channel: channel, Payload: msg})
	}
	return nil
}

// Close ends every subscription; pending Receive calls return ErrClosed.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for s := range b.subs {
		s.closeLocked()
	}
	return nil
}

// Subscribers returns how many subscriptions are listening on channel.
func (b *MemoryBus) Subscribers(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for s := range b.subs {
		if _, ok := s.channels[channel]; ok {
			n++
		}
	}
	return n
}

// memorySubscription fields other than queue and done are guarded by bus.mu.
type memorySubscription struct {
	bus      *MemoryBus
	channels map[string]struct{}
	queue    chan Envelope
	done     chan struct{}
	closed   bool
}

func (s *memorySubscription) Receive(ctx context.Context) (Envelope, error) {
	// Drain anything already queued before reporting closure.
	select {
	case env := <-s.queue:
		return env, nil
	default:
	}
	select {
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	case <-s.done:
		return Envelope{}, ErrClosed
	case env := <-s.queue:
		return env, nil
	}
}

func (s *memorySubscription) Subscribe(ctx context.Context, channels ...string) error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.addLocked(channels)
	return nil
}

func (s *memorySubscription) Unsubscribe(ctx context.Context, channels ...string) error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if len(channels) == 0 {
		for c := range s.channels {
			channels = append(channels, c)
		}
	}
	for _, c := range channels {
		if _, ok := s.channels[c]; !ok {
			continue
		}
		delete(s.channels, c)
		s.deliver(Envelope{Type: TypeUnsubscribe, Channel: c, Count: len(s.channels)})
	}
	return nil
}

func (s *memorySubscription) Close() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *memorySubscription) addLocked(channels []string) {
	for _, c := range channels {
		if _, ok := s.channels[c]; ok {
			continue
		}
		s.channels[c] = struct{}{}
		s.deliver(Envelope{Type: TypeSubscribe, Channel: c, Count: len(s.channels)})
	}
}

func (s *memorySubscription) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	s.channels = map[string]struct{}{}
	delete(s.bus.subs, s)
	close(s.done)
}

func (s *memorySubscription) deliver(env Envelope) {
	select {
	case s.queue <- env:
	default:
		metrics.DroppedTotal.WithLabelValues("slow_consumer").Inc()
	}
}
