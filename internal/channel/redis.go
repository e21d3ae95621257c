package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPollInterval = 250 * time.Millisecond

// RedisTransport carries channels over Redis pub/sub.
type RedisTransport struct {
	client redis.UniversalClient
	poll   time.Duration
}

// RedisOption configures a RedisTransport.
type RedisOption func(*RedisTransport)

// WithPollInterval bounds how long a single blocking read waits before re-checking cancellation.
func WithPollInterval(d time.Duration) RedisOption {
	return func(t *RedisTransport) {
		if d > 0 {
			t.poll = d
		}
	}
}

// NewRedisTransport wraps an existing client. The transport owns the client and closes it on Close.
func NewRedisTransport(client redis.UniversalClient, opts ...RedisOption) *RedisTransport {
	t := &RedisTransport{client: client, poll: defaultPollInterval}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr, password string, db int, opts ...RedisOption) (*RedisTransport, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewRedisTransport(client, opts...), nil
}

func (t *RedisTransport) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	ps := t.client.Subscribe(ctx, channels...)
	return &redisSubscription{ps: ps, poll: t.poll}, nil
}

func (t *RedisTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := t.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

func (t *RedisTransport) Close() error { return t.client.Close() }

type redisSubscription struct {
	ps   *redis.PubSub
	poll time.Duration
}

// Receive polls with a short read deadline so cancellation is observed without holding the connection
// in an unbounded wait.
func (s *redisSubscription) Receive(ctx context.Context) (Envelope, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Envelope{}, err
		}
		msg, err := s.ps.ReceiveTimeout(ctx, s.poll)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Envelope{}, ctxErr
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, redis.ErrClosed) {
				return Envelope{}, ErrClosed
			}
			return Envelope{}, err
		}
		switch m := msg.(type) {
		case *redis.Message:
			return Envelope{Type: TypeMessage, Channel: m.Channel, Payload: []byte(m.Payload)}, nil
		case *redis.Subscription:
			return Envelope{Type: m.Kind, Channel: m.Channel, Count: m.Count}, nil
		case *redis.Pong:
			return Envelope{Type: TypePong}, nil
		}
	}
}

func (s *redisSubscription) Subscribe(ctx context.Context, channels ...string) error {
	return s.ps.Subscribe(ctx, channels...)
}

func (s *redisSubscription) Unsubscribe(ctx context.Context, channels ...string) error {
	return s.ps.Unsubscribe(ctx, channels...)
}

func (s *redisSubscription) Close() error { return s.ps.Close() }
