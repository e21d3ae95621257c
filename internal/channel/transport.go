package channel

import (
	"context"
	"errors"
	"fmt"
)

// Envelope types. Only TypeMessage carries a payload; the rest are control traffic.
const (
	TypeMessage     = "message"
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePong        = "pong"
)

var (
	// ErrDisconnected marks a transport failure surfaced by the subscriber loop. Callers decide whether to resubscribe.
	ErrDisconnected = errors.New("channel disconnected")
	// ErrClosed is returned by Receive on a closed subscription.
	ErrClosed = errors.New("subscription closed")
)

// Envelope is one inbound transport message.
type Envelope struct {
	Type    string
	Channel string
	Payload []byte
	// Count is the number of active channels reported by subscribe/unsubscribe acks.
	Count int
}

// Transport carries payloads between publishers and subscribers.
type Transport interface {
	Subscribe(ctx context.Context, channels ...string) (Subscription, error)
	Publish(ctx context.Context, channel string, payload []byte) error
	Close() error
}

// Subscription is a single receive point over a changeable set of channels.
type Subscription interface {
	// Receive blocks until the next envelope or until ctx is done, in which case it returns ctx.Err().
	Receive(ctx context.Context) (Envelope, error)
	Subscribe(ctx context.Context, channels ...string) error
	Unsubscribe(ctx context.Context, channels ...string) error
	Close() error
}

// DisconnectError wraps the transport failure that ended a subscriber loop.
type DisconnectError struct {
	Err error
}

func (e *DisconnectError) Error() string { return fmt.Sprintf("%v: %v", ErrDisconnected, e.Err) }

// Unwrap exposes both ErrDisconnected and the underlying transport error to errors.Is.
func (e *DisconnectError) Unwrap() []error { return []error{ErrDisconnected, e.Err} }
