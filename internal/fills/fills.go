// Package fills consumes execution feedback (fills and position snapshots) from NATS.
package fills

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"stratengine/internal/metrics"
	"stratengine/internal/signal"
)

// Sink receives decoded feedback. host.Engine implements it.
type Sink interface {
	HandleFill(f signal.Fill) error
	HandlePosition(p signal.Position) error
}

// Tee hands every fill and position to each sink in order and joins their errors.
type Tee []Sink

func (t Tee) HandleFill(f signal.Fill) error {
	var errs []error
	for _, s := range t {
		if err := s.HandleFill(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t Tee) HandlePosition(p signal.Position) error {
	var errs []error
	for _, s := range t {
		if err := s.HandlePosition(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subjects names the NATS subjects to consume. An empty subject is skipped.
type Subjects struct {
	Fills     string `yaml:"fills"`
	Positions string `yaml:"positions"`
}

// Connect dials url with reconnect handling logged through log.
func Connect(url, name string, log zerolog.Logger) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return conn, nil
}

// Listener feeds NATS messages to a Sink one at a time.
type Listener struct {
	conn     *nats.Conn
	subjects Subjects
	sink     Sink
	log      zerolog.Logger
	buffer   int
}

func NewListener(conn *nats.Conn, subjects Subjects, sink Sink, log zerolog.Logger) *Listener {
	return &Listener{
		conn:     conn,
		subjects: subjects,
		sink:     sink,
		log:      log.With().Str("component", "fills").Logger(),
		buffer:   1024,
	}
}

// Run subscribes and processes messages until ctx is done, then unsubscribes and returns nil.
func (l *Listener) Run(ctx context.Context) error {
	msgs := make(chan *nats.Msg, l.buffer)
	var subs []*nats.Subscription
	defer func() {
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
	}()
	for _, subject := range []string{l.subjects.Fills, l.subjects.Positions} {
		if subject == "" {
			continue
		}
		s, err := l.conn.ChanSubscribe(subject, msgs)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		subs = append(subs, s)
		l.log.Info().Str("subject", subject).Msg("subscribed")
	}
	if len(subs) == 0 {
		return errors.New("fills: no subjects configured")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-msgs:
			if err := l.Handle(msg.Subject, msg.Data); err != nil {
				l.log.Warn().Err(err).Str("subject", msg.Subject).Msg("feedback dropped")
			}
		}
	}
}

// Handle decodes one message according to its subject and forwards it.
func (l *Listener) Handle(subject string, data []byte) error {
	switch subject {
	case l.subjects.Fills:
		f, err := DecodeFill(data)
		if err != nil {
			metrics.DroppedTotal.WithLabelValues("fill_decode").Inc()
			return err
		}
		return l.sink.HandleFill(f)
	case l.subjects.Positions:
		p, err := DecodePosition(data)
		if err != nil {
			metrics.DroppedTotal.WithLabelValues("position_decode").Inc()
			return err
		}
		return l.sink.HandlePosition(p)
	default:
		return fmt.Errorf("fills: unexpected subject %q", subject)
	}
}

// DecodeFill parses a fill and requires a symbol and a positive quantity.
func DecodeFill(data []byte) (signal.Fill, error) {
	var f signal.Fill
	if err := json.Unmarshal(data, &f); err != nil {
		return signal.Fill{}, fmt.Errorf("decode fill: %w", err)
	}
	if f.Symbol == "" || f.Quantity <= 0 {
		return signal.Fill{}, fmt.Errorf("decode fill %q: missing symbol or quantity", f.FillID)
	}
	return f, nil
}

// DecodePosition parses a position snapshot and requires a symbol.
func DecodePosition(data []byte) (signal.Position, error) {
	var p signal.Position
	if err := json.Unmarshal(data, &p); err != nil {
		return signal.Position{}, fmt.Errorf("decode position: %w", err)
	}
	if p.Symbol == "" {
		return signal.Position{}, errors.New("decode position: missing symbol")
	}
	return p, nil
}
