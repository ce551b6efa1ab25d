// Package rabbitmq implements a courier.Producer on top of rabbitmq/amqp091-go
// publisher confirms.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/oagudo/courier/pkg/courier"
)

var errNoConfirmation = errors.New("channel is not in confirm mode")

type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

type confirmChannel interface {
	publish(ctx context.Context, exchange, key string, msg amqp.Publishing) (confirmation, error)
	Close() error
}

type amqpChannel struct {
	ch *amqp.Channel
}

func (c amqpChannel) publish(ctx context.Context, exchange, key string, msg amqp.Publishing) (confirmation, error) {
	dc, err := c.ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, msg)
	if err != nil {
		return nil, err
	}
	if dc == nil {
		return nil, errNoConfirmation
	}
	return dc, nil
}

func (c amqpChannel) Close() error {
	return c.ch.Close()
}

// Producer publishes to an exchange with the courier topic as routing key and waits
// for the broker confirmation. It is safe for concurrent use.
type Producer struct {
	mu       sync.Mutex
	channel  confirmChannel
	exchange string
	timeout  time.Duration
	logger   *zap.Logger
}

// Option configures a Producer.
type Option func(*Producer)

// WithLogger sets the logger. Default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Producer) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithConfirmTimeout bounds the wait for a publisher confirmation. Default is 30 seconds.
func WithConfirmTimeout(timeout time.Duration) Option {
	return func(p *Producer) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// NewProducer opens a confirm-mode channel on conn.
func NewProducer(conn *amqp.Connection, exchange string, opts ...Option) (*Producer, error) {
	if conn == nil {
		return nil, fmt.Errorf("%w: connection is nil", courier.ErrInvalidArgument)
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("opening channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("enabling publisher confirms: %w", err)
	}

	return newProducer(amqpChannel{ch: ch}, exchange, opts...), nil
}

func newProducer(ch confirmChannel, exchange string, opts ...Option) *Producer {
	p := &Producer{
		channel:  ch,
		exchange: exchange,
		timeout:  30 * time.Second,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Channel returns the courier channel backed by p. Confirms are only sent once the
// message is routed and persisted, which is an AckAll guarantee.
func (p *Producer) Channel() courier.Channel {
	return courier.Channel{Producer: p, Acks: courier.AckAll}
}

// Send publishes msg as a persistent message and waits for the confirmation.
func (p *Producer) Send(ctx context.Context, msg courier.Message) (courier.DeliveryStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.mu.Lock()
	confirm, err := p.channel.publish(ctx, p.exchange, msg.Topic, toPublishing(msg))
	p.mu.Unlock()
	if err != nil {
		return courier.NotPersisted, fmt.Errorf("publishing to %s/%s: %w", p.exchange, msg.Topic, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		p.logger.Debug("confirmation not received", zap.String("topic", msg.Topic), zap.Error(err))
		return courier.PossiblyPersisted, fmt.Errorf("waiting for confirmation on %s/%s: %w", p.exchange, msg.Topic, err)
	}
	if !acked {
		return courier.NotPersisted, fmt.Errorf("broker nacked message on %s/%s", p.exchange, msg.Topic)
	}
	return courier.Persisted, nil
}

// Close closes the channel. The connection stays open.
func (p *Producer) Close() error {
	return p.channel.Close()
}

func toPublishing(msg courier.Message) amqp.Publishing {
	headers := make(amqp.Table, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}

	pub := amqp.Publishing{
		Headers:      headers,
		DeliveryMode: amqp.Persistent,
		MessageId:    string(msg.Key),
		Body:         msg.Value,
	}
	if contentType, ok := courier.HeaderValue(msg.Headers, courier.HeaderDataContentType); ok {
		pub.ContentType = contentType
	}
	if eventType, ok := courier.HeaderValue(msg.Headers, courier.HeaderType); ok {
		pub.Type = eventType
	}
	if ts, ok := courier.HeaderValue(msg.Headers, courier.HeaderTime); ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			pub.Timestamp = t
		}
	}
	return pub
}
