// Package nats implements a courier.Producer on top of NATS JetStream publish acks.
package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/oagudo/courier/pkg/courier"
)

type streamPublisher interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Producer publishes to JetStream subjects named after the courier topic. The envelope
// id is sent as Nats-Msg-Id so the stream discards duplicates within its window.
type Producer struct {
	js      streamPublisher
	timeout time.Duration
	logger  *zap.Logger
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

// WithAckTimeout bounds the wait for the stream acknowledgment when ctx has no deadline.
// Default is 30 seconds.
func WithAckTimeout(timeout time.Duration) Option {
	return func(p *Producer) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// NewProducer creates a Producer on the JetStream context of nc.
func NewProducer(nc *nats.Conn, opts ...Option) (*Producer, error) {
	if nc == nil {
		return nil, fmt.Errorf("%w: connection is nil", courier.ErrInvalidArgument)
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}
	return newProducer(js, opts...), nil
}

func newProducer(js streamPublisher, opts ...Option) *Producer {
	p := &Producer{
		js:      js,
		timeout: 30 * time.Second,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Channel returns the courier channel backed by p. A publish ack is only sent once
// the stream stored the message on its replicas.
func (p *Producer) Channel() courier.Channel {
	return courier.Channel{Producer: p, Acks: courier.AckAll}
}

// Send publishes msg and waits for the stream acknowledgment.
func (p *Producer) Send(ctx context.Context, msg courier.Message) (courier.DeliveryStatus, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	natsMsg := &nats.Msg{
		Subject: msg.Topic,
		Data:    msg.Value,
		Header:  make(nats.Header, len(msg.Headers)),
	}
	for _, h := range msg.Headers {
		natsMsg.Header.Set(h.Key, string(h.Value))
	}

	ack, err := p.js.PublishMsg(natsMsg, nats.Context(ctx), nats.MsgId(string(msg.Key)))
	if err != nil {
		status := statusOf(err)
		p.logger.Debug("jetstream publish failed", zap.String("subject", msg.Topic), zap.Stringer("status", status), zap.Error(err))
		return status, fmt.Errorf("publishing to %s: %w", msg.Topic, err)
	}

	if ack.Duplicate {
		p.logger.Debug("stream already holds message", zap.String("subject", msg.Topic), zap.String("stream", ack.Stream))
	}
	return courier.Persisted, nil
}

func statusOf(err error) courier.DeliveryStatus {
	switch {
	case errors.Is(err, nats.ErrTimeout), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return courier.PossiblyPersisted
	default:
		return courier.NotPersisted
	}
}
