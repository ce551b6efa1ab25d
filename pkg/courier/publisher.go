package courier

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/oagudo/courier/pkg/outbox"
)

// OutboxStore persists a record that could not be confirmed by the broker.
// It is satisfied by *outbox.Store.
type OutboxStore interface {
	SaveMessage(ctx context.Context, exec outbox.Executor, rec *outbox.Record) (bool, error)
}

// Publisher sends envelopes through the configured channels and interprets the
// broker acknowledgment. It is safe for concurrent use.
type Publisher struct {
	channels Channels
	store    OutboxStore
	logger   *zap.Logger
	metrics  publishMetrics
}

// NewPublisher creates a Publisher. store may be nil when PublishWithOutboxFallback is never called.
func NewPublisher(channels Channels, store OutboxStore, opts ...Option) (*Publisher, error) {
	o := applyOptions(opts)

	metrics, err := newPublishMetrics(o.meterProvider)
	if err != nil {
		return nil, err
	}

	return &Publisher{
		channels: channels,
		store:    store,
		logger:   o.logger,
		metrics:  metrics,
	}, nil
}

type prepared struct {
	channel Channel
	meta    envelopeMeta
	msg     Message
}

func (p *Publisher) prepare(ctx context.Context, sel ChannelSelector, env Outgoing) (prepared, error) {
	if env == nil || env.isNil() {
		return prepared{}, fmt.Errorf("%w: envelope is nil", ErrInvalidArgument)
	}
	if sel.Topic == "" {
		return prepared{}, fmt.Errorf("%w: topic is empty", ErrInvalidArgument)
	}

	value, err := encodePayload(env.payload())
	if err != nil {
		return prepared{}, err
	}

	ch, err := p.channels.resolve(sel.Kind)
	if err != nil {
		return prepared{}, err
	}

	meta := env.meta()
	meta.traceID = TraceIDFromContext(ctx)

	return prepared{
		channel: ch,
		meta:    meta,
		msg: Message{
			Topic:   sel.Topic,
			Key:     []byte(meta.id),
			Value:   value,
			Headers: meta.headers(),
		},
	}, nil
}

func (p *Publisher) send(ctx context.Context, sel ChannelSelector, pr prepared) (DeliveryStatus, error) {
	native, err := pr.channel.Producer.Send(ctx, pr.msg)
	if !native.IsValid() {
		p.logger.Warn("producer returned an invalid delivery status, assuming not persisted",
			zap.String("envelope_id", pr.meta.id),
			zap.String("topic", sel.Topic))
		native = NotPersisted
	}
	if err != nil {
		return native, fmt.Errorf("%w: %s channel, topic %s: %w", ErrBrokerSend, sel.Kind, sel.Topic, err)
	}
	return native, nil
}

// Publish sends env to the selected channel with the envelope id as key.
//
// It returns Persisted when the native status is durable under the channel's
// acknowledgment level, else the native status. A send failure is returned wrapped
// in ErrBrokerSend together with the status the producer could infer.
func (p *Publisher) Publish(ctx context.Context, sel ChannelSelector, env Outgoing) (DeliveryStatus, error) {
	pr, err := p.prepare(ctx, sel, env)
	if err != nil {
		return NotPersisted, err
	}

	logger := p.logger.With(
		zap.String("envelope_id", pr.meta.id),
		zap.String("topic", sel.Topic),
		zap.Stringer("channel", sel.Kind))

	native, err := p.send(ctx, sel, pr)
	if err != nil {
		logger.Warn("broker send failed", zap.Stringer("status", native), zap.Error(err))
		p.metrics.recordStatus(ctx, sel.Kind, native)
		return native, err
	}

	status := native
	if pr.channel.Acks.isDurable(native) {
		status = Persisted
	}

	logger.Debug("message published",
		zap.Stringer("native_status", native),
		zap.Stringer("status", status),
		zap.Stringer("acks", pr.channel.Acks))
	p.metrics.recordStatus(ctx, sel.Kind, status)

	return status, nil
}

// PublishWithOutboxFallback publishes env like Publish and, when the send fails or the
// acknowledgment is not durable, stores the message in the outbox through exec with the
// same id.
//
// It returns Persisted when the broker durably stored the message or the outbox insert
// affected exactly one row, else NotPersisted. A fatal storage error is returned together
// with NotPersisted. Serialization errors are returned before anything is sent or stored.
func (p *Publisher) PublishWithOutboxFallback(ctx context.Context, sel ChannelSelector, env Outgoing, exec outbox.Executor) (DeliveryStatus, error) {
	if p.store == nil {
		return NotPersisted, fmt.Errorf("%w: outbox store is not configured", ErrInvalidArgument)
	}
	if exec == nil {
		return NotPersisted, fmt.Errorf("%w: outbox executor is nil", ErrInvalidArgument)
	}

	pr, err := p.prepare(ctx, sel, env)
	if err != nil {
		return NotPersisted, err
	}

	logger := p.logger.With(
		zap.String("envelope_id", pr.meta.id),
		zap.String("topic", sel.Topic),
		zap.Stringer("channel", sel.Kind))

	native, sendErr := p.send(ctx, sel, pr)
	if sendErr == nil && pr.channel.Acks.isDurable(native) {
		logger.Debug("message published", zap.Stringer("native_status", native))
		p.metrics.recordStatus(ctx, sel.Kind, Persisted)
		return Persisted, nil
	}

	logger.Warn("broker did not confirm message, falling back to outbox",
		zap.Stringer("native_status", native),
		zap.Stringer("acks", pr.channel.Acks),
		zap.Error(sendErr))

	stored, err := p.store.SaveMessage(ctx, exec, pr.record(sel.Topic))
	p.metrics.recordFallback(ctx, sel.Kind, stored)
	if err != nil {
		logger.Error("outbox fallback failed", zap.Error(err))
		p.metrics.recordStatus(ctx, sel.Kind, NotPersisted)
		return NotPersisted, fmt.Errorf("storing message %s in outbox: %w", pr.meta.id, errors.Join(err, sendErr))
	}

	status := NotPersisted
	if stored {
		status = Persisted
	}
	logger.Debug("message stored in outbox", zap.Bool("stored", stored), zap.Stringer("status", status))
	p.metrics.recordStatus(ctx, sel.Kind, status)

	return status, nil
}

func (pr prepared) record(topic string) *outbox.Record {
	return &outbox.Record{
		ID:              pr.meta.id,
		Topic:           topic,
		Payload:         string(pr.msg.Value),
		SpecVersion:     pr.meta.specVersion,
		Source:          pr.meta.source,
		Type:            pr.meta.eventType,
		Time:            pr.meta.time,
		DataContentType: string(pr.meta.contentType),
		TraceID:         pr.meta.traceID,
		Status:          outbox.StatusPending,
	}
}
