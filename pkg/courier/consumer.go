package courier

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Delivery is one message received by a SubscriptionClient.
type Delivery struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   []Header
}

// SubscriptionClient is a broker reader bound to a fixed set of topics.
type SubscriptionClient interface {
	// Poll blocks until one message is available or ctx is done.
	Poll(ctx context.Context) (Delivery, error)
	// Commit acknowledges d so that it is not delivered again to the group.
	Commit(ctx context.Context, d Delivery) error
	// Rewind makes the next Poll deliver d again.
	Rewind(ctx context.Context, d Delivery) error
	Close() error
}

// Subscriber builds subscription clients from a pre-configured broker client.
type Subscriber interface {
	Subscribe(topics []string) (SubscriptionClient, error)
}

// SubscriberChannels is the closed registry of consume channels, one per ChannelKind.
type SubscriberChannels struct {
	Queue Subscriber
	Event Subscriber
}

func (c SubscriberChannels) resolve(kind ChannelKind) (Subscriber, error) {
	var s Subscriber
	switch kind {
	case ChannelQueue:
		s = c.Queue
	case ChannelEvent:
		s = c.Event
	default:
		return nil, fmt.Errorf("%w: unknown channel kind %s", ErrChannelNotConfigured, kind)
	}

	if s == nil {
		return nil, fmt.Errorf("%w: no subscriber for %s channel", ErrChannelNotConfigured, kind)
	}
	return s, nil
}

// Consumer hands out subscriptions over the configured channels.
type Consumer struct {
	channels SubscriberChannels
	logger   *zap.Logger
	metrics  consumeMetrics

	mu   sync.Mutex
	subs map[string]*Subscription
}

// NewConsumer creates a Consumer.
func NewConsumer(channels SubscriberChannels, opts ...Option) (*Consumer, error) {
	o := applyOptions(opts)

	metrics, err := newConsumeMetrics(o.meterProvider)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		channels: channels,
		logger:   o.logger,
		metrics:  metrics,
		subs:     make(map[string]*Subscription),
	}, nil
}

// Subscribe binds the client of the kind channel to topics.
//
// Subscribing twice to the same set of topics on the same kind returns the same
// Subscription until it is closed.
func (c *Consumer) Subscribe(kind ChannelKind, topics ...string) (*Subscription, error) {
	normalized, err := normalizeTopics(topics)
	if err != nil {
		return nil, err
	}

	subscriber, err := c.channels.resolve(kind)
	if err != nil {
		return nil, err
	}

	key := kind.String() + "|" + strings.Join(normalized, ",")

	c.mu.Lock()
	defer c.mu.Unlock()

	if sub, ok := c.subs[key]; ok {
		return sub, nil
	}

	client, err := subscriber.Subscribe(normalized)
	if err != nil {
		return nil, fmt.Errorf("subscribing %s channel to %v: %w", kind, normalized, err)
	}

	sub := &Subscription{
		consumer: c,
		key:      key,
		kind:     kind,
		topics:   normalized,
		client:   client,
		logger:   c.logger.With(zap.Stringer("channel", kind), zap.Strings("topics", normalized)),
	}
	c.subs[key] = sub

	c.logger.Debug("subscribed", zap.Stringer("channel", kind), zap.Strings("topics", normalized))
	return sub, nil
}

// Close closes every open subscription.
func (c *Consumer) Close() error {
	c.mu.Lock()
	subs := make([]*Subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		errs = append(errs, sub.Close())
	}
	return errors.Join(errs...)
}

func (c *Consumer) forget(key string) {
	c.mu.Lock()
	delete(c.subs, key)
	c.mu.Unlock()
}

func normalizeTopics(topics []string) ([]string, error) {
	if len(topics) == 0 {
		return nil, fmt.Errorf("%w: no topics", ErrInvalidArgument)
	}

	normalized := make([]string, 0, len(topics))
	for _, topic := range topics {
		if strings.TrimSpace(topic) == "" {
			return nil, fmt.Errorf("%w: empty topic", ErrInvalidArgument)
		}
		normalized = append(normalized, topic)
	}

	slices.Sort(normalized)
	return slices.Compact(normalized), nil
}

// Subscription is the handle returned by Consumer.Subscribe.
// One message is in flight at a time: concurrent Consume calls on the same
// Subscription are serialized.
type Subscription struct {
	consumer *Consumer
	key      string
	kind     ChannelKind
	topics   []string
	client   SubscriptionClient
	logger   *zap.Logger

	mu     sync.Mutex
	closed atomic.Bool
}

// Kind returns the channel kind the subscription reads from.
func (s *Subscription) Kind() ChannelKind {
	return s.kind
}

// Topics returns the sorted topic set.
func (s *Subscription) Topics() []string {
	return slices.Clone(s.topics)
}

// Close releases the underlying client. A poll in progress is interrupted.
// Closing twice is a no-op.
func (s *Subscription) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.consumer.forget(s.key)

	if err := s.client.Close(); err != nil {
		return fmt.Errorf("closing %s subscription: %w", s.kind, err)
	}
	return nil
}

// Handler processes one decoded payload. Returning true commits the message.
// Returning false or an error leaves it uncommitted for redelivery.
type Handler[T any] func(ctx context.Context, payload T) (bool, error)

// Consume polls one message from sub, decodes it into T and passes it to handler.
//
// The message is committed only when handler returns true, in which case Consume
// returns true. Otherwise the subscription is rewound so the next poll delivers the
// same message again, and the handler or decoding error is returned.
func Consume[T any](ctx context.Context, sub *Subscription, handler Handler[T]) (bool, error) {
	if sub == nil {
		return false, fmt.Errorf("%w: subscription is nil", ErrInvalidArgument)
	}
	if handler == nil {
		return false, fmt.Errorf("%w: handler is nil", ErrInvalidArgument)
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()

	if sub.closed.Load() {
		return false, ErrSubscriptionClosed
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	metrics := sub.consumer.metrics

	d, err := sub.client.Poll(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		if sub.closed.Load() {
			return false, fmt.Errorf("%w: %w", ErrSubscriptionClosed, err)
		}
		metrics.record(ctx, sub.kind, "poll_error")
		return false, fmt.Errorf("polling %s subscription: %w", sub.kind, err)
	}

	logger := sub.logger.With(
		zap.String("topic", d.Topic),
		zap.Int("partition", d.Partition),
		zap.Int64("offset", d.Offset))
	if id, ok := HeaderValue(d.Headers, HeaderID); ok {
		logger = logger.With(zap.String("envelope_id", id))
	}

	payload, err := decodePayload[T](d.Value)
	if err != nil {
		logger.Warn("message could not be decoded, leaving it uncommitted", zap.Error(err))
		metrics.record(ctx, sub.kind, "deserialization_error")
		return false, errors.Join(err, sub.rewind(ctx, d))
	}

	ok, err := handler(ctx, payload)
	if err != nil {
		logger.Warn("handler failed, leaving message uncommitted", zap.Error(err))
		metrics.record(ctx, sub.kind, "handler_error")
		return false, errors.Join(err, sub.rewind(ctx, d))
	}
	if !ok {
		logger.Debug("handler rejected message, leaving it uncommitted")
		metrics.record(ctx, sub.kind, "rejected")
		return false, sub.rewind(ctx, d)
	}

	if err := sub.client.Commit(ctx, d); err != nil {
		metrics.record(ctx, sub.kind, "commit_error")
		return false, fmt.Errorf("committing %s offset %d: %w", d.Topic, d.Offset, err)
	}

	logger.Debug("message committed")
	metrics.record(ctx, sub.kind, "committed")
	return true, nil
}

func (s *Subscription) rewind(ctx context.Context, d Delivery) error {
	if err := s.client.Rewind(ctx, d); err != nil {
		return fmt.Errorf("rewinding %s to offset %d: %w", d.Topic, d.Offset, err)
	}
	return nil
}

// ConsumeResult is the outcome of an asynchronous Consume.
type ConsumeResult struct {
	Committed bool
	Err       error
}

// ConsumeAsync runs Consume on a new goroutine. The returned channel receives exactly
// one result and is then closed.
func ConsumeAsync[T any](ctx context.Context, sub *Subscription, handler Handler[T]) <-chan ConsumeResult {
	results := make(chan ConsumeResult, 1)

	go func() {
		defer close(results)
		committed, err := Consume(ctx, sub, handler)
		results <- ConsumeResult{Committed: committed, Err: err}
	}()

	return results
}

// ErrorPolicy decides whether Run keeps consuming after err.
type ErrorPolicy func(err error) bool

// Run consumes from sub until ctx is done. Cancellation is checked before every poll
// and is not reported as an error.
//
// Every error returned by Consume is passed to onError: true continues with the next
// poll, false stops Run and returns the error. A nil onError stops on the first error.
func Run[T any](ctx context.Context, sub *Subscription, handler Handler[T], onError ErrorPolicy) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		_, err := Consume(ctx, sub, handler)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrInvalidArgument) || errors.Is(err, ErrSubscriptionClosed) {
			return err
		}
		if onError == nil || !onError(err) {
			return err
		}
	}
}
