package kafka

import (
	"context"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/oagudo/courier/pkg/config"
	"github.com/oagudo/courier/pkg/courier"
)

const maxFetchBytes = 10e6

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type readerFactory func(cfg kafka.ReaderConfig) messageReader

func newKafkaReader(cfg kafka.ReaderConfig) messageReader {
	return kafka.NewReader(cfg)
}

// Subscriber is a courier.Subscriber creating consumer group readers.
type Subscriber struct {
	base      kafka.ReaderConfig
	newReader readerFactory
	logger    *zap.Logger
}

// NewSubscriber creates a Subscriber from validated options.
// Offsets are always committed explicitly after the handler succeeds.
func NewSubscriber(opts config.ConsumerOptions, clientID string, sec config.SecurityOptions, so ...Option) (*Subscriber, error) {
	if !opts.Configured() {
		return nil, fmt.Errorf("%w: no bootstrap servers", config.ErrInvalidConfig)
	}
	if opts.GroupID == "" {
		return nil, fmt.Errorf("%w: group id is required", config.ErrInvalidConfig)
	}

	o := applyOptions(so)
	logger := o.logger.With(zap.String("client_id", clientID), zap.String("group_id", opts.GroupID))

	if opts.EnableAutoCommit {
		logger.Info("auto commit is ignored, offsets are committed after the handler succeeds")
	}

	return &Subscriber{
		base:      readerConfig(opts, NewDialer(clientID, sec), logger),
		newReader: newKafkaReader,
		logger:    logger,
	}, nil
}

func readerConfig(opts config.ConsumerOptions, dialer *kafka.Dialer, logger *zap.Logger) kafka.ReaderConfig {
	startOffset := kafka.FirstOffset
	if opts.AutoOffsetReset == config.OffsetLatest {
		startOffset = kafka.LastOffset
	}

	return kafka.ReaderConfig{
		Brokers:           opts.BootstrapServers,
		GroupID:           opts.GroupID,
		Dialer:            dialer,
		MinBytes:          opts.FetchMinBytes,
		MaxBytes:          maxFetchBytes,
		MaxWait:           opts.FetchMaxWait,
		SessionTimeout:    opts.SessionTimeout,
		HeartbeatInterval: opts.HeartbeatInterval,
		RebalanceTimeout:  opts.PollTimeout,
		StartOffset:       startOffset,
		ErrorLogger:       kafka.LoggerFunc(logger.Sugar().Errorf),
	}
}

// Subscribe creates a group reader bound to topics.
func (s *Subscriber) Subscribe(topics []string) (courier.SubscriptionClient, error) {
	cfg := s.base
	cfg.GroupTopics = append([]string(nil), topics...)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}

	return &subscription{
		cfg:       cfg,
		newReader: s.newReader,
		reader:    s.newReader(cfg),
		logger:    s.logger.With(zap.Strings("topics", topics)),
	}, nil
}

// subscription reads from a consumer group. Rewinding reopens the reader so that
// consumption resumes at the last committed offset of every assigned partition.
type subscription struct {
	cfg       kafka.ReaderConfig
	newReader readerFactory
	logger    *zap.Logger

	mu     sync.Mutex
	reader messageReader
	closed bool
}

func (s *subscription) current() messageReader {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reader
}

func (s *subscription) Poll(ctx context.Context) (courier.Delivery, error) {
	msg, err := s.current().FetchMessage(ctx)
	if err != nil {
		return courier.Delivery{}, fmt.Errorf("fetching message: %w", err)
	}
	return toDelivery(msg), nil
}

func (s *subscription) Commit(ctx context.Context, d courier.Delivery) error {
	return s.current().CommitMessages(ctx, kafka.Message{
		Topic:     d.Topic,
		Partition: d.Partition,
		Offset:    d.Offset,
	})
}

func (s *subscription) Rewind(_ context.Context, d courier.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("rewinding %s: %w", d.Topic, courier.ErrSubscriptionClosed)
	}

	if err := s.reader.Close(); err != nil {
		s.logger.Warn("closing reader before rewind", zap.Error(err))
	}
	s.reader = s.newReader(s.cfg)

	s.logger.Debug("rewound to last committed offset",
		zap.String("topic", d.Topic),
		zap.Int("partition", d.Partition),
		zap.Int64("offset", d.Offset))
	return nil
}

// Close closes the current reader once. Rewind fails afterwards instead of reopening.
func (s *subscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.reader.Close()
}

func toDelivery(msg kafka.Message) courier.Delivery {
	headers := make([]courier.Header, len(msg.Headers))
	for i, h := range msg.Headers {
		headers[i] = courier.Header{Key: h.Key, Value: h.Value}
	}

	return courier.Delivery{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   headers,
	}
}
