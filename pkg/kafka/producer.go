// Package kafka implements courier channels on top of segmentio/kafka-go.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/oagudo/courier/pkg/config"
	"github.com/oagudo/courier/pkg/courier"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer is a courier.Producer writing to Kafka. It is safe for concurrent use.
type Producer struct {
	writer   messageWriter
	acks     courier.AckLevel
	required kafka.RequiredAcks
	maxBlock time.Duration
	logger   *zap.Logger
}

// NewProducer creates a Producer from validated options.
func NewProducer(opts config.ProducerOptions, clientID string, sec config.SecurityOptions, po ...Option) (*Producer, error) {
	if !opts.Configured() {
		return nil, fmt.Errorf("%w: no bootstrap servers", config.ErrInvalidConfig)
	}

	o := applyOptions(po)
	logger := o.logger.With(zap.String("client_id", clientID))

	if opts.BatchSize > 0 {
		logger.Info("batch size in bytes is not supported by the kafka client, batches are flushed after the linger time",
			zap.Int("batch_size", opts.BatchSize))
	}
	if opts.EnableIdempotence {
		logger.Info("idempotent produce is not supported by the kafka client, consumers deduplicate on the envelope id")
	}

	writer := newWriter(opts, NewTransport(clientID, sec), logger)
	return newProducer(writer, opts, logger), nil
}

func newProducer(writer messageWriter, opts config.ProducerOptions, logger *zap.Logger) *Producer {
	return &Producer{
		writer:   writer,
		acks:     opts.Acks,
		required: requiredAcks(opts.Acks),
		maxBlock: opts.MaxBlockTime,
		logger:   logger,
	}
}

func newWriter(opts config.ProducerOptions, transport kafka.RoundTripper, logger *zap.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:            kafka.TCP(opts.BootstrapServers...),
		Balancer:        &kafka.Hash{},
		RequiredAcks:    requiredAcks(opts.Acks),
		MaxAttempts:     opts.Retries + 1,
		WriteBackoffMin: opts.RetryBackoff,
		BatchBytes:      int64(opts.MaxRequestSize),
		BatchTimeout:    opts.LingerTime,
		ReadTimeout:     opts.RequestTimeout,
		WriteTimeout:    opts.RequestTimeout,
		Compression:     compression(opts.Compression),
		Transport:       transport,
		ErrorLogger:     kafka.LoggerFunc(logger.Sugar().Errorf),
	}
}

func requiredAcks(acks courier.AckLevel) kafka.RequiredAcks {
	switch acks {
	case courier.AckNone:
		return kafka.RequireNone
	case courier.AckLeader:
		return kafka.RequireOne
	default:
		return kafka.RequireAll
	}
}

func compression(c config.Compression) kafka.Compression {
	switch c {
	case config.CompressionGzip:
		return kafka.Gzip
	case config.CompressionSnappy:
		return kafka.Snappy
	case config.CompressionLz4:
		return kafka.Lz4
	case config.CompressionZstd:
		return kafka.Zstd
	default:
		return 0
	}
}

// Channel returns the courier channel backed by p.
func (p *Producer) Channel() courier.Channel {
	return courier.Channel{Producer: p, Acks: p.acks}
}

// Send writes msg and waits for the configured acknowledgment, at most MaxBlockTime.
func (p *Producer) Send(ctx context.Context, msg courier.Message) (courier.DeliveryStatus, error) {
	if p.maxBlock > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.maxBlock)
		defer cancel()
	}

	err := p.writer.WriteMessages(ctx, toKafkaMessage(msg))
	status := statusOf(err, p.required)
	if err != nil {
		p.logger.Debug("kafka write failed", zap.String("topic", msg.Topic), zap.Stringer("status", status), zap.Error(err))
		return status, fmt.Errorf("writing to topic %s: %w", msg.Topic, err)
	}
	return status, nil
}

// Close flushes pending writes and releases the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

func toKafkaMessage(msg courier.Message) kafka.Message {
	headers := make([]kafka.Header, len(msg.Headers))
	for i, h := range msg.Headers {
		headers[i] = kafka.Header{Key: h.Key, Value: h.Value}
	}

	return kafka.Message{
		Topic:   msg.Topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	}
}
