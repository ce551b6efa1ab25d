// Package config holds the broker and storage settings consumed by the adapters.
//
// Values are plain structs: binding them from files or the environment is left to the
// host application. Default returns the baseline, Validate normalizes and checks it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oagudo/courier/pkg/courier"
	"github.com/oagudo/courier/pkg/outbox"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Compression is the producer batch compression codec.
type Compression string

const (
	CompressionNone   Compression = "none"
	CompressionGzip   Compression = "gzip"
	CompressionSnappy Compression = "snappy"
	CompressionLz4    Compression = "lz4"
	CompressionZstd   Compression = "zstd"
)

// AutoOffsetReset decides where a new consumer group starts reading.
type AutoOffsetReset string

const (
	OffsetEarliest AutoOffsetReset = "earliest"
	OffsetLatest   AutoOffsetReset = "latest"
)

const (
	defaultRequestTimeout    = 30 * time.Second
	defaultMaxBlockTime      = 60 * time.Second
	defaultBatchSize         = 16384
	defaultMaxRequestSize    = 1 << 20
	defaultLingerTime        = 5 * time.Millisecond
	defaultMaxInFlight       = 5
	defaultProducerRetries   = 5
	defaultRetryBackoff      = 100 * time.Millisecond
	defaultSessionTimeout    = 30 * time.Second
	defaultHeartbeatInterval = 3 * time.Second
	defaultPollTimeout       = 100 * time.Second
	defaultFetchMinBytes     = 1
	defaultFetchMaxWait      = 500 * time.Millisecond
	defaultStoragePrefix     = "ARQ"
	defaultStorageRetries    = 3
	defaultStorageInterval   = 2 * time.Second
)

// ProducerOptions configures one publish channel.
type ProducerOptions struct {
	BootstrapServers []string
	Acks             courier.AckLevel
	// EnableIdempotence asks the broker to deduplicate retried sends.
	EnableIdempotence bool
	RequestTimeout    time.Duration
	// MaxBlockTime bounds a single Send call, including local queueing.
	MaxBlockTime time.Duration
	// BatchSize is the byte size of a partition batch. kafka-go batches by message
	// count and flushes on LingerTime, so it is not applied there.
	BatchSize int
	// MaxRequestSize bounds a single produce request, and so the largest message.
	MaxRequestSize int
	LingerTime     time.Duration
	Compression    Compression
	MaxInFlight    int
	Retries        int
	RetryBackoff   time.Duration
}

// ConsumerOptions configures one consume channel.
type ConsumerOptions struct {
	// GroupID defaults to the application name.
	GroupID           string
	BootstrapServers  []string
	AutoOffsetReset   AutoOffsetReset
	EnableAutoCommit  bool
	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration
	PollTimeout       time.Duration
	FetchMinBytes     int
	FetchMaxWait      time.Duration
	// EnablePartitionEOF reports reaching the end of a partition. Kept for parity, unused by kafka-go.
	EnablePartitionEOF bool
}

// SecurityOptions holds SASL/PLAIN credentials. An empty Username disables SASL.
type SecurityOptions struct {
	Username string
	Password string
	// DisableTLS connects in plaintext. Intended for local brokers only.
	DisableTLS bool
	// InsecureSkipVerify disables broker certificate verification.
	InsecureSkipVerify bool
}

// Enabled reports whether SASL authentication is configured.
func (s SecurityOptions) Enabled() bool {
	return s.Username != ""
}

// StorageOptions configures the outbox table.
type StorageOptions struct {
	Prefix        string
	Dialect       outbox.SQLDialect
	Retries       int
	RetryInterval time.Duration
}

// Options is the full configuration surface.
type Options struct {
	AppName     string
	Environment string

	QueuesProducer ProducerOptions
	EventsProducer ProducerOptions
	QueuesConsumer ConsumerOptions
	EventsConsumer ConsumerOptions

	Security SecurityOptions
	Storage  StorageOptions
}

// DefaultProducer returns the baseline producer settings.
func DefaultProducer() ProducerOptions {
	return ProducerOptions{
		Acks:              courier.AckAll,
		EnableIdempotence: true,
		RequestTimeout:    defaultRequestTimeout,
		MaxBlockTime:      defaultMaxBlockTime,
		BatchSize:         defaultBatchSize,
		MaxRequestSize:    defaultMaxRequestSize,
		LingerTime:        defaultLingerTime,
		Compression:       CompressionNone,
		MaxInFlight:       defaultMaxInFlight,
		Retries:           defaultProducerRetries,
		RetryBackoff:      defaultRetryBackoff,
	}
}

// DefaultConsumer returns the baseline consumer settings.
func DefaultConsumer() ConsumerOptions {
	return ConsumerOptions{
		AutoOffsetReset:   OffsetEarliest,
		SessionTimeout:    defaultSessionTimeout,
		HeartbeatInterval: defaultHeartbeatInterval,
		PollTimeout:       defaultPollTimeout,
		FetchMinBytes:     defaultFetchMinBytes,
		FetchMaxWait:      defaultFetchMaxWait,
	}
}

// Default returns the baseline configuration.
func Default() Options {
	return Options{
		QueuesProducer: DefaultProducer(),
		EventsProducer: DefaultProducer(),
		QueuesConsumer: DefaultConsumer(),
		EventsConsumer: DefaultConsumer(),
		Storage: StorageOptions{
			Prefix:        defaultStoragePrefix,
			Dialect:       outbox.SQLDialectSQLServer,
			Retries:       defaultStorageRetries,
			RetryInterval: defaultStorageInterval,
		},
	}
}

// Configured reports whether the producer has at least one bootstrap address.
func (p ProducerOptions) Configured() bool {
	return len(p.BootstrapServers) > 0
}

// Configured reports whether the consumer has at least one bootstrap address.
func (c ConsumerOptions) Configured() bool {
	return len(c.BootstrapServers) > 0
}

// Validate fills zero values with defaults, applies the group id fallback and checks
// every configured channel and the storage prefix.
func (o *Options) Validate() error {
	if strings.TrimSpace(o.AppName) == "" {
		return fmt.Errorf("%w: app name is required", ErrInvalidConfig)
	}

	producers := []struct {
		name string
		opts *ProducerOptions
	}{
		{name: "queues producer", opts: &o.QueuesProducer},
		{name: "events producer", opts: &o.EventsProducer},
	}
	consumers := []struct {
		name string
		opts *ConsumerOptions
	}{
		{name: "queues consumer", opts: &o.QueuesConsumer},
		{name: "events consumer", opts: &o.EventsConsumer},
	}

	var errs []error
	for _, p := range producers {
		if !p.opts.Configured() {
			continue
		}
		p.opts.normalize()
		if err := p.opts.validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.name, err))
		}
	}
	for _, c := range consumers {
		if !c.opts.Configured() {
			continue
		}
		c.opts.normalize(o.AppName)
		if err := c.opts.validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}

	if !o.QueuesProducer.Configured() && !o.EventsProducer.Configured() &&
		!o.QueuesConsumer.Configured() && !o.EventsConsumer.Configured() {
		errs = append(errs, errors.New("no channel has bootstrap servers"))
	}

	o.Storage.normalize()
	if err := outbox.ValidatePrefix(o.Storage.Prefix); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (p *ProducerOptions) normalize() {
	defaults := DefaultProducer()

	if p.RequestTimeout <= 0 {
		p.RequestTimeout = defaults.RequestTimeout
	}
	if p.MaxBlockTime <= 0 {
		p.MaxBlockTime = defaults.MaxBlockTime
	}
	if p.BatchSize <= 0 {
		p.BatchSize = defaults.BatchSize
	}
	if p.MaxRequestSize <= 0 {
		p.MaxRequestSize = defaults.MaxRequestSize
	}
	if p.LingerTime < 0 {
		p.LingerTime = defaults.LingerTime
	}
	if p.Compression == "" {
		p.Compression = defaults.Compression
	}
	if p.MaxInFlight <= 0 {
		p.MaxInFlight = defaults.MaxInFlight
	}
	if p.Retries < 0 {
		p.Retries = defaults.Retries
	}
	if p.RetryBackoff <= 0 {
		p.RetryBackoff = defaults.RetryBackoff
	}
}

func (p ProducerOptions) validate() error {
	if err := validateServers(p.BootstrapServers); err != nil {
		return err
	}

	switch p.Acks {
	case courier.AckAll, courier.AckLeader, courier.AckNone:
	default:
		return fmt.Errorf("unknown acks %s", p.Acks)
	}

	switch p.Compression {
	case CompressionNone, CompressionGzip, CompressionSnappy, CompressionLz4, CompressionZstd:
	default:
		return fmt.Errorf("unknown compression %q", p.Compression)
	}

	if p.EnableIdempotence && p.Acks != courier.AckAll {
		return errors.New("idempotence requires acks all")
	}
	return nil
}

func (c *ConsumerOptions) normalize(appName string) {
	defaults := DefaultConsumer()

	if strings.TrimSpace(c.GroupID) == "" {
		c.GroupID = appName
	}
	if c.AutoOffsetReset == "" {
		c.AutoOffsetReset = defaults.AutoOffsetReset
	}
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = defaults.SessionTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = defaults.PollTimeout
	}
	if c.FetchMinBytes <= 0 {
		c.FetchMinBytes = defaults.FetchMinBytes
	}
	if c.FetchMaxWait <= 0 {
		c.FetchMaxWait = defaults.FetchMaxWait
	}
}

func (c ConsumerOptions) validate() error {
	if err := validateServers(c.BootstrapServers); err != nil {
		return err
	}

	switch c.AutoOffsetReset {
	case OffsetEarliest, OffsetLatest:
	default:
		return fmt.Errorf("unknown auto offset reset %q", c.AutoOffsetReset)
	}

	if c.HeartbeatInterval >= c.SessionTimeout {
		return fmt.Errorf("heartbeat interval %s must be lower than session timeout %s", c.HeartbeatInterval, c.SessionTimeout)
	}
	return nil
}

func (s *StorageOptions) normalize() {
	if s.Prefix == "" {
		s.Prefix = defaultStoragePrefix
	}
	if s.Dialect == "" {
		s.Dialect = outbox.SQLDialectSQLServer
	}
	if s.Retries <= 0 {
		s.Retries = defaultStorageRetries
	}
	if s.RetryInterval <= 0 {
		s.RetryInterval = defaultStorageInterval
	}
}

// StoreOptions translates the storage settings into outbox.Store options.
func (s StorageOptions) StoreOptions() []outbox.StoreOption {
	return []outbox.StoreOption{
		outbox.WithDialect(s.Dialect),
		outbox.WithRetries(s.Retries),
		outbox.WithRetryInterval(s.RetryInterval),
	}
}

func validateServers(servers []string) error {
	for _, server := range servers {
		if strings.TrimSpace(server) == "" {
			return errors.New("empty bootstrap server")
		}
	}
	return nil
}

// Role tells producer and consumer clients apart in client ids.
type Role string

const (
	RoleProducer Role = "producer"
	RoleConsumer Role = "consumer"
)

// ClientID builds the broker client id <app>.<kind>-<role>.<env>.<host>, lower cased.
func ClientID(appName string, kind courier.ChannelKind, role Role, environment, host string) string {
	return strings.ToLower(fmt.Sprintf("%s.%s-%s.%s.%s", appName, kind, role, environment, host))
}

// ClientID builds the client id for this application on the local host.
func (o Options) ClientID(kind courier.ChannelKind, role Role) string {
	return ClientID(o.AppName, kind, role, o.Environment, Hostname())
}

// Hostname returns the local host name, or "unknown" when it cannot be resolved.
func Hostname() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "unknown"
	}
	return host
}
