package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/oagudo/courier/internal/delay"
)

const (
	defaultRetries       = 3
	defaultRetryInterval = 2 * time.Second
)

// Executor runs a statement on a caller-owned connection or transaction.
// It is compatible with *sql.DB, *sql.Conn and *sql.Tx.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SleepFunc waits for d, returning early with an error when ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Store persists records into the outbox table.
//
// A Store holds no connection of its own. The caller supplies the connection or
// transaction for every SaveMessage call and owns its lifecycle: when a transaction is
// supplied, every retry runs inside it and rolling it back undoes the insert.
type Store struct {
	dialect       SQLDialect
	table         string
	insertQuery   string
	retries       int
	retryInterval time.Duration
	rng           *rand.Rand
	delayFunc     delay.DelayFunc
	sleep         SleepFunc
	isTransient   TransientClassifier
	now           func() time.Time
	logger        *zap.Logger
}

// StoreOption is a function that configures a Store instance.
type StoreOption func(*Store)

// WithDialect sets the SQL dialect used to build the insert statement.
// Default is SQL Server.
func WithDialect(dialect SQLDialect) StoreOption {
	return func(s *Store) {
		s.dialect = dialect
	}
}

// WithRetries sets the total number of insert attempts, including the first one.
// Default is 3. Must be positive.
func WithRetries(retries int) StoreOption {
	return func(s *Store) {
		if retries > 0 {
			s.retries = retries
		}
	}
}

// WithRetryInterval sets the base interval of the exponential backoff between attempts.
// Default is 2 seconds. Must be positive.
func WithRetryInterval(interval time.Duration) StoreOption {
	return func(s *Store) {
		if interval > 0 {
			s.retryInterval = interval
		}
	}
}

// WithRand sets the random source used for backoff jitter.
// A seeded source makes the backoff sequence reproducible. The store serializes
// access to rng, it must not be used elsewhere concurrently.
func WithRand(rng *rand.Rand) StoreOption {
	return func(s *Store) {
		s.rng = rng
	}
}

// WithSleepFunc replaces the context-aware timer used between attempts.
func WithSleepFunc(sleep SleepFunc) StoreOption {
	return func(s *Store) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// WithTransientClassifier replaces IsTransient.
func WithTransientClassifier(classifier TransientClassifier) StoreOption {
	return func(s *Store) {
		if classifier != nil {
			s.isTransient = classifier
		}
	}
}

// WithClock sets the time source used to fill CreatedAt.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the store logger. Default is a no-op logger.
func WithLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates a Store writing to the <PREFIX>_OUTBOX_MESSAGES table.
// The prefix is validated with ValidatePrefix before any SQL is built.
func NewStore(prefix string, opts ...StoreOption) (*Store, error) {
	if err := ValidatePrefix(prefix); err != nil {
		return nil, err
	}

	s := &Store{
		dialect:       SQLDialectSQLServer,
		table:         TableName(prefix),
		retries:       defaultRetries,
		retryInterval: defaultRetryInterval,
		sleep:         delay.Sleep,
		isTransient:   IsTransient,
		now:           func() time.Time { return time.Now().UTC() },
		logger:        zap.NewNop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if !s.dialect.valid() {
		return nil, fmt.Errorf("%w: unsupported dialect %q", ErrInvalidArgument, s.dialect)
	}

	s.delayFunc = delay.Jittered(s.retryInterval, s.rng)
	s.insertQuery = buildInsertQuery(s.dialect, s.table)

	return s, nil
}

// Table returns the unquoted name of the outbox table.
func (s *Store) Table() string {
	return s.table
}

// SaveMessage inserts rec into the outbox table using exec.
//
// Transient failures are retried up to the configured number of attempts with a
// jittered exponential backoff between them. Any other failure, an exhausted budget or
// a cancelled backoff is returned wrapped in ErrStorageFatal.
//
// The returned bool is true iff exactly one row was affected.
func (s *Store) SaveMessage(ctx context.Context, exec Executor, rec *Record) (bool, error) {
	if rec == nil {
		return false, fmt.Errorf("%w: record is nil", ErrInvalidArgument)
	}
	if exec == nil {
		return false, fmt.Errorf("%w: executor is nil", ErrInvalidArgument)
	}

	args := s.insertArgs(rec)
	logger := s.logger.With(zap.String("envelope_id", rec.ID), zap.String("topic", rec.Topic))

	var lastErr error
	for attempt := 1; attempt <= s.retries; attempt++ {
		if attempt > 1 {
			wait := s.delayFunc(attempt)
			logger.Warn("retrying outbox insert",
				zap.Int("attempt", attempt),
				zap.Duration("delay", wait),
				zap.Error(lastErr))

			if err := s.sleep(ctx, wait); err != nil {
				return false, fmt.Errorf("%w: backoff interrupted before attempt %d: %w", ErrStorageFatal, attempt, errors.Join(err, lastErr))
			}
		}

		result, err := exec.ExecContext(ctx, s.insertQuery, args...)
		if err != nil {
			if !s.isTransient(err) {
				logger.Error("outbox insert failed", zap.Int("attempt", attempt), zap.Error(err))
				return false, fmt.Errorf("%w: storing message in outbox: %w", ErrStorageFatal, err)
			}
			lastErr = err
			continue
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("%w: reading affected rows: %w", ErrStorageFatal, err)
		}
		if rows != 1 {
			logger.Warn("unexpected outbox insert row count", zap.Int64("rows", rows))
		}
		return rows == 1, nil
	}

	logger.Error("outbox insert retry budget exhausted", zap.Int("attempts", s.retries), zap.Error(lastErr))
	return false, fmt.Errorf("%w: %w: %d attempts exhausted: %w", ErrStorageFatal, ErrStorageTransient, s.retries, lastErr)
}

func (s *Store) insertArgs(rec *Record) []any {
	createdAt := s.now()
	if rec.CreatedAt != nil {
		createdAt = *rec.CreatedAt
	}

	return []any{
		rec.ID,
		rec.Topic,
		rec.Payload,
		rec.SpecVersion,
		rec.Source,
		rec.Type,
		rec.Time,
		rec.DataContentType,
		rec.TraceID,
		createdAt,
		nullableTime(rec.ProcessedAt),
		rec.RetryCount,
		nullableTime(rec.NextRetryAt),
		nullableString(rec.Error),
		int(rec.Status),
	}
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
