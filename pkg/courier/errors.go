package courier

import "errors"

var (
	// ErrInvalidArgument is returned for nil or malformed input. It is never retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSerialization is returned when a payload cannot be encoded. Such a message never reaches the outbox.
	ErrSerialization = errors.New("serialization failed")

	// ErrDeserialization is returned when a consumed message cannot be decoded into the target type.
	// The message is left uncommitted.
	ErrDeserialization = errors.New("deserialization failed")

	// ErrBrokerSend wraps a failure reported by a Producer.
	ErrBrokerSend = errors.New("broker send failed")

	// ErrChannelNotConfigured is returned when no client is registered for the selected channel kind.
	ErrChannelNotConfigured = errors.New("channel not configured")

	// ErrSubscriptionClosed is returned when consuming from a closed Subscription.
	ErrSubscriptionClosed = errors.New("subscription closed")
)
