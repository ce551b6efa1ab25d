package outbox

import "errors"

var (
	// ErrInvalidArgument is returned for nil or malformed input. It is never retried.
	ErrInvalidArgument = errors.New("outbox: invalid argument")
	// ErrInvalidIdentifier is returned when a configuration-driven SQL identifier fails sanitization.
	ErrInvalidIdentifier = errors.New("outbox: invalid sql identifier")
	// ErrStorageTransient marks a storage failure that is expected to resolve when retried.
	// It only surfaces wrapped in ErrStorageFatal, once the retry budget is exhausted.
	ErrStorageTransient = errors.New("outbox: transient storage error")
	// ErrStorageFatal is returned when a record could not be stored: the failure was not
	// transient, the retry budget was exhausted, or the caller cancelled the retry loop.
	ErrStorageFatal = errors.New("outbox: fatal storage error")
)
