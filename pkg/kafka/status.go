package kafka

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/segmentio/kafka-go"

	"github.com/oagudo/courier/pkg/courier"
)

// statusOf maps the result of a single-message write to a delivery status.
//
// A broker acknowledgment is Persisted unless no acknowledgment was requested.
// Errors raised after the request may have reached the broker are PossiblyPersisted,
// everything else is NotPersisted.
func statusOf(err error, acks kafka.RequiredAcks) courier.DeliveryStatus {
	if err == nil {
		if acks == kafka.RequireNone {
			return courier.PossiblyPersisted
		}
		return courier.Persisted
	}

	var writeErrs kafka.WriteErrors
	if errors.As(err, &writeErrs) {
		for _, e := range writeErrs {
			if e != nil {
				return statusOf(e, acks)
			}
		}
		return courier.NotPersisted
	}

	var kafkaErr kafka.Error
	if errors.As(err, &kafkaErr) {
		switch kafkaErr {
		case kafka.RequestTimedOut, kafka.NotEnoughReplicasAfterAppend:
			return courier.PossiblyPersisted
		default:
			return courier.NotPersisted
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return courier.NotPersisted
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return courier.PossiblyPersisted
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return courier.PossiblyPersisted
	}

	return courier.NotPersisted
}
